package controllers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/classifieds/apperr"
	"github.com/cppla/classifieds/middleware"
	"github.com/cppla/classifieds/models"
	"github.com/cppla/classifieds/utils"
)

var (
	errBadPayload   = apperr.Validation(40001, "invalid request payload")
	errMissingToken = apperr.Validation(40003, "missing token")
	errBadID        = apperr.Validation(40004, "invalid id")
	errNoFile       = apperr.Validation(40005, "file is required")
	errNoUser       = apperr.Unauthorized(40101, "authorization header missing")
)

func errBadParam(name string) error {
	return apperr.Validation(40002, fmt.Sprintf("invalid %s", name))
}

// currentUser returns the account loaded by the auth middleware or answers 401.
func currentUser(ctx *gin.Context) (models.User, bool) {
	u, ok := middleware.CurrentUser(ctx)
	if !ok {
		utils.Fail(ctx, errNoUser)
		return models.User{}, false
	}
	return u, true
}

// bindJSON decodes the body or answers 400.
func bindJSON(ctx *gin.Context, v interface{}) bool {
	if err := ctx.ShouldBindJSON(v); err != nil {
		utils.Fail(ctx, errBadPayload)
		return false
	}
	return true
}

// pageParams reads offset and limit. Absent values are zero and left to the service defaults.
func pageParams(ctx *gin.Context) (int, int, error) {
	offset, err := intQuery(ctx, "offset")
	if err != nil {
		return 0, 0, err
	}
	limit, err := intQuery(ctx, "limit")
	if err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

func intQuery(ctx *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadParam(name)
	}
	return n, nil
}

func floatQuery(ctx *gin.Context, name string) (*float64, error) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errBadParam(name)
	}
	return &f, nil
}

func boolQuery(ctx *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errBadParam(name)
	}
	return &b, nil
}

const dateLayout = "2006-01-02"

// timeQuery accepts RFC3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func timeQuery(ctx *gin.Context, name string, upper bool) (*time.Time, error) {
	raw := strings.TrimSpace(ctx.Query(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return nil, errBadParam(name)
	}
	if upper {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func uintParam(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || n == 0 {
		utils.Fail(ctx, errBadID)
		return 0, false
	}
	return uint(n), true
}
