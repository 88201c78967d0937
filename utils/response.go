package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/classifieds/apperr"
)

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, 0, "success", data)
}

// Created returns a standard success response with status 201.
func Created(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusCreated, 0, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// Fail translates any error into the standard error envelope.
// Known kinds keep their code and message; anything else is logged and hidden.
func Fail(ctx *gin.Context, err error) {
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		Error(ctx, e.HTTPStatus(), e.Code, e.Message)
		return
	}

	code := 50000
	if e, ok := apperr.As(err); ok && e.Code != 0 {
		code = e.Code
	}
	Logger.Error("request failed",
		zap.Error(err),
		zap.Int("code", code),
		zap.String("method", ctx.Request.Method),
		zap.String("path", ctx.Request.URL.Path),
	)
	Error(ctx, http.StatusInternalServerError, code, "internal server error")
}
