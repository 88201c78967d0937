package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindUnauthorized:    http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindTooManyRequests: http.StatusTooManyRequests,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, kind.Status(), kind.String())
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := NotFound(40401, "listing not found")
	wrapped := fmt.Errorf("load listing: %w", base)

	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, 40401, got.Code)
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(errors.New("plain"), KindNotFound))
}

func TestWithStatusDoesNotMutate(t *testing.T) {
	base := Validation(40020, "bad")
	forbidden := base.WithStatus(http.StatusForbidden)

	assert.Equal(t, http.StatusBadRequest, base.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, forbidden.HTTPStatus())
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Internal(50001, cause)

	assert.Equal(t, "internal server error", err.Message)
	assert.ErrorIs(t, err, cause)
}
