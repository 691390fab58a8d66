package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_FollowsWrapChain(t *testing.T) {
	base := Format("worksheet %q not found", "Export Consommation Quotidienne")
	wrapped := fmt.Errorf("parse upload: %w", base)

	assert.Equal(t, KindFormat, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindFormat))
	assert.Contains(t, wrapped.Error(), "not found")
	assert.Equal(t, KindUnexpected, KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindUnexpected))
}

func TestError_IsMatchesKindAndCode(t *testing.T) {
	err := NotFound("METER_NOT_FOUND", "meter %s not found", "m1")

	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound, Code: "METER_NOT_FOUND"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound, Code: "NO_CREDENTIALS"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidation}))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient(cause, "weather provider call failed")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "weather provider call failed: connection reset", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("", "job not found")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("to must be after from")))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(Format("bad file")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(Transient(nil, "down")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
