package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))

	err := fmt.Errorf("tick: %w", New(KindOffline, "broker", "unreachable"))
	assert.Equal(t, KindOffline, KindOf(err))
	assert.True(t, Is(err, KindOffline))
	assert.True(t, errors.Is(err, &Error{Kind: KindOffline}))
	assert.False(t, errors.Is(err, &Error{Kind: KindTimeout}))
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "model.generate: timeout", (&Error{Kind: KindTimeout, Op: "model.generate"}).Error())
	assert.Equal(t, "x: bad: inner", (&Error{Kind: KindInvalid, Op: "x", Message: "bad", Err: errors.New("inner")}).Error())
	assert.Equal(t, "x: invalid", New(KindInvalid, "x", "").Error())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.Equal(t, KindOffline, KindOf(Classify("ollama", opErr)))
	assert.Equal(t, KindTimeout, KindOf(Classify("ollama", context.DeadlineExceeded)))

	plain := errors.New("plain")
	assert.Same(t, plain, Classify("x", plain))
	assert.NoError(t, Classify("x", nil))
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(New(KindOffline, "", "")))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(New(KindTimeout, "", "")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(New(KindNotFound, "", "")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(New(KindInvalid, "", "")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("x")))
}
