package live

import (
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestReconnectBackOffDoublesThenStops(t *testing.T) {
	base := 100 * time.Millisecond
	b := newReconnectBackOff(base, 5)

	var prev time.Duration
	for n := 1; n <= 5; n++ {
		delay := b.NextBackOff()
		assert.Equal(t, base*time.Duration(1<<(n-1)), delay, "retry %d", n)
		assert.Greater(t, delay, prev)
		prev = delay
	}
	assert.Equal(t, backoff.Stop, b.NextBackOff())

	b.Reset()
	assert.Equal(t, base, b.NextBackOff())
}

func TestReconnectBackOffLargeRetryCountStaysMonotonic(t *testing.T) {
	b := newReconnectBackOff(time.Second, 40)

	var prev time.Duration
	for n := 1; n <= 40; n++ {
		delay := b.NextBackOff()
		assert.NotEqual(t, backoff.Stop, delay, "retry %d", n)
		assert.GreaterOrEqual(t, delay, prev, "retry %d", n)
		assert.Positive(t, delay, "retry %d", n)
		prev = delay
	}
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestMaxReconnectInterval(t *testing.T) {
	assert.Equal(t, 16*time.Second, maxReconnectInterval(time.Second, 4))
	assert.Equal(t, time.Second, maxReconnectInterval(time.Second, 0))
	assert.Equal(t, time.Duration(math.MaxInt64), maxReconnectInterval(time.Second, 40))
	assert.Equal(t, time.Duration(math.MaxInt64), maxReconnectInterval(time.Hour, MaxReconnectLimit))
}

func TestConfigValidateReconnectAttempts(t *testing.T) {
	cfg := NewTextConfig("key")
	assert.Equal(t, DefaultMaxReconnects, cfg.MaxReconnectAttempts)

	cfg.MaxReconnectAttempts = 0
	cfg.applyDefaults()
	assert.Zero(t, cfg.MaxReconnectAttempts, "zero means no retries")
	assert.NoError(t, cfg.Validate())

	cfg.MaxReconnectAttempts = MaxReconnectLimit
	assert.NoError(t, cfg.Validate())

	cfg.MaxReconnectAttempts = MaxReconnectLimit + 1
	assert.Error(t, cfg.Validate())

	cfg.MaxReconnectAttempts = -1
	assert.Error(t, cfg.Validate())
}

func TestClassifyClose(t *testing.T) {
	assert.Equal(t, closeClean, classifyClose(&websocket.CloseError{Code: websocket.CloseNormalClosure}))
	assert.Equal(t, closeFatal, classifyClose(&websocket.CloseError{Code: websocket.ClosePolicyViolation}))
	assert.Equal(t, closeFatal, classifyClose(&websocket.CloseError{Code: websocket.CloseInvalidFramePayloadData}))
	assert.Equal(t, closeRetryable, classifyClose(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
	assert.Equal(t, closeRetryable, classifyClose(&websocket.CloseError{Code: websocket.CloseInternalServerErr}))
	assert.Equal(t, closeRetryable, classifyClose(errors.New("connection reset by peer")))
}

func TestClassifyDial(t *testing.T) {
	assert.Equal(t, closeRetryable, classifyDial(nil))
	assert.Equal(t, closeFatal, classifyDial(&http.Response{StatusCode: http.StatusUnauthorized}))
	assert.Equal(t, closeRetryable, classifyDial(&http.Response{StatusCode: http.StatusServiceUnavailable}))
}
