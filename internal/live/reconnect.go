package live

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// newReconnectBackOff yields base, 2*base, 4*base, ... for maxRetries
// retries and then backoff.Stop. There is no jitter so delays are exact.
func newReconnectBackOff(base time.Duration, maxRetries int) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = base
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxInterval = maxReconnectInterval(base, maxRetries)
	expo.MaxElapsedTime = 0
	expo.Reset()
	return backoff.WithMaxRetries(expo, uint64(maxRetries))
}

// maxReconnectInterval is base doubled maxRetries times, saturating at the
// largest Duration.
func maxReconnectInterval(base time.Duration, maxRetries int) time.Duration {
	interval := base
	for i := 0; i < maxRetries; i++ {
		if interval > math.MaxInt64/2 {
			return math.MaxInt64
		}
		interval *= 2
	}
	return interval
}

// closeKind classifies how a connection ended
type closeKind int

const (
	closeRetryable closeKind = iota
	closeClean
	closeFatal
)

func (k closeKind) String() string {
	switch k {
	case closeClean:
		return "clean"
	case closeFatal:
		return "fatal"
	}
	return "retryable"
}

// classifyClose maps a read error to a closeKind. A normal close frame is
// clean; invalid-payload and policy-violation closes (bad key, bad model)
// are fatal; everything else, including abnormal 1006, is retried.
func classifyClose(err error) closeKind {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return closeRetryable
	}
	switch ce.Code {
	case websocket.CloseNormalClosure:
		return closeClean
	case websocket.CloseInvalidFramePayloadData, websocket.ClosePolicyViolation, websocket.CloseUnsupportedData:
		return closeFatal
	}
	return closeRetryable
}

// classifyDial maps a failed upgrade to a closeKind. The handshake is
// rejected with 4xx when the key or model is wrong.
func classifyDial(resp *http.Response) closeKind {
	if resp == nil {
		return closeRetryable
	}
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return closeFatal
	}
	return closeRetryable
}
