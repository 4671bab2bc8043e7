package log

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const headerRequestID = "X-Request-ID"

// Transport is an http.RoundTripper that stamps every outgoing request with
// an X-Request-ID and logs the exchange through the request's context logger.
type Transport struct {
	Base http.RoundTripper
}

// NewTransport wraps base, falling back to http.DefaultTransport.
func NewTransport(base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := r.Header.Get(headerRequestID)
	if reqID == "" {
		reqID = uuid.New().String()
		r = r.Clone(r.Context())
		r.Header.Set(headerRequestID, reqID)
	}

	l := Ctx(r.Context())
	child := l.With().
		Str(FieldRequestID, reqID).
		Str(FieldMethod, r.Method).
		Str(FieldHost, r.URL.Host).
		Str(FieldPath, r.URL.Path).
		Logger()

	resp, err := t.Base.RoundTrip(r)
	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		child.Warn().Err(err).Float64(FieldLatency, latency).Msg("request failed")
		return nil, err
	}

	child.Debug().
		Int(FieldStatus, resp.StatusCode).
		Float64(FieldLatency, latency).
		Msg("request completed")

	return resp, nil
}
