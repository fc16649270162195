package platform

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Response is the outcome of one transport POST
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport ships serialized payloads to the ingestion endpoint.
//
// Post is the ordinary request/response path; the caller controls the
// attempt timeout through ctx. SendBeacon is the best-effort page-exit
// path: one attempt, no retry, returns whether the send was accepted.
type Transport interface {
	Post(ctx context.Context, url, contentType string, body []byte) (*Response, error)
	SendBeacon(url, contentType string, body []byte) bool
}

// HTTPTransport is the production Transport backed by net/http
type HTTPTransport struct {
	client *http.Client
	// beaconTimeout bounds the synchronous page-exit send
	beaconTimeout time.Duration
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		client:        &http.Client{},
		beaconTimeout: 3 * time.Second,
	}
}

func (t *HTTPTransport) Post(ctx context.Context, url, contentType string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Ack bodies are small; never read more than 1MB
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// SendBeacon performs a single synchronous send with a short timeout.
// It reports acceptance only: a true result means the payload was handed
// off, not that the server processed it.
func (t *HTTPTransport) SendBeacon(url, contentType string, body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), t.beaconTimeout)
	defer cancel()

	resp, err := t.Post(ctx, url, contentType, body)
	if err != nil {
		return false
	}
	return resp.StatusCode < 400
}
