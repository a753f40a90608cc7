package pool

import (
	"context"
	"io"
	"net/http"
)

// Response carries the status code and body read back from an endpoint.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport issues a single GET against a caller-supplied URL. It must
// support independent concurrent calls; per-call timeouts arrive through
// the context.
type Transport interface {
	Get(ctx context.Context, url string) (*Response, error)
	Close()
}

type httpTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a Transport backed by a shared http.Client.
// Timeouts are enforced by the caller's context, not the client.
func NewHTTPTransport() Transport {
	return &httpTransport{client: &http.Client{}}
}

func (t *httpTransport) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	res, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: res.StatusCode, Body: body}, nil
}

func (t *httpTransport) Close() {
	t.client.CloseIdleConnections()
}
