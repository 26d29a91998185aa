package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke/mcp/transport", "httptransport")

// Transport implements a request/response streamable-HTTP client transport.
// Each request is one POST to the provider endpoint; the session id issued
// by the provider on initialize is echoed on subsequent requests.
type Transport struct {
	endpoint string
	client   *http.Client
	headers  map[string]string

	mu        sync.Mutex
	sessionID string
	closed    bool
}

// New creates a transport for the given provider endpoint.
func New(endpoint string) *Transport {
	return &Transport{
		endpoint: endpoint,
		client:   http.DefaultClient,
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func (t *Transport) WithHTTPClient(client *http.Client) *Transport {
	t.client = client
	return t
}

// WithHeaders sets extra headers sent on every request, e.g. authorization.
func (t *Transport) WithHeaders(headers map[string]string) *Transport {
	t.headers = headers
	return t
}

// Start implements transport.Transport. The HTTP transport is
// connectionless; the session is established by the first request.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = false
	t.sessionID = ""
	return nil
}

// SendRequest implements transport.Transport.
func (t *Transport) SendRequest(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	body, err := t.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp transport.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.WithMessage(err, "malformed response body")
	}
	if resp.ID != req.ID {
		return nil, errors.Newf("response id %d does not match request id %d", resp.ID, req.ID)
	}
	return &resp, nil
}

// SendNotification implements transport.Transport.
func (t *Transport) SendNotification(ctx context.Context, n *transport.Notification) error {
	_, err := t.roundTrip(ctx, n)
	return err
}

func (t *Transport) roundTrip(ctx context.Context, msg any) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("transport is closed")
	}
	sessionID := t.sessionID
	t.mu.Unlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if sessionID != "" {
		httpReq.Header.Set("Mcp-Session-Id", sessionID)
	}
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errors.WithMessage(err, "request failed")
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	if sid := httpResp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if httpResp.StatusCode == http.StatusAccepted {
		// Notification accepted, no body.
		return nil, nil
	}
	if httpResp.StatusCode != http.StatusOK {
		logger.ContextKV(ctx, xlog.WARNING,
			"endpoint", t.endpoint,
			"status_code", httpResp.StatusCode,
		)
		return nil, errors.Newf("unexpected status code: %d", httpResp.StatusCode)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to read response body")
	}
	return body, nil
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
