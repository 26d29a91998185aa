package httptransport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/convoke-ai/convoke/mcp/transport"
	"github.com/convoke-ai/convoke/mcp/transport/httptransport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRequest(t *testing.T) {
	var gotSession string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSession = r.Header.Get("Mcp-Session-Id")
		gotAuth = r.Header.Get("Authorization")

		var req transport.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Mcp-Session-Id", "session-1")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(transport.Response{
			JSONRPC: transport.Version,
			ID:      req.ID,
			Result:  json.RawMessage(`{"ok":true}`),
		})
	}))
	defer srv.Close()

	tr := httptransport.New(srv.URL).WithHeaders(map[string]string{"Authorization": "Bearer token"})
	require.NoError(t, tr.Start(context.Background()))

	resp, err := tr.SendRequest(context.Background(), &transport.Request{
		JSONRPC: transport.Version,
		ID:      1,
		Method:  "initialize",
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Error)
	assert.Empty(t, gotSession)
	assert.Equal(t, "Bearer token", gotAuth)

	// The issued session id rides on the next request.
	_, err = tr.SendRequest(context.Background(), &transport.Request{
		JSONRPC: transport.Version,
		ID:      2,
		Method:  "tools/list",
	})
	require.NoError(t, err)
	assert.Equal(t, "session-1", gotSession)
}

func TestSendRequestIDMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(transport.Response{
			JSONRPC: transport.Version,
			ID:      99,
		})
	}))
	defer srv.Close()

	tr := httptransport.New(srv.URL)
	require.NoError(t, tr.Start(context.Background()))

	_, err := tr.SendRequest(context.Background(), &transport.Request{
		JSONRPC: transport.Version,
		ID:      1,
		Method:  "tools/list",
	})
	require.Error(t, err)
}

func TestSendNotification(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n transport.Notification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		gotMethod = n.Method
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := httptransport.New(srv.URL)
	require.NoError(t, tr.Start(context.Background()))
	require.NoError(t, tr.SendNotification(context.Background(), &transport.Notification{
		JSONRPC: transport.Version,
		Method:  "notifications/initialized",
	}))
	assert.Equal(t, "notifications/initialized", gotMethod)
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := httptransport.New(srv.URL)
	require.NoError(t, tr.Start(context.Background()))

	_, err := tr.SendRequest(context.Background(), &transport.Request{
		JSONRPC: transport.Version,
		ID:      1,
		Method:  "tools/list",
	})
	require.Error(t, err)
}

func TestClosed(t *testing.T) {
	tr := httptransport.New("http://127.0.0.1:0")
	require.NoError(t, tr.Close())

	_, err := tr.SendRequest(context.Background(), &transport.Request{
		JSONRPC: transport.Version,
		ID:      1,
		Method:  "tools/list",
	})
	require.Error(t, err)
}
