package stdiotransport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke/mcp/transport", "stdiotransport")

// Transport runs a provider as a subprocess and speaks newline-delimited
// JSON-RPC over its stdin/stdout. The session is persistent: a reader
// goroutine correlates responses to pending requests by id.
type Transport struct {
	command string
	args    []string
	env     []string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu   sync.Mutex
	pendingMu sync.Mutex
	pending   map[int64]chan *transport.Response

	done     chan struct{}
	closeErr error
	closeOng sync.Once
}

// New creates a stdio transport that will launch the given command.
func New(command string, args ...string) *Transport {
	return &Transport{
		command: command,
		args:    args,
		pending: make(map[int64]chan *transport.Response),
		done:    make(chan struct{}),
	}
}

// WithEnv sets the environment of the subprocess.
func (t *Transport) WithEnv(env []string) *Transport {
	t.env = env
	return t
}

// Start implements transport.Transport: launches the subprocess and the
// response reader loop.
func (t *Transport) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, t.command, t.args...)
	if len(t.env) > 0 {
		cmd.Env = t.env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.WithStack(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.WithStack(err)
	}

	if err := cmd.Start(); err != nil {
		return errors.WithMessagef(err, "failed to start %q", t.command)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout

	go t.readLoop()
	return nil
}

func (t *Transport) readLoop() {
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp transport.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			logger.KV(xlog.WARNING,
				"command", t.command,
				"reason", "unparseable_line",
				"err", err.Error(),
			)
			continue
		}
		// Server-initiated notifications carry no id; nothing is waiting.
		t.pendingMu.Lock()
		ch := t.pending[resp.ID]
		delete(t.pending, resp.ID)
		t.pendingMu.Unlock()
		if ch != nil {
			ch <- &resp
		}
	}

	t.closeOng.Do(func() {
		t.closeErr = errors.New("session terminated")
		close(t.done)
	})
	t.failPending()
}

func (t *Transport) failPending() {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
}

// SendRequest implements transport.Transport.
func (t *Transport) SendRequest(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	ch := make(chan *transport.Response, 1)
	t.pendingMu.Lock()
	t.pending[req.ID] = ch
	t.pendingMu.Unlock()

	if err := t.write(req); err != nil {
		t.pendingMu.Lock()
		delete(t.pending, req.ID)
		t.pendingMu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		t.pendingMu.Lock()
		delete(t.pending, req.ID)
		t.pendingMu.Unlock()
		return nil, errors.WithStack(ctx.Err())
	case <-t.done:
		return nil, errors.WithMessage(t.closeErr, "session closed")
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.New("session terminated")
		}
		return resp, nil
	}
}

// SendNotification implements transport.Transport.
func (t *Transport) SendNotification(ctx context.Context, n *transport.Notification) error {
	return t.write(n)
}

func (t *Transport) write(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.WithStack(err)
	}
	payload = append(payload, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.stdin == nil {
		return errors.New("transport not started")
	}
	if _, err := t.stdin.Write(payload); err != nil {
		return errors.WithMessage(err, "failed to write request")
	}
	return nil
}

// Close implements transport.Transport. It is idempotent.
func (t *Transport) Close() error {
	t.closeOng.Do(func() {
		t.closeErr = errors.New("transport closed")
		close(t.done)
	})
	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	t.failPending()
	return nil
}
