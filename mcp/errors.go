package mcp

import "github.com/cockroachdb/errors"

var (
	// ErrConnection indicates the transport session failed: handshake
	// failure, or the transport was lost mid-call. The caller decides
	// retry policy; the connection does not self-retry.
	ErrConnection = errors.New("provider connection failed")

	// ErrProtocol indicates the provider returned a malformed capability
	// listing or an otherwise unintelligible payload.
	ErrProtocol = errors.New("provider protocol violation")

	// ErrToolExecution indicates the remote tool reported a failure while
	// the transport stayed healthy.
	ErrToolExecution = errors.New("tool execution failed")
)
