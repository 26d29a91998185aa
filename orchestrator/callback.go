package orchestrator

import (
	"context"

	"github.com/convoke-ai/convoke/gateway"
	"github.com/convoke-ai/convoke/pkg/llms"
)

// Callback receives run lifecycle events. Implementations must be safe for
// concurrent use; tool dispatch events arrive from multiple goroutines.
type Callback interface {
	OnRunStart(ctx context.Context, o *Orchestrator, input string)
	OnRunEnd(ctx context.Context, o *Orchestrator, input string, result *Result)
	OnRunError(ctx context.Context, o *Orchestrator, input string, err error)

	OnModelCallStart(ctx context.Context, o *Orchestrator, model string, payload []llms.Message)
	OnModelCallEnd(ctx context.Context, o *Orchestrator, model string, turn *gateway.ModelTurn)

	OnToolDispatchStart(ctx context.Context, o *Orchestrator, call llms.ToolCall)
	OnToolDispatchEnd(ctx context.Context, o *Orchestrator, call llms.ToolCall, output string)
	OnToolDispatchError(ctx context.Context, o *Orchestrator, call llms.ToolCall, err error)
}
