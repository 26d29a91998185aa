package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/convoke-ai/convoke/gateway"
	"github.com/convoke-ai/convoke/orchestrator"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ orchestrator.Callback = (*Noop)(nil)
	_ orchestrator.Callback = (*Printer)(nil)
	_ orchestrator.Callback = (*PackageLogger)(nil)
	_ orchestrator.Callback = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []orchestrator.Callback
}

func NewFanout(callbacks ...orchestrator.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback orchestrator.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnRunStart(ctx context.Context, o *orchestrator.Orchestrator, input string) {
	for _, callback := range l.callbacks {
		callback.OnRunStart(ctx, o, input)
	}
}

func (l *Fanout) OnRunEnd(ctx context.Context, o *orchestrator.Orchestrator, input string, result *orchestrator.Result) {
	for _, callback := range l.callbacks {
		callback.OnRunEnd(ctx, o, input, result)
	}
}

func (l *Fanout) OnRunError(ctx context.Context, o *orchestrator.Orchestrator, input string, err error) {
	for _, callback := range l.callbacks {
		callback.OnRunError(ctx, o, input, err)
	}
}

func (l *Fanout) OnModelCallStart(ctx context.Context, o *orchestrator.Orchestrator, model string, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnModelCallStart(ctx, o, model, payload)
	}
}

func (l *Fanout) OnModelCallEnd(ctx context.Context, o *orchestrator.Orchestrator, model string, turn *gateway.ModelTurn) {
	for _, callback := range l.callbacks {
		callback.OnModelCallEnd(ctx, o, model, turn)
	}
}

func (l *Fanout) OnToolDispatchStart(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall) {
	for _, callback := range l.callbacks {
		callback.OnToolDispatchStart(ctx, o, call)
	}
}

func (l *Fanout) OnToolDispatchEnd(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolDispatchEnd(ctx, o, call, output)
	}
}

func (l *Fanout) OnToolDispatchError(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolDispatchError(ctx, o, call, err)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnRunStart(ctx context.Context, o *orchestrator.Orchestrator, input string) {}
func (l *Noop) OnRunEnd(ctx context.Context, o *orchestrator.Orchestrator, input string, result *orchestrator.Result) {
}
func (l *Noop) OnRunError(ctx context.Context, o *orchestrator.Orchestrator, input string, err error) {
}
func (l *Noop) OnModelCallStart(ctx context.Context, o *orchestrator.Orchestrator, model string, payload []llms.Message) {
}
func (l *Noop) OnModelCallEnd(ctx context.Context, o *orchestrator.Orchestrator, model string, turn *gateway.ModelTurn) {
}
func (l *Noop) OnToolDispatchStart(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall) {
}
func (l *Noop) OnToolDispatchEnd(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall, output string) {
}
func (l *Noop) OnToolDispatchError(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall, err error) {
}

// Printer prints run events to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnRunStart(ctx context.Context, o *orchestrator.Orchestrator, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Run Start: %s\n", o.ModelName())
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnRunEnd(ctx context.Context, o *orchestrator.Orchestrator, input string, result *orchestrator.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Run End: %s, %d steps, %d tool calls\n", result.Outcome, result.Steps, result.ToolCallCount)
	if l.Mode == ModeVerbose && result.Answer != "" {
		fmt.Fprintln(l.Out, result.Answer)
	}
}

func (l *Printer) OnRunError(ctx context.Context, o *orchestrator.Orchestrator, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Run Error: %s\n", err.Error())
}

func (l *Printer) OnModelCallStart(ctx context.Context, o *orchestrator.Orchestrator, model string, payload []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Model Call: %s model, %d messages\n", model, len(payload))
}

func (l *Printer) OnModelCallEnd(ctx context.Context, o *orchestrator.Orchestrator, model string, turn *gateway.ModelTurn) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Model Call End: %s model, %d tool calls, stop reason %q\n", model, len(turn.ToolCalls), turn.StopReason)
}

func (l *Printer) OnToolDispatchStart(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s\n", call.FunctionCall.Name)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Input: %s\n", call.FunctionCall.Arguments)
	}
}

func (l *Printer) OnToolDispatchEnd(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s\n", call.FunctionCall.Name)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolDispatchError(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s: %s\n", call.FunctionCall.Name, err.Error())
}

// PackageLogger emits run events to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnRunStart(ctx context.Context, o *orchestrator.Orchestrator, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "run_start",
		"model", o.ModelName(),
		"input", input,
	)
}

func (l *PackageLogger) OnRunEnd(ctx context.Context, o *orchestrator.Orchestrator, input string, result *orchestrator.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "run_end",
		"model", o.ModelName(),
		"outcome", string(result.Outcome),
		"steps", result.Steps,
		"tool_calls", result.ToolCallCount,
	)
}

func (l *PackageLogger) OnRunError(ctx context.Context, o *orchestrator.Orchestrator, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "run_error",
		"model", o.ModelName(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnModelCallStart(ctx context.Context, o *orchestrator.Orchestrator, model string, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_start",
		"model", model,
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnModelCallEnd(ctx context.Context, o *orchestrator.Orchestrator, model string, turn *gateway.ModelTurn) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_end",
		"model", model,
		"tool_calls", len(turn.ToolCalls),
		"stop_reason", turn.StopReason,
	)
}

func (l *PackageLogger) OnToolDispatchStart(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_dispatch_start",
		"tool", call.FunctionCall.Name,
		"tool_call_id", call.ID,
	)
}

func (l *PackageLogger) OnToolDispatchEnd(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_dispatch_end",
		"tool", call.FunctionCall.Name,
		"tool_call_id", call.ID,
		"output", output,
	)
}

func (l *PackageLogger) OnToolDispatchError(ctx context.Context, o *orchestrator.Orchestrator, call llms.ToolCall, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_dispatch_error",
		"tool", call.FunctionCall.Name,
		"tool_call_id", call.ID,
		"err", err.Error(),
	)
}
