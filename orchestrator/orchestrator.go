// Package orchestrator drives the turn loop of one conversational session:
// model turns alternate with tool rounds until the model answers without
// requesting tools, the step limit trips, or the run is cancelled.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/convoke-ai/convoke/chatmodel"
	"github.com/convoke-ai/convoke/gateway"
	"github.com/convoke-ai/convoke/pkg/llms"
	"github.com/convoke-ai/convoke/pkg/metricskey"
	"github.com/convoke-ai/convoke/registry"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/convoke-ai/convoke", "orchestrator")

// ErrStepLimitExceeded indicates the run consumed its model-turn budget
// without producing a final answer.
var ErrStepLimitExceeded = errors.New("step limit exceeded")

// Outcome classifies how a run ended.
type Outcome string

const (
	// OutcomeCompleted means the model produced a final answer.
	OutcomeCompleted Outcome = "completed"
	// OutcomeAborted means the step limit tripped before an answer.
	OutcomeAborted Outcome = "aborted"
	// OutcomeCancelled means the caller's context ended the run.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFailed means a model or protocol failure ended the run.
	OutcomeFailed Outcome = "failed"
)

// Result is the outcome of one run.
type Result struct {
	// Answer is the final model reply; empty unless Completed.
	Answer string `json:"answer,omitempty"`
	// Outcome classifies the run end.
	Outcome Outcome `json:"outcome"`
	// Steps is the number of model turns consumed.
	Steps int `json:"steps"`
	// ToolCallCount is the number of tool dispatches across all rounds.
	ToolCallCount int `json:"tool_call_count"`
}

// Info is the introspection view of the orchestrator.
type Info struct {
	Model        string                  `json:"model" yaml:"model"`
	MaxSteps     int                     `json:"max_steps" yaml:"max_steps"`
	Messages     int                     `json:"messages" yaml:"messages"`
	Providers    []registry.ProviderInfo `json:"providers" yaml:"providers"`
	Collisions   []registry.Collision    `json:"collisions,omitempty" yaml:"collisions,omitempty"`
	SystemPrompt string                  `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// Orchestrator owns one conversation and runs it against a model and a
// tool registry. A single run is in flight at a time; concurrent Run calls
// are rejected, not queued.
type Orchestrator struct {
	gw  *gateway.Gateway
	reg *registry.Registry
	cfg config

	running atomic.Bool
	conv    *chatmodel.Conversation
}

// New creates an orchestrator over the gateway and registry.
func New(gw *gateway.Gateway, reg *registry.Registry, opts ...Option) *Orchestrator {
	cfg := config{
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator{
		gw:   gw,
		reg:  reg,
		cfg:  cfg,
		conv: chatmodel.NewConversation(),
	}
}

// ModelName returns the backing model identifier.
func (o *Orchestrator) ModelName() string {
	return o.gw.ModelName()
}

// History returns up to limit most recent transcript messages.
func (o *Orchestrator) History(limit int) []llms.Message {
	return o.conv.Snapshot(limit)
}

// Clear empties the conversation and the persisted transcript.
func (o *Orchestrator) Clear(ctx context.Context) error {
	if o.running.Load() {
		return errors.WithMessage(chatmodel.ErrStateBusy, "a run is in flight")
	}
	if err := o.conv.Clear(); err != nil {
		return err
	}
	if o.cfg.store != nil {
		return o.cfg.store.Reset(ctx)
	}
	return nil
}

// Info returns the current configuration and provider view.
func (o *Orchestrator) Info() Info {
	return Info{
		Model:        o.gw.ModelName(),
		MaxSteps:     o.cfg.maxSteps,
		Messages:     o.conv.Len(),
		Providers:    o.reg.Info(),
		Collisions:   o.reg.Collisions(),
		SystemPrompt: o.cfg.systemPrompt,
	}
}

// Run executes one user turn to completion. Exactly one run may be in
// flight; a second call fails immediately with chatmodel.ErrStateBusy.
func (o *Orchestrator) Run(ctx context.Context, input string) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, errors.WithMessage(chatmodel.ErrStateBusy, "a run is already in flight")
	}
	defer o.running.Store(false)

	if chatmodel.GetChatID(ctx) == "" {
		ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext("", nil))
	}

	if o.cfg.callback != nil {
		o.cfg.callback.OnRunStart(ctx, o, input)
	}

	started := time.Now()
	res, err := o.run(ctx, input)
	metricskey.PerfRun.MeasureSince(started, o.gw.ModelName())

	if err != nil {
		if res != nil && res.Outcome == OutcomeAborted {
			metricskey.StatsRunsAborted.IncrCounter(1, o.gw.ModelName())
		} else {
			metricskey.StatsRunsFailed.IncrCounter(1, o.gw.ModelName())
		}
		if o.cfg.callback != nil {
			o.cfg.callback.OnRunError(ctx, o, input, err)
		}
		logger.ContextKV(ctx, xlog.ERROR,
			"model", o.gw.ModelName(),
			"input", slices.StringUpto(input, 64),
			"err", err.Error(),
		)
		return res, err
	}

	metricskey.StatsRunsSucceeded.IncrCounter(1, o.gw.ModelName())
	if o.cfg.callback != nil {
		o.cfg.callback.OnRunEnd(ctx, o, input, res)
	}
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, input string) (*Result, error) {
	if err := o.conv.AppendUserMessage(input); err != nil {
		return &Result{Outcome: OutcomeFailed}, err
	}

	res := &Result{}
	var runMessages []llms.Message
	runMessages = append(runMessages, llms.MessageFromTextParts(llms.RoleHuman, input))

	defer func() {
		if o.cfg.store != nil && len(runMessages) > 0 {
			_ = o.cfg.store.Add(ctx, runMessages...)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeCancelled
			return res, errors.WithStack(err)
		}
		if res.Steps >= o.cfg.maxSteps {
			res.Outcome = OutcomeAborted
			return res, errors.WithMessagef(ErrStepLimitExceeded, "no answer after %d model turns", res.Steps)
		}

		payload := o.payload()
		descs := o.reg.DescribeAll()

		if o.cfg.callback != nil {
			o.cfg.callback.OnModelCallStart(ctx, o, o.gw.ModelName(), payload)
		}
		turn, err := o.gw.Complete(ctx, payload, descs)
		res.Steps++
		if err != nil {
			if ctx.Err() != nil {
				res.Outcome = OutcomeCancelled
			} else {
				res.Outcome = OutcomeFailed
			}
			return res, err
		}
		if o.cfg.callback != nil {
			o.cfg.callback.OnModelCallEnd(ctx, o, o.gw.ModelName(), turn)
		}

		if err := o.conv.AppendModelTurn(turn.Message); err != nil {
			res.Outcome = OutcomeFailed
			return res, err
		}
		runMessages = append(runMessages, turn.Message)

		if len(turn.ToolCalls) == 0 {
			res.Answer = turn.Content
			res.Outcome = OutcomeCompleted
			logger.ContextKV(ctx, xlog.DEBUG,
				"model", o.gw.ModelName(),
				"status", "completed",
				"steps", res.Steps,
				"tool_calls", res.ToolCallCount,
				"answer", slices.StringUpto(turn.Content, 64),
			)
			return res, nil
		}

		results := o.dispatchRound(ctx, turn.ToolCalls)
		res.ToolCallCount += len(turn.ToolCalls)

		// The join barrier produced one result per call, so the round closes
		// even when the run is being cancelled; otherwise the conversation
		// would be stuck mid-round for every later run.
		if err := o.conv.AppendToolResults(results...); err != nil {
			res.Outcome = OutcomeFailed
			return res, err
		}
		runMessages = append(runMessages, results...)

		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeCancelled
			return res, errors.WithStack(err)
		}
	}
}

// payload renders the model request: an optional system turn followed by
// the bounded transcript window.
func (o *Orchestrator) payload() []llms.Message {
	history := o.conv.Snapshot(o.cfg.historyLimit)
	if o.cfg.systemPrompt == "" {
		return history
	}
	out := make([]llms.Message, 0, len(history)+1)
	out = append(out, llms.MessageFromTextParts(llms.RoleSystem, o.cfg.systemPrompt))
	return append(out, history...)
}

// dispatchRound fans the calls out concurrently and joins before returning.
// Every call produces exactly one result message; a dispatch failure
// becomes an error-carrying result so the round always closes.
func (o *Orchestrator) dispatchRound(ctx context.Context, calls []llms.ToolCall) []llms.Message {
	type dispatchResult struct {
		response string
		err      error
	}

	resultChan := make(chan struct {
		index int
		dispatchResult
	}, len(calls))

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		go func(index int, tc llms.ToolCall) {
			defer wg.Done()
			if o.cfg.callback != nil {
				o.cfg.callback.OnToolDispatchStart(ctx, o, tc)
			}
			response, err := o.reg.Dispatch(ctx, tc)
			if o.cfg.callback != nil {
				if err != nil {
					o.cfg.callback.OnToolDispatchError(ctx, o, tc, err)
				} else {
					o.cfg.callback.OnToolDispatchEnd(ctx, o, tc, response)
				}
			}
			resultChan <- struct {
				index int
				dispatchResult
			}{index, dispatchResult{response: response, err: err}}
		}(i, call)
	}
	wg.Wait()
	close(resultChan)

	ordered := make([]dispatchResult, len(calls))
	for r := range resultChan {
		ordered[r.index] = r.dispatchResult
	}

	// Results go back in request order so the transcript is deterministic.
	out := make([]llms.Message, len(calls))
	for i, call := range calls {
		r := ordered[i]
		if r.err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"tool", call.FunctionCall.Name,
				"tool_call_id", call.ID,
				"err", r.err.Error(),
			)
			out[i] = llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       call.FunctionCall.Name,
				Content:    r.err.Error(),
				IsError:    true,
			})
			continue
		}
		out[i] = llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: call.ID,
			Name:       call.FunctionCall.Name,
			Content:    r.response,
		})
	}
	return out
}
