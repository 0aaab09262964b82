// Package conversation drives one chat turn: model call, at most a bounded
// number of tool executions, then a final reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	otelx "github.com/md-rashed-zaman/chatbook/libs/otel"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/llm"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type State int

const (
	AwaitingUserMessage State = iota
	ModelThinking
	ToolExecuting
)

func (s State) String() string {
	switch s {
	case ModelThinking:
		return "model_thinking"
	case ToolExecuting:
		return "tool_executing"
	default:
		return "awaiting_user_message"
	}
}

const (
	ErrorModelUnavailable = "model_unavailable"
	ErrorToolUnavailable  = "tool_unavailable"

	apologyReply = "Sorry, I'm having trouble right now and couldn't finish that. Nothing was changed unless I confirmed it. Please try again in a moment."
	clarifyReply = "I wasn't able to complete that. Could you tell me the exact date, time, or appointment you mean?"
)

// ToolExecutor runs validated tool calls on behalf of a user.
type ToolExecutor interface {
	Specs() []llm.Tool
	Execute(ctx context.Context, userID string, call llm.ToolCall) (tools.Result, error)
}

// Reply is the outcome of one turn. Intent is the last tool fired, or empty.
type Reply struct {
	Message string
	Intent  string
	Error   string
}

type Config struct {
	MaxToolCalls   int
	ModelTimeout   time.Duration
	MaxAttempts    uint
	InitialBackoff time.Duration
	HistoryWindow  int
}

func (c *Config) defaults() {
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = 5
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = 20 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 250 * time.Millisecond
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 40
	}
}

type Orchestrator struct {
	model   llm.Model
	tools   ToolExecutor
	history HistoryStore
	leases  Leaser
	cal     calendar.Calendar
	logger  *slog.Logger
	tracer  trace.Tracer
	cfg     Config
	now     func() time.Time
	onState func(sessionID string, s State)
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithStateObserver reports every state transition, mainly for tests and debug logs.
func WithStateObserver(fn func(sessionID string, s State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

func NewOrchestrator(model llm.Model, executor ToolExecutor, history HistoryStore, leases Leaser, cal calendar.Calendar, logger *slog.Logger, cfg Config, opts ...Option) *Orchestrator {
	cfg.defaults()
	o := &Orchestrator{
		model:   model,
		tools:   executor,
		history: history,
		leases:  leases,
		cal:     cal,
		logger:  logger,
		tracer:  otelx.Tracer("booking-service/conversation"),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TurnBudget is the longest a single turn can take: every model call of a
// capped turn timing out on every attempt, plus slack for tools and backoff.
func (c Config) TurnBudget() time.Duration {
	c.defaults()
	calls := time.Duration(c.MaxToolCalls+1) * time.Duration(c.MaxAttempts)
	return calls*c.ModelTimeout + 30*time.Second
}

// MinHistoryWindow is the smallest history window that still holds one
// capped turn: the user message, each tool call and result, and the reply.
func (c Config) MinHistoryWindow() int {
	c.defaults()
	return 2*c.MaxToolCalls + 2
}

// leaseTTL covers the worst case turn so the lease never lapses mid-turn.
func (o *Orchestrator) leaseTTL() time.Duration {
	return o.cfg.TurnBudget()
}

// Handle processes one user message for the session. It returns ErrSessionBusy
// when another message of the same session is still being handled.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, userID, text string) (Reply, error) {
	ctx, span := o.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	release, err := o.leases.Acquire(ctx, sessionID, o.leaseTTL())
	if err != nil {
		return Reply{}, err
	}
	// A tool may have committed; history and lease bookkeeping must finish
	// even if the caller is gone.
	persistCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := release(persistCtx); err != nil {
			o.logger.Warn("session lease release failed", "session_id", sessionID, "err", err)
		}
	}()

	history, err := o.history.Load(ctx, sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}

	t := &turn{o: o, ctx: ctx, persistCtx: persistCtx, sessionID: sessionID, history: history, start: len(history)}
	if err := t.append(llm.Message{Role: llm.RoleUser, Content: text}); err != nil {
		return Reply{}, err
	}
	reply, err := t.run(userID)
	o.setState(sessionID, AwaitingUserMessage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}
	span.SetAttributes(attribute.String("conversation.intent", reply.Intent), attribute.Int("conversation.tool_calls", t.toolCalls))
	return reply, nil
}

// Forget drops a session's history, used when the session ends.
func (o *Orchestrator) Forget(ctx context.Context, sessionID string) error {
	return o.history.Delete(ctx, sessionID)
}

func (o *Orchestrator) setState(sessionID string, s State) {
	if o.onState != nil {
		o.onState(sessionID, s)
	}
	o.logger.Debug("conversation state", "session_id", sessionID, "state", s.String())
}

type turn struct {
	o          *Orchestrator
	ctx        context.Context
	persistCtx context.Context
	sessionID  string
	history    []llm.Message
	start      int // index of this turn's user message in history
	intent     string
	toolCalls  int
}

func (t *turn) append(msgs ...llm.Message) error {
	t.history = append(t.history, msgs...)
	if err := t.o.history.Append(t.persistCtx, t.sessionID, msgs...); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (t *turn) run(userID string) (Reply, error) {
	o := t.o
	for {
		o.setState(t.sessionID, ModelThinking)
		completion, err := t.complete()
		if err != nil {
			o.logger.Error("model unavailable", "session_id", t.sessionID, "err", err)
			return t.finish(apologyReply, ErrorModelUnavailable)
		}

		if completion.ToolCall == nil {
			if completion.Text == "" {
				return t.finish(clarifyReply, "")
			}
			return t.finish(completion.Text, "")
		}

		if t.toolCalls >= o.cfg.MaxToolCalls {
			o.logger.Warn("tool call cap reached", "session_id", t.sessionID, "cap", o.cfg.MaxToolCalls)
			return t.finish(clarifyReply, "")
		}

		o.setState(t.sessionID, ToolExecuting)
		call := *completion.ToolCall
		if call.Args == nil {
			call.Args = map[string]any{}
		}
		t.toolCalls++
		if err := t.append(llm.Message{Role: llm.RoleAssistant, ToolCall: &call}); err != nil {
			return Reply{}, err
		}

		result, err := t.execute(userID, call)
		// Only a tool that exists can be the turn's intent.
		if err != nil || result.Error != tools.CodeUnknownTool {
			t.intent = call.Name
		}
		if err != nil {
			o.logger.Error("tool unavailable", "session_id", t.sessionID, "tool", call.Name, "err", err)
			if err := t.append(llm.Message{Role: llm.RoleTool, ToolName: call.Name, Content: `{"ok":false,"error":"Unavailable"}`}); err != nil {
				return Reply{}, err
			}
			return t.finish(apologyReply, ErrorToolUnavailable)
		}
		if err := t.append(llm.Message{Role: llm.RoleTool, ToolName: call.Name, Content: result.JSON()}); err != nil {
			return Reply{}, err
		}
	}
}

func (t *turn) finish(text, errCode string) (Reply, error) {
	if err := t.append(llm.Message{Role: llm.RoleAssistant, Content: text}); err != nil {
		return Reply{}, err
	}
	return Reply{Message: text, Intent: t.intent, Error: errCode}, nil
}

// window is the history sent to the model. The current turn is always sent
// whole; earlier turns fill whatever is left of the configured window.
func (t *turn) window() []llm.Message {
	current := t.history[t.start:]
	budget := t.o.cfg.HistoryWindow - len(current)
	if budget <= 0 {
		return current
	}
	earlier := llm.Window(t.history[:t.start], budget)
	out := make([]llm.Message, 0, len(earlier)+len(current))
	out = append(out, earlier...)
	return append(out, current...)
}

func (t *turn) complete() (llm.Completion, error) {
	o := t.o
	req := llm.Request{
		System:  systemPrompt(o.cal, o.now()),
		History: t.window(),
		Tools:   o.tools.Specs(),
	}
	ctx, span := o.tracer.Start(t.ctx, "conversation.model_call")
	defer span.End()

	attempt := 0
	completion, err := retry(ctx, o.cfg, func() (llm.Completion, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ModelTimeout)
		defer cancel()
		c, err := o.model.Complete(callCtx, req)
		if err != nil {
			o.logger.Warn("model call failed", "session_id", t.sessionID, "attempt", attempt, "err", err)
		}
		return c, err
	})
	span.SetAttributes(attribute.Int("llm.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return completion, err
}

// execute runs the tool on a context detached from the caller: once a
// mutation starts it must be allowed to commit.
func (t *turn) execute(userID string, call llm.ToolCall) (tools.Result, error) {
	o := t.o
	ctx, span := o.tracer.Start(context.WithoutCancel(t.ctx), "conversation.tool_call", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	res, err := retry(ctx, o.cfg, func() (tools.Result, error) {
		return o.tools.Execute(ctx, userID, call)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return tools.Result{}, err
	}
	span.SetAttributes(attribute.Bool("tool.ok", res.OK), attribute.String("tool.error", string(res.Error)))
	return res, nil
}

// retry runs op with exponential backoff, giving up after cfg.MaxAttempts or
// as soon as ctx is done.
func retry[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = 4 * cfg.InitialBackoff

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(errors.Join(err, ctx.Err()))
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(cfg.MaxAttempts))
}
