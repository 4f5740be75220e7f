package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

const defaultToolTimeout = 10 * time.Second

// Invocation is one function-call event from the speech engine. CallID is
// the correlation id and is always echoed back unchanged.
type Invocation struct {
	Name   string
	CallID string
	Args   map[string]any
}

// Outcome is the correlated result plus the follow-up response directive.
// An empty Followup lets the engine decide its next turn on its own.
type Outcome struct {
	CallID   string
	Result   Result
	Followup string
}

// Output encodes the result payload that is echoed to the engine.
func (o Outcome) Output() string {
	data, err := json.Marshal(o.Result)
	if err != nil {
		return `{"success":false,"error":"result encoding failed"}`
	}
	return string(data)
}

type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
}

func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger, timeout: defaultToolTimeout}
}

func (d *Dispatcher) Registry() *Registry {
	if d == nil {
		return nil
	}
	return d.registry
}

// Dispatch executes one invocation and always produces exactly one outcome.
// Unknown tool names and handler failures come back as success:false, never
// as an error that could terminate the session.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation, session SessionContext) Outcome {
	name := strings.TrimSpace(inv.Name)
	outcome := Outcome{CallID: inv.CallID}

	if d == nil || d.registry == nil || !d.registry.Has(name) {
		d.log().Warn("unknown tool invoked", "tool", name, "session_id", session.SessionID)
		outcome.Result = failure("unknown tool")
		return outcome
	}
	handler := d.registry.byName[name]

	args := inv.Args
	if args == nil {
		args = make(map[string]any)
	}

	toolCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	outcome.Result = handler.Execute(toolCtx, args, session)
	d.log().Info("tool dispatched",
		"tool", name,
		"session_id", session.SessionID,
		"success", outcome.Result.Success,
		"duration_ms", time.Since(start).Milliseconds())

	if outcome.Result.Success {
		outcome.Followup = handler.Followup()
	}
	return outcome
}

func (d *Dispatcher) log() *slog.Logger {
	if d == nil || d.logger == nil {
		return slog.Default()
	}
	return d.logger
}
