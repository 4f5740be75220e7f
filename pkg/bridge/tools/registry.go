// Package tools dispatches function-call invocations surfaced by the speech
// engine. Each invocation resolves to exactly one correlated result, even
// when the underlying action fails.
package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/sonara-ai/sonara/pkg/bridge/crm"
	"github.com/sonara-ai/sonara/pkg/bridge/speech"
)

// SessionContext carries the per-call facts handlers may backfill arguments
// from.
type SessionContext struct {
	SessionID string
	Caller    string
	Profile   crm.Profile
}

// Result is the normalized outcome of one tool action. Fields are merged
// flat into the JSON payload next to "success".
type Result struct {
	Success bool
	Error   string
	Fields  map[string]any
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for key, value := range r.Fields {
		out[key] = value
	}
	out["success"] = r.Success
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

func failure(message string) Result {
	return Result{Success: false, Error: message}
}

type Handler interface {
	Name() string
	Definition() speech.Tool
	// Followup is the static response directive sent to the engine after the
	// result; empty means the engine continues unprompted.
	Followup() string
	Execute(ctx context.Context, args map[string]any, session SessionContext) Result
}

type Registry struct {
	byName map[string]Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	registry := &Registry{byName: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			continue
		}
		registry.byName[h.Name()] = h
	}
	return registry
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.TrimSpace(name)]
	return ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every registered tool schema in name order, as sent in
// the engine's session-configuration message.
func (r *Registry) Definitions() []speech.Tool {
	if r == nil {
		return nil
	}
	defs := make([]speech.Tool, 0, len(r.byName))
	for _, name := range r.Names() {
		defs = append(defs, r.byName[name].Definition())
	}
	return defs
}
