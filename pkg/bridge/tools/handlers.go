package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sonara-ai/sonara/pkg/bridge/speech"
	"github.com/sonara-ai/sonara/pkg/bridge/translate"
	"github.com/sonara-ai/sonara/pkg/bridge/webhook"
	"github.com/sonara-ai/sonara/pkg/kb"
)

const (
	ToolScheduleCallback   = "schedule_callback"
	ToolUpdateContactInfo  = "update_contact_info"
	ToolLogUnknownQuestion = "log_unknown_question"
	ToolSearchKnowledge    = "search_knowledge"
)

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// stringArg returns the trimmed string at key, backfilling args with
// fallback when the argument is missing or blank.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if strings.TrimSpace(fallback) != "" {
		args[key] = fallback
		return fallback
	}
	return ""
}

// ScheduleCallbackHandler forwards a callback request to the external
// webhook. The free-text reason passes through best-effort translation.
type ScheduleCallbackHandler struct {
	Webhook        webhook.Sender
	Translator     translate.Translator
	TargetLanguage string
	Logger         *slog.Logger
}

func (h *ScheduleCallbackHandler) Name() string { return ToolScheduleCallback }

func (h *ScheduleCallbackHandler) Definition() speech.Tool {
	return speech.Tool{
		Type:        "function",
		Name:        ToolScheduleCallback,
		Description: "Schedule a callback from a human agent. Use when the caller asks to be called back or the question cannot be answered.",
		Parameters: objectSchema(map[string]any{
			"contact_name":   map[string]any{"type": "string", "description": "Name of the person to call back"},
			"phone":          map[string]any{"type": "string", "description": "Phone number to call back"},
			"preferred_time": map[string]any{"type": "string", "description": "Preferred callback time, free text"},
			"reason":         map[string]any{"type": "string", "description": "Why the callback is needed"},
		}, "reason"),
	}
}

func (h *ScheduleCallbackHandler) Followup() string {
	return "Confirm the callback details were received and tell the caller when to expect a call."
}

func (h *ScheduleCallbackHandler) Execute(ctx context.Context, args map[string]any, session SessionContext) Result {
	name := stringArg(args, "contact_name", session.Profile.Name)
	phone := stringArg(args, "phone", session.Caller)
	reason := stringArg(args, "reason", "")
	preferredTime := stringArg(args, "preferred_time", "")

	translated := translate.BestEffort(ctx, h.Translator, map[string]string{"reason": reason}, h.TargetLanguage, h.Logger)

	payload := map[string]any{
		"session_id":     session.SessionID,
		"contact_name":   name,
		"phone":          phone,
		"preferred_time": preferredTime,
		"reason":         translated["reason"],
		"company":        session.Profile.Company,
	}
	if err := h.Webhook.Deliver(ctx, "schedule_callback", payload); err != nil {
		logWarn(h.Logger, "callback webhook delivery failed", err, session)
		return failure("callback request could not be delivered")
	}
	return Result{Success: true}
}

// UpdateContactInfoHandler forwards updated contact details to the external
// webhook, backfilling anything derivable from the resolved profile.
type UpdateContactInfoHandler struct {
	Webhook        webhook.Sender
	Translator     translate.Translator
	TargetLanguage string
	Logger         *slog.Logger
}

func (h *UpdateContactInfoHandler) Name() string { return ToolUpdateContactInfo }

func (h *UpdateContactInfoHandler) Definition() speech.Tool {
	return speech.Tool{
		Type:        "function",
		Name:        ToolUpdateContactInfo,
		Description: "Record updated contact details the caller provides, such as a new email or company name.",
		Parameters: objectSchema(map[string]any{
			"contact_name": map[string]any{"type": "string"},
			"company":      map[string]any{"type": "string"},
			"email":        map[string]any{"type": "string"},
			"notes":        map[string]any{"type": "string", "description": "Free-text notes from the caller"},
		}),
	}
}

func (h *UpdateContactInfoHandler) Followup() string {
	return "Confirm the updated details were recorded."
}

func (h *UpdateContactInfoHandler) Execute(ctx context.Context, args map[string]any, session SessionContext) Result {
	payload := map[string]any{
		"session_id":   session.SessionID,
		"caller":       session.Caller,
		"contact_name": stringArg(args, "contact_name", session.Profile.Name),
		"company":      stringArg(args, "company", session.Profile.Company),
		"email":        stringArg(args, "email", session.Profile.Email),
	}
	notes := stringArg(args, "notes", "")
	if notes != "" {
		translated := translate.BestEffort(ctx, h.Translator, map[string]string{"notes": notes}, h.TargetLanguage, h.Logger)
		payload["notes"] = translated["notes"]
	}
	if err := h.Webhook.Deliver(ctx, "contact_update", payload); err != nil {
		logWarn(h.Logger, "contact update delivery failed", err, session)
		return failure("contact update could not be delivered")
	}
	return Result{Success: true}
}

// LogUnknownQuestionHandler appends the question to the local gap log and
// forwards it to the webhook so the team sees it either way. The append and
// the delivery are independent; one failing does not suppress the other.
type LogUnknownQuestionHandler struct {
	GapLog  *GapLog
	Webhook webhook.Sender
	Logger  *slog.Logger
}

func (h *LogUnknownQuestionHandler) Name() string { return ToolLogUnknownQuestion }

func (h *LogUnknownQuestionHandler) Definition() speech.Tool {
	return speech.Tool{
		Type:        "function",
		Name:        ToolLogUnknownQuestion,
		Description: "Record a question you could not answer so the team can follow up.",
		Parameters: objectSchema(map[string]any{
			"question": map[string]any{"type": "string"},
			"context":  map[string]any{"type": "string", "description": "Any detail that helps answer it later"},
		}, "question"),
	}
}

func (h *LogUnknownQuestionHandler) Followup() string {
	return "Tell the caller the team will follow up with an answer, and offer a callback."
}

func (h *LogUnknownQuestionHandler) Execute(ctx context.Context, args map[string]any, session SessionContext) Result {
	question := stringArg(args, "question", "")
	if question == "" {
		return failure("question is required")
	}

	appended := true
	if err := h.GapLog.Append(GapEntry{
		SessionID: session.SessionID,
		Caller:    session.Caller,
		Question:  question,
		Reason:    "agent_reported",
	}); err != nil {
		logWarn(h.Logger, "gap log append failed", err, session)
		appended = false
	}

	delivered := true
	if err := h.Webhook.Deliver(ctx, "unknown_question", map[string]any{
		"session_id": session.SessionID,
		"caller":     session.Caller,
		"question":   question,
		"context":    stringArg(args, "context", ""),
	}); err != nil {
		logWarn(h.Logger, "unknown question delivery failed", err, session)
		delivered = false
	}

	if !appended && !delivered {
		return failure("question could not be recorded")
	}
	return Result{Success: true}
}

// SearchKnowledgeHandler queries the published knowledge index snapshot.
// It issues no follow-up directive; the engine speaks from the results.
type SearchKnowledgeHandler struct {
	Store    *kb.Store
	Embedder kb.Embedder
	TopK     int
	MinScore float64
	GapLog   *GapLog
	Logger   *slog.Logger
}

func (h *SearchKnowledgeHandler) Name() string { return ToolSearchKnowledge }

func (h *SearchKnowledgeHandler) Definition() speech.Tool {
	return speech.Tool{
		Type:        "function",
		Name:        ToolSearchKnowledge,
		Description: "Search the company knowledge base to answer the caller's question. Always search before saying you do not know.",
		Parameters: objectSchema(map[string]any{
			"question": map[string]any{"type": "string", "description": "The caller's question in their own words"},
		}, "question"),
	}
}

func (h *SearchKnowledgeHandler) Followup() string { return "" }

func (h *SearchKnowledgeHandler) Execute(ctx context.Context, args map[string]any, session SessionContext) Result {
	question := stringArg(args, "question", "")
	result := kb.Search(ctx, h.Store.Snapshot(), h.Embedder, question, h.TopK, h.MinScore)
	if !result.OK {
		logWarnReason(h.Logger, "knowledge search unavailable", result.Reason, session)
		return Result{Success: false, Error: result.Reason}
	}
	if len(result.Matches) == 0 && h.GapLog.Configured() {
		if err := h.GapLog.Append(GapEntry{
			SessionID: session.SessionID,
			Caller:    session.Caller,
			Question:  question,
			Reason:    "no_results",
		}); err != nil {
			logWarn(h.Logger, "gap log append failed", err, session)
		}
	}
	return Result{Success: true, Fields: map[string]any{"results": result.Matches}}
}

func logWarn(logger *slog.Logger, message string, err error, session SessionContext) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(message, "error", err, "session_id", session.SessionID)
}

func logWarnReason(logger *slog.Logger, message, reason string, session SessionContext) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(message, "reason", reason, "session_id", session.SessionID)
}
