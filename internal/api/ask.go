package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/auth"
)

// resolveUserID prefers the authenticated identity. A caller-supplied
// user_id only counts when authentication is disabled, so one deployment-wide
// anonymous user does not absorb every conversation.
func resolveUserID(r *http.Request, claimed string) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.UserID
	}
	if claimed != "" {
		return claimed
	}
	return auth.AnonymousUserID
}

type askRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

type askResponse struct {
	Answer       string   `json:"answer"`
	SQL          string   `json:"sql,omitempty"`
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowCount     int      `json:"row_count"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	UsedDatabase bool     `json:"used_database"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", false, nil)
		return
	}
	if req.Question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "question is required", false, nil)
		return
	}

	userID := resolveUserID(r, req.UserID)
	answer, err := deps.Assistant.Ask(r.Context(), userID, req.Question)
	if err != nil {
		writeAssistantError(deps, w, r, answer, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:       answer.Answer,
		SQL:          answer.SQL,
		Columns:      answer.Columns,
		Rows:         answer.Rows,
		RowCount:     answer.RowCount,
		RowsAffected: answer.RowsAffected,
		UsedDatabase: answer.UsedDatabase,
	})
}

// writeAssistantError maps the orchestrator's failure taxonomy onto HTTP
// statuses. Rejections and execution failures are the caller's input being
// refused, upstream model failures are gateway errors, and capacity
// exhaustion asks the caller to retry.
func writeAssistantError(deps Dependencies, w http.ResponseWriter, r *http.Request, answer assistant.Answer, err error) {
	var assistantErr *assistant.Error
	if !errors.As(err, &assistantErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, nil)
		return
	}

	var extra map[string]any
	if answer.SQL != "" {
		extra = map[string]any{"sql": answer.SQL}
	}

	status := http.StatusInternalServerError
	switch assistantErr.Code {
	case assistant.CodeSQLRejected, assistant.CodeExecutionFailed, assistant.CodeClassificationFailed:
		status = http.StatusBadRequest
	case assistant.CodeSQLGenerationFailed, assistant.CodeSynthesisFailed:
		status = http.StatusBadGateway
	case assistant.CodeResourceExhausted:
		status = http.StatusTooManyRequests
	case assistant.CodeSchemaUnavailable:
		status = http.StatusInternalServerError
	}

	if deps.Logger != nil && status >= http.StatusInternalServerError {
		deps.Logger.ErrorContext(r.Context(), "ask request failed", "error", err.Error())
	}
	writeError(r.Context(), w, status, string(assistantErr.Code), assistantErr.Message, assistantErr.Retryable, extra)
}
