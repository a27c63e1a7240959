package api

import (
	"encoding/json"
	"net/http"
)

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply        string `json:"reply"`
	SQL          string `json:"sql,omitempty"`
	UsedDatabase bool   `json:"used_database"`
}

// handleChat runs the same orchestrated cycle as /v1/ask but returns a
// chat-shaped response without the tabular result payload. Messages that
// turn out to need the database still go through SQL generation and
// execution.
func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", false, nil)
		return
	}
	if req.Message == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "message is required", false, nil)
		return
	}

	userID := resolveUserID(r, req.UserID)
	answer, err := deps.Assistant.Ask(r.Context(), userID, req.Message)
	if err != nil {
		writeAssistantError(deps, w, r, answer, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:        answer.Answer,
		SQL:          answer.SQL,
		UsedDatabase: answer.UsedDatabase,
	})
}
