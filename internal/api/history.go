package api

import (
	"net/http"
	"strconv"
	"time"
)

type historyTurn struct {
	TurnID    string    `json:"turn_id"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql,omitempty"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	UserID string        `json:"user_id"`
	Turns  []historyTurn `json:"turns"`
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "conversation history is not configured", false, nil)
		return
	}

	limit := deps.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", false, nil)
			return
		}
		if parsed < limit || deps.HistoryLimit <= 0 {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = 5
	}

	userID := resolveUserID(r, r.URL.Query().Get("user_id"))
	turns, err := deps.History.RecentTurns(r.Context(), userID, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_READ_FAILED", err.Error(), true, nil)
		return
	}

	payload := historyResponse{UserID: userID, Turns: make([]historyTurn, 0, len(turns))}
	for _, turn := range turns {
		payload.Turns = append(payload.Turns, historyTurn{
			TurnID:    turn.TurnID,
			Question:  turn.Question,
			SQL:       turn.GeneratedSQL,
			Answer:    turn.Answer,
			CreatedAt: turn.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}
