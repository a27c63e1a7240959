package api

import (
	"encoding/json"
	"net/http"

	"github.com/askdb/askdb/internal/observability"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowCount     int      `json:"row_count"`
	RowsAffected int64    `json:"rows_affected"`
	DurationMS   int64    `json:"duration_ms"`
}

// handleQuery runs caller-written SQL through the preview policy and the
// executor, with no model in the loop. The preview policy may be wider than
// the assistant's (e.g. INSERT/UPDATE/DELETE on trusted deployments) but the
// forbidden-operation and stacking checks always apply.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", false, nil)
		return
	}
	if req.SQL == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "sql is required", false, nil)
		return
	}

	verdict := deps.PreviewPolicy.Classify(req.SQL)
	if !verdict.IsExplicitSQL {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REJECTED", "body does not start with a recognized SQL statement", false, nil)
		return
	}
	if !verdict.IsSafe {
		observability.ObserveSQLRejection(verdict.ReasonCode)
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REJECTED", verdict.RejectionReason, false, nil)
		return
	}

	rowLimit := req.RowLimit
	if rowLimit <= 0 || (deps.PreviewRowLimit > 0 && rowLimit > deps.PreviewRowLimit) {
		rowLimit = deps.PreviewRowLimit
	}
	result, err := deps.Executor.Execute(r.Context(), req.SQL, rowLimit)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "EXECUTION_FAILED", err.Error(), false, nil)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:      result.Columns,
		Rows:         result.Rows,
		RowCount:     result.RowCount(),
		RowsAffected: result.RowsAffected,
		DurationMS:   result.Duration.Milliseconds(),
	})
}
