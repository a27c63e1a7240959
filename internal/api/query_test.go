package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/sqlsafety"
	"github.com/askdb/askdb/internal/store"
)

func TestQueryExecutesAllowedSQL(t *testing.T) {
	executor := &fakeExecutor{result: store.Result{
		Columns:  []string{"id"},
		Rows:     [][]any{{1}, {2}},
		Duration: 3 * time.Millisecond,
	}}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) {
		d.Executor = executor
		d.PreviewRowLimit = 100
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", bodyFor(t, queryRequest{SQL: "SELECT id FROM employees"})))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["row_count"] != float64(2) {
		t.Fatalf("row_count = %v", payload["row_count"])
	}
	if len(executor.limits) != 1 || executor.limits[0] != 100 {
		t.Fatalf("limits = %v", executor.limits)
	}
}

func TestQueryRejectsDisallowedStatement(t *testing.T) {
	executor := &fakeExecutor{}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) { d.Executor = executor }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", bodyFor(t, queryRequest{SQL: "DROP TABLE employees"})))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["error_code"] != "SQL_REJECTED" {
		t.Fatalf("error_code = %v", payload["error_code"])
	}
	if len(executor.executed) != 0 {
		t.Fatalf("executed = %v", executor.executed)
	}
}

func TestQueryWidenedPolicyAllowsWrites(t *testing.T) {
	policy, err := sqlsafety.ParsePolicy("SELECT,WITH,INSERT,UPDATE,DELETE")
	if err != nil {
		t.Fatalf("ParsePolicy() error = %v", err)
	}
	executor := &fakeExecutor{result: store.Result{RowsAffected: 1}}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) {
		d.Executor = executor
		d.PreviewPolicy = policy
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", bodyFor(t, queryRequest{SQL: "INSERT INTO employees VALUES (9, 'Dora', 'ops', 50000)"})))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(executor.executed) != 1 {
		t.Fatalf("executed = %v", executor.executed)
	}
	payload := decodeBody(t, rr)
	if payload["rows_affected"] != float64(1) {
		t.Fatalf("rows_affected = %v", payload["rows_affected"])
	}
	if payload["row_count"] != float64(0) {
		t.Fatalf("row_count = %v", payload["row_count"])
	}
}

func TestQueryForbiddenOperationStillRejectedUnderWidenedPolicy(t *testing.T) {
	policy, err := sqlsafety.ParsePolicy("SELECT,WITH,INSERT,UPDATE,DELETE")
	if err != nil {
		t.Fatalf("ParsePolicy() error = %v", err)
	}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) { d.PreviewPolicy = policy }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", bodyFor(t, queryRequest{SQL: "SELECT 1; ATTACH DATABASE 'x'"})))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	message, _ := payload["message"].(string)
	if !strings.Contains(strings.ToLower(message), "forbidden") && !strings.Contains(strings.ToLower(message), "statement") {
		t.Fatalf("message = %q", message)
	}
}

func TestQueryNonSQLBodyRejected(t *testing.T) {
	handler := NewHandler(testConfig(), testDeps(nil))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", bodyFor(t, queryRequest{SQL: "please show me everything"})))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}
