package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/schema"
)

func TestSchemaEndpoint(t *testing.T) {
	source := &fakeSchemaSource{desc: schema.Description{
		Tables: []schema.Table{{Name: "employees", Columns: []string{"id", "name"}}},
	}}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) { d.SchemaSource = source }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["canonical_text"] != "Table: employees\nColumns: id, name" {
		t.Fatalf("canonical_text = %q", payload["canonical_text"])
	}
}

func TestSchemaEndpointUnavailable(t *testing.T) {
	source := &fakeSchemaSource{err: errors.New("store offline")}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) { d.SchemaSource = source }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	reader := &fakeHistoryReader{turns: []history.Turn{
		{TurnID: "t1", Question: "hi", Answer: "hello", CreatedAt: time.Now()},
	}}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) { d.History = reader }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history?limit=2", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(reader.limits) != 1 || reader.limits[0] != 2 {
		t.Fatalf("limits = %v", reader.limits)
	}
	payload := decodeBody(t, rr)
	if payload["user_id"] != "anonymous" {
		t.Fatalf("user_id = %v", payload["user_id"])
	}
}

func TestHistoryEndpointHonorsUserParamWhenAuthDisabled(t *testing.T) {
	reader := &fakeHistoryReader{}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) { d.History = reader }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history?user_id=bob", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["user_id"] != "bob" {
		t.Fatalf("user_id = %v", payload["user_id"])
	}
}

func TestHistoryEndpointRejectsBadLimit(t *testing.T) {
	handler := NewHandler(testConfig(), testDeps(nil))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history?limit=zero", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHistoryEndpointWithoutStore(t *testing.T) {
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) { d.History = nil }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}
