package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/askdb/askdb/internal/assistant"
)

func TestChatReturnsConversationalReply(t *testing.T) {
	asker := &fakeAsker{answer: assistant.Answer{
		Answer:       "Hello! Ask me about the employees table.",
		UsedDatabase: false,
		State:        assistant.StateResponded,
	}}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) { d.Assistant = asker }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", bodyFor(t, chatRequest{UserID: "bob", Message: "hi there"})))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["reply"] != "Hello! Ask me about the employees table." {
		t.Fatalf("reply = %v", payload["reply"])
	}
	if payload["used_database"] != false {
		t.Fatalf("used_database = %v", payload["used_database"])
	}
	if _, present := payload["rows"]; present {
		t.Fatal("chat response should not carry a result set")
	}
	if len(asker.asked) != 1 || asker.asked[0] != "hi there" {
		t.Fatalf("asked = %v", asker.asked)
	}
	if len(asker.users) != 1 || asker.users[0] != "bob" {
		t.Fatalf("users = %v", asker.users)
	}
}

func TestChatMessageNeedingDataCarriesSQL(t *testing.T) {
	asker := &fakeAsker{answer: assistant.Answer{
		Answer:       "There are 3 employees.",
		SQL:          "SELECT COUNT(*) FROM employees",
		RowCount:     1,
		UsedDatabase: true,
		State:        assistant.StateResponded,
	}}
	handler := NewHandler(testConfig(), testDeps(func(d *Dependencies) { d.Assistant = asker }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", bodyFor(t, chatRequest{Message: "how many employees do we have?"})))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["sql"] != "SELECT COUNT(*) FROM employees" {
		t.Fatalf("sql = %v", payload["sql"])
	}
	if payload["used_database"] != true {
		t.Fatalf("used_database = %v", payload["used_database"])
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	handler := NewHandler(testConfig(), testDeps(nil))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", bodyFor(t, chatRequest{})))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestChatRequiresAuthWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Required = true
	handler := NewHandler(cfg, testDeps(func(d *Dependencies) {
		d.AuthMiddleware = func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials", false, nil)
			})
		}
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", bodyFor(t, chatRequest{Message: "hi"})))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}
