// Package assistant orchestrates one question-to-answer cycle: intent
// classification, SQL generation, safety validation, execution, answer
// synthesis, and best-effort history persistence.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/intent"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/sqlsafety"
	"github.com/askdb/askdb/internal/store"
)

// State names where a request cycle ended.
type State string

const (
	StateResponded       State = "responded"
	StateRejected        State = "rejected"
	StateExecutionFailed State = "execution_failed"
)

// Answer is the result of one request cycle. SQL and result fields are
// empty for conversational turns.
type Answer struct {
	Answer       string
	SQL          string
	Columns      []string
	Rows         [][]any
	RowCount     int
	RowsAffected int64
	UsedDatabase bool
	State        State
}

// Executor runs validated SQL against the application database.
type Executor interface {
	Execute(ctx context.Context, sqlText string, rowLimit int) (store.Result, error)
}

// HistoryStore persists and recalls conversation turns. A nil HistoryStore
// disables memory entirely.
type HistoryStore interface {
	SaveTurn(ctx context.Context, turn history.Turn) (history.Turn, error)
	RecentTurns(ctx context.Context, userID string, limit int) ([]history.Turn, error)
}

// IntentClassifier decides whether a question needs the database.
type IntentClassifier interface {
	Classify(ctx context.Context, question string, desc schema.Description) intent.Decision
}

// Invoker is the bounded model invoker.
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
}

type Config struct {
	HistoryLimit  int
	MaxResultRows int
}

type Assistant struct {
	schemaSource schema.Source
	executor     Executor
	historyStore HistoryStore
	intent       IntentClassifier
	invoker      Invoker
	policy       sqlsafety.Policy
	cfg          Config
	logger       *slog.Logger
}

func New(
	schemaSource schema.Source,
	executor Executor,
	historyStore HistoryStore,
	intentClassifier IntentClassifier,
	invoker Invoker,
	policy sqlsafety.Policy,
	cfg Config,
	logger *slog.Logger,
) *Assistant {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		schemaSource: schemaSource,
		executor:     executor,
		historyStore: historyStore,
		intent:       intentClassifier,
		invoker:      invoker,
		policy:       policy,
		cfg:          cfg,
		logger:       logger,
	}
}

// Ask runs the full cycle for one user question. Explicit SQL in the
// question skips classification and generation and goes straight to the
// safety gate; model-generated SQL passes through the same gate, since
// model output is exactly as untrusted as user input.
func (a *Assistant) Ask(ctx context.Context, userID, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, newError(CodeClassificationFailed, "question is required", nil)
	}

	desc, err := a.schemaSource.Describe(ctx)
	if err != nil {
		return Answer{}, newError(CodeSchemaUnavailable, "cannot describe the database schema", err)
	}

	turns := a.recentTurns(ctx, userID)
	historyText := renderHistory(turns)

	classification := a.policy.Classify(question)
	if classification.IsExplicitSQL {
		return a.runSQL(ctx, userID, question, question, historyText)
	}

	decision := a.intent.Classify(ctx, question, desc)
	if !decision.NeedsDatabase {
		return a.chat(ctx, userID, question, historyText)
	}

	generated, err := a.invoker.Invoke(ctx, llm.Request{
		Operation: llm.OpGenerateSQL,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: sqlSystemPrompt},
			{Role: llm.RoleUser, Content: sqlPrompt(desc.CanonicalText(), historyText, question)},
		},
	})
	if err != nil {
		if errors.Is(err, llm.ErrResourceExhausted) {
			return Answer{}, newError(CodeResourceExhausted, "model capacity exhausted, try again later", err)
		}
		return Answer{}, newError(CodeSQLGenerationFailed, "could not generate SQL for the question", err)
	}

	return a.runSQL(ctx, userID, question, generated, historyText)
}

// runSQL validates, executes, and synthesizes an answer for candidate SQL,
// whether user-supplied or model-generated.
func (a *Assistant) runSQL(ctx context.Context, userID, question, sqlText, historyText string) (Answer, error) {
	verdict := a.policy.Classify(sqlText)
	if !verdict.IsSafe {
		observability.ObserveSQLRejection(verdict.ReasonCode)
		a.persistTurn(ctx, userID, question, sqlText, "Rejected: "+verdict.RejectionReason)
		return Answer{SQL: sqlText, State: StateRejected},
			newError(CodeSQLRejected, verdict.RejectionReason, nil)
	}

	result, err := a.executor.Execute(ctx, sqlText, a.cfg.MaxResultRows)
	if err != nil {
		a.persistTurn(ctx, userID, question, sqlText, "Execution failed: "+err.Error())
		return Answer{SQL: sqlText, State: StateExecutionFailed},
			newError(CodeExecutionFailed, err.Error(), err)
	}

	answer := a.synthesize(ctx, question, sqlText, historyText, result)
	a.persistTurn(ctx, userID, question, sqlText, answer)

	return Answer{
		Answer:       answer,
		SQL:          sqlText,
		Columns:      result.Columns,
		Rows:         result.Rows,
		RowCount:     result.RowCount(),
		RowsAffected: result.RowsAffected,
		UsedDatabase: true,
		State:        StateResponded,
	}, nil
}

// synthesize turns results into a natural-language answer. It never fails
// the request; any model failure degrades to a templated summary.
func (a *Assistant) synthesize(ctx context.Context, question, sqlText, historyText string, result store.Result) string {
	answer, err := a.invoker.Invoke(ctx, llm.Request{
		Operation: llm.OpGenerateAnswer,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: answerSystemPrompt},
			{Role: llm.RoleUser, Content: answerPrompt(question, historyText, sqlText, renderResults(result))},
		},
	})
	if err != nil {
		a.logger.Warn("answer synthesis failed, using fallback summary", slog.String("error", err.Error()))
		if len(result.Columns) == 0 {
			return fmt.Sprintf("Statement executed successfully and affected %d rows.", result.RowsAffected)
		}
		return fmt.Sprintf("Query executed successfully and returned %d results.", result.RowCount())
	}
	return answer
}

// chat answers a non-database question with a single conversational call.
func (a *Assistant) chat(ctx context.Context, userID, question, historyText string) (Answer, error) {
	answer, err := a.invoker.Invoke(ctx, llm.Request{
		Operation: llm.OpGeneralChat,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: chatSystemPrompt},
			{Role: llm.RoleUser, Content: chatPrompt(question, historyText)},
		},
	})
	if err != nil {
		if errors.Is(err, llm.ErrResourceExhausted) {
			return Answer{}, newError(CodeResourceExhausted, "model capacity exhausted, try again later", err)
		}
		return Answer{}, newError(CodeSynthesisFailed, "could not produce a conversational answer", err)
	}
	a.persistTurn(ctx, userID, question, "", answer)
	return Answer{Answer: answer, State: StateResponded}, nil
}

func (a *Assistant) recentTurns(ctx context.Context, userID string) []history.Turn {
	if a.historyStore == nil {
		return nil
	}
	turns, err := a.historyStore.RecentTurns(ctx, userID, a.cfg.HistoryLimit)
	if err != nil {
		a.logger.Warn("history read failed, continuing without context", slog.String("error", err.Error()))
		return nil
	}
	return turns
}

// persistTurn is fire-and-forget: a failed write is logged and counted but
// never fails the request.
func (a *Assistant) persistTurn(ctx context.Context, userID, question, sqlText, answer string) {
	if a.historyStore == nil {
		return
	}
	if _, err := a.historyStore.SaveTurn(ctx, history.Turn{
		UserID:       userID,
		Question:     question,
		GeneratedSQL: sqlText,
		Answer:       answer,
	}); err != nil {
		observability.IncrementHistoryPersistFailure()
		a.logger.Warn("history persist failed", slog.String("error", err.Error()))
	}
}
