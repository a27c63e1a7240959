package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/schema"
)

var employeeSchema = schema.Description{
	Tables: []schema.Table{
		{Name: "employees", Columns: []string{"id", "full_name", "department", "salary"}},
		{Name: "orders", Columns: []string{"id", "customer_id", "amount", "placed_at"}},
	},
}

type stubInvoker struct {
	text  string
	err   error
	calls int
}

func (s *stubInvoker) Invoke(ctx context.Context, req llm.Request) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestClassifyHeuristicLayers(t *testing.T) {
	classifier := NewClassifier(nil, false, nil)
	cases := []struct {
		name       string
		question   string
		needsDB    bool
		wantSignal string
	}{
		{"strong phrase", "run a sql query over last month", true, SignalStrongPhrase},
		{"group by phrase", "break revenue down group by region", true, SignalStrongPhrase},
		{"nl count", "how many orders came in yesterday?", true, SignalNLSignal},
		{"nl superlative", "who has the highest commission?", true, SignalNLSignal},
		{"money literal", "what sold for $1,200 or more?", true, SignalMoneyPattern},
		{"money comparison", "anything under $50?", true, SignalMoneyPattern},
		{"schema token", "what department is Alice in?", true, SignalSchemaOverlap},
		{"schema column token", "sort people by salary please", true, SignalSchemaOverlap},
		{"weak phrase", "show me recent activity", true, SignalWeakPhrase},
		{"smalltalk", "good morning, how are you?", false, SignalDefault},
		{"empty", "   ", false, SignalDefault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := classifier.Classify(context.Background(), tc.question, employeeSchema)
			if decision.NeedsDatabase != tc.needsDB {
				t.Fatalf("NeedsDatabase: expected %v, got %v", tc.needsDB, decision.NeedsDatabase)
			}
			if decision.Signal != tc.wantSignal {
				t.Fatalf("Signal: expected %q, got %q", tc.wantSignal, decision.Signal)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	classifier := NewClassifier(nil, false, nil)
	question := "how many employees joined this year?"
	first := classifier.Classify(context.Background(), question, employeeSchema)
	for i := 0; i < 5; i++ {
		if got := classifier.Classify(context.Background(), question, employeeSchema); got != first {
			t.Fatalf("run %d: expected %+v, got %+v", i, first, got)
		}
	}
}

func TestSchemaTokenCacheParsesOnce(t *testing.T) {
	classifier := NewClassifier(nil, false, nil)
	for i := 0; i < 4; i++ {
		classifier.Classify(context.Background(), "is anyone in that department?", employeeSchema)
	}
	if parses := classifier.tokens.parseCount(); parses != 1 {
		t.Fatalf("expected 1 schema parse, got %d", parses)
	}
}

func TestInvalidateForcesReparse(t *testing.T) {
	classifier := NewClassifier(nil, false, nil)
	classifier.Classify(context.Background(), "is anyone in that department?", employeeSchema)
	classifier.Invalidate()
	classifier.Classify(context.Background(), "is anyone in that department?", employeeSchema)
	if parses := classifier.tokens.parseCount(); parses != 2 {
		t.Fatalf("expected 2 schema parses after invalidation, got %d", parses)
	}
}

func TestModelConfirmationVerdicts(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		err        error
		needsDB    bool
		wantSignal string
	}{
		{"true verdict", "True", nil, true, SignalModel},
		{"false verdict", "false.", nil, false, SignalModel},
		{"unparseable verdict", "maybe?", nil, false, SignalModel},
		{"call failure fails open", "", errors.New("throttled"), true, SignalModelError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			invoker := &stubInvoker{text: tc.text, err: tc.err}
			classifier := NewClassifier(invoker, true, nil)
			decision := classifier.Classify(context.Background(), "tell me something interesting", employeeSchema)
			if invoker.calls != 1 {
				t.Fatalf("expected 1 model call, got %d", invoker.calls)
			}
			if decision.NeedsDatabase != tc.needsDB {
				t.Fatalf("NeedsDatabase: expected %v, got %v", tc.needsDB, decision.NeedsDatabase)
			}
			if decision.Signal != tc.wantSignal {
				t.Fatalf("Signal: expected %q, got %q", tc.wantSignal, decision.Signal)
			}
		})
	}
}

func TestModelNotCalledWhenHeuristicFires(t *testing.T) {
	invoker := &stubInvoker{text: "false"}
	classifier := NewClassifier(invoker, true, nil)
	decision := classifier.Classify(context.Background(), "how many orders shipped?", employeeSchema)
	if !decision.NeedsDatabase {
		t.Fatal("expected NeedsDatabase for a count question")
	}
	if invoker.calls != 0 {
		t.Fatalf("expected no model calls, got %d", invoker.calls)
	}
}
