// Package intent decides whether a user question needs a database query or
// can be answered conversationally. Layered lexical heuristics resolve most
// questions without a model call; an optional model confirmation covers the
// ambiguous remainder.
package intent

import (
	"context"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/schema"
)

// Signal names which heuristic layer produced a decision.
const (
	SignalExplicitSQL   = "explicit_sql"
	SignalStrongPhrase  = "strong_phrase"
	SignalNLSignal      = "nl_signal"
	SignalMoneyPattern  = "money_pattern"
	SignalSchemaOverlap = "schema_overlap"
	SignalWeakPhrase    = "weak_phrase"
	SignalModel         = "model"
	SignalModelError    = "model_error"
	SignalDefault       = "default"
)

// Decision is one classification outcome with the layer that produced it.
type Decision struct {
	NeedsDatabase bool
	Signal        string
}

// Invoker is the slice of the model invoker the classifier needs.
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request) (string, error)
}

var (
	// Phrases that almost always indicate a data question.
	strongPhrases = []string{
		"select ", "group by", "order by", " join ", "inner join",
		"left join", "sql query", "query the", "from the table",
		"in the database", "in the table",
	}

	// Natural-language aggregation and listing cues.
	nlSignals = []string{
		"how many", "how much", "total ", "average ", "sum of",
		"count of", "number of", "list all", "show all", "show me all",
		"highest", "lowest", "most recent", "top ", "maximum", "minimum",
	}

	// Softer cues that usually still mean a lookup.
	weakPhrases = []string{
		"employees who", "customers who", "orders that", "find records",
		"records where", "entries with", "show me", "give me all",
		"which ones", "filter by",
	}

	moneyRe    = regexp.MustCompile(`\$\s?\d{1,3}(?:[,\d]*)(?:\.\d+)?`)
	comparedRe = regexp.MustCompile(`\b(?:under|over|above|below|between|more than|less than|at least|at most)\s+\$?\d+`)
)

// Classifier implements the layered heuristic decision with an optional
// model confirmation pass for questions no heuristic layer resolves.
type Classifier struct {
	invoker      Invoker
	modelConfirm bool
	logger       *slog.Logger
	tokens       *schemaTokenCache
}

func NewClassifier(invoker Invoker, modelConfirm bool, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		invoker:      invoker,
		modelConfirm: modelConfirm,
		logger:       logger,
		tokens:       newSchemaTokenCache(8),
	}
}

// Classify decides whether question needs the database given the current
// schema. Heuristic layers are checked in order of decreasing confidence;
// only when none fires and model confirmation is enabled does a model call
// happen.
func (c *Classifier) Classify(ctx context.Context, question string, desc schema.Description) Decision {
	decision := c.classifyHeuristic(question, desc)
	if decision.Signal == SignalDefault && c.modelConfirm && c.invoker != nil {
		decision = c.classifyWithModel(ctx, question, desc)
	}
	observability.ObserveIntentDecision(decision.Signal)
	return decision
}

func (c *Classifier) classifyHeuristic(question string, desc schema.Description) Decision {
	lowered := strings.ToLower(strings.TrimSpace(question))
	if lowered == "" {
		return Decision{NeedsDatabase: false, Signal: SignalDefault}
	}
	for _, phrase := range strongPhrases {
		if strings.Contains(lowered, phrase) {
			return Decision{NeedsDatabase: true, Signal: SignalStrongPhrase}
		}
	}
	for _, phrase := range nlSignals {
		if strings.Contains(lowered, phrase) {
			return Decision{NeedsDatabase: true, Signal: SignalNLSignal}
		}
	}
	if moneyRe.MatchString(lowered) || comparedRe.MatchString(lowered) {
		return Decision{NeedsDatabase: true, Signal: SignalMoneyPattern}
	}
	if c.overlapsSchema(lowered, desc) {
		return Decision{NeedsDatabase: true, Signal: SignalSchemaOverlap}
	}
	for _, phrase := range weakPhrases {
		if strings.Contains(lowered, phrase) {
			return Decision{NeedsDatabase: true, Signal: SignalWeakPhrase}
		}
	}
	return Decision{NeedsDatabase: false, Signal: SignalDefault}
}

func (c *Classifier) overlapsSchema(lowered string, desc schema.Description) bool {
	if desc.Empty() {
		return false
	}
	tokens := c.tokens.tokensFor(desc)
	words := strings.FieldsFunc(lowered, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	for _, word := range words {
		if _, ok := tokens[word]; ok {
			return true
		}
	}
	return false
}

const classifyPrompt = "You decide whether a user question requires querying a SQL database. " +
	"Answer with exactly one word: true or false."

// classifyWithModel asks the model for a strict true/false verdict. A failed
// call fails open to true so a throttled classifier never silently drops a
// data question; an unparseable verdict is treated as false.
func (c *Classifier) classifyWithModel(ctx context.Context, question string, desc schema.Description) Decision {
	var prompt strings.Builder
	prompt.WriteString("Database schema:\n")
	prompt.WriteString(desc.CanonicalText())
	prompt.WriteString("\n\nQuestion: ")
	prompt.WriteString(question)
	prompt.WriteString("\n\nDoes answering this question require querying the database? Answer true or false.")

	text, err := c.invoker.Invoke(ctx, llm.Request{
		Operation: llm.OpClassify,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: classifyPrompt},
			{Role: llm.RoleUser, Content: prompt.String()},
		},
		MaxTokens: 5,
	})
	if err != nil {
		c.logger.Warn("intent classification call failed, assuming database needed", slog.String("error", err.Error()))
		return Decision{NeedsDatabase: true, Signal: SignalModelError}
	}
	verdict := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(verdict, "true"):
		return Decision{NeedsDatabase: true, Signal: SignalModel}
	case strings.HasPrefix(verdict, "false"):
		return Decision{NeedsDatabase: false, Signal: SignalModel}
	default:
		c.logger.Warn("unparseable intent verdict", slog.String("verdict", verdict))
		return Decision{NeedsDatabase: false, Signal: SignalModel}
	}
}

// Invalidate drops all cached schema token sets. Callers invoke it after
// DDL changes the live schema.
func (c *Classifier) Invalidate() {
	c.tokens.invalidate()
}

// schemaTokenCache memoizes the identifier token set derived from a schema
// description, keyed by a hash of its canonical text. The map is bounded;
// when full it is reset rather than evicted entry by entry, since in
// practice only a handful of schema versions are ever live.
type schemaTokenCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[uint64]map[string]struct{}
	parses     int
}

func newSchemaTokenCache(maxEntries int) *schemaTokenCache {
	return &schemaTokenCache{
		maxEntries: maxEntries,
		entries:    make(map[uint64]map[string]struct{}),
	}
}

func (c *schemaTokenCache) tokensFor(desc schema.Description) map[string]struct{} {
	canonical := desc.CanonicalText()
	hasher := fnv.New64a()
	hasher.Write([]byte(canonical))
	key := hasher.Sum64()

	c.mu.Lock()
	defer c.mu.Unlock()
	if tokens, ok := c.entries[key]; ok {
		return tokens
	}
	tokens := tokenize(desc)
	c.parses++
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[uint64]map[string]struct{})
	}
	c.entries[key] = tokens
	return tokens
}

func (c *schemaTokenCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]map[string]struct{})
}

func (c *schemaTokenCache) parseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parses
}

// tokenStopwords filters generic identifier fragments that would match
// almost any English question.
var tokenStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {},
	"date": {}, "name": {}, "type": {}, "value": {}, "data": {},
}

func tokenize(desc schema.Description) map[string]struct{} {
	tokens := make(map[string]struct{})
	add := func(identifier string) {
		for _, part := range strings.FieldsFunc(strings.ToLower(identifier), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		}) {
			if len(part) < 3 {
				continue
			}
			if _, skip := tokenStopwords[part]; skip {
				continue
			}
			tokens[part] = struct{}{}
		}
	}
	for _, table := range desc.Tables {
		add(table.Name)
		for _, column := range table.Columns {
			add(column)
		}
	}
	return tokens
}
