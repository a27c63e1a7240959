package assistant

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/history"
	"github.com/askdb/askdb/internal/store"
)

const sqlSystemPrompt = "You are an expert SQL assistant. Given a database schema and a question, " +
	"generate only the SQL query that answers it. Return a single statement with no explanation " +
	"and no formatting. Use DuckDB SQL syntax."

const answerSystemPrompt = "You are a helpful data assistant. Answer the user's question in plain " +
	"language using the SQL query that was run and the results it returned. Be concise and do not " +
	"invent values that are not in the results."

const chatSystemPrompt = "You are the assistant for a data exploration service. Answer " +
	"conversationally and briefly. If the user seems to want data, suggest they ask a question " +
	"about the database."

// renderHistory formats prior turns as a transcript block for prompts.
// Returns an empty string when there is no history.
func renderHistory(turns []history.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, turn := range turns {
		b.WriteString("User: ")
		b.WriteString(turn.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(turn.Answer)
		b.WriteString("\n")
	}
	return b.String()
}

// maxRenderedRows caps how much of a result set is handed to the model for
// answer synthesis. Large result sets blow the token budget without making
// the answer better.
const maxRenderedRows = 50

func renderResults(result store.Result) string {
	if len(result.Columns) == 0 {
		return fmt.Sprintf("Rows affected: %d\n", result.RowsAffected)
	}
	var b strings.Builder
	b.WriteString("Columns: ")
	b.WriteString(strings.Join(result.Columns, ", "))
	b.WriteString("\n")
	for i, row := range result.Rows {
		if i >= maxRenderedRows {
			fmt.Fprintf(&b, "... and %d more rows\n", len(result.Rows)-maxRenderedRows)
			break
		}
		parts := make([]string, len(row))
		for j, value := range row {
			parts[j] = fmt.Sprintf("%v", value)
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

func sqlPrompt(schemaText, historyText, question string) string {
	var b strings.Builder
	b.WriteString("Database schema:\n\n")
	b.WriteString(schemaText)
	if historyText != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(historyText)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nSQL:")
	return b.String()
}

func answerPrompt(question, historyText, sqlText, resultsText string) string {
	var b strings.Builder
	if historyText != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(historyText)
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nSQL that was run:\n")
	b.WriteString(sqlText)
	b.WriteString("\n\nResults:\n")
	b.WriteString(resultsText)
	b.WriteString("\nAnswer:")
	return b.String()
}

func chatPrompt(question, historyText string) string {
	var b strings.Builder
	if historyText != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(historyText)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(question)
	return b.String()
}
