// Package format renders store and ask results as the text returned to MCP
// clients and printed by the CLI.
package format

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/dustin/go-humanize"
	"github.com/neilberkman/gptmcp/internal/core/ask"
	"github.com/neilberkman/gptmcp/internal/core/session"
)

// DefaultAnswerTemplate renders an ask result. Each optional header line is
// a section so it disappears when the value is absent.
const DefaultAnswerTemplate = "Model: {{{model}}}\n" +
	"{{#reasoning_effort}}Reasoning: {{{reasoning_effort}}}\n{{/reasoning_effort}}" +
	"{{#verbosity}}Verbosity: {{{verbosity}}}\n{{/verbosity}}" +
	"{{#session_id}}Session: {{{session_id}}}\n{{/session_id}}" +
	"{{#tokens_used}}Tokens: {{{tokens_used}}}\n{{/tokens_used}}" +
	"Time: {{{timestamp}}}\n" +
	"{{{separator}}}\n\n" +
	"{{{response}}}"

// TimestampLayout is used for every timestamp shown to clients
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const NoSessions = "No active sessions"

// Separator divides the answer header from the response body
var Separator = strings.Repeat("─", 40)

// AnswerRenderer renders ask results with a parsed mustache template
type AnswerRenderer struct {
	tmpl *mustache.Template
}

// NewAnswerRenderer parses src, failing fast on a broken custom template
func NewAnswerRenderer(src string) (*AnswerRenderer, error) {
	tmpl, err := mustache.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse answer template: %w", err)
	}
	return &AnswerRenderer{tmpl: tmpl}, nil
}

// Render formats one ask result
func (r *AnswerRenderer) Render(res *ask.Result) (string, error) {
	out, err := r.tmpl.Render(answerData(res))
	if err != nil {
		return "", fmt.Errorf("failed to render answer: %w", err)
	}
	return out, nil
}

// answerData omits empty optional values so template sections stay closed
func answerData(res *ask.Result) map[string]interface{} {
	data := map[string]interface{}{
		"model":     string(res.Model),
		"timestamp": res.Timestamp.Format(TimestampLayout),
		"separator": Separator,
		"response":  res.Response,
	}
	if res.ReasoningEffort != "" {
		data["reasoning_effort"] = string(res.ReasoningEffort)
	}
	if res.Verbosity != "" {
		data["verbosity"] = string(res.Verbosity)
	}
	if res.SessionID != "" {
		data["session_id"] = res.SessionID
	}
	if res.TokensUsed > 0 {
		data["tokens_used"] = strconv.Itoa(res.TokensUsed)
	}
	return data
}

// SessionList renders summaries as indented text blocks separated by blank
// lines. now anchors the relative "last used" hint.
func SessionList(summaries []session.Summary, now time.Time) string {
	if len(summaries) == 0 {
		return NoSessions
	}

	blocks := make([]string, 0, len(summaries))
	for _, s := range summaries {
		model := string(s.ModelPreference)
		if model == "" {
			model = "None"
		}
		blocks = append(blocks, fmt.Sprintf(
			"Session: %s\n  Created: %s\n  Last used: %s (%s)\n  Messages: %d\n  Tokens: %d\n  Model: %s",
			s.ID,
			s.CreatedAt.UTC().Format(TimestampLayout),
			s.LastUsed.UTC().Format(TimestampLayout),
			humanize.RelTime(s.LastUsed, now, "ago", "from now"),
			s.MessageCount,
			s.TotalTokens,
			model,
		))
	}
	return strings.Join(blocks, "\n\n")
}

// SessionInfoJSON renders one summary as indented JSON
func SessionInfoJSON(s session.Summary) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal session info: %w", err)
	}
	return string(data), nil
}

// CreatedSession is the createSession tool reply
type CreatedSession struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt"`
}

// SessionCreatedJSON renders the createSession reply
func SessionCreatedJSON(id string, hasSystemPrompt bool) (string, error) {
	reply := CreatedSession{
		SessionID:    id,
		Message:      "Session created successfully",
		SystemPrompt: "None",
	}
	if hasSystemPrompt {
		reply.SystemPrompt = "Set"
	}
	data, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
