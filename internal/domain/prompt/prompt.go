// Package prompt renders round prompts from the user query, task metadata
// and the team's own earlier submissions.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/okian/mixseek/internal/domain/model"
)

const (
	defaultExcerptRunes = 280
)

// ErrEmptyQuery is returned when there is nothing to ask the team.
var ErrEmptyQuery = errors.New("empty user query")

const defaultTemplate = `# Task
{{ .Query }}
{{- if .Metadata }}

## Context
{{- range .Metadata }}
- {{ .Key }}: {{ .Value }}
{{- end }}
{{- end }}
{{- if .History }}

## Your previous rounds
{{- range .History }}
### Round {{ .Round }} (score {{ printf "%.1f" .Score }}{{ if .Best }}, best so far{{ end }})
{{ .Excerpt }}
{{- if .Comment }}
Evaluator: {{ .Comment }}
{{- end }}
{{ end }}
Improve on your best round. Keep what scored well and fix what the evaluator criticised.
{{- else }}

This is your first round.
{{- end }}
`

type kv struct {
	Key, Value string
}

type roundView struct {
	Round   int
	Score   float64
	Best    bool
	Excerpt string
	Comment string
}

type view struct {
	Query    string
	Metadata []kv
	History  []roundView
}

// Option applies a configuration option to a TemplateBuilder.
type Option func(*TemplateBuilder)

// WithExcerptLength caps how many runes of each prior submission are quoted.
func WithExcerptLength(n int) Option {
	return func(b *TemplateBuilder) {
		if n > 0 {
			b.excerpt = n
		}
	}
}

// WithTemplate replaces the default prompt template.
func WithTemplate(tmpl *template.Template) Option {
	return func(b *TemplateBuilder) {
		if tmpl != nil {
			b.tmpl = tmpl
		}
	}
}

// TemplateBuilder builds prompts with text/template.
type TemplateBuilder struct {
	tmpl    *template.Template
	excerpt int
}

// NewTemplateBuilder creates a builder using the default template.
func NewTemplateBuilder(opts ...Option) *TemplateBuilder {
	b := &TemplateBuilder{
		tmpl:    template.Must(template.New("round").Parse(defaultTemplate)),
		excerpt: defaultExcerptRunes,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the prompt. history must only contain the team's own rows.
func (b *TemplateBuilder) Build(query string, metadata map[string]string, history []model.LeaderBoardEntry) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	v := view{Query: query}
	for k, val := range metadata {
		v.Metadata = append(v.Metadata, kv{Key: k, Value: val})
	}
	sort.Slice(v.Metadata, func(i, j int) bool { return v.Metadata[i].Key < v.Metadata[j].Key })

	best := model.SelectBest(history)
	for i, e := range history {
		rv := roundView{
			Round:   e.RoundNumber,
			Score:   e.Score,
			Best:    i == best,
			Excerpt: excerpt(e.SubmissionContent, b.excerpt),
		}
		if c, ok := e.ScoreDetails["comment"].(string); ok {
			rv.Comment = c
		}
		v.History = append(v.History, rv)
	}

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, v); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
