package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/okian/mixseek/internal/domain/model"
)

const runPath = "/v1/run"

// RuntimeClient runs a team through an external team runtime service.
// Runtime calls are not idempotent, so retries are off unless WithRetryMax
// says otherwise.
type RuntimeClient struct {
	c *client
}

// NewRuntimeClient creates a runtime client for baseURL.
func NewRuntimeClient(baseURL string, opts ...Option) *RuntimeClient {
	return &RuntimeClient{c: newClient(baseURL, 0, opts)}
}

type runRequest struct {
	Prompt   string            `json:"prompt"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Run posts the prompt and decodes the team's submission. An empty format is
// left for the controller to default.
func (r *RuntimeClient) Run(ctx context.Context, prompt string, metadata map[string]string) (model.Submission, error) {
	raw, err := r.c.post(ctx, runPath, runRequest{Prompt: prompt, Metadata: metadata})
	if err != nil {
		return model.Submission{}, err
	}
	content, err := require(raw, "content", gjson.String)
	if err != nil {
		return model.Submission{}, err
	}
	sub := model.Submission{
		Content: content.String(),
		Format:  gjson.GetBytes(raw, "format").String(),
	}

	msgs := gjson.GetBytes(raw, "messages")
	if msgs.Exists() && !msgs.IsArray() {
		return model.Submission{}, fmt.Errorf("%w: %q is not an array", ErrMalformed, "messages")
	}
	msgs.ForEach(func(_, m gjson.Result) bool {
		msg := model.Message{
			Role:    m.Get("role").String(),
			Agent:   m.Get("agent").String(),
			Content: m.Get("content").String(),
		}
		if at := m.Get("at"); at.Exists() {
			msg.At = at.Time()
		}
		if msg.At.IsZero() {
			msg.At = time.Now().UTC()
		}
		sub.Messages = append(sub.Messages, msg)
		return true
	})
	return sub, nil
}
