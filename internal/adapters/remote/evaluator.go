package remote

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/okian/mixseek/internal/domain/model"
)

const evaluatePath = "/v1/evaluate"

// EvaluatorClient scores submissions through an external evaluator service.
type EvaluatorClient struct {
	c *client
}

// NewEvaluatorClient creates an evaluator client for baseURL.
func NewEvaluatorClient(baseURL string, opts ...Option) *EvaluatorClient {
	return &EvaluatorClient{c: newClient(baseURL, 0, opts)}
}

type evaluateRequest struct {
	ExecutionID string            `json:"execution_id"`
	TeamID      string            `json:"team_id"`
	UserQuery   string            `json:"user_query"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Submission  submissionPayload `json:"submission"`
}

type submissionPayload struct {
	Content string `json:"content"`
	Format  string `json:"format"`
}

// Evaluate posts the submission and decodes {score, details}. Range checks on
// the score are left to the caller.
func (e *EvaluatorClient) Evaluate(ctx context.Context, task model.RoundTask, sub model.Submission) (model.EvaluationResult, error) {
	raw, err := e.c.post(ctx, evaluatePath, evaluateRequest{
		ExecutionID: task.ExecutionID,
		TeamID:      task.TeamID,
		UserQuery:   task.UserQuery,
		Metadata:    task.Metadata,
		Submission:  submissionPayload{Content: sub.Content, Format: sub.Format},
	})
	if err != nil {
		return model.EvaluationResult{}, err
	}
	score, err := require(raw, "score", gjson.Number)
	if err != nil {
		return model.EvaluationResult{}, err
	}

	res := model.EvaluationResult{Score: score.Float(), Details: map[string]any{}}
	if d := gjson.GetBytes(raw, "details"); d.Exists() {
		details, ok := d.Value().(map[string]any)
		if !ok {
			return model.EvaluationResult{}, fmt.Errorf("%w: %q is not an object", ErrMalformed, "details")
		}
		res.Details = details
	}
	return res, nil
}
