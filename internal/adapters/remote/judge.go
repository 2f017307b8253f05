package remote

import (
	"context"

	"github.com/tidwall/gjson"
)

const predictPath = "/v1/predict"

// JudgeClient asks an external judgment service whether to continue.
// Predictions are side-effect free, so the client retries by default.
type JudgeClient struct {
	c *client
}

// NewJudgeClient creates a judgment client for baseURL.
func NewJudgeClient(baseURL string, opts ...Option) *JudgeClient {
	return &JudgeClient{c: newClient(baseURL, defaultJudgeRetries, opts)}
}

const defaultJudgeRetries = 2

type predictRequest struct {
	Scores    []float64 `json:"scores"`
	Remaining int       `json:"remaining"`
}

// PredictContinuation posts the score trajectory and decodes {continue}.
func (j *JudgeClient) PredictContinuation(ctx context.Context, scores []float64, remaining int) (bool, error) {
	if scores == nil {
		scores = []float64{}
	}
	raw, err := j.c.post(ctx, predictPath, predictRequest{Scores: scores, Remaining: remaining})
	if err != nil {
		return false, err
	}
	r, err := require(raw, "continue", gjson.True)
	if err != nil {
		return false, err
	}
	return r.Bool(), nil
}
