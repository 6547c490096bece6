package specialist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.trai.ch/zerr"

	"github.com/ashureev/supportd/internal/domain"
)

// AnswerClient calls an external answer-composition service that turns
// factual lookup results into a conversational reply. It is optional:
// specialists fall back to their own phrasing when no client is set.
type AnswerClient struct {
	baseURL string
	http    *http.Client
}

// NewAnswerClient creates a client for the service at baseURL.
func NewAnswerClient(baseURL string, timeout time.Duration) *AnswerClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AnswerClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type composeRequest struct {
	Question string `json:"question"`
	Facts    string `json:"facts"`
}

type composeResponse struct {
	Answer string `json:"answer"`
}

// Compose asks the service to phrase an answer to question using the
// given facts. All failures surface as domain.ErrUpstream.
func (c *AnswerClient) Compose(ctx context.Context, question, facts string) (string, error) {
	body, err := json.Marshal(composeRequest{Question: question, Facts: facts})
	if err != nil {
		return "", zerr.Wrap(domain.ErrUpstream, "encode compose request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/compose", bytes.NewReader(body))
	if err != nil {
		return "", zerr.Wrap(domain.ErrUpstream, "build compose request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", zerr.With(zerr.Wrap(domain.ErrUpstream, "call answer service"), "cause", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", zerr.With(zerr.Wrap(domain.ErrUpstream, "answer service status"),
			"status", fmt.Sprintf("%d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", zerr.Wrap(domain.ErrUpstream, "read compose response")
	}
	var out composeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", zerr.Wrap(domain.ErrUpstream, "decode compose response")
	}
	if out.Answer == "" {
		return "", zerr.Wrap(domain.ErrUpstream, "empty answer")
	}
	return out.Answer, nil
}

// compose routes the reply through the answer service when one is
// configured, otherwise returns the deterministic facts as-is.
func compose(ctx context.Context, client *AnswerClient, question, facts string) (string, error) {
	if client == nil {
		return facts, nil
	}
	return client.Compose(ctx, question, facts)
}
