package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Error codes the gateway reports for tokens that will never work again.
// Transient failures keep the token registered, these do not.
const (
	codeNotRegistered = "registration-token-not-registered"
	codeInvalidToken  = "invalid-registration-token"
)

const maxBatchSize = 500

// Message is one push payload fanned out to a set of device tokens.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Result aggregates a multicast send. InvalidTokens lists tokens the
// gateway marked permanently dead, callers should retire them.
type Result struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

type sendRequest struct {
	Tokens []string `json:"tokens"`
	Message
}

type sendResponse struct {
	Results []struct {
		Token string `json:"token"`
		Error string `json:"error,omitempty"`
	} `json:"results"`
}

// Client talks to the push gateway over HTTP. A zero-value URL means push
// is not configured for this deployment.
type Client struct {
	baseURL    string
	serverKey  string
	httpClient *http.Client
}

func NewClient(baseURL, serverKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Send multicasts msg to tokens, batching to the gateway's limit. Tokens
// reported permanently invalid are collected across batches.
func (c *Client) Send(ctx context.Context, tokens []string, msg Message) (Result, error) {
	var result Result
	if !c.Configured() {
		return result, fmt.Errorf("push gateway not configured")
	}
	if len(tokens) == 0 {
		return result, nil
	}

	for start := 0; start < len(tokens); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch, err := c.sendBatch(ctx, tokens[start:end], msg)
		if err != nil {
			return result, err
		}
		result.SuccessCount += batch.SuccessCount
		result.FailureCount += batch.FailureCount
		result.InvalidTokens = append(result.InvalidTokens, batch.InvalidTokens...)
	}
	return result, nil
}

func (c *Client) sendBatch(ctx context.Context, tokens []string, msg Message) (Result, error) {
	var result Result

	payload, err := json.Marshal(sendRequest{Tokens: tokens, Message: msg})
	if err != nil {
		return result, fmt.Errorf("marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages:send", bytes.NewReader(payload))
	if err != nil {
		return result, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serverKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serverKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("send push batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}

	var body sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return result, fmt.Errorf("decode push response: %w", err)
	}

	for _, r := range body.Results {
		if r.Error == "" {
			result.SuccessCount++
			continue
		}
		result.FailureCount++
		if r.Error == codeNotRegistered || r.Error == codeInvalidToken {
			result.InvalidTokens = append(result.InvalidTokens, r.Token)
		}
	}
	return result, nil
}
