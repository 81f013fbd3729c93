// Package poster talks to the X v2 API: publishing posts and verifying
// credentials, with OAuth1 request signing.
package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

const apiBaseURL = "https://api.x.com/2"

// Client is the posting capability consumed by the pipeline.
type Client interface {
	// Post publishes text and returns the external post identifier.
	Post(ctx context.Context, text string) (string, error)
	// Verify checks the credentials without publishing anything.
	Verify(ctx context.Context) error
}

type XClient struct {
	httpClient *http.Client
	baseURL    string
}

var _ Client = (*XClient)(nil)

// NewXClient builds a client whose requests are signed with the given
// OAuth1 user-context credentials.
func NewXClient(consumerKey, consumerSecret, accessToken, accessTokenSecret string) *XClient {
	config := oauth1.NewConfig(consumerKey, consumerSecret)
	token := oauth1.NewToken(accessToken, accessTokenSecret)

	httpClient := config.Client(oauth1.NoContext, token)
	httpClient.Timeout = 30 * time.Second

	return &XClient{httpClient: httpClient, baseURL: apiBaseURL}
}

type createPostRequest struct {
	Text string `json:"text"`
}

type createPostResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *XClient) Post(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(createPostRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call posting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", rateLimitFromResponse(resp)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("posting API error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed createPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse posting response: %w", err)
	}
	if parsed.Data.ID == "" {
		return "", fmt.Errorf("posting API returned no post id")
	}

	return parsed.Data.ID, nil
}

func (c *XClient) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call posting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return rateLimitFromResponse(resp)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("authentication failed %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return nil
}

// rateLimitFromResponse builds a RateLimitError from the standard
// x-rate-limit-reset header (unix seconds), when present.
func rateLimitFromResponse(resp *http.Response) *RateLimitError {
	e := &RateLimitError{}
	if reset := resp.Header.Get("x-rate-limit-reset"); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			e.ResetAt = time.Unix(unix, 0)
		}
	}
	return e
}
