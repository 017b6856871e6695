package linking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Account is the linking service's answer for one chat user.
type Account struct {
	Linked   bool   `json:"linked"`
	Username string `json:"username"`
	ID       string `json:"id"`
}

// candidatePaths are tried in order; deployments of the linking service
// have exposed the lookup under different prefixes.
var candidatePaths = []string{
	"/api/v1/accounts/%s",
	"/api/accounts/%s",
	"/accounts/%s",
}

// Client looks up linked accounts over HTTP with bounded retries.
type Client struct {
	base string
	http *http.Client

	// maxAttempts bounds transient-error retries per endpoint.
	maxAttempts int
	// backoff maps a 1-based attempt number to a wait; overridable in tests.
	backoff func(attempt int) time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		base:        strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: 10 * time.Second},
		maxAttempts: 3,
		backoff:     defaultBackoff,
	}
}

func defaultBackoff(attempt int) time.Duration {
	d := 500 * time.Millisecond << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// Resolve finds the linked account for a chat user. A definitive 404 from
// every candidate endpoint means "not linked" and short-circuits retries;
// transient failures are retried with exponential backoff.
func (c *Client) Resolve(ctx context.Context, userID, groupID string) (Account, error) {
	if c.base == "" {
		return Account{}, fmt.Errorf("linking service not configured")
	}

	var lastErr error
	for _, pattern := range candidatePaths {
		endpoint := c.base + fmt.Sprintf(pattern, url.PathEscape(userID))
		if groupID != "" {
			endpoint += "?group_id=" + url.QueryEscape(groupID)
		}

		account, found, err := c.lookup(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		if found {
			return account, nil
		}
		// 404 here may mean a wrong prefix; the next candidate decides.
	}

	if lastErr != nil {
		return Account{}, lastErr
	}
	return Account{Linked: false}, nil
}

// lookup queries one endpoint, retrying transient failures. found=false
// without error is a definitive 404.
func (c *Client) lookup(ctx context.Context, endpoint string) (Account, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Account{}, false, ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		account, status, err := c.fetch(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case status == http.StatusOK:
			return account, true, nil
		case status == http.StatusNotFound:
			return Account{}, false, nil
		case status >= 500:
			lastErr = fmt.Errorf("linking service returned %d", status)
		default:
			return Account{}, false, fmt.Errorf("linking service returned %d", status)
		}
	}
	return Account{}, false, lastErr
}

func (c *Client) fetch(ctx context.Context, endpoint string) (Account, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Account{}, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Account{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Account{}, resp.StatusCode, nil
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return Account{}, 0, fmt.Errorf("decode linking response: %w", err)
	}
	return account, resp.StatusCode, nil
}
