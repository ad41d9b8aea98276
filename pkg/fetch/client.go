// Package fetch retrieves the bulk cosmetics payload over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/buger/jsonparser"

	"github.com/chatpaint/paints/pkg/constants"
	"github.com/chatpaint/paints/pkg/logger"
	"github.com/chatpaint/paints/pkg/retry"
)

// maxPayloadBytes caps the cosmetics response body.
const maxPayloadBytes = 64 << 20

type Client struct {
	BaseURL string

	// Retryer, if set, retries transport errors and 5xx responses.
	Retryer retry.Retryer

	httpClient *http.Client
	logger     logger.Logger
}

func New(baseURL string, log logger.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		httpClient: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
		logger: logger.OrNop(log),
	}
}

func (c *Client) SetTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

func (c *Client) SetHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// FetchCosmetics returns the raw cosmetics payload keyed by userIdentifier.
// The body is checked to be an object with a paints array before it is
// returned.
func (c *Client) FetchCosmetics(ctx context.Context, userIdentifier string) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, constants.ErrNoBaseURL
	}
	if !constants.IsValidUserIdentifier(userIdentifier) {
		return nil, fmt.Errorf("%w: %q", constants.ErrInvalidIdentifier, userIdentifier)
	}

	endpoint, err := c.cosmeticsURL(userIdentifier)
	if err != nil {
		return nil, err
	}

	var payload []byte
	attempt := 0
	err = retry.Do(ctx, c.Retryer, func(ctx context.Context) error {
		attempt++
		body, err := c.get(ctx, endpoint)
		if err != nil {
			c.logger.Warn("cosmetics request failed", "attempt", attempt, "error", err)
			return err
		}
		payload = body
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	return payload, nil
}

func (c *Client) cosmeticsURL(userIdentifier string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u = u.JoinPath(constants.CosmeticsPath)

	q := u.Query()
	q.Set(constants.UserIdentifierParam, userIdentifier)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, retry.Permanent(err)
		}
		return nil, fmt.Errorf("error making HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: %d", constants.ErrUnexpectedStatus, resp.StatusCode)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	return body, nil
}

func validatePayload(payload []byte) error {
	_, dataType, _, err := jsonparser.Get(payload)
	if err != nil || dataType != jsonparser.Object {
		return fmt.Errorf("%w: not a JSON object", constants.ErrInvalidPayload)
	}

	_, dataType, _, err = jsonparser.Get(payload, "paints")
	if err != nil || dataType != jsonparser.Array {
		return fmt.Errorf("%w: missing paints array", constants.ErrInvalidPayload)
	}

	return nil
}
