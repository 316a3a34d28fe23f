// Package board implements the board API collaborator.
//
// The client speaks a Trello-style REST API: lists, cards, labels, members
// and comments, authenticated with a key/token pair passed as query
// parameters. All calls go through a shared token bucket so a full
// synchronization run stays inside the service's rate limits, and
// rate-limit or server errors are retried with bounded exponential backoff
// before surfacing as a TransportError.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds client configuration.
type Config struct {
	BaseURL           string
	Key               string
	Token             string
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// applyDefaults sets default values for unset fields.
func (c *Config) applyDefaults() {
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 2
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// Client is a rate-limited board API client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a board API client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Key == "" || cfg.Token == "" {
		return nil, fmt.Errorf("API key and token are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.applyDefaults()

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     logger.Named("board"),
	}, nil
}

// Lists returns the lists of a board.
func (c *Client) Lists(ctx context.Context, boardID string) ([]List, error) {
	var lists []List
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/boards/%s/lists", boardID), nil, &lists)
	if err != nil {
		return nil, err
	}
	return lists, nil
}

// FindList resolves a list by name. Returns NotFoundError if the board has
// no list with that name.
func (c *Client) FindList(ctx context.Context, boardID, name string) (*List, error) {
	lists, err := c.Lists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	for i := range lists {
		if strings.EqualFold(lists[i].Name, name) {
			return &lists[i], nil
		}
	}
	return nil, &NotFoundError{Kind: "list", Name: name}
}

// Cards returns all cards on a board.
func (c *Client) Cards(ctx context.Context, boardID string) ([]Card, error) {
	var cards []Card
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/boards/%s/cards", boardID), nil, &cards)
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// CardsInList returns the cards of a single list.
func (c *Client) CardsInList(ctx context.Context, listID string) ([]Card, error) {
	var cards []Card
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/lists/%s/cards", listID), nil, &cards)
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// GetCard returns a single card by id.
func (c *Client) GetCard(ctx context.Context, cardID string) (*Card, error) {
	var card Card
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/cards/%s", cardID), nil, &card)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// CreateCard creates a card and assigns its members.
func (c *Client) CreateCard(ctx context.Context, req CreateCardRequest) (*Card, error) {
	params := url.Values{}
	params.Set("idList", req.ListID)
	params.Set("name", req.Name)
	params.Set("desc", req.Desc)
	if len(req.LabelIDs) > 0 {
		params.Set("idLabels", strings.Join(req.LabelIDs, ","))
	}
	if len(req.MemberIDs) > 0 {
		params.Set("idMembers", strings.Join(req.MemberIDs, ","))
	}

	var card Card
	if err := c.doJSON(ctx, http.MethodPost, "/cards", params, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// UpdateCard updates card fields. Nil request fields are left unchanged.
func (c *Client) UpdateCard(ctx context.Context, cardID string, req UpdateCardRequest) (*Card, error) {
	params := url.Values{}
	if req.Name != nil {
		params.Set("name", *req.Name)
	}
	if req.Desc != nil {
		params.Set("desc", *req.Desc)
	}
	if req.ListID != nil {
		params.Set("idList", *req.ListID)
	}

	var card Card
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/cards/%s", cardID), params, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// MoveCard moves a card to another list.
func (c *Client) MoveCard(ctx context.Context, cardID, listID string) error {
	_, err := c.UpdateCard(ctx, cardID, UpdateCardRequest{ListID: &listID})
	return err
}

// AddComment appends a comment to a card.
func (c *Client) AddComment(ctx context.Context, cardID, text string) error {
	params := url.Values{}
	params.Set("text", text)
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/cards/%s/actions/comments", cardID), params, nil)
}

// CardComments returns the comment actions on a card, newest first as
// the service orders them.
func (c *Client) CardComments(ctx context.Context, cardID string) ([]Comment, error) {
	params := url.Values{}
	params.Set("filter", "commentCard")
	var comments []Comment
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/cards/%s/actions", cardID), params, &comments)
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// Members returns the members of a board.
func (c *Client) Members(ctx context.Context, boardID string) ([]Member, error) {
	var members []Member
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/boards/%s/members", boardID), nil, &members)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Labels returns the labels of a board.
func (c *Client) Labels(ctx context.Context, boardID string) ([]Label, error) {
	var labels []Label
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/boards/%s/labels", boardID), nil, &labels)
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// FindOrCreateLabel resolves a label by name, creating it when absent.
func (c *Client) FindOrCreateLabel(ctx context.Context, boardID, name string) (*Label, error) {
	labels, err := c.Labels(ctx, boardID)
	if err != nil {
		return nil, err
	}
	for i := range labels {
		if strings.EqualFold(labels[i].Name, name) {
			return &labels[i], nil
		}
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("color", "blue")
	var label Label
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/boards/%s/labels", boardID), params, &label); err != nil {
		return nil, err
	}
	return &label, nil
}

// doJSON performs a rate-limited, retried request and decodes the JSON
// response body into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	op := fmt.Sprintf("%s %s", method, path)

	body, err := c.doWithRetry(ctx, op, method, path, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// doWithRetry executes a request, retrying rate-limit and server errors
// with exponential backoff up to MaxRetries additional attempts.
func (c *Client) doWithRetry(ctx context.Context, op, method, path string, params url.Values) ([]byte, error) {
	var lastErr error
	var lastStatus int
	backoff := c.cfg.InitialBackoff
	start := time.Now()

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
		}

		body, status, err := c.doOnce(ctx, method, path, params)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("board API operation recovered after retries",
					zap.String("op", op),
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(start)),
				)
			}
			return body, nil
		}

		lastErr = err
		lastStatus = status

		if !isRetryableStatus(status, err) {
			return nil, &TransportError{Op: op, StatusCode: status, Err: err}
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		c.logger.Info("retrying board API operation",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.cfg.MaxRetries+1),
			zap.Int("status_code", status),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil, &TransportError{Op: op, Err: fmt.Errorf("operation canceled: %w", ctx.Err())}
		case <-time.After(backoff):
			backoff *= 2
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
		}
	}

	c.logger.Warn("board API operation failed after all retries exhausted",
		zap.String("op", op),
		zap.Int("total_attempts", c.cfg.MaxRetries+1),
		zap.Duration("total_time", time.Since(start)),
		zap.Error(lastErr),
	)
	return nil, &TransportError{Op: op, StatusCode: lastStatus, Err: lastErr}
}

// doOnce executes a single HTTP request. Returns the response body, the
// HTTP status (0 when the request never reached the server) and an error
// for any non-2xx response.
func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values) ([]byte, int, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.cfg.Key)
	params.Set("token", c.cfg.Token)

	reqURL := fmt.Sprintf("%s%s?%s", strings.TrimSuffix(c.cfg.BaseURL, "/"), path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, resp.StatusCode, nil
}

// isRetryableStatus reports whether a failed request should be retried.
// Rate limiting and server errors are transient; client errors are not.
// A zero status means the request never completed (network error), which
// is treated as retryable.
func isRetryableStatus(status int, err error) bool {
	if err == nil {
		return false
	}
	switch status {
	case 0, http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return status >= 500 && status < 600
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
