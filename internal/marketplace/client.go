package marketplace

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

	"github.com/MrSnakeDoc/listingd/internal/domain"
	"github.com/MrSnakeDoc/listingd/internal/ratelimit"
	"github.com/MrSnakeDoc/listingd/internal/utils"
)

const (
	pathListingsBatch = "/v2/classifieds/listings/batch"
	pathArchiveBatch  = "/v2/classifieds/archive/batch"
	pathListings      = "/v2/classifieds/listings"
	pathArchive       = "/v2/classifieds/archive"

	maxErrorBody = 64 << 10
)

// Config holds marketplace client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the marketplace classifieds API
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	userAgent  string
}

// NewClient creates a marketplace client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "listingd"
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		userAgent:  cfg.UserAgent,
	}
}

// CreateBatch creates or bumps listings. Results keep the order of specs.
func (c *Client) CreateBatch(ctx context.Context, token string, specs []domain.ListingSpec) ([]CreateResult, error) {
	var results []CreateResult
	if err := c.do(ctx, http.MethodPost, pathListingsBatch, token, specs, &results); err != nil {
		return nil, err
	}
	if len(results) != len(specs) {
		return nil, fmt.Errorf("batch create returned %d results for %d listings", len(results), len(specs))
	}
	return results, nil
}

type deleteBatchRequest struct {
	ListingIDs []string `json:"listing_ids"`
}

// DeleteBatch deletes active listings by id
func (c *Client) DeleteBatch(ctx context.Context, token string, ids []string) (*DeleteResult, error) {
	var res DeleteResult
	if err := c.do(ctx, http.MethodDelete, pathListingsBatch, token, deleteBatchRequest{ListingIDs: ids}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteArchivedBatch deletes archived listings by id
func (c *Client) DeleteArchivedBatch(ctx context.Context, token string, ids []string) (*DeleteResult, error) {
	var res DeleteResult
	if err := c.do(ctx, http.MethodDelete, pathArchiveBatch, token, deleteBatchRequest{ListingIDs: ids}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type deleteAllResponse struct {
	Deleted int `json:"deleted"`
}

// DeleteAll deletes every active listing of the account
func (c *Client) DeleteAll(ctx context.Context, token string) (int, error) {
	var res deleteAllResponse
	if err := c.do(ctx, http.MethodDelete, pathListings, token, nil, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

// DeleteAllArchived deletes every archived listing of the account
func (c *Client) DeleteAllArchived(ctx context.Context, token string) (int, error) {
	var res deleteAllResponse
	if err := c.do(ctx, http.MethodDelete, pathArchive, token, nil, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Auth-Token", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer utils.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := strings.TrimSpace(string(raw))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
		message = eb.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, ok := ratelimit.ParseRetryAfter(message)
		if !ok {
			if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{Message: message, RetryAfter: retryAfter}
	}

	return &StatusError{Code: resp.StatusCode, Message: message}
}
