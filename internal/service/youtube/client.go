// Package youtube is a minimal YouTube Data API v3 client covering playlist
// membership and per-video statistics.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ad-tracker/youtube-view-tracker-go/pkg/logger"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public Data API v3 endpoint.
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	// MaxPageSize is the largest maxResults/id count the API accepts.
	MaxPageSize = 50
)

// Config configures a Client.
type Config struct {
	APIKey   string
	BaseURL  string
	PageSize int
	Timeout  time.Duration
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client wraps the YouTube Data API v3 endpoints used for view tracking.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	pageSize   int
}

// PlaylistPage is one page of playlist membership.
type PlaylistPage struct {
	VideoIDs      []string
	NextPageToken string
}

// VideoStats is the subset of a video resource the tracker stores.
type VideoStats struct {
	ID          string
	Title       string
	ViewCount   int64
	PublishedAt string
}

// APIError is returned for non-2xx API responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("youtube api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("youtube api: status %d: %s", e.StatusCode, e.Message)
}

// IsQuotaExceeded reports whether err is an API 403 response, which the
// Data API uses for exhausted quota.
func IsQuotaExceeded(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
}

// NewClient creates a new YouTube API client
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		pageSize:   pageSize,
	}, nil
}

// PageSize returns the batch size used for playlist pages and statistics lookups.
func (c *Client) PageSize() int {
	return c.pageSize
}

// Items are kept raw so a single malformed entry can be skipped without
// losing the rest of the page.
type playlistItemsResponse struct {
	NextPageToken string            `json:"nextPageToken"`
	Items         []json.RawMessage `json:"items"`
}

type playlistItem struct {
	Snippet *struct {
		ResourceID struct {
			VideoID string `json:"videoId"`
		} `json:"resourceId"`
	} `json:"snippet"`
}

type videosResponse struct {
	Items []json.RawMessage `json:"items"`
}

type videoItem struct {
	ID      string `json:"id"`
	Snippet *struct {
		Title       string `json:"title"`
		PublishedAt string `json:"publishedAt"`
	} `json:"snippet"`
	Statistics *struct {
		// viewCount is a decimal string in the API.
		ViewCount json.RawMessage `json:"viewCount"`
	} `json:"statistics"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// FetchPlaylistPage retrieves one page of playlist membership. Malformed items
// and items without a resource video ID are skipped.
func (c *Client) FetchPlaylistPage(ctx context.Context, playlistID, pageToken string) (*PlaylistPage, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", strconv.Itoa(c.pageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var response playlistItemsResponse
	if err := c.get(ctx, "playlistItems", params, &response); err != nil {
		return nil, fmt.Errorf("fetch playlist page %s: %w", playlistID, err)
	}

	page := &PlaylistPage{
		VideoIDs:      make([]string, 0, len(response.Items)),
		NextPageToken: response.NextPageToken,
	}
	for _, raw := range response.Items {
		var item playlistItem
		if err := json.Unmarshal(raw, &item); err != nil {
			logger.Get().Debug("Skipping malformed playlist item",
				zap.String("playlistId", playlistID),
				zap.Error(err),
			)
			continue
		}
		if item.Snippet == nil || item.Snippet.ResourceID.VideoID == "" {
			continue
		}
		page.VideoIDs = append(page.VideoIDs, item.Snippet.ResourceID.VideoID)
	}

	return page, nil
}

// FetchStatistics retrieves title, view count and publish time for up to
// PageSize videos. IDs the API does not return, and items that fail to
// decode, are absent from the result.
func (c *Client) FetchStatistics(ctx context.Context, videoIDs []string) (map[string]*VideoStats, error) {
	stats := make(map[string]*VideoStats, len(videoIDs))
	if len(videoIDs) == 0 {
		return stats, nil
	}

	if len(videoIDs) > c.pageSize {
		return nil, fmt.Errorf("too many video IDs (max %d, got %d)", c.pageSize, len(videoIDs))
	}

	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("id", strings.Join(videoIDs, ","))

	var response videosResponse
	if err := c.get(ctx, "videos", params, &response); err != nil {
		return nil, fmt.Errorf("fetch statistics: %w", err)
	}

	for _, raw := range response.Items {
		var item videoItem
		if err := json.Unmarshal(raw, &item); err != nil {
			logger.Get().Debug("Skipping malformed video item", zap.Error(err))
			continue
		}
		if item.ID == "" {
			continue
		}

		video := &VideoStats{ID: item.ID}
		if item.Snippet != nil {
			video.Title = item.Snippet.Title
			video.PublishedAt = item.Snippet.PublishedAt
		}
		if item.Statistics != nil {
			video.ViewCount = parseCount(item.Statistics.ViewCount)
		}
		stats[item.ID] = video
	}

	return stats, nil
}

func (c *Client) get(ctx context.Context, resource string, params url.Values, out interface{}) error {
	params.Set("key", c.apiKey)
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, resource, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the request URL and with it the key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf("failed to execute request: %w", urlErr.Err)
		}
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody errorResponse
		if json.Unmarshal(body, &errBody) == nil {
			apiErr.Message = errBody.Error.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal json response: %w", err)
	}

	return nil
}

// parseCount accepts the API's quoted decimal or a bare number. Anything
// else yields 0.
func parseCount(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}

	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	count, err := strconv.ParseInt(text, 10, 64)
	if err != nil || count < 0 {
		return 0
	}
	return count
}

// BatchIDs splits ids into consecutive chunks of at most size elements.
func BatchIDs(ids []string, size int) [][]string {
	if size <= 0 || size > MaxPageSize {
		size = MaxPageSize
	}

	var batches [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}

	return batches
}
