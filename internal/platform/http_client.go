package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"perch/internal/config"
	"perch/internal/logging"
	"perch/internal/services"
)

// HTTPDoer describes the HTTP client used by the platform service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient talks to the broadcast platform's REST API.
type HTTPClient struct {
	baseURL  string
	watchURL string
	token    string
	client   HTTPDoer
	logger   *slog.Logger
}

// NewHTTPClient constructs a platform client from configuration.
func NewHTTPClient(cfg *config.Config, logger *slog.Logger) *HTTPClient {
	return NewHTTPClientWithDoer(cfg, &http.Client{
		Timeout: time.Duration(cfg.Platform.RequestTimeout) * time.Second,
	}, logger)
}

// NewHTTPClientWithDoer constructs a platform client with an injected HTTP
// transport, primarily for tests.
func NewHTTPClientWithDoer(cfg *config.Config, doer HTTPDoer, logger *slog.Logger) *HTTPClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.Platform.BaseURL), "/")
	return &HTTPClient{
		baseURL:  base,
		watchURL: base + "/watch",
		token:    strings.TrimSpace(cfg.Platform.Token),
		client:   doer,
		logger:   logging.NewComponentLogger(logger, "platform"),
	}
}

func (c *HTTPClient) EnsureStream(ctx context.Context) (Stream, error) {
	var stream Stream
	err := c.do(ctx, http.MethodPut, "/streams/default", nil, &stream, "ensure-stream")
	return stream, err
}

func (c *HTTPClient) StreamHealth(ctx context.Context, streamID string) (StreamState, error) {
	var stream Stream
	path := fmt.Sprintf("/streams/%s", url.PathEscape(streamID))
	if err := c.do(ctx, http.MethodGet, path, nil, &stream, "stream-health"); err != nil {
		return "", err
	}
	return stream.State, nil
}

func (c *HTTPClient) CreateBroadcast(ctx context.Context, req CreateBroadcastRequest) (RemoteBroadcast, error) {
	var created RemoteBroadcast
	err := c.do(ctx, http.MethodPost, "/broadcasts", req, &created, "create-broadcast")
	return created, err
}

func (c *HTTPClient) BindStream(ctx context.Context, broadcastID, streamID string) error {
	path := fmt.Sprintf("/broadcasts/%s/bind", url.PathEscape(broadcastID))
	body := map[string]string{"stream_id": streamID}
	return c.do(ctx, http.MethodPost, path, body, nil, "bind-stream")
}

func (c *HTTPClient) Transition(ctx context.Context, broadcastID string, status LifecycleStatus) error {
	path := fmt.Sprintf("/broadcasts/%s/transition", url.PathEscape(broadcastID))
	body := map[string]string{"status": string(status)}
	return c.do(ctx, http.MethodPost, path, body, nil, "transition")
}

func (c *HTTPClient) BroadcastStatus(ctx context.Context, broadcastID string) (RemoteBroadcast, error) {
	var remote RemoteBroadcast
	path := fmt.Sprintf("/broadcasts/%s", url.PathEscape(broadcastID))
	err := c.do(ctx, http.MethodGet, path, nil, &remote, "broadcast-status")
	return remote, err
}

func (c *HTTPClient) ListActiveBroadcasts(ctx context.Context) ([]RemoteBroadcast, error) {
	var page struct {
		Items []RemoteBroadcast `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/broadcasts?status=active", nil, &page, "list-active"); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *HTTPClient) ListCompleteBroadcasts(ctx context.Context, since time.Time) ([]RemoteBroadcast, error) {
	var page struct {
		Items []RemoteBroadcast `json:"items"`
	}
	path := "/broadcasts?status=complete&since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	if err := c.do(ctx, http.MethodGet, path, nil, &page, "list-complete"); err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (c *HTTPClient) UpdateMetadata(ctx context.Context, broadcastID string, patch MetadataPatch) error {
	path := fmt.Sprintf("/broadcasts/%s", url.PathEscape(broadcastID))
	return c.do(ctx, http.MethodPatch, path, patch, nil, "update-metadata")
}

func (c *HTTPClient) EnsurePlaylist(ctx context.Context, key, title, privacy string) (Playlist, error) {
	var playlist Playlist
	body := Playlist{Key: key, Title: title, Privacy: privacy}
	path := fmt.Sprintf("/playlists/%s", url.PathEscape(key))
	err := c.do(ctx, http.MethodPut, path, body, &playlist, "ensure-playlist")
	return playlist, err
}

func (c *HTTPClient) AddToPlaylist(ctx context.Context, playlistID, broadcastID string) error {
	path := fmt.Sprintf("/playlists/%s/items", url.PathEscape(playlistID))
	body := map[string]string{"broadcast_id": broadcastID}
	return c.do(ctx, http.MethodPost, path, body, nil, "add-to-playlist")
}

func (c *HTTPClient) WatchURL(broadcastID string) string {
	return c.watchURL + "/" + url.PathEscape(broadcastID)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, operation string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrInvalidRequest, "platform", operation, "encode request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrInvalidRequest, "platform", operation, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrTransient, "platform", operation, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.classify(resp, operation)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return services.Wrap(services.ErrTransient, "platform", operation, "decode response", err)
		}
	}
	return nil
}

// classify maps an HTTP failure to a services error marker. The body is read
// so conflict responses can be distinguished from genuine state errors.
func (c *HTTPClient) classify(resp *http.Response, operation string) error {
	snippet := readSnippet(resp.Body)
	c.logger.Debug("platform request failed",
		logging.String(logging.FieldOperation, operation),
		logging.Int("status", resp.StatusCode),
	)
	detail := fmt.Sprintf("status %d", resp.StatusCode)
	cause := errors.New(snippet)
	if snippet == "" {
		cause = fmt.Errorf("%s %s", resp.Request.Method, resp.Request.URL.Path)
	}

	switch {
	// Some platforms report a redundant transition as 403 rather than 409,
	// so the body check has to run before the auth mapping.
	case resp.StatusCode == http.StatusConflict, isRedundantTransition(snippet):
		return services.Wrap(services.ErrConflict, "platform", operation, detail, cause)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "platform", operation, detail, cause)
	case resp.StatusCode == http.StatusTooManyRequests:
		return services.Wrap(services.ErrQuota, "platform", operation, detail, cause)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "platform", operation, detail, cause)
	case resp.StatusCode == http.StatusBadRequest:
		return services.Wrap(services.ErrInvalidRequest, "platform", operation, detail, cause)
	case resp.StatusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "platform", operation, detail, cause)
	default:
		return services.Wrap(services.ErrTransient, "platform", operation, detail, cause)
	}
}

func isRedundantTransition(body string) bool {
	return strings.Contains(strings.ToLower(body), "redundant transition")
}

func readSnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
