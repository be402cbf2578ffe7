package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keystone-cm/filedesk/internal/auth"
	"github.com/keystone-cm/filedesk/internal/config"
	"github.com/keystone-cm/filedesk/internal/constants"
	"github.com/keystone-cm/filedesk/internal/http"
	"github.com/keystone-cm/filedesk/internal/models"
	"github.com/keystone-cm/filedesk/internal/ratelimit"
	"github.com/keystone-cm/filedesk/internal/version"
)

// maxThrottleRetries bounds how often a single call waits out a 429.
const maxThrottleRetries = 2

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	log zerolog.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg("retry: " + msg)
}

// Client talks to the file directory REST API.
type Client struct {
	httpClient     *nethttp.Client
	downloadClient *nethttp.Client
	config         *config.Config
	baseURL        string
	token          string
	limiters       *ratelimit.Registry
	shim           models.RootShim
	metrics        *Metrics
	log            zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics shares a metrics set between clients.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRateLimits overrides the per-scope limiters.
func WithRateLimits(r *ratelimit.Registry) Option {
	return func(c *Client) { c.limiters = r }
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty: %w", config.ErrMissingBaseURL)
	}
	if err := auth.CheckExpiry(cfg.Token, time.Now(), constants.TokenExpiryLeeway); err != nil {
		return nil, err
	}

	c := &Client{
		config:  cfg,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		log:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiters == nil {
		c.limiters = ratelimit.NewRegistry(cfg.ReadRate, cfg.WriteRate)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics()
	}

	legacy := make([]models.EntryID, 0, len(cfg.LegacyRootIDs))
	for _, id := range cfg.LegacyRootIDs {
		legacy = append(legacy, models.ParseEntryID(id))
	}
	c.shim = models.NewRootShim(legacy...)

	// Configure HTTP client with proxy support
	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	// Wrap with retry logic
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.Logger = &retryLogger{log: c.log}
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, _ *nethttp.Request, attempt int) {
		if attempt > 0 {
			c.metrics.RecordRetry()
		}
	}
	c.httpClient = retryClient.StandardClient()

	downloadClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure download client: %w", err)
	}
	c.downloadClient = downloadClient

	return c, nil
}

// checkRetry retries transport failures for every method but 5xx only for
// idempotent methods. 429 is handled by doRequest through the rate limiter.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		if resp.StatusCode == nethttp.StatusTooManyRequests {
			return false, nil
		}
		if resp.StatusCode >= 500 && resp.Request != nil && !isIdempotent(resp.Request.Method) {
			return false, nil
		}
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func isIdempotent(method string) bool {
	switch method {
	case nethttp.MethodGet, nethttp.MethodHead, nethttp.MethodDelete, nethttp.MethodPut:
		return true
	}
	return false
}

// Metrics returns the request metrics collected by this client.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// RootShim returns the legacy root mapping applied to listings.
func (c *Client) RootShim() models.RootShim {
	return c.shim
}

// doRequest performs an HTTP request with authentication and rate limiting.
// Transport failures come back as *NetworkError.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body interface{}) (*nethttp.Response, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	limiter, scope := c.limiters.LimiterFor(method, path)

	for attempt := 0; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter cancelled: %w", op, err)
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		req.Header.Set("X-Request-ID", uuid.NewString())
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.RecordRequest(method, string(scope), 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			c.log.Debug().Str("method", method).Str("path", path).Err(err).Msg("API call failed")
			return nil, &NetworkError{Op: op, Err: err}
		}
		c.metrics.RecordRequest(method, string(scope), resp.StatusCode, time.Since(start))

		if resp.StatusCode != nethttp.StatusTooManyRequests {
			return resp, nil
		}

		wait := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		limiter.SetCooldown(wait)
		c.metrics.RecordThrottle(string(scope))
		c.log.Warn().
			Str("method", method).
			Str("path", path).
			Str("scope", c.limiters.ScopeDisplayString(scope)).
			Dur("retry_after", wait).
			Msg("throttled by server")

		if attempt >= maxThrottleRetries {
			return resp, nil
		}
		drainAndClose(resp)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date and clamps the result.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	d := constants.DefaultRetryAfter
	if v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			d = time.Duration(secs) * time.Second
		} else if t, err := nethttp.ParseTime(v); err == nil {
			d = t.Sub(now)
		}
	}
	if d <= 0 {
		d = constants.DefaultRetryAfter
	}
	if d > constants.MaxRetryAfter {
		d = constants.MaxRetryAfter
	}
	return d
}

func drainAndClose(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}

// statusError converts a non-2xx response into the matching error type.
// Mutations map 404, 409 and 412 to *ConflictError.
func statusError(op string, resp *nethttp.Response, mutation bool) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	text := truncateBody(body)

	if mutation {
		switch resp.StatusCode {
		case nethttp.StatusConflict, nethttp.StatusNotFound, nethttp.StatusPreconditionFailed:
			return &ConflictError{Op: op, StatusCode: resp.StatusCode, Body: text}
		}
	}
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: text}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func entryPath(id models.EntryID, suffix string) string {
	p := "/files/" + url.PathEscape(string(id))
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func listQuery(parentID models.EntryID, search string) string {
	q := url.Values{}
	if parentID.IsRoot() {
		q.Set("parent_id", "null")
	} else {
		q.Set("parent_id", string(parentID))
	}
	if s := strings.TrimSpace(search); s != "" {
		q.Set("search", s)
	}
	return "/files?" + q.Encode()
}

// listEnvelope covers the wrapped listing shapes.
type listEnvelope[T any] struct {
	Results []T `json:"results"`
	Data    []T `json:"data"`
}

// decodeList accepts a bare JSON array or an object with "results" or "data".
func decodeList[T any](r io.Reader) ([]T, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}

	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to decode listing: %w", err)
		}
		return items, nil
	}

	var env listEnvelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}
	switch {
	case env.Results != nil:
		return env.Results, nil
	case env.Data != nil:
		return env.Data, nil
	}
	return []T{}, nil
}

// fetchEntries runs one listing request. All failures become *FetchError.
func (c *Client) fetchEntries(ctx context.Context, op, path string) ([]models.Entry, error) {
	resp, err := c.doRequest(ctx, op, nethttp.MethodGet, path, nil)
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, &FetchError{Op: op, Err: statusError(op, resp, false)}
	}

	entries, err := decodeList[models.Entry](resp.Body)
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}

	entries, rewritten := c.shim.Normalize(entries)
	if rewritten > 0 {
		c.log.Debug().Int("count", rewritten).Msg("mapped legacy root parents")
	}
	return entries, nil
}

// ListAll returns every entry visible to the caller as a flat list.
func (c *Client) ListAll(ctx context.Context, search string) ([]models.Entry, error) {
	return c.fetchEntries(ctx, "list files", listQuery(models.RootID, search))
}

// ListChildren returns the direct children of parentID.
// The backend has no dedicated root listing, so the root is served by
// filtering the full listing.
func (c *Client) ListChildren(ctx context.Context, parentID models.EntryID, search string) ([]models.Entry, error) {
	if parentID.IsRoot() {
		all, err := c.ListAll(ctx, search)
		if err != nil {
			return nil, err
		}
		top := make([]models.Entry, 0, len(all))
		for _, e := range all {
			if e.IsTopLevel() {
				top = append(top, e)
			}
		}
		return top, nil
	}
	return c.fetchEntries(ctx, "list folder", listQuery(parentID, search))
}

// Ping issues the smallest possible listing to verify connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "ping", nethttp.MethodGet, "/files?parent_id=null&limit=1", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return statusError("ping", resp, false)
	}
	return nil
}

// CreateFolder creates a folder under parentID and returns it.
func (c *Client) CreateFolder(ctx context.Context, name string, parentID models.EntryID) (*models.Entry, error) {
	req := createFolderRequest{Name: strings.TrimSpace(name), ParentID: parentID}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, "create folder", nethttp.MethodPost, "/files/folder", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, statusError("create folder", resp, true)
	}

	var folder models.Entry
	if err := json.NewDecoder(resp.Body).Decode(&folder); err != nil {
		return nil, fmt.Errorf("failed to decode folder response: %w", err)
	}
	return &folder, nil
}

// Rename changes the name of an entry. Older servers only accept POST on the
// rename endpoint and answer PATCH with 405; the call is repeated as POST then.
func (c *Client) Rename(ctx context.Context, id models.EntryID, name string) error {
	req := renameRequest{Name: strings.TrimSpace(name)}
	if err := validateRequest(req); err != nil {
		return err
	}

	path := entryPath(id, "rename")
	resp, err := c.doRequest(ctx, "rename", nethttp.MethodPatch, path, req)
	if err != nil {
		return err
	}
	if resp.StatusCode == nethttp.StatusMethodNotAllowed {
		drainAndClose(resp)
		c.log.Debug().Str("id", id.String()).Msg("rename: PATCH not allowed, retrying as POST")
		resp, err = c.doRequest(ctx, "rename", nethttp.MethodPost, path, req)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return statusError("rename", resp, true)
	}
	return nil
}

// Move re-parents an entry. parentID may be models.RootID.
func (c *Client) Move(ctx context.Context, id, parentID models.EntryID) error {
	if id == parentID {
		return &ValidationError{Field: "parent_id", Reason: "an entry cannot be moved into itself"}
	}
	return c.mutate(ctx, "move", nethttp.MethodPost, entryPath(id, "move"), moveRequest{ParentID: parentID})
}

// Delete removes an entry. Folders are removed with their contents.
func (c *Client) Delete(ctx context.Context, id models.EntryID) error {
	return c.mutate(ctx, "delete", nethttp.MethodDelete, entryPath(id, ""), nil)
}

// SetStarred marks or unmarks an entry as starred.
func (c *Client) SetStarred(ctx context.Context, id models.EntryID, starred bool) error {
	return c.mutate(ctx, "star", nethttp.MethodPost, entryPath(id, "star"), starRequest{Starred: starred})
}

// AssignPermission grants p on fileID to userID.
func (c *Client) AssignPermission(ctx context.Context, fileID models.EntryID, userID string, p models.Permission) error {
	req := permissionRequest{FileID: fileID, UserID: strings.TrimSpace(userID), Permission: p}
	if err := validateRequest(req); err != nil {
		return err
	}
	return c.mutate(ctx, "assign permission", nethttp.MethodPost, "/files/permissions/assign", req)
}

// RemovePermission revokes p on fileID from userID.
func (c *Client) RemovePermission(ctx context.Context, fileID models.EntryID, userID string, p models.Permission) error {
	req := permissionRequest{FileID: fileID, UserID: strings.TrimSpace(userID), Permission: p}
	if err := validateRequest(req); err != nil {
		return err
	}
	return c.mutate(ctx, "remove permission", nethttp.MethodPost, "/files/permissions/remove", req)
}

func (c *Client) mutate(ctx context.Context, op, method, path string, body interface{}) error {
	resp, err := c.doRequest(ctx, op, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return statusError(op, resp, true)
	}
	return nil
}

// ListPermissions returns the grants recorded on fileID.
func (c *Client) ListPermissions(ctx context.Context, fileID models.EntryID) ([]models.PermissionGrant, error) {
	const op = "list permissions"
	if fileID.IsRoot() {
		return nil, &ValidationError{Field: "file_id", Reason: "the root has no permissions"}
	}

	path := "/files/permissions/list/" + url.PathEscape(string(fileID))
	resp, err := c.doRequest(ctx, op, nethttp.MethodGet, path, nil)
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, &FetchError{Op: op, Err: statusError(op, resp, false)}
	}

	grants, err := decodeList[models.PermissionGrant](resp.Body)
	if err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	for i := range grants {
		if grants[i].FileID == models.RootID {
			grants[i].FileID = fileID
		}
	}
	return grants, nil
}

// DownloadURL returns a short-lived URL for the file's content.
func (c *Client) DownloadURL(ctx context.Context, id models.EntryID) (string, error) {
	const op = "download"
	resp, err := c.doRequest(ctx, op, nethttp.MethodGet, entryPath(id, "download"), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return "", statusError(op, resp, true)
	}

	var out downloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode download response: %w", err)
	}
	if err := validateRequest(out); err != nil {
		return "", fmt.Errorf("server returned an unusable download URL: %w", err)
	}
	return out.URL, nil
}

// OpenDownload starts streaming the content behind a download URL.
// The bearer token is only attached when the URL points at the API host.
// The caller closes the returned body.
func (c *Client) OpenDownload(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	const op = "download"
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if c.sameHost(req.URL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return nil, 0, &NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode != nethttp.StatusOK {
		defer resp.Body.Close()
		return nil, 0, statusError(op, resp, true)
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) sameHost(u *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(base.Host, u.Host)
}

// IsRetryable reports whether an operation that failed with err may succeed
// when repeated unchanged.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if IsNetworkError(err) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == nethttp.StatusTooManyRequests || se.StatusCode >= 500
	}
	return false
}
