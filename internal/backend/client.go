// Package backend is the client for the recordings REST backend: recordings,
// trim and process actions, aggregate stats and per-user settings.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/radiorec/radiorec/internal/errors"
	"github.com/radiorec/radiorec/internal/httpclient"
	"github.com/radiorec/radiorec/internal/logger"
)

// DefaultCacheTTL is how long settings and stats are served from memory.
const DefaultCacheTTL = 30 * time.Second

const (
	cacheKeySettings = "settings"
	cacheKeyStats    = "stats"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend root, e.g. http://localhost:8000.
	BaseURL string
	// Token is sent as a Bearer token when set.
	Token    string
	CacheTTL time.Duration
	Log      logger.Logger
}

// Client talks to the recordings backend. Safe for concurrent use.
type Client struct {
	base  *url.URL
	token string
	http  *httpclient.Client
	cache *cache.Cache
	log   logger.Logger
}

// NewClient builds a backend client on top of the shared HTTP client.
// A nil hc gets a client with default settings.
func NewClient(cfg Config, hc *httpclient.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.Newf("backend url is required").
			Component("backend").
			Category(errors.CategoryConfiguration).
			Build()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid backend url %q", cfg.BaseURL).
			Component("backend").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if hc == nil {
		hc = httpclient.New(nil)
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	log := cfg.Log
	if log == nil {
		log = GetLogger()
	}

	return &Client{
		base:  base,
		token: cfg.Token,
		http:  hc,
		// no janitor: expired entries are dropped on access
		cache: cache.New(cfg.CacheTTL, 0),
		log:   log,
	}, nil
}

// URL resolves an API path such as "recordings/12/" against the base URL.
func (c *Client) URL(path string) string {
	u := *c.base
	path, query, _ := strings.Cut(path, "?")
	u.Path = strings.TrimRight(u.Path, "/") + "/api/" + strings.TrimLeft(path, "/")
	u.RawQuery = query
	return u.String()
}

// Authorize adds the bearer token to req.
func (c *Client) Authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

// Do sends an authorized request. Non-2xx responses are returned as errors
// wrapping *APIError and their bodies are closed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	c.Authorize(req)

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.log.Warn("backend request failed",
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Error(err))
		return nil, errors.New(err).
			Component("backend").
			Category(errors.CategoryNetwork).
			Context("path", req.URL.Path).
			Timing("backend-request", time.Since(start)).
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		apiErr := readAPIError(resp)
		c.log.Debug("backend returned error",
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Int("status", resp.StatusCode),
			logger.String("detail", DetailOf(apiErr)))
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := httpclient.NewRequest(ctx, method, c.URL(path), "", body)
	if err != nil {
		return err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(fmt.Errorf("decode %s %s: %w", method, path, err)).
			Component("backend").
			Category(errors.CategoryHTTP).
			Build()
	}
	return nil
}

// ListRecordings returns one page of recordings. Page numbers start at 1;
// zero requests the first page.
func (c *Client) ListRecordings(ctx context.Context, page int) (*Page[Recording], error) {
	path := "recordings/"
	if page > 1 {
		path += "?page=" + strconv.Itoa(page)
	}

	// The backend may be configured without pagination and answer a bare list.
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	var out Page[Recording]
	if isJSONArray(raw) {
		if err := json.Unmarshal(raw, &out.Results); err != nil {
			return nil, errors.New(err).Component("backend").Category(errors.CategoryHTTP).Build()
		}
		out.Count = len(out.Results)
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.New(err).Component("backend").Category(errors.CategoryHTTP).Build()
	}
	return &out, nil
}

// GetRecording fetches one recording.
func (c *Client) GetRecording(ctx context.Context, id int64) (*Recording, error) {
	var rec Recording
	if err := c.doJSON(ctx, http.MethodGet, recordingPath(id, ""), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteRecording removes a recording and its file.
func (c *Client) DeleteRecording(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, recordingPath(id, ""), nil, nil); err != nil {
		return err
	}
	c.cache.Delete(cacheKeyStats)
	return nil
}

// Download streams the recording's file into w and returns the filename
// announced by the server, if any.
func (c *Client) Download(ctx context.Context, id int64, w io.Writer) (string, int64, error) {
	req, err := httpclient.NewRequest(ctx, http.MethodGet, c.URL(recordingPath(id, "download")), "", nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return "", n, errors.New(err).
			Component("backend").
			Category(errors.CategoryFileIO).
			Context("recording_id", id).
			Build()
	}
	return filenameFromDisposition(resp.Header.Get("Content-Disposition")), n, nil
}

// Trim asks the backend to keep only [start, end] seconds of the recording.
func (c *Client) Trim(ctx context.Context, id int64, start, end float64) (*TrimResult, error) {
	body := map[string]float64{"start_time": start, "end_time": end}
	var out TrimResult
	if err := c.doJSON(ctx, http.MethodPost, recordingPath(id, "trim"), body, &out); err != nil {
		return nil, err
	}
	c.cache.Delete(cacheKeyStats)
	return &out, nil
}

// Process queues server-side analysis of the recording.
func (c *Client) Process(ctx context.Context, id int64) (*ProcessResult, error) {
	var out ProcessResult
	if err := c.doJSON(ctx, http.MethodPost, recordingPath(id, "process"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns aggregate counts. Results are cached for the client's TTL.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	if v, ok := c.cache.Get(cacheKeyStats); ok {
		if s, ok := v.(Stats); ok {
			return &s, nil
		}
	}
	var out Stats
	if err := c.doJSON(ctx, http.MethodGet, "recordings/stats/", nil, &out); err != nil {
		return nil, err
	}
	c.cache.Set(cacheKeyStats, out, cache.DefaultExpiration)
	return &out, nil
}

// GetSettings returns the current user's settings. The backend answers
// either a single object or a list; for a list the first entry wins and an
// empty list yields DefaultSettings with no ID.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	if v, ok := c.cache.Get(cacheKeySettings); ok {
		if s, ok := v.(Settings); ok {
			return &s, nil
		}
	}

	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "settings/", nil, &raw); err != nil {
		return nil, err
	}

	var s Settings
	if isJSONArray(raw) {
		var list []Settings
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errors.New(err).Component("backend").Category(errors.CategoryHTTP).Build()
		}
		if len(list) == 0 {
			s = DefaultSettings()
			return &s, nil
		}
		s = list[0]
	} else {
		// A paginated wrapper is also possible depending on backend config.
		var page Page[Settings]
		if err := json.Unmarshal(raw, &page); err == nil && page.Results != nil {
			if len(page.Results) == 0 {
				s = DefaultSettings()
				return &s, nil
			}
			s = page.Results[0]
		} else if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.New(err).Component("backend").Category(errors.CategoryHTTP).Build()
		}
	}

	c.cache.Set(cacheKeySettings, s, cache.DefaultExpiration)
	return &s, nil
}

// UpdateSettings validates s and stores it: PUT on the existing resource when
// s has an ID, POST otherwise. The cached copy is replaced by the response.
func (c *Client) UpdateSettings(ctx context.Context, s *Settings) (*Settings, error) {
	if s == nil {
		return nil, errors.Newf("nil settings").Component("backend").Category(errors.CategoryValidation).Build()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	c.cache.Delete(cacheKeySettings)

	method, path := http.MethodPost, "settings/"
	if s.ID != 0 {
		method, path = http.MethodPut, "settings/"+strconv.FormatInt(s.ID, 10)+"/"
	}

	var out Settings
	if err := c.doJSON(ctx, method, path, s, &out); err != nil {
		return nil, err
	}
	c.cache.Set(cacheKeySettings, out, cache.DefaultExpiration)
	c.log.Info("settings updated", logger.Int64("settings_id", out.ID))
	return &out, nil
}

// InvalidateCache drops cached settings and stats.
func (c *Client) InvalidateCache() {
	c.cache.Flush()
}

func recordingPath(id int64, action string) string {
	p := "recordings/" + strconv.FormatInt(id, 10) + "/"
	if action != "" {
		p += action + "/"
	}
	return p
}

func isJSONArray(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "[")
}

func filenameFromDisposition(v string) string {
	if v == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return params["filename"]
}
