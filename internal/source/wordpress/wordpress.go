// Package wordpress fetches recent posts from a WordPress REST API
// (/wp-json/wp/v2/posts).
package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"postwatch/internal/source"
	logx "postwatch/pkg/logx"
)

const (
	// DefaultUserAgent mimics a desktop browser; some hosts reject Go's default client signature.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultTimeout = 20 * time.Second

	// WordPress rejects per_page outside 1..100.
	maxPerPage   = 100
	maxBodyBytes = 4 << 20

	fallbackTitle = "New post"
)

// StatusError reports a non-2xx response from the posts endpoint.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wordpress: unexpected status %d from %s", e.Code, e.URL)
}

type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements source.Fetcher over HTTP.
type Fetcher struct {
	baseURL   *url.URL
	userAgent string
	timeout   time.Duration
	client    *http.Client
	strip     *bluemonday.Policy
	log       logx.Logger
}

var _ source.Fetcher = (*Fetcher)(nil)

func New(cfg Config, log logx.Logger) (*Fetcher, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("wordpress: base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("wordpress: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("wordpress: base url must be http(s), got %q", raw)
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{
		baseURL:   u,
		userAgent: ua,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		strip:     bluemonday.StripTagsPolicy(),
		log:       log,
	}, nil
}

// post is the subset of the WordPress post object the monitor needs.
type post struct {
	ID    int64 `json:"id"`
	Title struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
	Link string `json:"link"`
}

func (f *Fetcher) FetchLatest(ctx context.Context, n int) ([]source.Item, error) {
	n = min(max(n, 1), maxPerPage)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	endpoint := f.endpoint(n)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wordpress: fetch posts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Code: resp.StatusCode, URL: endpoint}
	}

	var posts []post
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&posts); err != nil {
		return nil, fmt.Errorf("wordpress: decode posts: %w", err)
	}

	items := make([]source.Item, 0, len(posts))
	for _, p := range posts {
		if p.ID <= 0 {
			continue
		}
		items = append(items, source.Item{
			ID:    p.ID,
			Title: f.cleanTitle(p.Title.Rendered),
			Link:  strings.TrimSpace(p.Link),
		})
	}
	f.log.Debug("posts fetched",
		logx.Int("per_page", n),
		logx.Int("count", len(items)),
		logx.Duration("took", time.Since(started)),
	)
	return items, nil
}

func (f *Fetcher) endpoint(n int) string {
	u := *f.baseURL
	q := u.Query()
	q.Set("per_page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// cleanTitle turns title.rendered (HTML with entities such as &#8217;) into plain text.
func (f *Fetcher) cleanTitle(rendered string) string {
	s := html.UnescapeString(f.strip.Sanitize(rendered))
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return fallbackTitle
	}
	return s
}
