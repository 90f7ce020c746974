package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/tool"
)

// DefaultMaxFetchBytes caps a fetched body unless the call asks for less.
const DefaultMaxFetchBytes = 1 << 20

// ErrUnsupportedScheme is returned for URLs that are not http or https.
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// FetchRequest describes one web.fetch call.
type FetchRequest struct {
	URL      string
	Headers  map[string]string
	MaxBytes int64
}

// FetchResult is the outcome of a fetch. HTTP error statuses are results,
// not errors.
type FetchResult struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
	Truncated   bool   `json:"truncated"`
}

// Fetcher retrieves remote content.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// HTTPFetcherOptions configures an HTTPFetcher.
type HTTPFetcherOptions struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	// MaxBytes is the hard cap on a body; requests may only ask for less.
	MaxBytes int64
}

// HTTPFetcher is a Fetcher backed by net/http.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(optFns ...func(o *HTTPFetcherOptions)) *HTTPFetcher {
	opts := HTTPFetcherOptions{
		Timeout:   30 * time.Second,
		UserAgent: "taskmesh/1.0",
		MaxBytes:  DefaultMaxFetchBytes,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxFetchBytes
	}
	return &HTTPFetcher{client: opts.Client, userAgent: opts.UserAgent, maxBytes: opts.MaxBytes}
}

// Fetch performs a GET request and reads at most req.MaxBytes of the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return FetchResult{}, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return FetchResult{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	maxBytes := req.MaxBytes
	if maxBytes <= 0 || maxBytes > f.maxBytes {
		maxBytes = f.maxBytes
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return FetchResult{}, err
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return FetchResult{}, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(body)) > maxBytes
	if truncated {
		body = body[:maxBytes]
	}
	return FetchResult{
		URL:         u.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
		Truncated:   truncated,
	}, nil
}

type webFetch struct {
	fetcher Fetcher
}

func webFetchDescriptor(f Fetcher) tool.Descriptor {
	return tool.Descriptor{
		Name:    "web.fetch",
		Summary: "Fetch a web page or API response over HTTP(S).",
		Params: []tool.ParamSpec{
			tool.RequiredParam("url", core.KindString, "absolute http or https URL"),
			tool.Param("headers", core.KindStringMap, "extra request headers"),
			tool.Param("max_bytes", core.KindInt, "maximum body size to read"),
		},
		Executor: &webFetch{fetcher: f},
	}
}

func (t *webFetch) Execute(ctx context.Context, args tool.Args) (any, error) {
	return t.fetcher.Fetch(ctx, FetchRequest{
		URL:      args.String("url"),
		Headers:  args.StringMap("headers"),
		MaxBytes: args.IntOr("max_bytes", DefaultMaxFetchBytes),
	})
}
