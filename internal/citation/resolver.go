package citation

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/aktagon/history-writer/internal/logging"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 8

	userAgent    = "Mozilla/5.0"
	maxTitleBody = 1 << 20
)

// Resolver dereferences grounding redirect URLs to their final location.
// Lookups never fail: an unreachable URL resolves to itself.
type Resolver struct {
	client      *resty.Client
	concurrency int
	fetchTitles bool
	handlers    []TitleHandler
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each lookup, redirects included.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.client.SetTimeout(d)
		}
	}
}

// WithConcurrency caps the number of lookups in flight.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithTitleFetching makes ResolveSources read untitled pages for a title.
func WithTitleFetching(enabled bool) Option {
	return func(r *Resolver) { r.fetchTitles = enabled }
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(r *Resolver) { r.client.SetTransport(rt) }
}

// NewResolver returns a resolver with a 10s timeout and 8 concurrent lookups.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client: resty.New().
			SetTimeout(DefaultTimeout).
			SetHeader("User-Agent", userAgent),
		concurrency: DefaultConcurrency,
		handlers: []TitleHandler{
			&PDFHandler{},
			NewHTMLHandler(maxTitleBody), // fallback
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps every distinct input URL to the URL reached after following
// redirects. The result has exactly one entry per distinct input.
func (r *Resolver) Resolve(ctx context.Context, urls []string) map[string]string {
	unique := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}

	finals := make([]string, len(unique))
	r.each(len(unique), func(i int) {
		finals[i], _ = r.lookup(ctx, unique[i], false)
	})

	out := make(map[string]string, len(unique))
	for i, u := range unique {
		out[u] = finals[i]
	}
	return out
}

// ResolveSources resolves every source URI and fills in missing titles.
// Sources that end up at the same final URL are merged.
func (r *Resolver) ResolveSources(ctx context.Context, sources []Source) []Source {
	sources = Dedupe(sources)
	if len(sources) == 0 {
		return nil
	}

	type target struct {
		uri       string
		wantTitle bool
		final     string
		title     string
	}
	var targets []*target
	byURI := make(map[string]*target, len(sources))
	for _, s := range sources {
		t, ok := byURI[s.URI]
		if !ok {
			t = &target{uri: s.URI}
			byURI[s.URI] = t
			targets = append(targets, t)
		}
		t.wantTitle = t.wantTitle || (r.fetchTitles && s.Title == "")
	}

	r.each(len(targets), func(i int) {
		t := targets[i]
		t.final, t.title = r.lookup(ctx, t.uri, t.wantTitle)
	})

	resolved := make([]Source, 0, len(sources))
	for _, s := range sources {
		t := byURI[s.URI]
		s.URI = t.final
		if s.Title == "" {
			s.Title = t.title
		}
		if s.Title == "" {
			s.Title = DefaultTitle
		}
		resolved = append(resolved, s)
	}
	return Dedupe(resolved)
}

// each runs fn for 0..n-1 with bounded concurrency and waits for all of them.
func (r *Resolver) each(n int, fn func(i int)) {
	if n == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i := range n {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()

	r.client.GetClient().CloseIdleConnections()
}

func (r *Resolver) lookup(ctx context.Context, raw string, wantTitle bool) (final, title string) {
	logger := logging.FromContext(ctx)

	resp, err := r.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(raw)
	if err != nil {
		logger.Debug("Citation unresolved, keeping original", "url", raw, logging.Err(err))
		return raw, ""
	}
	body := resp.RawBody()
	defer body.Close()

	final = raw
	if req := resp.RawResponse.Request; req != nil && req.URL != nil {
		final = req.URL.String()
	}
	if !wantTitle {
		return final, ""
	}

	title, err = r.title(final, resp.RawResponse)
	if err != nil {
		logger.Debug("Citation title unavailable", "url", final, logging.Err(err))
		return final, ""
	}
	return final, title
}

func (r *Resolver) title(url string, resp *http.Response) (string, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}
	for _, handler := range r.handlers {
		if handler.CanHandle(url, resp) {
			return handler.Title(url, resp)
		}
	}
	return "", nil
}
