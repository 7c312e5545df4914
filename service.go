package mcpatlassian

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mortimer-cra/mcp-atlassian/confluence"
	"github.com/mortimer-cra/mcp-atlassian/internal/cache"
	"github.com/mortimer-cra/mcp-atlassian/internal/circuitbreaker"
	"github.com/mortimer-cra/mcp-atlassian/internal/flight"
	"github.com/mortimer-cra/mcp-atlassian/internal/logging"
	"github.com/mortimer-cra/mcp-atlassian/internal/metrics"
	"github.com/mortimer-cra/mcp-atlassian/preprocessing"
)

// Fetcher downloads a single attachment from upstream. *confluence.Client
// satisfies it; tests substitute a fake to count or script upstream calls
// without touching transport code.
type Fetcher interface {
	FetchAttachment(ctx context.Context, ref confluence.AttachmentRef) (*confluence.Resource, error)
}

// PageFetcher retrieves a raw page document from upstream.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageID string) (*confluence.Page, error)
}

// Preprocessor rewrites attachment references embedded in a page body into
// proxy URLs produced by the builder. Unparseable references become visible
// placeholders. The proxy depends only on this signature.
type Preprocessor interface {
	Rewrite(content, pageID string, build preprocessing.URLBuilder) string
}

// PageDocument is the page payload returned to proxy clients: the original
// document with its attachment references rewritten.
type PageDocument struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Space   json.RawMessage `json:"space,omitempty"`
	Version json.RawMessage `json:"version,omitempty"`
	Type    string          `json:"type,omitempty"`
	Links   json.RawMessage `json:"_links,omitempty"`
}

// Service is the fetch-through core: it resolves attachment references,
// serves cache hits, and coalesces concurrent misses for the same key into
// a single upstream fetch whose outcome every waiter shares.
type Service struct {
	fetcher Fetcher
	pages   PageFetcher
	pre     Preprocessor
	store   *cache.Store
	flight  *flight.Group
	breaker *circuitbreaker.Breaker
}

// NewService wires the fetch-through core from the given configuration
// and collaborators.
func NewService(cfg Config, fetcher Fetcher, pages PageFetcher, pre Preprocessor) *Service {
	return &Service{
		fetcher: fetcher,
		pages:   pages,
		pre:     pre,
		store:   cache.New(cfg.CacheMaxSize, cfg.CacheTTL),
		flight:  flight.NewGroup(),
		breaker: circuitbreaker.New(0, 0, 0),
	}
}

// CacheLen returns the current number of cached attachments.
func (s *Service) CacheLen() int { return s.store.Len() }

// GetAttachment returns the attachment for (pageID, filename), serving from
// the cache when possible. On a miss at most one upstream fetch is issued
// per key no matter how many requests arrive concurrently; all of them
// observe that fetch's exact outcome. Failed fetches are never cached.
func (s *Service) GetAttachment(ctx context.Context, pageID, filename string) (*confluence.Resource, error) {
	ref, err := confluence.ResolveAttachment(pageID, filename)
	if err != nil {
		return nil, err
	}
	key := ref.CacheKey()
	log := logging.FromContext(ctx)

	if res, ok := s.store.Get(key); ok {
		metrics.CacheHits.Inc()
		log.Debug("cache hit", "page_id", pageID, "filename", filename)
		return res, nil
	}
	metrics.CacheMisses.Inc()

	res, shared, err := s.flight.Do(ctx, key, func() (*confluence.Resource, error) {
		return s.fetchAndStore(ctx, ref, key)
	})
	if shared {
		metrics.CoalescedRequests.Inc()
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// fetchAndStore runs as the owner of an in-flight key: one upstream call,
// then a cache insert on success. Errors are passed through to every
// waiter and never written to the cache.
func (s *Service) fetchAndStore(ctx context.Context, ref confluence.AttachmentRef, key string) (*confluence.Resource, error) {
	log := logging.FromContext(ctx)

	if !s.breaker.Allow() {
		metrics.UpstreamFetches.WithLabelValues("circuit_open").Inc()
		return nil, &confluence.Error{
			Kind:    confluence.KindUpstreamTransient,
			Message: "upstream circuit open",
		}
	}

	// The fetch is shared by every waiter for this key, so it must not die
	// with the requester that happened to start it. Cancellation is
	// detached here; the client's own timeout still bounds the call.
	res, err := s.fetcher.FetchAttachment(context.WithoutCancel(ctx), ref)
	if err != nil {
		s.recordOutcome(err)
		log.Warn("upstream fetch failed",
			"page_id", ref.PageID,
			"filename", ref.Filename,
			"error_kind", string(confluence.KindOf(err)),
		)
		return nil, err
	}

	s.breaker.RecordSuccess()
	metrics.UpstreamFetches.WithLabelValues("success").Inc()

	if evicted := s.store.Put(key, res); evicted {
		metrics.CacheEvictions.Inc()
	}
	metrics.CacheEntries.Set(float64(s.store.Len()))

	log.Info("attachment fetched",
		"page_id", ref.PageID,
		"filename", ref.Filename,
		"bytes", len(res.Body),
		"content_type", res.ContentType,
	)
	return res, nil
}

// recordOutcome feeds the circuit breaker and fetch metrics after a failed
// upstream call. Definitive upstream answers (404, 4xx) are not failures
// from the breaker's point of view.
func (s *Service) recordOutcome(err error) {
	kind := confluence.KindOf(err)
	switch kind {
	case confluence.KindUpstreamNotFound:
		s.breaker.RecordSuccess()
		metrics.UpstreamFetches.WithLabelValues("not_found").Inc()
	case confluence.KindUpstreamAuth:
		s.breaker.RecordSuccess()
		metrics.UpstreamFetches.WithLabelValues("auth_error").Inc()
	case confluence.KindUpstreamTransient:
		s.breaker.RecordFailure()
		metrics.UpstreamFetches.WithLabelValues("transient").Inc()
	default:
		s.breaker.RecordFailure()
		metrics.UpstreamFetches.WithLabelValues("upstream_error").Inc()
	}
}

// GetPage fetches a page document from upstream (bypassing the attachment
// cache) and returns it with embedded attachment references rewritten into
// proxy URLs built by build.
func (s *Service) GetPage(ctx context.Context, pageID string, build preprocessing.URLBuilder) (*PageDocument, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	page, err := s.pages.FetchPage(ctx, pageID)
	if err != nil {
		log.Warn("page fetch failed",
			"page_id", pageID,
			"error_kind", string(confluence.KindOf(err)),
		)
		return nil, err
	}

	content := page.Content()
	if s.pre != nil {
		content = s.pre.Rewrite(content, page.ID, build)
	}

	log.Info("page served",
		"page_id", page.ID,
		"title", page.Title,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &PageDocument{
		ID:      page.ID,
		Title:   page.Title,
		Content: content,
		Space:   page.Space,
		Version: page.Version,
		Type:    page.Type,
		Links:   page.Links,
	}, nil
}
