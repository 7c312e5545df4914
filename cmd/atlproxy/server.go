package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mcpatlassian "github.com/mortimer-cra/mcp-atlassian"
	"github.com/mortimer-cra/mcp-atlassian/confluence"
	"github.com/mortimer-cra/mcp-atlassian/internal/accesslog"
	"github.com/mortimer-cra/mcp-atlassian/internal/logging"
	"github.com/mortimer-cra/mcp-atlassian/internal/metrics"
	"github.com/mortimer-cra/mcp-atlassian/internal/ratelimit"
)

// server holds the wired collaborators behind the HTTP routes.
type server struct {
	cfg mcpatlassian.Config
	svc *mcpatlassian.Service
	// general is a credential-less client for the passthrough route, so a
	// proxied URL can never ride on the Confluence credential.
	general *confluence.Client
	access  accesslog.Writer
	limiter *ratelimit.Store
}

// routes builds the HTTP router.
func (s *server) routes(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(corsOrigins...))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"service": "atlassian-proxy",
		})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route(s.cfg.BasePath, func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/confluence/attachment/{pageID}/{filename}", s.instrument("attachment", s.handleAttachment))
		r.Get("/confluence/page/{pageID}", s.instrument("page", s.handlePage))
		r.Get("/general/{target}", s.instrument("general", s.handleGeneral))
	})

	return r
}

// instrument records the per-route request counter and latency histogram.
func (s *server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// rateLimit rejects requests over the per-client-IP budget. A nil limiter
// disables it.
func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
			metrics.RateLimitRejections.Inc()
			writeJSONError(w, http.StatusTooManyRequests, "RateLimited", "request rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the rate-limit key for a request. RealIP middleware has
// already resolved forwarding headers into RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *server) handleAttachment(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	pageID := pathParam(r, "pageID")
	filename := pathParam(r, "filename")

	res, err := s.svc.GetAttachment(r.Context(), pageID, filename)
	if err != nil {
		status, kind := s.writeError(w, r, err)
		s.logAccess(r, "attachment", pageID, filename, status, 0, start, kind)
		return
	}

	for k, v := range res.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)

	s.logAccess(r, "attachment", pageID, filename, http.StatusOK, len(res.Body), start, "")
}

func (s *server) handlePage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	pageID := pathParam(r, "pageID")

	doc, err := s.svc.GetPage(r.Context(), pageID, s.attachmentURLBuilder(r))
	if err != nil {
		status, kind := s.writeError(w, r, err)
		s.logAccess(r, "page", pageID, "", status, 0, start, kind)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(doc)

	s.logAccess(r, "page", pageID, "", http.StatusOK, len(doc.Content), start, "")
}

// handleGeneral proxies a single percent-encoded absolute URL without any
// credential attached.
func (s *server) handleGeneral(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	raw, err := url.PathUnescape(chi.URLParam(r, "target"))
	if err != nil {
		status, kind := s.writeError(w, r, confluence.NewValidationError("target URL is not valid percent-encoding"))
		s.logAccess(r, "general", "", raw, status, 0, start, kind)
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		status, kind := s.writeError(w, r, confluence.NewValidationError("target %q is not an absolute URL", raw))
		s.logAccess(r, "general", "", raw, status, 0, start, kind)
		return
	}

	res, err := s.general.Fetch(r.Context(), u.String())
	if err != nil {
		status, kind := s.writeError(w, r, err)
		s.logAccess(r, "general", "", raw, status, 0, start, kind)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)

	s.logAccess(r, "general", "", raw, http.StatusOK, len(res.Body), start, "")
}

// attachmentURLBuilder returns a URLBuilder that produces absolute proxy
// attachment URLs rooted at the host the client used to reach us.
func (s *server) attachmentURLBuilder(r *http.Request) func(pageID, filename string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	host := r.Host
	base := s.cfg.BasePath
	return func(pageID, filename string) string {
		return scheme + "://" + host + base + "/confluence/attachment/" +
			url.PathEscape(pageID) + "/" + url.PathEscape(filename)
	}
}

// pathParam returns the decoded route parameter.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

type errorBody struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// httpStatus maps an error kind to the response status.
func httpStatus(kind confluence.ErrorKind) int {
	switch kind {
	case confluence.KindValidation:
		return http.StatusBadRequest
	case confluence.KindUpstreamNotFound:
		return http.StatusNotFound
	case confluence.KindUpstreamAuth:
		return http.StatusBadGateway
	case confluence.KindUpstreamTransient:
		return http.StatusServiceUnavailable
	case confluence.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error body and returns the status and
// kind it chose. Credential failures and internal errors are redacted: the
// client learns the kind, never the detail.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) (int, string) {
	kind := confluence.KindOf(err)
	status := httpStatus(kind)

	var msg string
	switch kind {
	case confluence.KindUpstreamAuth:
		msg = "proxy could not authenticate with the upstream service"
	case confluence.KindInternal:
		msg = "internal server error"
	default:
		var ce *confluence.Error
		if errors.As(err, &ce) {
			msg = ce.Message
		} else {
			msg = "internal server error"
		}
	}

	if status >= 500 {
		logging.FromContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"error_kind", string(kind),
			"error", err.Error(),
		)
	}
	writeJSONError(w, status, string(kind), msg)
	return status, string(kind)
}

func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{ErrorKind: kind, Message: msg})
}

// logAccess persists one access log row off the request path.
func (s *server) logAccess(r *http.Request, route, pageID, filename string, status, bytes int, start time.Time, errorKind string) {
	if s.access == nil {
		return
	}
	entry := accesslog.Entry{
		TraceID:    logging.TraceIDFromContext(r.Context()),
		Route:      route,
		PageID:     pageID,
		Filename:   filename,
		Status:     status,
		BytesSent:  bytes,
		DurationMS: time.Since(start).Milliseconds(),
		ErrorKind:  errorKind,
		CreatedAt:  time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.access.Write(ctx, entry); err != nil {
			logging.Logger.Warn("access log write failed", "error", err.Error())
		}
	}()
}
