package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/lupa/internal/logging"
	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/util"
	"github.com/ppiankov/lupa/internal/worker"
)

// HTTPOptions carries the shared infrastructure HTTP handles use
type HTTPOptions struct {
	Client    *http.Client        // nil builds one from the registration timeout
	Limiter   *worker.Limiter     // per-source token buckets, nil disables
	Robots    *util.RobotsChecker // consulted for portal sources, nil disables
	Proxy     util.ProxyFunc      // used when Client is nil
	Insecure  bool                // skip TLS verification, used when Client is nil
	UserAgent string
	MaxBytes  int64
	Cooldown  time.Duration // breaker cooldown
	Logger    *log.Logger
}

// HTTPSource calls a REST API or transparency portal described by a registration
type HTTPSource struct {
	reg       model.SourceRegistration
	base      *url.URL
	client    *http.Client
	limiter   *worker.Limiter
	robots    *util.RobotsChecker
	breaker   *Breaker
	userAgent string
	maxBytes  int64
	logger    *log.Logger

	delayOnce sync.Once
}

// NewHTTP builds a handle for a rest or portal registration
func NewHTTP(reg model.SourceRegistration, opts HTTPOptions) (*HTTPSource, error) {
	base, err := url.Parse(reg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %s: invalid base URL %q", model.ErrInvalidRegistration, reg.ID, reg.BaseURL)
	}

	client := opts.Client
	if client == nil {
		transport := &http.Transport{Proxy: opts.Proxy}
		if opts.Insecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		client = &http.Client{
			Timeout:   reg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		}
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5_000_000
	}

	if opts.Limiter != nil {
		opts.Limiter.SetRate(reg.ID, reg.RateLimit, reg.Burst)
	}

	return &HTTPSource{
		reg:       reg,
		base:      base,
		client:    client,
		limiter:   opts.Limiter,
		robots:    opts.Robots,
		breaker:   NewBreaker(reg.CircuitBreakerThreshold, opts.Cooldown),
		userAgent: opts.UserAgent,
		maxBytes:  maxBytes,
		logger:    logging.OrDiscard(opts.Logger).WithPrefix(reg.ID),
	}, nil
}

// ID returns the registration id
func (s *HTTPSource) ID() string {
	return s.reg.ID
}

// Breaker exposes the handle's circuit breaker
func (s *HTTPSource) Breaker() *Breaker {
	return s.breaker
}

// Call resolves the operation's endpoint, fetches it and decodes the body into records
func (s *HTTPSource) Call(ctx context.Context, op model.Operation, params model.Params) (model.Payload, error) {
	tmpl, ok := s.reg.Endpoints[op]
	if !ok {
		return model.Payload{}, fmt.Errorf("%w: %s does not support %s", model.ErrSourceCallFailed, s.reg.ID, op)
	}
	if s.reg.AuthRequired && s.reg.APIKey == "" {
		return model.Payload{}, fmt.Errorf("%w: %s requires an API key", model.ErrSourceCallFailed, s.reg.ID)
	}

	target, err := s.buildURL(tmpl, params)
	if err != nil {
		return model.Payload{}, fmt.Errorf("%w: %s: %v", model.ErrSourceCallFailed, s.reg.ID, err)
	}

	if !s.breaker.Allow() {
		return model.Payload{}, fmt.Errorf("%w: %s", model.ErrCircuitOpen, s.reg.ID)
	}

	if err := s.checkRobots(ctx, target); err != nil {
		return model.Payload{}, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.reg.ID); err != nil {
			return model.Payload{}, classify(s.reg.ID, err)
		}
	}

	records, err := s.fetch(ctx, target)
	if err != nil {
		if retryable(err) {
			s.breaker.Failure()
		}
		return model.Payload{}, err
	}
	s.breaker.Success()

	return model.NewRecords(mapFields(records, s.reg.FieldMap)...), nil
}

func (s *HTTPSource) fetch(ctx context.Context, target string) ([]model.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", model.ErrSourceCallFailed, err)
	}

	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "application/json, text/html;q=0.8, */*;q=0.5")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")
	if s.reg.AuthRequired {
		req.Header.Set(s.reg.AuthHeader, s.reg.APIKey)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classify(s.reg.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	s.logger.Debug("fetched", "url", target, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{SourceID: s.reg.ID, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, classify(s.reg.ID, fmt.Errorf("read body: %w", err))
	}

	var records []model.Record
	if isHTML(resp.Header.Get("Content-Type")) {
		records, err = decodeHTMLTables(body)
	} else {
		records, err = decodeJSON(body)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrSourceCallFailed, s.reg.ID, err)
	}
	return records, nil
}

// checkRobots applies robots.txt to portal sources and adopts their crawl delay
func (s *HTTPSource) checkRobots(ctx context.Context, target string) error {
	if s.reg.Kind != model.SourceKindPortal || s.robots == nil {
		return nil
	}

	allowed, delay, err := s.robots.CanFetch(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: %s: robots check: %v", model.ErrSourceCallFailed, s.reg.ID, err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s: %s disallowed by robots.txt", model.ErrSourceCallFailed, s.reg.ID, target)
	}

	if delay > 0 && s.limiter != nil {
		s.delayOnce.Do(func() {
			perSecond := 1 / delay.Seconds()
			if s.reg.RateLimit <= 0 || perSecond < s.reg.RateLimit {
				s.limiter.SetRate(s.reg.ID, perSecond, 1)
				s.logger.Info("honoring crawl delay", "delay", delay)
			}
		})
	}
	return nil
}

// buildURL expands {param} placeholders in the path template and sends the
// remaining parameters as query string, sorted for stable cache keys
func (s *HTTPSource) buildURL(tmpl string, params model.Params) (string, error) {
	used := make(map[string]bool)
	path := tmpl
	for {
		open := strings.IndexByte(path, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(path[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", tmpl)
		}
		key := path[open+1 : open+end]
		val, ok := params[key]
		if !ok || val == "" {
			return "", fmt.Errorf("missing parameter %q for %q", key, tmpl)
		}
		used[key] = true
		path = path[:open] + url.PathEscape(val) + path[open+end+1:]
	}

	u := *s.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")

	q := u.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		if !used[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if remote, ok := s.reg.ParamMap[k]; ok {
			name = remote
		}
		q.Set(name, params[k])
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// StatusError is a non-2xx response
type StatusError struct {
	SourceID   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status: %d %s", e.SourceID, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return model.ErrSourceCallFailed
}

// classify maps transport errors onto the source error taxonomy
func classify(id string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return fmt.Errorf("%w: %s: %v", model.ErrSourceTimeout, id, err)
	}
	return fmt.Errorf("%w: %s: %v", model.ErrSourceCallFailed, id, err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// retryable reports whether an error says something about the remote's health
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, model.ErrSourceTimeout) || isNetworkError(err)
}

func isNetworkError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "no such host")
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
