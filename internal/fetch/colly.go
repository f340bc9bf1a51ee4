package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/ChiaYuChang/lorekeeper/internal/metrics"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/ChiaYuChang/lorekeeper/pkgs/utils"
	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// Remote fetches a page from the live site.
type Remote interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// CollyFetcher is a Remote built on a shared colly collector. Every host gets
// its own token bucket, and 429 or 5xx responses push the next allowed
// request further out.
type CollyFetcher struct {
	base    *colly.Collector
	retries int
	headers map[string]string

	mu           sync.Mutex
	defaultRate  rate.Limit
	defaultBurst int
	hosts        map[string]*hostPolicy
}

type hostPolicy struct {
	limiter     *rate.Limiter
	nextAllowed time.Time
	mu          sync.Mutex
}

// StatusError carries the HTTP status of a failed remote fetch.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch error (status %d)", e.Status)
	}
	return fmt.Sprintf("fetch error (status %d): %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func NewCollyFetcher(cfg *global.FetchConfig) *CollyFetcher {
	base := colly.NewCollector(
		colly.UserAgent(utils.DefaultIfZero(cfg.UserAgent, DefaultUserAgent)),
		colly.AllowURLRevisit(),
	)
	base.SetRequestTimeout(cfg.Timeout)
	base.MaxBodySize = 0
	_ = base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	})

	return &CollyFetcher{
		base:         base,
		retries:      cfg.Retries,
		headers:      DefaultHeaders,
		defaultRate:  rate.Limit(cfg.HostRate),
		defaultBurst: cfg.HostBurst,
		hosts:        make(map[string]*hostPolicy),
	}
}

// SetHostLimit overrides the token bucket of one host.
func (f *CollyFetcher) SetHostLimit(host string, per time.Duration, burst int) {
	if host == "" || per <= 0 || burst <= 0 {
		return
	}
	policy := f.hostPolicy(host)
	policy.mu.Lock()
	policy.limiter = rate.NewLimiter(rate.Every(per), burst)
	policy.mu.Unlock()
}

func (f *CollyFetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ec.ErrFetchFailed.Clone().WithDetails("invalid url " + rawURL).Warp(err)
	}
	host := normalizeHost(u.Hostname())

	ctx, span := global.Tracer("fetch").Start(ctx, "fetch.remote")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawURL))

	var (
		body    []byte
		status  int
		lastErr error
	)
	for attempt := 0; attempt <= f.retries; attempt++ {
		if err := f.waitForHost(ctx, host); err != nil {
			return nil, err
		}

		start := time.Now()
		body, status, lastErr = f.fetchOnce(ctx, rawURL)
		metrics.FetchDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
		metrics.PageFetches.WithLabelValues("remote", strconv.Itoa(status)).Inc()

		if lastErr == nil {
			span.SetAttributes(attribute.Int("http.status_code", status))
			return body, nil
		}
		if !shouldBackoff(status) {
			break
		}
		global.Logger.Warn().
			Err(lastErr).
			Int("status_code", status).
			Int("attempt", attempt).
			Str("url", rawURL).
			Msg("remote fetch failed, backing off")
		f.applyBackoff(host, attempt)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, ec.ErrFetchFailed.Clone().
		WithDetails(rawURL).
		Warp(&StatusError{Status: status, Err: lastErr})
}

func (f *CollyFetcher) fetchOnce(ctx context.Context, target string) ([]byte, int, error) {
	c := f.base.Clone()

	var (
		body   []byte
		status int
		reqErr error
	)
	c.OnRequest(func(r *colly.Request) {
		if reqCtx, ok := r.Ctx.GetAny("ctx").(context.Context); ok && reqCtx.Err() != nil {
			r.Abort()
			return
		}
		for key, value := range f.headers {
			r.Headers.Set(key, value)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	collyCtx := colly.NewContext()
	collyCtx.Put("ctx", ctx)

	if err := c.Request(http.MethodGet, target, nil, collyCtx, nil); err != nil {
		if ctx.Err() != nil {
			return nil, status, ctx.Err()
		}
		return nil, status, err
	}
	if reqErr != nil {
		return nil, status, reqErr
	}
	if status >= 400 {
		return nil, status, fmt.Errorf("status %d", status)
	}
	return body, utils.DefaultIfZero(status, http.StatusOK), nil
}

func (f *CollyFetcher) waitForHost(ctx context.Context, host string) error {
	policy := f.hostPolicy(host)
	if err := policy.waitBackoff(ctx); err != nil {
		return err
	}
	return policy.limiter.Wait(ctx)
}

func (f *CollyFetcher) hostPolicy(host string) *hostPolicy {
	host = utils.DefaultIfZero(normalizeHost(host), "default")
	f.mu.Lock()
	defer f.mu.Unlock()
	if policy, ok := f.hosts[host]; ok {
		return policy
	}
	policy := &hostPolicy{limiter: rate.NewLimiter(f.defaultRate, f.defaultBurst)}
	f.hosts[host] = policy
	return policy
}

func (f *CollyFetcher) applyBackoff(host string, attempt int) {
	policy := f.hostPolicy(host)
	delay := time.Duration(500*(1<<max(attempt, 0))) * time.Millisecond
	policy.mu.Lock()
	if next := time.Now().Add(delay); next.After(policy.nextAllowed) {
		policy.nextAllowed = next
	}
	policy.mu.Unlock()
}

func (p *hostPolicy) waitBackoff(ctx context.Context) error {
	for {
		p.mu.Lock()
		next := p.nextAllowed
		p.mu.Unlock()

		now := time.Now()
		if !now.Before(next) {
			return nil
		}
		if err := utils.SleepWithContext(ctx, next.Sub(now)); err != nil {
			return err
		}
	}
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func shouldBackoff(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}
