// Package fipe implements the retrieval client for the FIPE vehicle price
// API. Every endpoint is a form-encoded POST under a single base path; the
// upstream expects a browser-looking session and throttles aggressively, so
// the client carries a cookie jar, paces requests with a rate limiter, and
// backs off exponentially on 429.
package fipe

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fipeops/fipecrawler/internal/catalog"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://veiculos.fipe.org.br/api/veiculos"

// Endpoint operation names as the upstream publishes them.
const (
	opReferenceTables = "ConsultarTabelaDeReferencia"
	opBrands          = "ConsultarMarcas"
	opModels          = "ConsultarModelos"
	opModelYears      = "ConsultarAnoModelo"
	opModelsByYear    = "ConsultarModelosAtravesDoAno"
	opPrice           = "ConsultarValorComTodosParametros"
)

// Config tunes the client. Zero values fall back to the defaults the
// upstream is known to tolerate.
type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      int
	RetryBaseWait   time.Duration
	RequestInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseWait <= 0 {
		c.RetryBaseWait = 5 * time.Second
	}
	if c.RequestInterval <= 0 {
		c.RequestInterval = 1500 * time.Millisecond
	}
}

// Recorder receives timing observations from the client. Implementations
// must be goroutine safe.
type Recorder interface {
	AddAPITime(d time.Duration)
	AddBackoff(d time.Duration)
}

// Client is a shared, goroutine-safe FIPE API client. Build one per process
// with New and pass it around.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	rec     Recorder
	log     *zap.Logger

	mu      sync.Mutex
	current *catalog.ReferenceTable
}

// New builds a Client with a preloaded cookie jar and browser headers.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	cfg.applyDefaults()

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", cfg.BaseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("build cookie jar: %w", err)
	}
	jar.SetCookies(base, sessionCookies())

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		log:     log.Named("fipe"),
	}, nil
}

// SetRecorder wires timing observations into rec. A nil rec disables them.
// Call before the client is shared across goroutines.
func (c *Client) SetRecorder(rec Recorder) {
	c.rec = rec
}

func (c *Client) recordAPITime(d time.Duration) {
	if c.rec != nil {
		c.rec.AddAPITime(d)
	}
}

func (c *Client) recordBackoff(d time.Duration) {
	if c.rec != nil {
		c.rec.AddBackoff(d)
	}
}

// sessionCookies are the cookies a real browser session would carry. The
// upstream's load balancer rejects bare requests without them.
func sessionCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: "_ga", Value: "GA1.3.1274497137.1765802022", Path: "/"},
		{Name: "_gid", Value: "GA1.3.478016371.1765802022", Path: "/"},
		{Name: "_gcl_au", Value: "1.1.788238918.1765802022", Path: "/"},
		{Name: "ROUTEID", Value: ".5", Path: "/"},
	}
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36 Edg/143.0.0.0")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Referer", "https://veiculos.fipe.org.br/")
	req.Header.Set("Origin", "https://veiculos.fipe.org.br")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
}

// postForm issues one paced, retrying POST and returns the sanitized body.
// 429 responses back off with RetryBaseWait * 2^attempt up to MaxRetries
// attempts; other transport failures get a single extra try.
func (c *Client) postForm(ctx context.Context, op string, form url.Values) ([]byte, error) {
	endpoint := c.cfg.BaseURL + "/" + op

	var transientRetried bool
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: wait for request slot: %w", op, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
			strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", op, err)
		}
		setBrowserHeaders(req)

		reqStart := time.Now()
		resp, err := c.http.Do(req)
		c.recordAPITime(time.Since(reqStart))
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			if !transientRetried {
				transientRetried = true
				c.log.Warn("request failed, retrying once",
					zap.String("operation", op), zap.Error(err))
				attempt--
				continue
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt == c.cfg.MaxRetries-1 {
				return nil, &RateLimitedError{Operation: op, Attempts: c.cfg.MaxRetries}
			}
			wait := time.Duration(float64(c.cfg.RetryBaseWait) * math.Pow(2, float64(attempt)))
			c.log.Warn("rate limited, backing off",
				zap.String("operation", op),
				zap.Duration("wait", wait),
				zap.Int("attempt", attempt+1))
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			c.recordBackoff(wait)
			continue
		case resp.StatusCode >= 500:
			if !transientRetried {
				transientRetried = true
				c.log.Warn("server error, retrying once",
					zap.String("operation", op), zap.Int("status", resp.StatusCode))
				attempt--
				continue
			}
			return nil, &StatusError{Operation: op, Code: resp.StatusCode}
		case resp.StatusCode != http.StatusOK:
			return nil, &StatusError{Operation: op, Code: resp.StatusCode}
		}

		if readErr != nil {
			return nil, fmt.Errorf("%s: read body: %w", op, readErr)
		}
		return sanitizeJSON(body), nil
	}
	return nil, &RateLimitedError{Operation: op, Attempts: c.cfg.MaxRetries}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
