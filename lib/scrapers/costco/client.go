package costco

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// Policy controls pacing and escalation. It is requested again before
// every fetch so runtime settings changes take effect without a
// restart.
type Policy struct {
	// KillSwitch refuses all fetches while set.
	KillSwitch bool
	// SafeMode paces requests far more conservatively.
	SafeMode bool
	// BackoffMultiplier escalates the cool-off window after a blocked
	// fetch. Values at or below 1 fall back to 2.
	BackoffMultiplier float64
	// UserAgents is the rotation pool. When empty a generated browser
	// user agent is used instead.
	UserAgents []string
	// RequestTimeout bounds a single fetch when set.
	RequestTimeout time.Duration
}

// PolicySource yields the current scraping policy. Implementations
// typically merge file config with database overrides.
type PolicySource interface {
	ScrapePolicy(ctx context.Context) (Policy, error)
}

// StaticPolicy adapts a fixed Policy into a PolicySource.
type StaticPolicy Policy

func (p StaticPolicy) ScrapePolicy(ctx context.Context) (Policy, error) {
	return Policy(p), nil
}

func DefaultPolicy() Policy {
	return Policy{
		SafeMode:          true,
		BackoffMultiplier: 2,
	}
}

// Client fetches product pages while keeping the request pattern slow
// and browser-like. All pacing state is shared, so every tracked
// product should go through the same instance.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	policy PolicySource

	mu                sync.Mutex
	lastRequest       time.Time
	consecutiveErrors int
	backoffUntil      time.Time
}

type ClientOptions struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// Policy is consulted before every request. Defaults to a static
	// DefaultPolicy.
	Policy PolicySource
	// RequestsPerSecond is a hard ceiling underneath the adaptive
	// delays. Defaults to 2.
	RequestsPerSecond float64
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Policy == nil {
		opts.Policy = StaticPolicy(DefaultPolicy())
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	rateLimiter := rate.NewLimiter(rate.Limit(rps), 2)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, "scrapers/costco/http")

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
		policy:  opts.Policy,
	}
	return c, nil
}

func browserHeaders(userAgent string) map[string]string {
	// Accept-Encoding is left to the transport so gzip gets decoded
	// transparently.
	return map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-GB,en;q=0.9",
		"DNT":                       "1",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Cache-Control":             "max-age=0",
	}
}

func pickUserAgent(policy Policy) string {
	if len(policy.UserAgents) == 0 {
		return browser.Chrome()
	}
	return policy.UserAgents[rand.IntN(len(policy.UserAgents))]
}

// requestDelay is the gap to keep between requests. Safe mode paces
// harder and every consecutive error stretches it further.
func requestDelay(policy Policy, consecutiveErrors int) time.Duration {
	base := 1.0 + float64(consecutiveErrors)
	if policy.SafeMode {
		base = 3.0 + float64(consecutiveErrors)*2
	}
	jitter := 0.5 + rand.Float64()*1.5
	return time.Duration(base * jitter * float64(time.Second))
}

// backoffSeconds escalates with the number of consecutive errors and is
// capped at one hour.
func backoffSeconds(multiplier float64, consecutiveErrors int) float64 {
	if multiplier <= 1 {
		multiplier = 2
	}
	return min(60*math.Pow(multiplier, float64(consecutiveErrors)), 3600)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) waitBeforeRequest(ctx context.Context, policy Policy) error {
	c.mu.Lock()
	backoffUntil := c.backoffUntil
	c.mu.Unlock()

	if wait := time.Until(backoffUntil); wait > 0 {
		slog.InfoContext(ctx, "backing off", "wait", wait.Round(time.Second))
		err := sleepContext(ctx, wait)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.backoffUntil = time.Time{}
		c.mu.Unlock()
	}

	c.mu.Lock()
	last := c.lastRequest
	consecutiveErrors := c.consecutiveErrors
	c.mu.Unlock()

	if !last.IsZero() {
		delay := requestDelay(policy, consecutiveErrors)
		if elapsed := time.Since(last); elapsed < delay {
			err := sleepContext(ctx, delay-elapsed)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors++
}

func (c *Client) recordBlocked(policy Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors++
	seconds := backoffSeconds(policy.BackoffMultiplier, c.consecutiveErrors)
	c.backoffUntil = time.Now().Add(time.Duration(seconds * float64(time.Second)))
	slog.Warn("triggering backoff", "seconds", int(seconds), "consecutive_errors", c.consecutiveErrors)
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors = 0
}

// resolveTarget accepts either an item number or a full product url and
// returns both forms.
func (c *Client) resolveTarget(urlOrItem string) (string, string) {
	if strings.HasPrefix(urlOrItem, "http") {
		if item := itemNumberFromUrl(urlOrItem); item != "" {
			return item, urlOrItem
		}
		return urlOrItem, urlOrItem
	}
	return urlOrItem, fmt.Sprintf("%s/p/%s", strings.TrimRight(c.BaseUrl.String(), "/"), urlOrItem)
}

// LimiterStatus is a point-in-time view of the shared pacing state.
type LimiterStatus struct {
	ConsecutiveErrors int
	BackoffUntil      time.Time
	LastRequest       time.Time
}

func (c *Client) Status() LimiterStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return LimiterStatus{
		ConsecutiveErrors: c.consecutiveErrors,
		BackoffUntil:      c.backoffUntil,
		LastRequest:       c.lastRequest,
	}
}

// Fetch looks at a product page once and reports what it saw. Page
// level failures come back inside the snapshot, the error return is
// reserved for machinery problems like a cancelled context or an
// unreadable policy source.
func (c *Client) Fetch(ctx context.Context, urlOrItem string) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "client:Fetch")
	defer span.End()

	policy, err := c.policy.ScrapePolicy(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read scrape policy")
		return Snapshot{}, fmt.Errorf("read scrape policy: %w", err)
	}

	itemNumber, pageUrl := c.resolveTarget(urlOrItem)
	span.SetAttributes(attribute.String("url", pageUrl))

	if policy.KillSwitch {
		return Snapshot{
			ItemNumber: itemNumber,
			Stock:      StockUnknown,
			Err:        "Kill switch is active - automation disabled",
			ErrKind:    ErrorPolicy,
		}, nil
	}

	err = c.waitBeforeRequest(ctx, policy)
	if err != nil {
		return Snapshot{}, err
	}

	if policy.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.RequestTimeout)
		defer cancel()
	}

	c.mu.Lock()
	c.lastRequest = time.Now()
	c.mu.Unlock()

	res, err := c.Http.R().
		SetContext(ctx).
		SetHeaders(browserHeaders(pickUserAgent(policy))).
		Get(pageUrl)
	if err != nil {
		c.recordFailure()
		span.SetStatus(codes.Error, "request failed")
		return Snapshot{
			ItemNumber: itemNumber,
			Stock:      StockUnknown,
			Err:        fmt.Sprintf("Request failed: %s", err),
			ErrKind:    ErrorTransport,
		}, nil
	}

	snapshot := Extract(res.String(), res.StatusCode(), pageUrl)
	if snapshot.ItemNumber == "" {
		snapshot.ItemNumber = itemNumber
	}

	switch snapshot.ErrKind {
	case ErrorBlocking:
		c.recordBlocked(policy)
		span.SetStatus(codes.Error, snapshot.Err)
	case ErrorTransport:
		c.recordFailure()
		span.SetStatus(codes.Error, snapshot.Err)
	case ErrorNone:
		c.recordSuccess()
	}

	return snapshot, nil
}
