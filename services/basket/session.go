package basket

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/secrets"
	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/codes"
)

// sessionCache keeps authenticated retailer sessions alive for a
// while, keyed by account email so a credential change logs in fresh.
type sessionCache struct {
	cache *expirable.LRU[string, *resty.Client]
	box   secrets.Box
}

func newSessionCache(box secrets.Box) sessionCache {
	return sessionCache{
		cache: expirable.NewLRU[string, *resty.Client](8, nil, time.Minute*30),
		box:   box,
	}
}

func (s sessionCache) Get(ctx context.Context, config settings.Config) (*resty.Client, error) {
	cached, hit := s.cache.Get(config.CostcoEmail)
	if hit {
		return cached, nil
	}

	client, err := s.login(ctx, config)
	if err != nil {
		return nil, err
	}

	s.cache.Add(config.CostcoEmail, client)
	return client, nil
}

func (s sessionCache) Purge() {
	s.cache.Purge()
}

// login walks the retailer's form login: pull the CSRF token off the
// login page, post the credentials, then look for signed-in markers in
// the response.
func (s sessionCache) login(ctx context.Context, config settings.Config) (*resty.Client, error) {
	ctx, span := tracer.Start(ctx, "session:login")
	defer span.End()

	if config.CostcoEmail == "" || config.CostcoPasswordSealed == "" {
		return nil, fmt.Errorf("costco credentials are not configured")
	}
	password, err := s.box.Open(config.CostcoPasswordSealed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unseal costco password")
		return nil, fmt.Errorf("unseal costco password: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(config.BaseUrl, "/"))
	client.SetTimeout(time.Second * 30)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	telemetry.InstrumentResty(client, "services/basket/http")

	loginPage, err := client.R().SetContext(ctx).Get("/LogonForm")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load login page")
		return nil, fmt.Errorf("load login page: %w", err)
	}
	if loginPage.StatusCode() != 200 {
		span.SetStatus(codes.Error, "unexpected login page status")
		return nil, fmt.Errorf("load login page: status %d", loginPage.StatusCode())
	}

	var csrfToken string
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(loginPage.String()))
	if err == nil {
		csrfToken, _ = doc.Find(`input[name="CSRFToken"]`).Attr("value")
	}

	res, err := client.R().
		SetContext(ctx).
		SetHeader("Referer", strings.TrimRight(config.BaseUrl, "/")+"/LogonForm").
		SetFormData(map[string]string{
			"logonId":       config.CostcoEmail,
			"logonPassword": password,
			"CSRFToken":     csrfToken,
		}).
		Post("/LogonForm")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login request failed")
		return nil, fmt.Errorf("post login form: %w", err)
	}

	body := strings.ToLower(res.String())
	if !strings.Contains(body, "sign out") && !strings.Contains(body, "my account") {
		span.SetStatus(codes.Error, "login rejected")
		return nil, fmt.Errorf("login failed, check credentials")
	}

	return client, nil
}
