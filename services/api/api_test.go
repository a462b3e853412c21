package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/scrapers/costco"
	"github.com/Ropaxyz/CostcoUKTracker/lib/secrets"
	"github.com/Ropaxyz/CostcoUKTracker/lib/testutil"
	"github.com/Ropaxyz/CostcoUKTracker/services/auth"
	authdb "github.com/Ropaxyz/CostcoUKTracker/services/auth/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/basket"
	"github.com/Ropaxyz/CostcoUKTracker/services/notify"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	settingsdb "github.com/Ropaxyz/CostcoUKTracker/services/settings/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker"
	trackerdb "github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/detect"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

type stubFetcher struct {
	mu        sync.Mutex
	snapshots map[string]costco.Snapshot
	errs      map[string]error
	calls     []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		snapshots: map[string]costco.Snapshot{},
		errs:      map[string]error{},
	}
}

func (f *stubFetcher) set(item string, snapshot costco.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[item] = snapshot
}

func (f *stubFetcher) setErr(item string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[item] = err
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *stubFetcher) Fetch(ctx context.Context, urlOrItem string) (costco.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, urlOrItem)
	if err, ok := f.errs[urlOrItem]; ok {
		return costco.Snapshot{}, err
	}
	if snapshot, ok := f.snapshots[urlOrItem]; ok {
		return snapshot, nil
	}
	return costco.Snapshot{ItemNumber: urlOrItem, Stock: costco.StockUnknown}, nil
}

type stubNotifier struct{}

func (stubNotifier) Send(ctx context.Context, product trackerdb.Product, kind detect.AlertKind, oldValue, newValue string) ([]notify.Result, error) {
	return []notify.Result{{Channel: notify.ChannelTelegram, Success: true}}, nil
}

type stubBasket struct{}

func (stubBasket) AddToBasket(ctx context.Context, itemNumber string, quantity int64) basket.Result {
	return basket.Result{Success: true}
}

type stubScheduler struct {
	mu      sync.Mutex
	runs    int
	running bool
	err     error
}

func (s *stubScheduler) RunNow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	return s.err
}

func (s *stubScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *stubScheduler) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *stubScheduler) setRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

func (s *stubScheduler) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type apiEnv struct {
	server    *httptest.Server
	handler   http.Handler
	client    *http.Client
	fetcher   *stubFetcher
	scheduler *stubScheduler
	settings  settings.Service
	auth      auth.Service
	tracker   tracker.Service
	qry       *trackerdb.Queries
	box       secrets.Box
}

type envParams struct {
	file        settings.Config
	telegramUrl string
}

func setupApiEnv(t *testing.T, params envParams) *apiEnv {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/api",
		DbSchema: settingsdb.Schema + trackerdb.Schema + authdb.Schema,
	})
	t.Cleanup(cleanup)

	settingsService := settings.NewService(res.DB, params.file)
	authService := auth.NewService(res.DB, settingsService)
	fetcher := newStubFetcher()
	trackerService := tracker.NewService(res.DB, tracker.Options{
		Fetcher:  fetcher,
		Settings: settingsService,
		Notifier: stubNotifier{},
		Basket:   stubBasket{},
	})
	scheduler := &stubScheduler{}
	box := secrets.NewBox("api-test-secret")

	notifyService := notify.NewService(notify.Options{
		Settings:        settingsService,
		TelegramBaseUrl: params.telegramUrl,
	})

	handler := NewService(Options{
		Auth:      authService,
		Tracker:   trackerService,
		Settings:  settingsService,
		Notifier:  notifyService,
		Scheduler: scheduler,
		Secrets:   box,
	}).Handler()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &apiEnv{
		server:    server,
		handler:   handler,
		client:    &http.Client{Jar: jar},
		fetcher:   fetcher,
		scheduler: scheduler,
		settings:  settingsService,
		auth:      authService,
		tracker:   trackerService,
		qry:       trackerdb.New(res.DB),
		box:       box,
	}
}

func setupApi(t *testing.T) *apiEnv {
	return setupApiEnv(t, envParams{file: settings.DefaultConfig()})
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := e.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, raw
}

func decodeAs[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

type errorBody struct {
	Error string `json:"error"`
}

// addTestProduct scripts a snapshot and adds the item through the API.
func (e *apiEnv) addTestProduct(t *testing.T, item string, snapshot costco.Snapshot) productDetail {
	t.Helper()
	e.fetcher.set(item, snapshot)
	res, raw := e.do(t, http.MethodPost, "/api/products", map[string]any{"url_or_item": item})
	require.Equal(t, http.StatusOK, res.StatusCode, "body: %s", raw)

	var body struct {
		Product productDetail `json:"product"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body.Product
}

func TestOpenAccessBeforePasswordSetup(t *testing.T) {
	env := setupApi(t)

	res, raw := env.do(t, http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, "[]", string(raw))
}

func TestLoginFlow(t *testing.T) {
	env := setupApi(t)
	ctx := context.Background()
	require.NoError(t, env.auth.SetPassword(ctx, "tracker password 1"))

	res, raw := env.do(t, http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "Authentication required", decodeAs[errorBody](t, raw).Error)

	res, raw = env.do(t, http.MethodPost, "/api/login", map[string]string{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "Invalid password", decodeAs[errorBody](t, raw).Error)

	res, _ = env.do(t, http.MethodPost, "/api/login", map[string]string{"password": "tracker password 1"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var session *http.Cookie
	for _, cookie := range res.Cookies() {
		if cookie.Name == sessionCookie {
			session = cookie
		}
	}
	require.NotNil(t, session, "login should set the session cookie")
	assert.True(t, session.HttpOnly)
	assert.NotEmpty(t, session.Value)

	res, _ = env.do(t, http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = env.do(t, http.MethodPost, "/api/logout", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = env.do(t, http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestIpAllowlist(t *testing.T) {
	file := settings.DefaultConfig()
	file.IpAllowlist = []string{"10.9.8.7"}
	env := setupApiEnv(t, envParams{file: file})

	cases := []struct {
		name   string
		remote string
		status int
	}{
		{name: "outside allowlist", remote: "203.0.113.9:50412", status: http.StatusForbidden},
		{name: "allowlisted", remote: "10.9.8.7:1000", status: http.StatusOK},
		{name: "loopback always admitted", remote: "127.0.0.1:999", status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
			req.RemoteAddr = tc.remote
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusForbidden {
				assert.Equal(t, "IP not allowed", decodeAs[errorBody](t, rec.Body.Bytes()).Error)
			}
		})
	}
}

func TestAddProduct(t *testing.T) {
	env := setupApi(t)
	env.fetcher.set("5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(1299.99),
		Stock:      costco.StockInStock,
	})

	res, raw := env.do(t, http.MethodPost, "/api/products", map[string]any{
		"url_or_item":  "5123456",
		"target_price": 1000,
	})
	require.Equal(t, http.StatusOK, res.StatusCode, "body: %s", raw)

	var body struct {
		Status      string        `json:"status"`
		Reactivated bool          `json:"reactivated"`
		Product     productDetail `json:"product"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.Reactivated)
	assert.Equal(t, "5123456", body.Product.ItemNumber)
	assert.Equal(t, "LG 65 Inch OLED evo TV", *body.Product.Name)
	assert.Equal(t, 1299.99, *body.Product.CurrentPrice)
	assert.Equal(t, 1299.99, *body.Product.LowestPrice)
	assert.Equal(t, 1000.0, *body.Product.TargetPrice)
	assert.Equal(t, "in_stock", body.Product.StockStatus)
	assert.False(t, body.Product.IsClearance)
	require.NotNil(t, body.Product.LastChecked)

	res, raw = env.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := decodeAs[[]productSummary](t, raw)
	require.Len(t, list, 1)
	assert.Equal(t, body.Product.Id, list[0].Id)
	assert.Equal(t, "5123456", list[0].ItemNumber)
}

func TestAddProductValidation(t *testing.T) {
	env := setupApi(t)

	res, raw := env.do(t, http.MethodPost, "/api/products", map[string]any{"url_or_item": "  "})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "url_or_item is required", decodeAs[errorBody](t, raw).Error)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/products", strings.NewReader("{broken"))
	require.NoError(t, err)
	res2, err := env.client.Do(req)
	require.NoError(t, err)
	res2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res2.StatusCode)

	assert.Zero(t, env.fetcher.callCount())
}

func TestAddProductFetchFailure(t *testing.T) {
	env := setupApi(t)
	env.fetcher.setErr("999", fmt.Errorf("request blocked (status 403)"))

	res, raw := env.do(t, http.MethodPost, "/api/products", map[string]any{"url_or_item": "999"})
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	assert.Contains(t, decodeAs[errorBody](t, raw).Error, "request blocked")
}

func TestReAddReactivates(t *testing.T) {
	env := setupApi(t)
	product := env.addTestProduct(t, "5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(1299.99),
		Stock:      costco.StockInStock,
	})
	fetches := env.fetcher.callCount()

	res, _ := env.do(t, http.MethodDelete, fmt.Sprintf("/api/products/%d", product.Id), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, raw := env.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decodeAs[[]productSummary](t, raw))

	res, raw = env.do(t, http.MethodPost, "/api/products", map[string]any{"url_or_item": "5123456"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body struct {
		Reactivated bool          `json:"reactivated"`
		Product     productDetail `json:"product"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.True(t, body.Reactivated)
	assert.Equal(t, 1299.99, *body.Product.CurrentPrice)
	// Reactivation must not hit the retailer again.
	assert.Equal(t, fetches, env.fetcher.callCount())
}

func TestGetProduct(t *testing.T) {
	env := setupApi(t)
	created := env.addTestProduct(t, "4250533", costco.Snapshot{
		ItemNumber:       "4250533",
		Name:             "Ninja Foodi Air Fryer",
		Price:            ptr(89.97),
		Stock:            costco.StockOutOfStock,
		CheckoutDiscount: ptr(10.0),
		DiscountText:     "Save £10 at checkout",
	})

	res, raw := env.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d", created.Id), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	detail := decodeAs[productDetail](t, raw)
	assert.Equal(t, "4250533", detail.ItemNumber)
	assert.True(t, detail.IsClearance, ".97 pence endings are clearance pricing")
	require.NotNil(t, detail.CheckoutDiscount)
	assert.Equal(t, 10.0, *detail.CheckoutDiscount)
	assert.Equal(t, "Save £10 at checkout", *detail.CheckoutDiscountText)
	require.NotNil(t, detail.EffectivePrice)
	assert.InDelta(t, 79.97, *detail.EffectivePrice, 1e-9)
	assert.Nil(t, detail.LastInStock)

	res, raw = env.do(t, http.MethodGet, "/api/products/9999", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Product not found", decodeAs[errorBody](t, raw).Error)

	res, _ = env.do(t, http.MethodGet, "/api/products/banana", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUpdateProduct(t *testing.T) {
	env := setupApi(t)
	created := env.addTestProduct(t, "5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(1299.99),
		Stock:      costco.StockInStock,
	})

	res, raw := env.do(t, http.MethodPatch, fmt.Sprintf("/api/products/%d", created.Id), map[string]any{
		"target_price":      1100,
		"notify_price_drop": false,
		"auto_add_quantity": 2,
	})
	require.Equal(t, http.StatusOK, res.StatusCode, "body: %s", raw)

	stored, err := env.qry.GetProduct(context.Background(), created.Id)
	require.NoError(t, err)
	assert.Equal(t, 1100.0, stored.TargetPrice.Float64)
	assert.False(t, stored.NotifyPriceDrop)
	assert.True(t, stored.NotifyBackInStock, "untouched fields keep their value")
	assert.Equal(t, int64(2), stored.AutoAddQuantity)

	res, raw = env.do(t, http.MethodPatch, "/api/products/9999", map[string]any{"target_price": 5})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Product not found", decodeAs[errorBody](t, raw).Error)
}

func TestRefreshProduct(t *testing.T) {
	env := setupApi(t)
	created := env.addTestProduct(t, "5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(100.0),
		Stock:      costco.StockInStock,
	})

	env.fetcher.set("5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(85.0),
		Stock:      costco.StockInStock,
	})

	res, raw := env.do(t, http.MethodPost, fmt.Sprintf("/api/products/%d/refresh", created.Id), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	detail := decodeAs[productDetail](t, raw)
	assert.Equal(t, 85.0, *detail.CurrentPrice)
	assert.Equal(t, 100.0, *detail.PreviousPrice)
	assert.Equal(t, 85.0, *detail.LowestPrice)

	res, _ = env.do(t, http.MethodPost, "/api/products/9999/refresh", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestProductHistory(t *testing.T) {
	env := setupApi(t)
	created := env.addTestProduct(t, "5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(1299.99),
		Stock:      costco.StockInStock,
	})

	// An old observation outside the default 90 day window.
	err := env.qry.CreatePriceHistory(context.Background(), trackerdb.CreatePriceHistoryParams{
		ProductID:  created.Id,
		Price:      1399.99,
		RecordedAt: time.Now().AddDate(0, 0, -120).Unix(),
	})
	require.NoError(t, err)

	res, raw := env.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d/history", created.Id), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	points := decodeAs[[]pricePoint](t, raw)
	require.Len(t, points, 1)
	assert.Equal(t, 1299.99, points[0].Price)

	res, raw = env.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d/history?days=365", created.Id), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	points = decodeAs[[]pricePoint](t, raw)
	require.Len(t, points, 2)
	// Oldest first.
	assert.Equal(t, 1399.99, points[0].Price)

	res, raw = env.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d/history?days=400", created.Id), nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "days must be between 1 and 365", decodeAs[errorBody](t, raw).Error)

	res, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d/history?days=0", created.Id), nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestExportCsv(t *testing.T) {
	env := setupApi(t)
	env.addTestProduct(t, "5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(1299.99),
		Stock:      costco.StockInStock,
	})
	unknown := env.addTestProduct(t, "7000001", costco.Snapshot{
		ItemNumber: "7000001",
		Stock:      costco.StockUnknown,
	})

	// Export covers inactive products too.
	res, _ := env.do(t, http.MethodDelete, fmt.Sprintf("/api/products/%d", unknown.Id), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, raw := env.do(t, http.MethodGet, "/api/export?format=csv", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/csv", res.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=costco_products.csv", res.Header.Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "item_number,name,current_price,lowest_price,highest_price,stock_status,target_price,last_checked", lines[0])
	assert.Contains(t, lines[1], "5123456,LG 65 Inch OLED evo TV,1299.99,1299.99,1299.99,in_stock,")
	assert.True(t, strings.HasPrefix(lines[2], "7000001,,,,,unknown,"), "line: %s", lines[2])

	res, raw = env.do(t, http.MethodGet, "/api/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "format must be json or csv", decodeAs[errorBody](t, raw).Error)
}

func TestExportJson(t *testing.T) {
	env := setupApi(t)
	env.addTestProduct(t, "5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(1299.99),
		Stock:      costco.StockInStock,
	})

	res, raw := env.do(t, http.MethodGet, "/api/export", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	exported := decodeAs[[]exportedProduct](t, raw)
	require.Len(t, exported, 1)
	assert.Equal(t, "5123456", exported[0].ItemNumber)
	assert.Equal(t, 1299.99, *exported[0].HighestPrice)
	assert.NotNil(t, exported[0].LastChecked)
	assert.Nil(t, exported[0].TargetPrice)
}

func TestFuzzySearch(t *testing.T) {
	env := setupApi(t)
	env.addTestProduct(t, "5111111", costco.Snapshot{
		ItemNumber: "5111111",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(1299.99),
		Stock:      costco.StockInStock,
	})
	env.addTestProduct(t, "5222222", costco.Snapshot{
		ItemNumber: "5222222",
		Name:       "Ninja Foodi Air Fryer",
		Price:      ptr(89.99),
		Stock:      costco.StockInStock,
	})

	res, raw := env.do(t, http.MethodGet, "/api/products?q=ninja", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list := decodeAs[[]productSummary](t, raw)
	require.Len(t, list, 1)
	assert.Equal(t, "5222222", list[0].ItemNumber)

	// A typo still ranks the right product.
	res, raw = env.do(t, http.MethodGet, "/api/products?q=nija+foodi", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list = decodeAs[[]productSummary](t, raw)
	require.NotEmpty(t, list)
	assert.Equal(t, "5222222", list[0].ItemNumber)

	// Item number substrings count as exact hits.
	res, raw = env.do(t, http.MethodGet, "/api/products?q=5111", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	list = decodeAs[[]productSummary](t, raw)
	require.Len(t, list, 1)
	assert.Equal(t, "5111111", list[0].ItemNumber)

	res, raw = env.do(t, http.MethodGet, "/api/products?q=zzzz", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decodeAs[[]productSummary](t, raw))
}

func TestKillSwitch(t *testing.T) {
	env := setupApi(t)
	ctx := context.Background()

	res, raw := env.do(t, http.MethodPost, "/api/kill-switch/on", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body struct {
		Status     string `json:"status"`
		KillSwitch bool   `json:"kill_switch"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.KillSwitch)

	config, err := env.settings.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, config.KillSwitch)

	res, raw = env.do(t, http.MethodPost, "/api/kill-switch/off", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.False(t, body.KillSwitch)

	config, err = env.settings.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, config.KillSwitch)
}

func TestSchedulerRunEndpoint(t *testing.T) {
	env := setupApi(t)

	res, raw := env.do(t, http.MethodPost, "/api/scheduler/run", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "Scheduler run triggered", body.Message)
	assert.Equal(t, 1, env.scheduler.runCount())

	env.scheduler.setErr(fmt.Errorf("cycle already in flight"))
	res, _ = env.do(t, http.MethodPost, "/api/scheduler/run", nil)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestSchedulerStatus(t *testing.T) {
	env := setupApi(t)
	ctx := context.Background()

	res, raw := env.do(t, http.MethodGet, "/api/scheduler/status", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body struct {
		Running            bool               `json:"running"`
		KillSwitch         bool               `json:"kill_switch"`
		SafeMode           bool               `json:"safe_mode"`
		LatestRun          *runView           `json:"latest_run"`
		ProductsWithErrors []errorProductView `json:"products_with_errors"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.False(t, body.Running)
	assert.True(t, body.SafeMode)
	assert.Nil(t, body.LatestRun)
	assert.Empty(t, body.ProductsWithErrors)

	env.scheduler.setRunning(true)
	runId, err := env.qry.CreateSchedulerRun(ctx, trackerdb.CreateSchedulerRunParams{
		RunStartedAt: time.Now().Unix(),
		Status:       trackerdb.RUN_STATUS_RUNNING,
	})
	require.NoError(t, err)
	require.NoError(t, env.qry.CompleteSchedulerRun(ctx, trackerdb.CompleteSchedulerRunParams{
		RunCompletedAt:  sql.NullInt64{Int64: time.Now().Unix(), Valid: true},
		ProductsChecked: 3,
		ProductsUpdated: 1,
		ErrorsCount:     1,
		Status:          trackerdb.RUN_STATUS_COMPLETED_WITH_ERRORS,
		ID:              runId,
	}))

	broken := env.addTestProduct(t, "8000001", costco.Snapshot{
		ItemNumber: "8000001",
		Name:       "Flaky Garden Set",
		Stock:      costco.StockUnknown,
	})
	require.NoError(t, env.qry.RecordProductError(ctx, trackerdb.RecordProductErrorParams{
		LastError:     sql.NullString{String: "request blocked (status 403)", Valid: true},
		LastErrorAt:   sql.NullInt64{Int64: time.Now().Unix(), Valid: true},
		LastCheckedAt: sql.NullInt64{Int64: time.Now().Unix(), Valid: true},
		UpdatedAt:     time.Now().Unix(),
		ID:            broken.Id,
	}))

	res, raw = env.do(t, http.MethodGet, "/api/scheduler/status", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.True(t, body.Running)
	require.NotNil(t, body.LatestRun)
	assert.Equal(t, trackerdb.RUN_STATUS_COMPLETED_WITH_ERRORS, body.LatestRun.Status)
	assert.Equal(t, int64(3), body.LatestRun.ProductsChecked)
	require.Len(t, body.ProductsWithErrors, 1)
	assert.Equal(t, "8000001", body.ProductsWithErrors[0].ItemNumber)
	assert.Equal(t, int64(1), body.ProductsWithErrors[0].ConsecutiveErrors)
	assert.Equal(t, "request blocked (status 403)", *body.ProductsWithErrors[0].LastError)
}

func TestSchedulerRuns(t *testing.T) {
	env := setupApi(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := range 3 {
		_, err := env.qry.CreateSchedulerRun(ctx, trackerdb.CreateSchedulerRunParams{
			RunStartedAt: base.Add(time.Duration(i) * time.Minute).Unix(),
			Status:       trackerdb.RUN_STATUS_COMPLETED,
		})
		require.NoError(t, err)
	}

	res, raw := env.do(t, http.MethodGet, "/api/scheduler/runs?limit=2", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	runs := decodeAs[[]runView](t, raw)
	require.Len(t, runs, 2)
	// Newest first.
	assert.Greater(t, runs[0].StartedAt, runs[1].StartedAt)
}

func TestSaveNotificationSettings(t *testing.T) {
	env := setupApi(t)
	ctx := context.Background()

	res, _ := env.do(t, http.MethodPost, "/api/settings/notifications", map[string]any{
		"smtp_enabled":       true,
		"smtp_host":          "smtp.example.com",
		"smtp_username":      "alerts@example.com",
		"smtp_password":      "app-password",
		"smtp_from_email":    "alerts@example.com",
		"telegram_enabled":   true,
		"telegram_bot_token": "123:abc",
		"telegram_chat_id":   "777",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	config, err := env.settings.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, config.SmtpEnabled)
	assert.Equal(t, "smtp.example.com", config.SmtpHost)
	assert.Equal(t, int64(587), config.SmtpPort, "omitted port falls back to the form default")
	assert.Equal(t, "app-password", config.SmtpPassword)
	assert.True(t, config.TelegramEnabled)
	assert.Equal(t, "123:abc", config.TelegramBotToken)
	assert.False(t, config.DiscordEnabled)
}

func TestSaveSchedulerSettings(t *testing.T) {
	env := setupApi(t)
	ctx := context.Background()

	res, _ := env.do(t, http.MethodPost, "/api/settings/scheduler", map[string]any{
		"default_poll_interval_minutes": 60,
		"safe_mode":                     false,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	config, err := env.settings.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), config.DefaultPollIntervalMinutes)
	assert.Equal(t, int64(15), config.MinPollIntervalMinutes)
	assert.Equal(t, int64(180), config.MaxPollIntervalMinutes)
	assert.False(t, config.SafeMode)
}

func TestSaveCheckoutSettings(t *testing.T) {
	env := setupApi(t)
	ctx := context.Background()

	res, _ := env.do(t, http.MethodPost, "/api/settings/checkout", map[string]any{
		"auto_add_to_basket_enabled": true,
		"costco_email":               "shopper@example.com",
		"costco_password":            "  warehouse pass  ",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	config, err := env.settings.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, config.AutoAddToBasketEnabled)
	assert.Equal(t, "shopper@example.com", config.CostcoEmail)
	require.NotEmpty(t, config.CostcoPasswordSealed)
	opened, err := env.box.Open(config.CostcoPasswordSealed)
	require.NoError(t, err)
	assert.Equal(t, "warehouse pass", opened)

	// Saving without a password keeps the sealed one.
	sealed := config.CostcoPasswordSealed
	res, _ = env.do(t, http.MethodPost, "/api/settings/checkout", map[string]any{
		"auto_add_to_basket_enabled": false,
		"costco_email":               "shopper@example.com",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	config, err = env.settings.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, config.AutoAddToBasketEnabled)
	assert.Equal(t, sealed, config.CostcoPasswordSealed)
}

func TestChangePassword(t *testing.T) {
	env := setupApi(t)
	ctx := context.Background()
	require.NoError(t, env.auth.SetPassword(ctx, "original password"))

	res, _ := env.do(t, http.MethodPost, "/api/login", map[string]string{"password": "original password"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, raw := env.do(t, http.MethodPost, "/api/change-password", map[string]string{
		"current_password": "wrong",
		"new_password":     "next password",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Current password is incorrect", decodeAs[errorBody](t, raw).Error)

	res, _ = env.do(t, http.MethodPost, "/api/change-password", map[string]string{
		"current_password": "original password",
		"new_password":     "next password",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	ok, err := env.auth.VerifyPassword(ctx, "next password")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTestNotification(t *testing.T) {
	var mu sync.Mutex
	var telegramPaths []string
	var telegramBodies []string
	telegram := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		telegramPaths = append(telegramPaths, r.URL.Path)
		telegramBodies = append(telegramBodies, string(body))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer telegram.Close()

	env := setupApiEnv(t, envParams{file: settings.DefaultConfig(), telegramUrl: telegram.URL})
	ctx := context.Background()
	require.NoError(t, env.settings.SetMany(ctx, map[string]string{
		"telegram_enabled":   "true",
		"telegram_bot_token": "123:abc",
		"telegram_chat_id":   "777",
	}))

	res, raw := env.do(t, http.MethodPost, "/api/test-notification/telegram", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, "body: %s", raw)
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Test telegram notification sent!", body.Message)

	mu.Lock()
	require.Len(t, telegramPaths, 1)
	assert.Equal(t, "/bot123:abc/sendMessage", telegramPaths[0])
	assert.Contains(t, telegramBodies[0], "Test Message from Costco Tracker")
	mu.Unlock()

	res, raw = env.do(t, http.MethodPost, "/api/test-notification/pushover", nil)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Pushover not configured", body.Error)

	res, raw = env.do(t, http.MethodPost, "/api/test-notification/fax", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Invalid channel", body.Error)
}

func TestRecentAlerts(t *testing.T) {
	env := setupApi(t)
	created := env.addTestProduct(t, "5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(100.0),
		Stock:      costco.StockInStock,
	})

	// A price drop through refresh produces alert rows.
	env.fetcher.set("5123456", costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(85.0),
		Stock:      costco.StockInStock,
	})
	res, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/products/%d/refresh", created.Id), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, raw := env.do(t, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	alerts := decodeAs[[]alertView](t, raw)
	require.NotEmpty(t, alerts)

	kinds := make([]string, len(alerts))
	for i, a := range alerts {
		kinds[i] = a.AlertType
		assert.Equal(t, created.Id, a.ProductId)
		assert.NotEmpty(t, a.Message)
	}
	assert.Contains(t, kinds, string(detect.AlertPriceDrop))
	assert.Contains(t, kinds, string(detect.AlertLowestEver))
}
