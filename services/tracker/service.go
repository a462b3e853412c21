// Package tracker owns the tracked product table and decides what each
// fresh snapshot means for it: persisting deltas, dispatching alerts
// and driving the auto basket.
package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/scrapers/costco"
	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"
	"github.com/Ropaxyz/CostcoUKTracker/services/basket"
	"github.com/Ropaxyz/CostcoUKTracker/services/notify"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/detect"

	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("costcotracker.services.tracker")

var productUrlPattern = regexp.MustCompile(`/p/(\d+)`)

// Fetcher produces a current snapshot for a product url or item number.
type Fetcher interface {
	Fetch(ctx context.Context, urlOrItem string) (costco.Snapshot, error)
}

// Notifier fans an alert out to the configured channels.
type Notifier interface {
	Send(ctx context.Context, product db.Product, kind detect.AlertKind, oldValue, newValue string) ([]notify.Result, error)
}

// BasketAdder places an item into the signed-in retailer basket.
type BasketAdder interface {
	AddToBasket(ctx context.Context, itemNumber string, quantity int64) basket.Result
}

type Options struct {
	Fetcher  Fetcher
	Settings settings.Service
	Notifier Notifier
	Basket   BasketAdder
}

type Service struct {
	db       *sql.DB
	qry      *db.Queries
	fetcher  Fetcher
	settings settings.Service
	notifier Notifier
	basket   BasketAdder
}

func NewService(database *sql.DB, options Options) Service {
	return Service{
		db:       database,
		qry:      db.New(database),
		fetcher:  options.Fetcher,
		settings: options.Settings,
		notifier: options.Notifier,
		basket:   options.Basket,
	}
}

// Outcome summarizes one processing pass for run accounting.
type Outcome struct {
	// Changed reports whether stock or price actually moved.
	Changed bool
	// ErrorSeen reports a site-reported error snapshot. Transport
	// failures surface as Go errors instead.
	ErrorSeen bool
}

// ProcessProduct fetches one product and applies whatever the snapshot
// implies: state update, history rows, alerts and the auto basket.
func (s Service) ProcessProduct(ctx context.Context, product db.Product) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "ProcessProduct")
	defer span.End()

	snapshot, err := s.fetcher.Fetch(ctx, product.ItemNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		now := time.Now()
		recErr := s.qry.RecordProductError(ctx, db.RecordProductErrorParams{
			LastError:     sql.NullString{String: err.Error(), Valid: true},
			LastErrorAt:   sql.NullInt64{Int64: now.Unix(), Valid: true},
			LastCheckedAt: sql.NullInt64{Int64: now.Unix(), Valid: true},
			UpdatedAt:     now.Unix(),
			ID:            product.ID,
		})
		if recErr != nil {
			slog.ErrorContext(ctx, "failed to record product error",
				"item_number", product.ItemNumber, "error", recErr)
		}
		return Outcome{}, err
	}

	result := detect.Evaluate(product, snapshot, time.Now())

	err = s.persist(ctx, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist evaluation")
		return Outcome{}, err
	}

	for _, intent := range result.Intents {
		s.sendAlert(ctx, result.Product, intent.Kind, intent.OldValue, intent.NewValue)
	}
	if result.TriggerBasket {
		s.handleAutoBasket(ctx, result.Product)
	}

	return Outcome{Changed: result.Changed, ErrorSeen: snapshot.IsError()}, nil
}

// persist applies the product update and history deltas in one
// transaction so a crash cannot leave history ahead of state.
func (s Service) persist(ctx context.Context, result detect.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	p := result.Product
	err = txqry.UpdateProductObservation(ctx, db.UpdateProductObservationParams{
		Name:                 p.Name,
		ImageUrl:             p.ImageUrl,
		CurrentPrice:         p.CurrentPrice,
		PreviousPrice:        p.PreviousPrice,
		LowestPrice:          p.LowestPrice,
		HighestPrice:         p.HighestPrice,
		StockStatus:          p.StockStatus,
		CheckoutDiscount:     p.CheckoutDiscount,
		CheckoutDiscountText: p.CheckoutDiscountText,
		LastCheckedAt:        p.LastCheckedAt,
		LastInStockAt:        p.LastInStockAt,
		LastPriceChangeAt:    p.LastPriceChangeAt,
		ConsecutiveErrors:    p.ConsecutiveErrors,
		LastError:            p.LastError,
		LastErrorAt:          p.LastErrorAt,
		UpdatedAt:            p.UpdatedAt,
		ID:                   p.ID,
	})
	if err != nil {
		return err
	}

	if result.StockDelta != nil {
		err = txqry.CreateStockHistory(ctx, db.CreateStockHistoryParams{
			ProductID: p.ID,
			Status:    string(result.StockDelta.Status),
			PreviousStatus: sql.NullString{
				String: string(result.StockDelta.PreviousStatus),
				Valid:  result.StockDelta.PreviousStatus != "",
			},
			RecordedAt: p.UpdatedAt,
		})
		if err != nil {
			return err
		}
	}

	if result.PriceDelta != nil {
		var previous sql.NullFloat64
		if result.PriceDelta.PreviousPrice != nil {
			previous = sql.NullFloat64{Float64: *result.PriceDelta.PreviousPrice, Valid: true}
		}
		err = txqry.CreatePriceHistory(ctx, db.CreatePriceHistoryParams{
			ProductID:     p.ID,
			Price:         result.PriceDelta.Price,
			PreviousPrice: previous,
			RecordedAt:    p.UpdatedAt,
		})
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func alertMessage(kind detect.AlertKind, oldValue, newValue string) string {
	if oldValue == "" {
		return fmt.Sprintf("%s: %s", kind, newValue)
	}
	return fmt.Sprintf("%s: %s -> %s", kind, oldValue, newValue)
}

// sendAlert fans the alert out and records which channels took it. A
// dispatch failure is logged, never escalated, one broken webhook must
// not stall the poll cycle.
func (s Service) sendAlert(ctx context.Context, product db.Product, kind detect.AlertKind, oldValue, newValue string) {
	ctx, span := tracer.Start(ctx, "sendAlert")
	defer span.End()

	results, err := s.notifier.Send(ctx, product, kind, oldValue, newValue)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "failed to send alert",
			"item_number", product.ItemNumber, "kind", kind, "error", err)
		return
	}

	var sent []string
	for _, result := range results {
		if result.Success {
			sent = append(sent, result.Channel)
		} else {
			slog.WarnContext(ctx, "notification channel failed",
				"item_number", product.ItemNumber, "channel", result.Channel, "error", result.Error)
		}
	}

	err = s.qry.CreateAlert(ctx, db.CreateAlertParams{
		ProductID:    product.ID,
		AlertType:    string(kind),
		Message:      alertMessage(kind, oldValue, newValue),
		OldValue:     sql.NullString{String: oldValue, Valid: oldValue != ""},
		NewValue:     sql.NullString{String: newValue, Valid: newValue != ""},
		SentAt:       time.Now().Unix(),
		ChannelsSent: sql.NullString{String: strings.Join(sent, ","), Valid: true},
	})
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to record alert",
			"item_number", product.ItemNumber, "kind", kind, "error", err)
	}
}

// handleAutoBasket runs the basket attempt behind the max price gate.
// The ADDED_TO_BASKET alert fires only when the retailer reported
// success, a failed attempt leaves just the audit row.
func (s Service) handleAutoBasket(ctx context.Context, product db.Product) {
	ctx, span := tracer.Start(ctx, "handleAutoBasket")
	defer span.End()

	if product.AutoAddMaxPrice.Valid && product.AutoAddMaxPrice.Float64 > 0 &&
		product.CurrentPrice.Valid && product.CurrentPrice.Float64 > product.AutoAddMaxPrice.Float64 {
		slog.InfoContext(ctx, "skipping auto add, price above limit",
			"item_number", product.ItemNumber,
			"price", product.CurrentPrice.Float64,
			"max_price", product.AutoAddMaxPrice.Float64)
		return
	}

	quantity := product.AutoAddQuantity
	if quantity < 1 {
		quantity = 1
	}

	result := s.basket.AddToBasket(ctx, product.ItemNumber, quantity)
	if !result.Success {
		slog.WarnContext(ctx, "auto add to basket failed",
			"item_number", product.ItemNumber, "message", result.Message)
		return
	}

	s.sendAlert(ctx, product, detect.AlertAddedToBasket, "", fmt.Sprintf("Qty: %d", quantity))
}

// AddResult reports what AddProduct did.
type AddResult struct {
	Product db.Product
	// Reactivated is set when the item was already known and only
	// flipped back to active, history intact.
	Reactivated bool
}

// parseProductInput accepts either a product page url or a bare item
// number.
func parseProductInput(urlOrItem, baseUrl string) (itemNumber, url string) {
	trimmed := strings.TrimSpace(urlOrItem)
	if strings.HasPrefix(trimmed, "http") {
		match := productUrlPattern.FindStringSubmatch(trimmed)
		if match != nil {
			return match[1], trimmed
		}
		return trimmed, trimmed
	}
	return trimmed, strings.TrimRight(baseUrl, "/") + "/p/" + trimmed
}

// AddProduct starts tracking an item. Re-adding a known item just
// reactivates it. New items get one immediate fetch to seed the price
// baseline and initial history.
func (s Service) AddProduct(ctx context.Context, urlOrItem string, targetPrice *float64) (AddResult, error) {
	ctx, span := tracer.Start(ctx, "AddProduct")
	defer span.End()

	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AddResult{}, err
	}
	itemNumber, url := parseProductInput(urlOrItem, config.BaseUrl)
	if itemNumber == "" {
		return AddResult{}, fmt.Errorf("empty item number")
	}

	existing, err := s.qry.GetProductByItemNumber(ctx, itemNumber)
	if err == nil {
		err = s.qry.SetProductActive(ctx, db.SetProductActiveParams{
			IsActive:  true,
			UpdatedAt: time.Now().Unix(),
			ID:        existing.ID,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return AddResult{}, err
		}
		product, err := s.qry.GetProduct(ctx, existing.ID)
		if err != nil {
			return AddResult{}, err
		}
		return AddResult{Product: product, Reactivated: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AddResult{}, err
	}

	snapshot, err := s.fetcher.Fetch(ctx, itemNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initial fetch failed")
		return AddResult{}, err
	}

	now := time.Now()
	params := db.CreateProductParams{
		ItemNumber:        itemNumber,
		Url:               url,
		StockStatus:       string(snapshot.Stock),
		NotifyBackInStock: true,
		NotifyPriceDrop:   true,
		AutoAddQuantity:   1,
		CreatedAt:         now.Unix(),
		UpdatedAt:         now.Unix(),
		LastCheckedAt:     sql.NullInt64{Int64: now.Unix(), Valid: true},
	}
	if snapshot.Name != "" {
		params.Name = sql.NullString{String: snapshot.Name, Valid: true}
	}
	if snapshot.ImageUrl != "" {
		params.ImageUrl = sql.NullString{String: snapshot.ImageUrl, Valid: true}
	}
	if snapshot.Price != nil {
		price := sql.NullFloat64{Float64: *snapshot.Price, Valid: true}
		params.CurrentPrice = price
		params.LowestPrice = price
		params.HighestPrice = price
	}
	if snapshot.CheckoutDiscount != nil {
		params.CheckoutDiscount = sql.NullFloat64{Float64: *snapshot.CheckoutDiscount, Valid: true}
	}
	if snapshot.DiscountText != "" {
		params.CheckoutDiscountText = sql.NullString{String: snapshot.DiscountText, Valid: true}
	}
	if targetPrice != nil && *targetPrice > 0 {
		params.TargetPrice = sql.NullFloat64{Float64: *targetPrice, Valid: true}
	}
	if snapshot.Stock == costco.StockInStock {
		params.LastInStockAt = sql.NullInt64{Int64: now.Unix(), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AddResult{}, err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	id, err := txqry.CreateProduct(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create product")
		return AddResult{}, err
	}

	if snapshot.Price != nil {
		err = txqry.CreatePriceHistory(ctx, db.CreatePriceHistoryParams{
			ProductID:  id,
			Price:      *snapshot.Price,
			RecordedAt: now.Unix(),
		})
		if err != nil {
			return AddResult{}, err
		}
	}
	err = txqry.CreateStockHistory(ctx, db.CreateStockHistoryParams{
		ProductID:  id,
		Status:     string(snapshot.Stock),
		RecordedAt: now.Unix(),
	})
	if err != nil {
		return AddResult{}, err
	}

	err = tx.Commit()
	if err != nil {
		return AddResult{}, err
	}

	slog.InfoContext(ctx, "tracking new product", "item_number", itemNumber)
	product, err := s.qry.GetProduct(ctx, id)
	if err != nil {
		return AddResult{}, err
	}
	return AddResult{Product: product}, nil
}

// RefreshProduct polls one product immediately and returns its state
// after the poll. Fetch trouble is recorded on the product rather than
// failing the refresh.
func (s Service) RefreshProduct(ctx context.Context, id int64) (db.Product, error) {
	ctx, span := tracer.Start(ctx, "RefreshProduct")
	defer span.End()

	product, err := s.qry.GetProduct(ctx, id)
	if err != nil {
		return db.Product{}, err
	}

	_, err = s.ProcessProduct(ctx, product)
	if err != nil {
		slog.WarnContext(ctx, "refresh poll failed",
			"item_number", product.ItemNumber, "error", err)
	}
	return s.qry.GetProduct(ctx, id)
}

// RemoveProduct deactivates tracking, keeping the row and history.
func (s Service) RemoveProduct(ctx context.Context, id int64) error {
	return s.qry.SetProductActive(ctx, db.SetProductActiveParams{
		IsActive:  false,
		UpdatedAt: time.Now().Unix(),
		ID:        id,
	})
}

// SettingsUpdate carries a partial per-product settings change. Nil
// fields are left unchanged. Zero or negative target price, interval
// and max price clear the value.
type SettingsUpdate struct {
	TargetPrice          *float64
	PollIntervalMinutes  *int64
	NotifyBackInStock    *bool
	NotifyPriceDrop      *bool
	NotifyTargetPrice    *bool
	NotifyLowestEver     *bool
	AutoAddToBasket      *bool
	AutoAddQuantity      *int64
	AutoAddMaxPrice      *float64
	NotificationChannels *string
	IsActive             *bool
}

func (s Service) UpdateSettings(ctx context.Context, id int64, update SettingsUpdate) (db.Product, error) {
	ctx, span := tracer.Start(ctx, "UpdateSettings")
	defer span.End()

	product, err := s.qry.GetProduct(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return db.Product{}, err
	}

	params := db.UpdateProductSettingsParams{
		TargetPrice:          product.TargetPrice,
		PollIntervalMinutes:  product.PollIntervalMinutes,
		NotifyBackInStock:    product.NotifyBackInStock,
		NotifyPriceDrop:      product.NotifyPriceDrop,
		NotifyTargetPrice:    product.NotifyTargetPrice,
		NotifyLowestEver:     product.NotifyLowestEver,
		AutoAddToBasket:      product.AutoAddToBasket,
		AutoAddQuantity:      product.AutoAddQuantity,
		AutoAddMaxPrice:      product.AutoAddMaxPrice,
		NotificationChannels: product.NotificationChannels,
		IsActive:             product.IsActive,
		UpdatedAt:            time.Now().Unix(),
		ID:                   id,
	}
	if update.TargetPrice != nil {
		params.TargetPrice = sql.NullFloat64{Float64: *update.TargetPrice, Valid: *update.TargetPrice > 0}
	}
	if update.PollIntervalMinutes != nil {
		params.PollIntervalMinutes = sql.NullInt64{Int64: *update.PollIntervalMinutes, Valid: *update.PollIntervalMinutes > 0}
	}
	if update.NotifyBackInStock != nil {
		params.NotifyBackInStock = *update.NotifyBackInStock
	}
	if update.NotifyPriceDrop != nil {
		params.NotifyPriceDrop = *update.NotifyPriceDrop
	}
	if update.NotifyTargetPrice != nil {
		params.NotifyTargetPrice = *update.NotifyTargetPrice
	}
	if update.NotifyLowestEver != nil {
		params.NotifyLowestEver = *update.NotifyLowestEver
	}
	if update.AutoAddToBasket != nil {
		params.AutoAddToBasket = *update.AutoAddToBasket
	}
	if update.AutoAddQuantity != nil && *update.AutoAddQuantity > 0 {
		params.AutoAddQuantity = *update.AutoAddQuantity
	}
	if update.AutoAddMaxPrice != nil {
		params.AutoAddMaxPrice = sql.NullFloat64{Float64: *update.AutoAddMaxPrice, Valid: *update.AutoAddMaxPrice > 0}
	}
	if update.NotificationChannels != nil {
		params.NotificationChannels = *update.NotificationChannels
	}
	if update.IsActive != nil {
		params.IsActive = *update.IsActive
	}

	err = s.qry.UpdateProductSettings(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return db.Product{}, err
	}
	return s.qry.GetProduct(ctx, id)
}

func (s Service) GetProduct(ctx context.Context, id int64) (db.Product, error) {
	return s.qry.GetProduct(ctx, id)
}

func (s Service) GetProductByItemNumber(ctx context.Context, itemNumber string) (db.Product, error) {
	return s.qry.GetProductByItemNumber(ctx, itemNumber)
}

func (s Service) ListActiveProducts(ctx context.Context) ([]db.Product, error) {
	return s.qry.ListActiveProducts(ctx)
}

func (s Service) ListProducts(ctx context.Context) ([]db.Product, error) {
	return s.qry.ListProducts(ctx)
}

func (s Service) ListProductsWithErrors(ctx context.Context) ([]db.Product, error) {
	return s.qry.ListProductsWithErrors(ctx)
}

func (s Service) CountActiveProducts(ctx context.Context) (int64, error) {
	return s.qry.CountActiveProducts(ctx)
}

// PriceHistory returns rows from the last given number of days, oldest
// first.
func (s Service) PriceHistory(ctx context.Context, productID int64, days int) ([]db.PriceHistory, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	return s.qry.GetPriceHistory(ctx, db.GetPriceHistoryParams{
		ProductID:  productID,
		RecordedAt: cutoff,
	})
}

func (s Service) StockHistory(ctx context.Context, productID int64, limit int64) ([]db.StockHistory, error) {
	return s.qry.GetStockHistory(ctx, db.GetStockHistoryParams{
		ProductID: productID,
		Limit:     limit,
	})
}

func (s Service) RecentAlerts(ctx context.Context, limit int64) ([]db.Alert, error) {
	return s.qry.GetRecentAlerts(ctx, limit)
}

func (s Service) LatestRun(ctx context.Context) (db.SchedulerRun, error) {
	return s.qry.GetLatestSchedulerRun(ctx)
}

func (s Service) ListRuns(ctx context.Context, limit int64) ([]db.SchedulerRun, error) {
	return s.qry.ListSchedulerRuns(ctx, limit)
}

// CleanupHistory trims price and stock history past the retention
// window and old run records.
func (s Service) CleanupHistory(ctx context.Context, historyRetention, runRetention time.Duration) error {
	ctx, span := tracer.Start(ctx, "CleanupHistory")
	defer span.End()

	historyCutoff := time.Now().Add(-historyRetention).Unix()
	err := s.qry.DeletePriceHistoryBefore(ctx, historyCutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = s.qry.DeleteStockHistoryBefore(ctx, historyCutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	err = s.qry.DeleteSchedulerRunsBefore(ctx, time.Now().Add(-runRetention).Unix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	slog.InfoContext(ctx, "history cleanup completed")
	return nil
}
