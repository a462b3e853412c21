// Package basket places tracked products into an authenticated
// retailer basket and keeps an audit trail of every attempt.
package basket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/scrapers/costco"
	"github.com/Ropaxyz/CostcoUKTracker/lib/secrets"
	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"
	"github.com/Ropaxyz/CostcoUKTracker/services/basket/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	trackerdb "github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("costcotracker.services.basket")

// Result reports the outcome of a basket attempt.
type Result struct {
	Success     bool
	Message     string
	CheckoutUrl string
}

// CheckoutValidation is a pre-checkout sanity check against a fresh
// product snapshot.
type CheckoutValidation struct {
	StockAvailable   bool
	PriceConfirmed   bool
	Price            *float64
	DeliveryPossible bool
	Message          string
}

// Fetcher produces a current product snapshot.
type Fetcher interface {
	Fetch(ctx context.Context, urlOrItem string) (costco.Snapshot, error)
}

type Options struct {
	Settings settings.Service
	Secrets  secrets.Box
	Fetcher  Fetcher
}

type Service struct {
	db       *sql.DB
	qry      *db.Queries
	products *trackerdb.Queries
	settings settings.Service
	fetcher  Fetcher
	sessions sessionCache
}

func NewService(database *sql.DB, options Options) Service {
	return Service{
		db:       database,
		qry:      db.New(database),
		products: trackerdb.New(database),
		settings: options.Settings,
		fetcher:  options.Fetcher,
		sessions: newSessionCache(options.Secrets),
	}
}

// AddToBasket adds a product to the signed-in account's basket. The
// global auto-add switch gates every caller, manual or scheduled.
func (s Service) AddToBasket(ctx context.Context, itemNumber string, quantity int64) Result {
	ctx, span := tracer.Start(ctx, "AddToBasket")
	defer span.End()

	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{Message: fmt.Sprintf("Error adding to cart: %v", err)}
	}
	if !config.AutoAddToBasketEnabled {
		return Result{Message: "Auto-add-to-basket is disabled"}
	}
	if quantity < 1 {
		quantity = 1
	}

	client, err := s.sessions.Get(ctx, config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "basket login failed", "error", err)
		return Result{Message: "Not authenticated - login required"}
	}

	res, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(map[string]interface{}{
			"product":  map[string]string{"code": itemNumber},
			"quantity": quantity,
		}).
		Post("/rest/v2/uk/users/current/carts/current/entries")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		message := fmt.Sprintf("Error adding to cart: %v", err)
		s.logAction(ctx, itemNumber, db.ACTION_FAILED, quantity, message)
		return Result{Message: message}
	}

	if res.StatusCode() == 200 || res.StatusCode() == 201 {
		slog.InfoContext(ctx, "added product to basket",
			"item_number", itemNumber, "quantity", quantity)
		message := fmt.Sprintf("Added %dx item to basket", quantity)
		s.logAction(ctx, itemNumber, db.ACTION_SUCCESS, quantity, message)
		return Result{
			Success:     true,
			Message:     message,
			CheckoutUrl: strings.TrimRight(config.BaseUrl, "/") + "/cart",
		}
	}

	message := cartErrorMessage(res)
	span.SetStatus(codes.Error, message)
	s.logAction(ctx, itemNumber, db.ACTION_FAILED, quantity, message)
	return Result{Message: message}
}

// cartErrorMessage prefers the retailer's own error text when the
// response body carries one.
func cartErrorMessage(res *resty.Response) string {
	var apiErr struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	err := json.Unmarshal(res.Body(), &apiErr)
	if err == nil && len(apiErr.Errors) > 0 && apiErr.Errors[0].Message != "" {
		return apiErr.Errors[0].Message
	}
	return fmt.Sprintf("Failed to add to cart: %d", res.StatusCode())
}

// VerifyCart reports whether the item currently appears in the
// signed-in account's cart.
func (s Service) VerifyCart(ctx context.Context, itemNumber string) bool {
	ctx, span := tracer.Start(ctx, "VerifyCart")
	defer span.End()

	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		return false
	}
	client, err := s.sessions.Get(ctx, config)
	if err != nil {
		span.RecordError(err)
		return false
	}
	res, err := client.R().SetContext(ctx).Get("/cart")
	if err != nil {
		span.RecordError(err)
		return false
	}
	return strings.Contains(res.String(), itemNumber)
}

// ValidateCheckout re-fetches the product and checks that a purchase
// could actually complete right now.
func (s Service) ValidateCheckout(ctx context.Context, urlOrItem string) CheckoutValidation {
	ctx, span := tracer.Start(ctx, "ValidateCheckout")
	defer span.End()

	snapshot, err := s.fetcher.Fetch(ctx, urlOrItem)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return CheckoutValidation{Message: fmt.Sprintf("Validation error: %v", err)}
	}

	validation := CheckoutValidation{
		StockAvailable:   snapshot.Stock == costco.StockInStock,
		PriceConfirmed:   snapshot.Price != nil,
		Price:            snapshot.Price,
		DeliveryPossible: !snapshot.WarehouseOnly,
	}
	if validation.StockAvailable && validation.PriceConfirmed && validation.DeliveryPossible {
		validation.Message = "Validation passed"
	} else {
		validation.Message = "Validation failed"
	}
	return validation
}

// Logout drops all cached sessions, forcing the next attempt to log
// in again.
func (s Service) Logout() {
	s.sessions.Purge()
}

func (s Service) Actions(ctx context.Context, productID int64, limit int64) ([]db.BasketAction, error) {
	return s.qry.ListBasketActions(ctx, db.ListBasketActionsParams{
		ProductID: productID,
		Limit:     limit,
	})
}

func (s Service) RecentActions(ctx context.Context, limit int64) ([]db.BasketAction, error) {
	return s.qry.ListRecentBasketActions(ctx, limit)
}

// logAction writes an audit row for an attempt. Unknown items are
// skipped, the audit table hangs off tracked products.
func (s Service) logAction(ctx context.Context, itemNumber string, action string, quantity int64, message string) {
	product, err := s.products.GetProductByItemNumber(ctx, itemNumber)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.ErrorContext(ctx, "failed to look up product for basket audit",
				"item_number", itemNumber, "error", err)
		}
		return
	}

	err = s.qry.CreateBasketAction(ctx, db.CreateBasketActionParams{
		ProductID:     product.ID,
		Action:        action,
		PriceAtAction: product.CurrentPrice,
		Quantity:      quantity,
		Message:       sql.NullString{String: message, Valid: message != ""},
		CreatedAt:     time.Now().Unix(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to record basket action",
			"item_number", itemNumber, "error", err)
	}
}
