package detect

import (
	"database/sql"
	"testing"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/scrapers/costco"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

var now = time.Unix(1700000000, 0)

// trackedProduct mirrors the column defaults of a freshly inserted row.
func trackedProduct() db.Product {
	return db.Product{
		ID:                   1,
		ItemNumber:           "5123456",
		Url:                  "https://www.costco.co.uk/p/5123456",
		StockStatus:          string(costco.StockUnknown),
		IsActive:             true,
		AutoAddQuantity:      1,
		NotifyBackInStock:    true,
		NotifyPriceDrop:      true,
		NotifyTargetPrice:    true,
		NotifyLowestEver:     true,
		NotificationChannels: "email,telegram,discord,pushover",
		CreatedAt:            now.Add(-time.Hour).Unix(),
		UpdatedAt:            now.Add(-time.Hour).Unix(),
	}
}

func TestTransportErrorOnlyCounts(t *testing.T) {
	product := trackedProduct()
	product.CurrentPrice = sql.NullFloat64{Float64: 100, Valid: true}
	product.StockStatus = string(costco.StockInStock)

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Stock:      costco.StockUnknown,
		Err:        "Request failed: connection refused",
		ErrKind:    costco.ErrorTransport,
	}, now)

	require.EqualValues(t, 1, result.Product.ConsecutiveErrors)
	require.Equal(t, "Request failed: connection refused", result.Product.LastError.String)
	require.Equal(t, now.Unix(), result.Product.LastErrorAt.Int64)
	require.Equal(t, now.Unix(), result.Product.LastCheckedAt.Int64)

	require.Empty(t, result.Intents)
	require.Nil(t, result.PriceDelta)
	require.Nil(t, result.StockDelta)
	require.False(t, result.Changed)

	// the failed fetch says nothing about the page
	require.Equal(t, string(costco.StockInStock), result.Product.StockStatus)
	require.Equal(t, 100.0, result.Product.CurrentPrice.Float64)
}

func TestPolicyErrorDoesNotCount(t *testing.T) {
	product := trackedProduct()
	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Stock:      costco.StockUnknown,
		Err:        "Kill switch is active - automation disabled",
		ErrKind:    costco.ErrorPolicy,
	}, now)

	require.EqualValues(t, 0, result.Product.ConsecutiveErrors)
	require.Equal(t, "Kill switch is active - automation disabled", result.Product.LastError.String)
	require.Empty(t, result.Intents)
}

func TestSuccessResetsErrorCounter(t *testing.T) {
	product := trackedProduct()
	product.ConsecutiveErrors = 7
	product.LastError = sql.NullString{String: "Request failed: timeout", Valid: true}

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Price:      ptr(100.0),
		Stock:      costco.StockInStock,
	}, now)

	require.EqualValues(t, 0, result.Product.ConsecutiveErrors)
	require.False(t, result.Product.LastError.Valid)
}

func TestRemovedPageIsAnObservation(t *testing.T) {
	product := trackedProduct()
	product.StockStatus = string(costco.StockInStock)
	product.ConsecutiveErrors = 3

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Stock:      costco.StockRemoved,
		Err:        "Product page not found (404)",
		ErrKind:    costco.ErrorNotFound,
	}, now)

	require.EqualValues(t, 0, result.Product.ConsecutiveErrors)
	require.Equal(t, string(costco.StockRemoved), result.Product.StockStatus)
	require.NotNil(t, result.StockDelta)
	require.Equal(t, costco.StockInStock, result.StockDelta.PreviousStatus)
	require.Equal(t, costco.StockRemoved, result.StockDelta.Status)
	require.True(t, result.Changed)
	require.Empty(t, result.Intents)
	// keep the explanation visible without treating it as a failure
	require.Equal(t, "Product page not found (404)", result.Product.LastError.String)
}

func TestFirstObservationSeedsBaseline(t *testing.T) {
	product := trackedProduct()
	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(100.0),
		Stock:      costco.StockInStock,
	}, now)

	require.False(t, result.Product.PreviousPrice.Valid)
	require.Equal(t, 100.0, result.Product.CurrentPrice.Float64)
	require.Equal(t, 100.0, result.Product.LowestPrice.Float64)
	require.Equal(t, 100.0, result.Product.HighestPrice.Float64)
	require.Empty(t, result.Intents)

	require.NotNil(t, result.PriceDelta)
	require.Equal(t, 100.0, result.PriceDelta.Price)
	require.Nil(t, result.PriceDelta.PreviousPrice)

	// unknown -> in_stock is a recorded transition but not a comeback
	require.NotNil(t, result.StockDelta)
	require.False(t, result.Product.LastInStockAt.Valid)
	require.False(t, result.TriggerBasket)
}

func TestPriceDropCascade(t *testing.T) {
	product := trackedProduct()
	product.StockStatus = string(costco.StockInStock)
	product.CurrentPrice = sql.NullFloat64{Float64: 100, Valid: true}
	product.LowestPrice = sql.NullFloat64{Float64: 100, Valid: true}
	product.HighestPrice = sql.NullFloat64{Float64: 120, Valid: true}
	product.TargetPrice = sql.NullFloat64{Float64: 90, Valid: true}

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Price:      ptr(85.0),
		Stock:      costco.StockInStock,
	}, now)

	require.Equal(t, []Intent{
		{Kind: AlertLowestEver, OldValue: "100.00", NewValue: "85.00"},
		{Kind: AlertPriceDrop, OldValue: "100.00", NewValue: "85.00"},
		{Kind: AlertTargetPrice, NewValue: "85.00"},
	}, result.Intents)

	require.Equal(t, 100.0, result.Product.PreviousPrice.Float64)
	require.Equal(t, 85.0, result.Product.CurrentPrice.Float64)
	require.Equal(t, 85.0, result.Product.LowestPrice.Float64)
	require.Equal(t, 120.0, result.Product.HighestPrice.Float64)
	require.Equal(t, now.Unix(), result.Product.LastPriceChangeAt.Int64)

	require.NotNil(t, result.PriceDelta)
	require.Equal(t, 85.0, result.PriceDelta.Price)
	require.Equal(t, 100.0, *result.PriceDelta.PreviousPrice)
	require.True(t, result.Changed)
}

func TestBackInStockBeforePriceIntents(t *testing.T) {
	product := trackedProduct()
	product.StockStatus = string(costco.StockOutOfStock)
	product.CurrentPrice = sql.NullFloat64{Float64: 100, Valid: true}
	product.LowestPrice = sql.NullFloat64{Float64: 100, Valid: true}

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Price:      ptr(95.0),
		Stock:      costco.StockInStock,
	}, now)

	require.Len(t, result.Intents, 3)
	require.Equal(t, AlertBackInStock, result.Intents[0].Kind)
	require.Equal(t, "out_of_stock", result.Intents[0].OldValue)
	require.Equal(t, "in_stock", result.Intents[0].NewValue)
	require.Equal(t, AlertLowestEver, result.Intents[1].Kind)
	require.Equal(t, AlertPriceDrop, result.Intents[2].Kind)

	require.Equal(t, now.Unix(), result.Product.LastInStockAt.Int64)
}

func TestBasketTriggerIgnoresNotifyFlags(t *testing.T) {
	product := trackedProduct()
	product.StockStatus = string(costco.StockOutOfStock)
	product.NotifyBackInStock = false
	product.AutoAddToBasket = true

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Stock:      costco.StockInStock,
	}, now)

	require.Empty(t, result.Intents)
	require.True(t, result.TriggerBasket)
}

func TestIdempotence(t *testing.T) {
	product := trackedProduct()
	snapshot := costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "LG 65 Inch OLED evo TV",
		Price:      ptr(1299.99),
		Stock:      costco.StockInStock,
		ImageUrl:   "https://cdn.costco.co.uk/images/5123456.jpg",
	}

	first := Evaluate(product, snapshot, now)
	second := Evaluate(first.Product, snapshot, now.Add(time.Minute))

	require.Empty(t, second.Intents)
	require.Nil(t, second.PriceDelta)
	require.Nil(t, second.StockDelta)
	require.False(t, second.Changed)
	require.False(t, second.TriggerBasket)

	// only the bookkeeping stamps move
	expect := first.Product
	expect.LastCheckedAt = sql.NullInt64{Int64: now.Add(time.Minute).Unix(), Valid: true}
	expect.UpdatedAt = now.Add(time.Minute).Unix()
	if diff := cmp.Diff(expect, second.Product); diff != "" {
		t.Fatalf("product drifted between identical snapshots:\n%s", diff)
	}
}

func TestNoiseFloorSwallowsSubPennyMoves(t *testing.T) {
	product := trackedProduct()
	product.CurrentPrice = sql.NullFloat64{Float64: 100, Valid: true}
	product.StockStatus = string(costco.StockInStock)

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Price:      ptr(100.005),
		Stock:      costco.StockInStock,
	}, now)

	require.Nil(t, result.PriceDelta)
	require.Empty(t, result.Intents)
	require.False(t, result.Changed)
	require.Equal(t, 100.0, result.Product.CurrentPrice.Float64)
	require.Equal(t, now.Unix(), result.Product.LastCheckedAt.Int64)
}

func TestPriceRiseRaisesCeilingSilently(t *testing.T) {
	product := trackedProduct()
	product.StockStatus = string(costco.StockInStock)
	product.CurrentPrice = sql.NullFloat64{Float64: 100, Valid: true}
	product.LowestPrice = sql.NullFloat64{Float64: 100, Valid: true}
	product.HighestPrice = sql.NullFloat64{Float64: 100, Valid: true}

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Price:      ptr(120.0),
		Stock:      costco.StockInStock,
	}, now)

	require.Empty(t, result.Intents)
	require.Equal(t, 120.0, result.Product.HighestPrice.Float64)
	require.Equal(t, 100.0, result.Product.LowestPrice.Float64)
	require.Equal(t, 100.0, result.Product.PreviousPrice.Float64)
	require.Equal(t, 120.0, result.Product.CurrentPrice.Float64)
	require.True(t, result.Changed)
}

func TestFirstLowestNeverAlerts(t *testing.T) {
	product := trackedProduct()
	product.StockStatus = string(costco.StockInStock)

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Price:      ptr(49.97),
		Stock:      costco.StockInStock,
	}, now)

	require.Empty(t, result.Intents)
	require.Equal(t, 49.97, result.Product.LowestPrice.Float64)
}

func TestNameOnlyAdoptedWhenMissing(t *testing.T) {
	product := trackedProduct()
	product.Name = sql.NullString{String: "Name set by hand", Valid: true}

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "Scraped Name",
		Stock:      costco.StockInStock,
	}, now)
	require.Equal(t, "Name set by hand", result.Product.Name.String)

	product.Name = sql.NullString{}
	result = Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Name:       "Scraped Name",
		Stock:      costco.StockInStock,
	}, now)
	require.Equal(t, "Scraped Name", result.Product.Name.String)
}

func TestImageAlwaysAdopted(t *testing.T) {
	product := trackedProduct()
	product.ImageUrl = sql.NullString{String: "https://cdn.costco.co.uk/old.jpg", Valid: true}

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Stock:      costco.StockInStock,
		ImageUrl:   "https://cdn.costco.co.uk/new.jpg",
	}, now)
	require.Equal(t, "https://cdn.costco.co.uk/new.jpg", result.Product.ImageUrl.String)

	// absent image keeps the stored one
	result = Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Stock:      costco.StockInStock,
	}, now)
	require.Equal(t, "https://cdn.costco.co.uk/old.jpg", result.Product.ImageUrl.String)
}

func TestDiscountAlwaysOverwritten(t *testing.T) {
	product := trackedProduct()
	product.CheckoutDiscount = sql.NullFloat64{Float64: 300, Valid: true}
	product.CheckoutDiscountText = sql.NullString{String: "Save £300 at checkout", Valid: true}

	result := Evaluate(product, costco.Snapshot{
		ItemNumber: "5123456",
		Stock:      costco.StockInStock,
	}, now)
	require.False(t, result.Product.CheckoutDiscount.Valid)
	require.False(t, result.Product.CheckoutDiscountText.Valid)

	result = Evaluate(product, costco.Snapshot{
		ItemNumber:       "5123456",
		Stock:            costco.StockInStock,
		CheckoutDiscount: ptr(150.0),
		DiscountText:     "Save £150 at checkout",
	}, now)
	require.Equal(t, 150.0, result.Product.CheckoutDiscount.Float64)
	require.Equal(t, "Save £150 at checkout", result.Product.CheckoutDiscountText.String)
}

func TestIsClearancePrice(t *testing.T) {
	require.True(t, IsClearancePrice(1299.97))
	require.True(t, IsClearancePrice(500.00))
	require.True(t, IsClearancePrice(79.88))
	require.True(t, IsClearancePrice(12.49))
	require.False(t, IsClearancePrice(49.95))
	require.False(t, IsClearancePrice(1299.99))
}

func TestPriceChangePercent(t *testing.T) {
	require.InDelta(t, -15.0, PriceChangePercent(100, 85), 1e-9)
	require.InDelta(t, 20.0, PriceChangePercent(100, 120), 1e-9)
	require.Zero(t, PriceChangePercent(0, 85))
}
