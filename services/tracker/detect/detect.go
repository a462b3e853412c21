package detect

import (
	"database/sql"
	"math"
	"strconv"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/scrapers/costco"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"
)

type AlertKind string

const (
	AlertBackInStock AlertKind = "back_in_stock"
	AlertPriceDrop   AlertKind = "price_drop"
	AlertTargetPrice AlertKind = "target_price"
	AlertLowestEver  AlertKind = "lowest_ever"
	// AlertStockFlapping is recorded for future use, nothing emits it
	// yet.
	AlertStockFlapping AlertKind = "stock_flapping"
	AlertAddedToBasket AlertKind = "added_to_basket"
)

// Intent is an alert the caller should dispatch. OldValue and NewValue
// are display strings for the alert record, prices are formatted to two
// decimal places, stock values use the raw classification. Empty when
// absent.
type Intent struct {
	Kind     AlertKind
	OldValue string
	NewValue string
}

// PriceDelta is a price history row to append.
type PriceDelta struct {
	Price         float64
	PreviousPrice *float64
}

// StockDelta is a stock history row to append.
type StockDelta struct {
	Status         costco.StockStatus
	PreviousStatus costco.StockStatus
}

// Result describes everything a snapshot implies for one product. The
// caller persists Product and the deltas in one transaction, then
// dispatches the intents in order.
type Result struct {
	Product    db.Product
	PriceDelta *PriceDelta
	StockDelta *StockDelta
	Intents    []Intent
	// TriggerBasket is set on an out of stock to in stock transition
	// when the product has auto add enabled. It is independent of the
	// notification flags.
	TriggerBasket bool
	// Changed reports whether stock or price actually moved.
	Changed bool
	// Clearance marks a clearance style pence ending on the current
	// price. Informational only.
	Clearance bool
}

func FormatPrice(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

// IsClearancePrice reports whether the pence component matches one of
// the endings Costco uses for clearance and discontinued stock.
func IsClearancePrice(price float64) bool {
	pence := int(math.Round(price*100)) % 100
	switch pence {
	case 97, 0, 88, 49:
		return true
	}
	return false
}

// PriceChangePercent is the relative move from previous to current,
// negative for a drop. Zero when previous is unknown or zero.
func PriceChangePercent(previous, current float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// priceNoiseFloor keeps sub-penny scraping noise from counting as a
// price change.
const priceNoiseFloor = 0.01

// Evaluate compares one snapshot against the stored product state and
// returns the updated state along with history deltas and alert
// intents. It is pure: no I/O, no randomness, the caller supplies the
// clock.
//
// Stock is evaluated before price, so back in stock intents always
// precede price intents. Within a price change the order is lowest
// ever, then price drop, then target price.
func Evaluate(product db.Product, snapshot costco.Snapshot, now time.Time) Result {
	result := Result{Product: product}
	p := &result.Product

	p.LastCheckedAt = sql.NullInt64{Int64: now.Unix(), Valid: true}
	p.UpdatedAt = now.Unix()

	if snapshot.IsError() && snapshot.ErrKind != costco.ErrorNotFound {
		p.LastError = sql.NullString{String: snapshot.Err, Valid: true}
		p.LastErrorAt = sql.NullInt64{Int64: now.Unix(), Valid: true}
		// a refused fetch is not a site side failure
		if snapshot.ErrKind != costco.ErrorPolicy {
			p.ConsecutiveErrors++
		}
		return result
	}

	p.ConsecutiveErrors = 0
	p.LastError = sql.NullString{}

	if snapshot.ErrKind == costco.ErrorNotFound {
		// a delisted page still tells us the stock state, keep the
		// error text around for the operator
		p.LastError = sql.NullString{String: snapshot.Err, Valid: true}
		p.LastErrorAt = sql.NullInt64{Int64: now.Unix(), Valid: true}
	}

	if snapshot.Name != "" && (!p.Name.Valid || p.Name.String == "") {
		p.Name = sql.NullString{String: snapshot.Name, Valid: true}
	}
	if snapshot.ImageUrl != "" {
		p.ImageUrl = sql.NullString{String: snapshot.ImageUrl, Valid: true}
	}
	// the checkout discount is a current observation, not history, so
	// it is overwritten even when absent
	if snapshot.CheckoutDiscount != nil {
		p.CheckoutDiscount = sql.NullFloat64{Float64: *snapshot.CheckoutDiscount, Valid: true}
	} else {
		p.CheckoutDiscount = sql.NullFloat64{}
	}
	if snapshot.DiscountText != "" {
		p.CheckoutDiscountText = sql.NullString{String: snapshot.DiscountText, Valid: true}
	} else {
		p.CheckoutDiscountText = sql.NullString{}
	}

	evaluateStock(&result, snapshot, now)
	evaluatePrice(&result, snapshot, now)

	if p.CurrentPrice.Valid {
		result.Clearance = IsClearancePrice(p.CurrentPrice.Float64)
	}
	return result
}

func evaluateStock(result *Result, snapshot costco.Snapshot, now time.Time) {
	p := &result.Product
	oldStatus := costco.StockStatus(p.StockStatus)
	newStatus := snapshot.Stock
	if newStatus == "" || newStatus == oldStatus {
		return
	}

	result.StockDelta = &StockDelta{
		Status:         newStatus,
		PreviousStatus: oldStatus,
	}
	p.StockStatus = string(newStatus)
	result.Changed = true

	if oldStatus == costco.StockOutOfStock && newStatus == costco.StockInStock {
		p.LastInStockAt = sql.NullInt64{Int64: now.Unix(), Valid: true}
		if p.NotifyBackInStock {
			result.Intents = append(result.Intents, Intent{
				Kind:     AlertBackInStock,
				OldValue: string(oldStatus),
				NewValue: string(newStatus),
			})
		}
		if p.AutoAddToBasket {
			result.TriggerBasket = true
		}
	}
}

func evaluatePrice(result *Result, snapshot costco.Snapshot, now time.Time) {
	p := &result.Product
	if snapshot.Price == nil {
		return
	}
	newPrice := *snapshot.Price

	var oldPrice *float64
	if p.CurrentPrice.Valid {
		v := p.CurrentPrice.Float64
		oldPrice = &v
	}
	if oldPrice != nil && math.Abs(*oldPrice-newPrice) <= priceNoiseFloor {
		return
	}

	p.PreviousPrice = p.CurrentPrice
	p.CurrentPrice = sql.NullFloat64{Float64: newPrice, Valid: true}
	p.LastPriceChangeAt = sql.NullInt64{Int64: now.Unix(), Valid: true}
	result.PriceDelta = &PriceDelta{
		Price:         newPrice,
		PreviousPrice: oldPrice,
	}
	result.Changed = true

	if !p.LowestPrice.Valid || newPrice < p.LowestPrice.Float64 {
		hadLowest := p.LowestPrice.Valid
		oldLowest := p.LowestPrice.Float64
		p.LowestPrice = sql.NullFloat64{Float64: newPrice, Valid: true}
		// the very first observation just seeds the floor
		if hadLowest && p.NotifyLowestEver {
			result.Intents = append(result.Intents, Intent{
				Kind:     AlertLowestEver,
				OldValue: FormatPrice(oldLowest),
				NewValue: FormatPrice(newPrice),
			})
		}
	}
	if !p.HighestPrice.Valid || newPrice > p.HighestPrice.Float64 {
		p.HighestPrice = sql.NullFloat64{Float64: newPrice, Valid: true}
	}

	if oldPrice != nil && *oldPrice > 0 && newPrice < *oldPrice && p.NotifyPriceDrop {
		result.Intents = append(result.Intents, Intent{
			Kind:     AlertPriceDrop,
			OldValue: FormatPrice(*oldPrice),
			NewValue: FormatPrice(newPrice),
		})
	}
	if p.TargetPrice.Valid && p.TargetPrice.Float64 > 0 &&
		newPrice <= p.TargetPrice.Float64 && p.NotifyTargetPrice {
		result.Intents = append(result.Intents, Intent{
			Kind:     AlertTargetPrice,
			NewValue: FormatPrice(newPrice),
		})
	}
}
