package notify

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/detect"
)

func priceOrNA(price sql.NullFloat64) string {
	if !price.Valid {
		return "N/A"
	}
	return detect.FormatPrice(price.Float64)
}

// FormatMessage composes the subject and plain text body for one alert.
// Old and new values arrive as display strings, prices already
// formatted to two decimal places.
func FormatMessage(config settings.Config, product db.Product, kind detect.AlertKind, oldValue, newValue string, now time.Time) (subject, body string) {
	name := product.DisplayName()
	productUrl := fmt.Sprintf("%s/p/%s", strings.TrimRight(config.BaseUrl, "/"), product.ItemNumber)
	timestamp := now.UTC().Format("2006-01-02 15:04") + " UTC"

	switch kind {
	case detect.AlertBackInStock:
		subject = fmt.Sprintf("Back in Stock: %s", name)
		status := newValue
		if status == "" {
			status = "In Stock"
		}
		body = fmt.Sprintf(`%s

Item #%s is back in stock!

Current Price: £%s
Status: %s

%s

Checked at: %s`,
			name, product.ItemNumber, priceOrNA(product.CurrentPrice), status, productUrl, timestamp)

	case detect.AlertPriceDrop:
		subject = fmt.Sprintf("Price Drop: %s", name)
		var change string
		oldPrice, oldErr := strconv.ParseFloat(oldValue, 64)
		newPrice, newErr := strconv.ParseFloat(newValue, 64)
		if oldErr == nil && newErr == nil && oldPrice > 0 {
			change = fmt.Sprintf(" (%.1f%% off)", (oldPrice-newPrice)/oldPrice*100)
		}
		var lowestLine string
		if product.CurrentPrice.Valid && product.LowestPrice.Valid &&
			product.CurrentPrice.Float64 <= product.LowestPrice.Float64 {
			lowestLine = "LOWEST EVER!"
		}
		var targetLine string
		if product.TargetPrice.Valid && product.TargetPrice.Float64 > 0 {
			targetLine = fmt.Sprintf("Target: £%s", detect.FormatPrice(product.TargetPrice.Float64))
		}
		body = fmt.Sprintf(`%s

Price dropped!%s

Old Price: £%s
New Price: £%s
%s
%s

%s

Checked at: %s`,
			name, change, oldValue, newValue, lowestLine, targetLine, productUrl, timestamp)

	case detect.AlertTargetPrice:
		subject = fmt.Sprintf("Target Price Reached: %s", name)
		body = fmt.Sprintf(`%s

Target price reached!

Current Price: £%s
Your Target: £%s

%s

Checked at: %s`,
			name, priceOrNA(product.CurrentPrice), priceOrNA(product.TargetPrice), productUrl, timestamp)

	case detect.AlertLowestEver:
		subject = fmt.Sprintf("Lowest Ever Price: %s", name)
		body = fmt.Sprintf(`%s

LOWEST PRICE EVER recorded!

Current Price: £%s
Previous Lowest: £%s

%s

Checked at: %s`,
			name, priceOrNA(product.CurrentPrice), oldValue, productUrl, timestamp)

	case detect.AlertAddedToBasket:
		subject = fmt.Sprintf("Added to Basket: %s", name)
		body = fmt.Sprintf(`%s

Item automatically added to your Costco basket!

Price: £%s
Quantity: %d

WARNING: Complete your purchase soon - items may sell out!

Checkout: %s/cart

%s

Added at: %s`,
			name, priceOrNA(product.CurrentPrice), product.AutoAddQuantity,
			strings.TrimRight(config.BaseUrl, "/"), productUrl, timestamp)

	default:
		subject = fmt.Sprintf("Costco Alert: %s", name)
		body = fmt.Sprintf(`%s

Alert: %s

Old: %s
New: %s

%s

%s`,
			name, string(kind), oldValue, newValue, productUrl, timestamp)
	}

	return subject, body
}
