package db

import "strings"

// EnabledChannels parses the comma separated notification channel list
// stored on the product row.
func (p Product) EnabledChannels() []string {
	var out []string
	for _, channel := range strings.Split(p.NotificationChannels, ",") {
		channel = strings.TrimSpace(channel)
		if channel != "" {
			out = append(out, channel)
		}
	}
	return out
}

// EffectivePrice is the listed price minus any checkout discount,
// floored at zero. Nil when no price is known.
func (p Product) EffectivePrice() *float64 {
	if !p.CurrentPrice.Valid {
		return nil
	}
	price := p.CurrentPrice.Float64
	if p.CheckoutDiscount.Valid {
		price -= p.CheckoutDiscount.Float64
		if price < 0 {
			price = 0
		}
	}
	return &price
}

// DisplayName is the product name, falling back to the item number
// until a name has been scraped.
func (p Product) DisplayName() string {
	if p.Name.Valid && p.Name.String != "" {
		return p.Name.String
	}
	return p.ItemNumber
}
