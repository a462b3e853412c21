package api

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/Ropaxyz/CostcoUKTracker/services/tracker"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/detect"

	"github.com/antzucaro/matchr"
)

// searchThreshold is the minimum JaroWinkler similarity for a product
// to rank in a fuzzy search.
const searchThreshold = 0.6

type productSummary struct {
	Id           int64    `json:"id"`
	ItemNumber   string   `json:"item_number"`
	Name         *string  `json:"name"`
	Url          string   `json:"url"`
	CurrentPrice *float64 `json:"current_price"`
	LowestPrice  *float64 `json:"lowest_price"`
	StockStatus  string   `json:"stock_status"`
	LastChecked  *string  `json:"last_checked"`
}

type productDetail struct {
	Id                   int64    `json:"id"`
	ItemNumber           string   `json:"item_number"`
	Name                 *string  `json:"name"`
	Url                  string   `json:"url"`
	CurrentPrice         *float64 `json:"current_price"`
	PreviousPrice        *float64 `json:"previous_price"`
	LowestPrice          *float64 `json:"lowest_price"`
	HighestPrice         *float64 `json:"highest_price"`
	StockStatus          string   `json:"stock_status"`
	CheckoutDiscount     *float64 `json:"checkout_discount"`
	CheckoutDiscountText *string  `json:"checkout_discount_text"`
	EffectivePrice       *float64 `json:"effective_price"`
	TargetPrice          *float64 `json:"target_price"`
	IsClearance          bool     `json:"is_clearance"`
	LastChecked          *string  `json:"last_checked"`
	LastInStock          *string  `json:"last_in_stock"`
}

func summarizeProduct(p db.Product) productSummary {
	return productSummary{
		Id:           p.ID,
		ItemNumber:   p.ItemNumber,
		Name:         nullString(p.Name),
		Url:          p.Url,
		CurrentPrice: nullFloat(p.CurrentPrice),
		LowestPrice:  nullFloat(p.LowestPrice),
		StockStatus:  p.StockStatus,
		LastChecked:  nullIsoTime(p.LastCheckedAt),
	}
}

func detailProduct(p db.Product) productDetail {
	return productDetail{
		Id:                   p.ID,
		ItemNumber:           p.ItemNumber,
		Name:                 nullString(p.Name),
		Url:                  p.Url,
		CurrentPrice:         nullFloat(p.CurrentPrice),
		PreviousPrice:        nullFloat(p.PreviousPrice),
		LowestPrice:          nullFloat(p.LowestPrice),
		HighestPrice:         nullFloat(p.HighestPrice),
		StockStatus:          p.StockStatus,
		CheckoutDiscount:     nullFloat(p.CheckoutDiscount),
		CheckoutDiscountText: nullString(p.CheckoutDiscountText),
		EffectivePrice:       p.EffectivePrice(),
		TargetPrice:          nullFloat(p.TargetPrice),
		IsClearance:          p.CurrentPrice.Valid && detect.IsClearancePrice(p.CurrentPrice.Float64),
		LastChecked:          nullIsoTime(p.LastCheckedAt),
		LastInStock:          nullIsoTime(p.LastInStockAt),
	}
}

func productError(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "Product not found")
		return
	}
	respondError(w, http.StatusInternalServerError, "%v", err)
}

// searchProducts ranks products against a free text query. A substring
// hit on the name or item number counts as exact.
func searchProducts(products []db.Product, query string) []db.Product {
	query = strings.ToLower(strings.TrimSpace(query))

	type scored struct {
		product db.Product
		score   float64
	}
	var ranked []scored
	for _, p := range products {
		name := strings.ToLower(p.Name.String)
		score := matchr.JaroWinkler(query, name, false)
		if strings.Contains(name, query) || strings.Contains(p.ItemNumber, query) {
			score = 1
		}
		if score >= searchThreshold {
			ranked = append(ranked, scored{product: p, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	out := make([]db.Product, len(ranked))
	for i, s := range ranked {
		out[i] = s.product
	}
	return out
}

func (s Service) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.tracker.ListActiveProducts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list products: %v", err)
		return
	}
	if query := r.URL.Query().Get("q"); query != "" {
		products = searchProducts(products, query)
	}

	out := make([]productSummary, len(products))
	for i, p := range products {
		out[i] = summarizeProduct(p)
	}
	respondJSON(w, http.StatusOK, out)
}

type addProductRequest struct {
	UrlOrItem   string   `json:"url_or_item"`
	TargetPrice *float64 `json:"target_price"`
}

func (s Service) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UrlOrItem) == "" {
		respondError(w, http.StatusBadRequest, "url_or_item is required")
		return
	}

	result, err := s.tracker.AddProduct(r.Context(), req.UrlOrItem, req.TargetPrice)
	if err != nil {
		respondError(w, http.StatusBadGateway, "add product: %v", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"reactivated": result.Reactivated,
		"product":     detailProduct(result.Product),
	})
}

func (s Service) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	product, err := s.tracker.GetProduct(r.Context(), id)
	if err != nil {
		productError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detailProduct(product))
}

type productUpdateRequest struct {
	TargetPrice          *float64 `json:"target_price"`
	PollIntervalMinutes  *int64   `json:"poll_interval_minutes"`
	NotifyBackInStock    *bool    `json:"notify_back_in_stock"`
	NotifyPriceDrop      *bool    `json:"notify_price_drop"`
	NotifyTargetPrice    *bool    `json:"notify_target_price"`
	NotifyLowestEver     *bool    `json:"notify_lowest_ever"`
	AutoAddToBasket      *bool    `json:"auto_add_to_basket"`
	AutoAddQuantity      *int64   `json:"auto_add_quantity"`
	AutoAddMaxPrice      *float64 `json:"auto_add_max_price"`
	NotificationChannels *string  `json:"notification_channels"`
	IsActive             *bool    `json:"is_active"`
}

func (s Service) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req productUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	_, err := s.tracker.UpdateSettings(r.Context(), id, tracker.SettingsUpdate{
		TargetPrice:          req.TargetPrice,
		PollIntervalMinutes:  req.PollIntervalMinutes,
		NotifyBackInStock:    req.NotifyBackInStock,
		NotifyPriceDrop:      req.NotifyPriceDrop,
		NotifyTargetPrice:    req.NotifyTargetPrice,
		NotifyLowestEver:     req.NotifyLowestEver,
		AutoAddToBasket:      req.AutoAddToBasket,
		AutoAddQuantity:      req.AutoAddQuantity,
		AutoAddMaxPrice:      req.AutoAddMaxPrice,
		NotificationChannels: req.NotificationChannels,
		IsActive:             req.IsActive,
	})
	if err != nil {
		productError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, statusOk())
}

func (s Service) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	// Soft delete; removing an id that was never tracked is still a 200.
	if err := s.tracker.RemoveProduct(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "remove product: %v", err)
		return
	}
	respondJSON(w, http.StatusOK, statusOk())
}

func (s Service) handleRefreshProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	product, err := s.tracker.RefreshProduct(r.Context(), id)
	if err != nil {
		productError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detailProduct(product))
}

type pricePoint struct {
	Price      float64 `json:"price"`
	RecordedAt string  `json:"recorded_at"`
}

func (s Service) handleProductHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	days := intQuery(r, "days", 90)
	if days < 1 || days > 365 {
		respondError(w, http.StatusBadRequest, "days must be between 1 and 365")
		return
	}

	history, err := s.tracker.PriceHistory(r.Context(), id, int(days))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read history: %v", err)
		return
	}

	out := make([]pricePoint, len(history))
	for i, h := range history {
		out[i] = pricePoint{Price: h.Price, RecordedAt: isoTime(h.RecordedAt)}
	}
	respondJSON(w, http.StatusOK, out)
}

type exportedProduct struct {
	ItemNumber   string   `json:"item_number"`
	Name         *string  `json:"name"`
	Url          string   `json:"url"`
	CurrentPrice *float64 `json:"current_price"`
	LowestPrice  *float64 `json:"lowest_price"`
	HighestPrice *float64 `json:"highest_price"`
	StockStatus  string   `json:"stock_status"`
	TargetPrice  *float64 `json:"target_price"`
	LastChecked  *string  `json:"last_checked"`
}

// handleExport dumps every product, active or not, as JSON or CSV.
func (s Service) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		respondError(w, http.StatusBadRequest, "format must be json or csv")
		return
	}

	products, err := s.tracker.ListProducts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list products: %v", err)
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=costco_products.csv")

		writer := csv.NewWriter(w)
		writer.Write([]string{
			"item_number", "name", "current_price", "lowest_price",
			"highest_price", "stock_status", "target_price", "last_checked",
		})
		for _, p := range products {
			checked := ""
			if p.LastCheckedAt.Valid {
				checked = isoTime(p.LastCheckedAt.Int64)
			}
			writer.Write([]string{
				p.ItemNumber,
				p.Name.String,
				csvFloat(p.CurrentPrice),
				csvFloat(p.LowestPrice),
				csvFloat(p.HighestPrice),
				p.StockStatus,
				csvFloat(p.TargetPrice),
				checked,
			})
		}
		writer.Flush()
		return
	}

	out := make([]exportedProduct, len(products))
	for i, p := range products {
		out[i] = exportedProduct{
			ItemNumber:   p.ItemNumber,
			Name:         nullString(p.Name),
			Url:          p.Url,
			CurrentPrice: nullFloat(p.CurrentPrice),
			LowestPrice:  nullFloat(p.LowestPrice),
			HighestPrice: nullFloat(p.HighestPrice),
			StockStatus:  p.StockStatus,
			TargetPrice:  nullFloat(p.TargetPrice),
			LastChecked:  nullIsoTime(p.LastCheckedAt),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func csvFloat(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

type alertView struct {
	Id           int64   `json:"id"`
	ProductId    int64   `json:"product_id"`
	AlertType    string  `json:"alert_type"`
	Message      string  `json:"message"`
	OldValue     *string `json:"old_value"`
	NewValue     *string `json:"new_value"`
	ChannelsSent *string `json:"channels_sent"`
	SentAt       string  `json:"sent_at"`
}

func (s Service) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	alerts, err := s.tracker.RecentAlerts(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list alerts: %v", err)
		return
	}

	out := make([]alertView, len(alerts))
	for i, a := range alerts {
		out[i] = alertView{
			Id:           a.ID,
			ProductId:    a.ProductID,
			AlertType:    a.AlertType,
			Message:      a.Message,
			OldValue:     nullString(a.OldValue),
			NewValue:     nullString(a.NewValue),
			ChannelsSent: nullString(a.ChannelsSent),
			SentAt:       isoTime(a.SentAt),
		}
	}
	respondJSON(w, http.StatusOK, out)
}
