package costco

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ropaxyz/CostcoUKTracker/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBaseUrl is the storefront that relative links resolve against
// when the page url itself is unusable.
const DefaultBaseUrl = "https://www.costco.co.uk"

type page struct {
	raw string
	doc *goquery.Document
	url string
}

type matchRule struct {
	name string
	re   *regexp.Regexp
}

type textRule struct {
	name    string
	extract func(p page) string
}

func regexExtract(pattern string) func(p page) string {
	re := regexp.MustCompile(pattern)
	return func(p page) string {
		m := re.FindStringSubmatch(p.raw)
		if len(m) < 2 {
			return ""
		}
		return m[1]
	}
}

var outOfStockRules = []matchRule{
	{"out-of-stock-class", regexp.MustCompile(`(?i)class="[^"]*outOfStock[^"]*"`)},
	{"out-of-stock-text", regexp.MustCompile(`(?i)>Out of Stock<`)},
	{"disabled-button", regexp.MustCompile(`(?i)disabled="disabled"[^>]*>Out of Stock`)},
	{"disabled-primary-button", regexp.MustCompile(`(?i)btn-primary disabled outOfStock`)},
}

var warehouseOnlyRules = []matchRule{
	{"warehouse-only-text", regexp.MustCompile(`(?i)warehouse only`)},
	{"in-warehouse-class", regexp.MustCompile(`(?i)in-warehouse`)},
	{"available-in-warehouse", regexp.MustCompile(`(?i)Available in Warehouse`)},
}

var inStockRules = []matchRule{
	{"add-to-cart-id", regexp.MustCompile(`(?i)id="add-to-cart-button"`)},
	{"add-to-cart-text", regexp.MustCompile(`(?i)>Add to cart<`)},
	{"add-to-cart-cy", regexp.MustCompile(`(?i)data-cy="addtocart-button`)},
	{"add-to-cart-class", regexp.MustCompile(`(?i)class="[^"]*add-to-cart__btn[^"]*"[^>]*>Add to cart`)},
}

func matchAny(rules []matchRule, html string) bool {
	for _, r := range rules {
		if r.re.MatchString(html) {
			return true
		}
	}
	return false
}

// parseStock resolves conflicting availability markers. Out of stock
// always wins over warehouse only, which wins over in stock.
func parseStock(html string) StockStatus {
	if matchAny(outOfStockRules, html) {
		return StockOutOfStock
	}
	if matchAny(warehouseOnlyRules, html) {
		return StockWarehouseOnly
	}
	if matchAny(inStockRules, html) {
		return StockInStock
	}
	return StockUnknown
}

var poundAmount = regexp.MustCompile(`£([\d,]+\.?\d*)`)

var priceRules = []textRule{
	{"notranslate-span", func(p page) string {
		amount := ""
		p.doc.Find("span.notranslate").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			m := poundAmount.FindStringSubmatch(s.Text())
			if len(m) < 2 {
				return true
			}
			amount = m[1]
			return false
		})
		return amount
	}},
	{"embedded-json-price", regexExtract(`(?i)"price":\s*"?([\d.]+)"?`)},
	{"pound-amount", regexExtract(`£([\d,]+\.?\d*)`)},
	{"price-data-attribute", regexExtract(`(?i)data-product-price="([\d.]+)"`)},
}

func parseAmount(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// parsePrice returns the first extracted price that passes the sanity
// range, rules that match garbage just fall through to the next one.
func parsePrice(p page) *float64 {
	for _, rule := range priceRules {
		raw := rule.extract(p)
		if raw == "" {
			continue
		}
		value, ok := parseAmount(raw)
		if !ok {
			continue
		}
		if value > 0 && value < 100000 {
			return &value
		}
	}
	return nil
}

var nameRules = []textRule{
	{"product-name-heading", func(p page) string {
		return p.doc.Find("h1.product-name").First().Text()
	}},
	{"page-title", func(p page) string {
		title := p.doc.Find("title").First().Text()
		title, _, _ = strings.Cut(title, "|")
		return title
	}},
	{"embedded-json-name", regexExtract(`(?i)"name":\s*"([^"]+)"`)},
}

func parseName(p page) string {
	for _, rule := range nameRules {
		name := strings.Join(strings.Fields(rule.extract(p)), " ")
		name = strings.TrimSpace(strings.ReplaceAll(name, " | Costco UK", ""))
		if len(name) <= 5 {
			continue
		}
		if len(name) > 500 {
			name = name[:500]
		}
		return name
	}
	return ""
}

var imageRules = []textRule{
	{"product-image-element", func(p page) string {
		return p.doc.Find("img.product-image").First().AttrOr("src", "")
	}},
	{"embedded-json-image", regexExtract(`(?i)"image":\s*"([^"]+)"`)},
	{"og-image-meta", func(p page) string {
		return p.doc.Find(`meta[property="og:image"]`).First().AttrOr("content", "")
	}},
}

func parseImage(p page) string {
	for _, rule := range imageRules {
		src := strings.TrimSpace(rule.extract(p))
		if src == "" {
			continue
		}
		return upgradeImageUrl(src, p.url)
	}
	return ""
}

// relative sources resolve against the page's own origin, falling back
// to the storefront base
func upgradeImageUrl(src, pageUrl string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	if strings.HasPrefix(src, "/") {
		base := DefaultBaseUrl
		if u, err := url.Parse(pageUrl); err == nil && u.Scheme != "" && u.Host != "" {
			base = u.Scheme + "://" + u.Host
		}
		return base + src
	}
	return src
}

var itemUrlRegex = regexp.MustCompile(`/p/(\d+)`)

var itemNumberRules = []textRule{
	{"product-code-input", regexExtract(`(?i)productCodePost[^>]*value="(\d+)"`)},
	{"add-to-cart-cy-suffix", regexExtract(`(?i)data-cy="addtocart-button-(\d+)"`)},
	{"item-number-label", regexExtract(`(?i)Item\s*#?\s*:?\s*(\d{5,7})`)},
	{"product-path", regexExtract(`(?i)/p/(\d+)`)},
}

func itemNumberFromUrl(pageUrl string) string {
	m := itemUrlRegex.FindStringSubmatch(pageUrl)
	if len(m) > 1 {
		return m[1]
	}
	return ""
}

// parseItemNumber prefers the item number embedded in the url, the
// page markup is only consulted when the url carries none.
func parseItemNumber(p page) string {
	if item := itemNumberFromUrl(p.url); item != "" {
		return item
	}
	for _, rule := range itemNumberRules {
		if item := rule.extract(p); item != "" {
			return item
		}
	}
	return ""
}

var checkoutDiscountRegex = regexp.MustCompile(`(?i)(?:further|additional)\s*£([\d,]+\.?\d*)\s*(?:reduction|discount|off).*?(?:checkout|basket)`)
var checkoutDiscountTextRegex = regexp.MustCompile(`(?is)<[^>]*>(.*?(?:further|additional).*?(?:checkout|basket)[^<]*)</[^>]*>`)
var htmlTagRegex = regexp.MustCompile(`<[^>]+>`)

// parseCheckoutDiscount pulls "further £N reduction at checkout" style
// promotions, first from inline copy, then from the promotion section
// element.
func parseCheckoutDiscount(p page) (*float64, string) {
	m := checkoutDiscountRegex.FindStringSubmatch(p.raw)
	if len(m) > 1 {
		if amount, ok := parseAmount(m[1]); ok {
			text := fmt.Sprintf("£%v reduction at checkout", amount)
			tm := checkoutDiscountTextRegex.FindStringSubmatch(p.raw)
			if len(tm) > 1 {
				text = strings.TrimSpace(htmlTagRegex.ReplaceAllString(tm[1], ""))
			}
			return &amount, text
		}
	}

	for _, b := range p.doc.Find("sip-product-promotion-section b").Nodes {
		text := htmlutil.CleanText(htmlutil.GetText(b))
		if text == "" {
			continue
		}
		am := poundAmount.FindStringSubmatch(text)
		if len(am) > 1 {
			if amount, ok := parseAmount(am[1]); ok {
				return &amount, text
			}
		}
		return nil, text
	}

	return nil, ""
}

var blockingIndicators = []string{
	"captcha",
	"robot",
	"blocked",
	"access denied",
	"please verify",
	"security check",
}

// detectBlocking classifies anti-bot responses. Indicator words only
// count on short pages, real product pages mention words like "robot"
// in script blobs all the time.
func detectBlocking(html string, statusCode int) string {
	if statusCode == 403 {
		return "Access forbidden (403)"
	}
	if statusCode == 429 {
		return "Rate limited (429)"
	}
	if statusCode >= 500 {
		return fmt.Sprintf("Server error (%d)", statusCode)
	}

	if len(html) < 10000 {
		lower := strings.ToLower(html)
		for _, indicator := range blockingIndicators {
			if strings.Contains(lower, indicator) {
				return fmt.Sprintf("Possible blocking detected: %s", indicator)
			}
		}
	}
	return ""
}

// Extract classifies a fetched page and pulls the product fields out of
// it. Malformed input never fails, it just yields fewer fields.
func Extract(html string, statusCode int, sourceUrl string) Snapshot {
	if reason := detectBlocking(html, statusCode); reason != "" {
		return Snapshot{
			ItemNumber: itemNumberFromUrl(sourceUrl),
			Stock:      StockUnknown,
			Err:        reason,
			ErrKind:    ErrorBlocking,
		}
	}
	if statusCode == 404 {
		return Snapshot{
			ItemNumber: itemNumberFromUrl(sourceUrl),
			Stock:      StockRemoved,
			Err:        "Product not found (404)",
			ErrKind:    ErrorNotFound,
		}
	}
	if statusCode != 200 {
		return Snapshot{
			ItemNumber: itemNumberFromUrl(sourceUrl),
			Stock:      StockUnknown,
			Err:        fmt.Sprintf("HTTP %d", statusCode),
			ErrKind:    ErrorTransport,
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	p := page{raw: html, doc: doc, url: sourceUrl}

	stock := parseStock(html)
	discount, discountText := parseCheckoutDiscount(p)

	return Snapshot{
		ItemNumber:       parseItemNumber(p),
		Name:             parseName(p),
		Price:            parsePrice(p),
		Stock:            stock,
		ImageUrl:         parseImage(p),
		WarehouseOnly:    stock == StockWarehouseOnly,
		CheckoutDiscount: discount,
		DiscountText:     discountText,
	}
}
