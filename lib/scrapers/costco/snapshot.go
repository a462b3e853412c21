package costco

// StockStatus classifies availability as presented on a product page.
type StockStatus string

const (
	StockInStock       StockStatus = "in_stock"
	StockOutOfStock    StockStatus = "out_of_stock"
	StockWarehouseOnly StockStatus = "warehouse_only"
	StockRemoved       StockStatus = "removed"
	StockUnknown       StockStatus = "unknown"
)

// ErrorKind distinguishes fetch failures that need different handling
// downstream. A blocked fetch escalates the backoff window while a
// plain transport failure does not.
type ErrorKind string

const (
	ErrorNone      ErrorKind = ""
	ErrorTransport ErrorKind = "transport"
	ErrorBlocking  ErrorKind = "blocking"
	ErrorNotFound  ErrorKind = "not_found"
	ErrorPolicy    ErrorKind = "policy"
)

// Snapshot is the outcome of looking at a product page exactly once.
// Fields that could not be extracted are left at their zero value,
// prices use nil to tell "absent" apart from zero.
type Snapshot struct {
	ItemNumber       string
	Name             string
	Price            *float64
	Stock            StockStatus
	ImageUrl         string
	WarehouseOnly    bool
	CheckoutDiscount *float64
	DiscountText     string
	Err              string
	ErrKind          ErrorKind
}

// IsError reports whether the snapshot describes a failed fetch rather
// than an observed page.
func (s Snapshot) IsError() bool {
	return s.Err != ""
}

// EffectivePrice is the listed price minus any checkout discount,
// floored at zero. Nil when no price was extracted.
func (s Snapshot) EffectivePrice() *float64 {
	if s.Price == nil {
		return nil
	}
	price := *s.Price
	if s.CheckoutDiscount != nil {
		price -= *s.CheckoutDiscount
		if price < 0 {
			price = 0
		}
	}
	return &price
}
