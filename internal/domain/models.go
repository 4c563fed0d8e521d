package domain

// Entity is the shape shared by every persisted kind. Implementations are
// value types; the With* methods return modified copies.
type Entity[T any] interface {
	Key() int64
	Stamp() string
	WithKey(id int64) T
	WithStamp(ts string) T
}

type Product struct {
	ID          int64  `json:"id"`
	Timestamp   string `json:"timestamp"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Category    string `json:"category"`
	Company     string `json:"company"`
	Description string `json:"description"`
}

type Customer struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
}

type StockItem struct {
	ID                  int64  `json:"id"`
	Timestamp           string `json:"timestamp"`
	ProductID           int64  `json:"product_id"`
	Date                string `json:"date"`
	ValidityDate        string `json:"validity_date"`
	Quantity            int    `json:"quantity"`
	PurchasePriceCents  int64  `json:"purchase_price_cents"`
	SalePriceCents      int64  `json:"sale_price_cents"`
	Category            string `json:"category"`
	Company             string `json:"company"`
	IsOrderedByCustomer bool   `json:"is_ordered_by_customer"`
	IsPaid              bool   `json:"is_paid"`
}

type StockOrder struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	CostCents int64  `json:"cost_cents"`
	OrderDate string `json:"order_date"`
	Received  bool   `json:"received"`
}

type Catalog struct {
	ID              int64   `json:"id"`
	Timestamp       string  `json:"timestamp"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	Category        string  `json:"category"`
	Description     string  `json:"description"`
	PriceCents      int64   `json:"price_cents"`
	DiscountPercent float64 `json:"discount_percent"`
}

type AmazonInfo struct {
	Code          string `json:"code"`
	RequestNumber string `json:"request_number"`
	SKU           string `json:"sku"`
	TaxCents      int64  `json:"tax_cents"`
	ProfitCents   int64  `json:"profit_cents"`
	ShippingCents int64  `json:"shipping_cents"`
	PriceCents    int64  `json:"price_cents"`
}

type Sale struct {
	ID                  int64       `json:"id"`
	Timestamp           string      `json:"timestamp"`
	ProductID           int64       `json:"product_id"`
	CustomerID          int64       `json:"customer_id"`
	StockID             int64       `json:"stock_id"`
	Date                string      `json:"date"`
	DateOfPayment       string      `json:"date_of_payment"`
	Quantity            int         `json:"quantity"`
	PurchasePriceCents  int64       `json:"purchase_price_cents"`
	SalePriceCents      int64       `json:"sale_price_cents"`
	DeliveryPriceCents  int64       `json:"delivery_price_cents"`
	IsOrderedByCustomer bool        `json:"is_ordered_by_customer"`
	IsPaidByCustomer    bool        `json:"is_paid_by_customer"`
	Delivered           bool        `json:"delivered"`
	Canceled            bool        `json:"canceled"`
	Amazon              *AmazonInfo `json:"amazon,omitempty"`
}

// ConsumesStock reports whether the sale holds quantity on its stock row.
func (s Sale) ConsumesStock() bool {
	return !s.IsOrderedByCustomer && !s.Canceled
}

type Delivery struct {
	ID                 int64  `json:"id"`
	Timestamp          string `json:"timestamp"`
	SaleID             int64  `json:"sale_id"`
	ShippingDate       string `json:"shipping_date"`
	DeliveryDate       string `json:"delivery_date"`
	TrackingCode       string `json:"tracking_code"`
	ShippingMethod     string `json:"shipping_method"`
	DeliveryPriceCents int64  `json:"delivery_price_cents"`
	Delivered          bool   `json:"delivered"`
}

type SearchCache struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Scope     string `json:"scope"`
	Query     string `json:"query"`
}

// SaleItems is the joined payload the remote expects when a sale is pushed.
type SaleItems struct {
	Sale      Sale       `json:"sale"`
	StockItem *StockItem `json:"stock_item,omitempty"`
	Delivery  *Delivery  `json:"delivery,omitempty"`
}

func (p Product) Key() int64 { return p.ID }
func (p Product) Stamp() string { return p.Timestamp }

func (p Product) WithKey(id int64) Product {
	p.ID = id
	return p
}

func (p Product) WithStamp(ts string) Product {
	p.Timestamp = ts
	return p
}

func (c Customer) Key() int64 { return c.ID }
func (c Customer) Stamp() string { return c.Timestamp }

func (c Customer) WithKey(id int64) Customer {
	c.ID = id
	return c
}

func (c Customer) WithStamp(ts string) Customer {
	c.Timestamp = ts
	return c
}

func (s StockItem) Key() int64 { return s.ID }
func (s StockItem) Stamp() string { return s.Timestamp }

func (s StockItem) WithKey(id int64) StockItem {
	s.ID = id
	return s
}

func (s StockItem) WithStamp(ts string) StockItem {
	s.Timestamp = ts
	return s
}

func (o StockOrder) Key() int64 { return o.ID }
func (o StockOrder) Stamp() string { return o.Timestamp }

func (o StockOrder) WithKey(id int64) StockOrder {
	o.ID = id
	return o
}

func (o StockOrder) WithStamp(ts string) StockOrder {
	o.Timestamp = ts
	return o
}

func (c Catalog) Key() int64 { return c.ID }
func (c Catalog) Stamp() string { return c.Timestamp }

func (c Catalog) WithKey(id int64) Catalog {
	c.ID = id
	return c
}

func (c Catalog) WithStamp(ts string) Catalog {
	c.Timestamp = ts
	return c
}

func (s Sale) Key() int64 { return s.ID }
func (s Sale) Stamp() string { return s.Timestamp }

func (s Sale) WithKey(id int64) Sale {
	s.ID = id
	return s
}

func (s Sale) WithStamp(ts string) Sale {
	s.Timestamp = ts
	return s
}

func (d Delivery) Key() int64 { return d.ID }
func (d Delivery) Stamp() string { return d.Timestamp }

func (d Delivery) WithKey(id int64) Delivery {
	d.ID = id
	return d
}

func (d Delivery) WithStamp(ts string) Delivery {
	d.Timestamp = ts
	return d
}

func (s SearchCache) Key() int64 { return s.ID }
func (s SearchCache) Stamp() string { return s.Timestamp }

func (s SearchCache) WithKey(id int64) SearchCache {
	s.ID = id
	return s
}

func (s SearchCache) WithStamp(ts string) SearchCache {
	s.Timestamp = ts
	return s
}
