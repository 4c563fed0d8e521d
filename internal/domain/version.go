package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies an entity kind. The numeric values are shared with the
// remote schema and must never change.
type Kind int

const (
	KindProduct     Kind = 1
	KindCustomer    Kind = 2
	KindStockItem   Kind = 3
	KindSale        Kind = 4
	KindDelivery    Kind = 5
	KindStockOrder  Kind = 6
	KindCatalog     Kind = 7
	KindSearchCache Kind = 8
)

var kindNames = map[Kind]string{
	KindProduct:     "PRODUCT",
	KindCustomer:    "CUSTOMER",
	KindStockItem:   "STOCK",
	KindSale:        "SALE",
	KindDelivery:    "DELIVERY",
	KindStockOrder:  "STOCK_ORDER",
	KindCatalog:     "CATALOG",
	KindSearchCache: "SEARCH_CACHE",
}

var kindCollections = map[Kind]string{
	KindProduct:     "products",
	KindCustomer:    "customers",
	KindStockItem:   "stock-items",
	KindSale:        "sales",
	KindDelivery:    "deliveries",
	KindStockOrder:  "stock-orders",
	KindCatalog:     "catalogs",
	KindSearchCache: "search-caches",
}

// Kinds lists every kind in sync order: referenced kinds come before the
// kinds that reference them.
func Kinds() []Kind {
	return []Kind{
		KindProduct,
		KindCustomer,
		KindStockItem,
		KindStockOrder,
		KindCatalog,
		KindSearchCache,
		KindSale,
		KindDelivery,
	}
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k Kind) Name() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND_%d", int(k))
}

func (k Kind) String() string {
	return k.Name()
}

// Collection is the path segment the remote API serves this kind under.
func (k Kind) Collection() string {
	return kindCollections[k]
}

func KindFromCollection(collection string) (Kind, bool) {
	for kind, name := range kindCollections {
		if name == collection {
			return kind, true
		}
	}
	return 0, false
}

// DataVersion marks when an entity kind last changed. There is exactly one
// row per kind. Generation is local bookkeeping for compare-and-swap and is
// not compared across devices.
type DataVersion struct {
	ID         Kind   `json:"id"`
	Name       string `json:"name"`
	Timestamp  string `json:"timestamp"`
	Generation int64  `json:"generation,omitempty"`
}

func NewVersion(kind Kind, timestamp string) DataVersion {
	return DataVersion{ID: kind, Name: kind.Name(), Timestamp: timestamp}
}

// Newer reports whether v was stamped after other.
func (v DataVersion) Newer(other DataVersion) bool {
	return CompareStamps(v.Timestamp, other.Timestamp) > 0
}

const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatStamp renders t as fixed-width UTC ISO-8601, so stamps sort the same
// lexicographically and temporally.
func FormatStamp(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

func Now() string {
	return FormatStamp(time.Now())
}

// CompareStamps orders two ISO-8601 timestamps. Unparseable input falls back
// to string order.
func CompareStamps(a string, b string) int {
	ta, errA := time.Parse(time.RFC3339Nano, strings.TrimSpace(a))
	tb, errB := time.Parse(time.RFC3339Nano, strings.TrimSpace(b))
	if errA == nil && errB == nil {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}
