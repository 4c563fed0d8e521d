package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatStampSortsLexicographically(t *testing.T) {
	base := time.Date(2024, 3, 9, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	earlier := FormatStamp(base)
	later := FormatStamp(base.Add(1500 * time.Millisecond))

	assert.Less(t, earlier, later)
	assert.Equal(t, -1, CompareStamps(earlier, later))
	assert.Equal(t, "2024-03-09T03:00:00.000000000Z", earlier)
}

func TestCompareStampsAcrossOffsets(t *testing.T) {
	assert.Equal(t, 0, CompareStamps("2024-03-09T10:00:00+07:00", "2024-03-09T03:00:00Z"))
	assert.Equal(t, 1, CompareStamps("2024-03-09T03:00:01Z", "2024-03-09T10:00:00+07:00"))
}

func TestCompareStampsFallsBackToStringOrder(t *testing.T) {
	assert.Equal(t, -1, CompareStamps("a", "b"))
	assert.Equal(t, 0, CompareStamps("same", "same"))
}

func TestKindTable(t *testing.T) {
	assert.Equal(t, "SALE", KindSale.Name())
	assert.Equal(t, Kind(4), KindSale)
	assert.Equal(t, Kind(5), KindDelivery)

	seen := map[string]bool{}
	for _, kind := range Kinds() {
		require.True(t, kind.Valid())
		collection := kind.Collection()
		require.NotEmpty(t, collection)
		require.False(t, seen[collection], "duplicate collection %s", collection)
		seen[collection] = true

		back, ok := KindFromCollection(collection)
		require.True(t, ok)
		assert.Equal(t, kind, back)
	}
	assert.Len(t, seen, 8)
	assert.False(t, Kind(99).Valid())
}

func TestSaleConsumesStock(t *testing.T) {
	assert.True(t, Sale{Quantity: 1}.ConsumesStock())
	assert.False(t, Sale{IsOrderedByCustomer: true}.ConsumesStock())
	assert.False(t, Sale{Canceled: true}.ConsumesStock())
}
