package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	parent := int64(7)
	cancelled := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	o := &Order{
		OrderID:           42,
		SecuritySymbol:    "AAPL",
		Side:              SideAsk,
		Size:              100,
		Price:             px("123.45"),
		AllOrNone:         true,
		ImmediateOrCancel: true,
		Active:            false,
		ParentOrderID:     &parent,
		OwnerID:           i64(3),
		CancelledDttm:     &cancelled,
		CreateDttm:        time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
	}

	data, err := EncodeOrder(o)
	require.NoError(t, err)

	got, err := DecodeOrder(data)
	require.NoError(t, err)

	assert.Equal(t, o.OrderID, got.OrderID)
	assert.Equal(t, o.SecuritySymbol, got.SecuritySymbol)
	assert.Equal(t, o.Side, got.Side)
	assert.Equal(t, o.Size, got.Size)
	assert.True(t, got.Price.Equal(*o.Price))
	assert.True(t, got.AllOrNone)
	assert.True(t, got.ImmediateOrCancel)
	assert.Equal(t, parent, *got.ParentOrderID)
	assert.Equal(t, int64(3), *got.OwnerID)
	assert.True(t, got.CancelledDttm.Equal(cancelled))
	assert.True(t, got.CreateDttm.Equal(o.CreateDttm))
}

func TestEncodeOrderNullableFields(t *testing.T) {
	// 市价、无主、无父单的订单，可空字段编码为显式 null
	o := newTestOrder(5, SideBid, 10, "")

	data, err := EncodeOrder(o)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &wire))

	for _, key := range []string{
		"order_id", "security_symbol", "side", "size", "price",
		"all_or_none", "immediate_or_cancel", "active",
		"parent_order_id", "owner_id", "cancelled_dttm", "create_dttm",
	} {
		require.Contains(t, wire, key)
	}
	assert.Equal(t, "null", string(wire["price"]))
	assert.Equal(t, "null", string(wire["owner_id"]))
	assert.Equal(t, "null", string(wire["parent_order_id"]))
	assert.Equal(t, "null", string(wire["cancelled_dttm"]))
}

func TestEncodeOrderNormalizesTimezone(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	o := newTestOrder(5, SideBid, 10, "1")
	o.CreateDttm = time.Date(2024, 1, 1, 9, 30, 0, 0, est)

	data, err := EncodeOrder(o)
	require.NoError(t, err)

	got, err := DecodeOrder(data)
	require.NoError(t, err)
	assert.True(t, got.CreateDttm.Equal(o.CreateDttm))
	assert.Equal(t, time.UTC, got.CreateDttm.Location())
}

func TestDecodeOrderMalformed(t *testing.T) {
	valid := func() map[string]any {
		return map[string]any{
			"order_id":        1,
			"security_symbol": "AAPL",
			"side":            "bid",
			"size":            100,
			"price":           "1.5",
			"create_dttm":     "2024-01-01T09:30:00Z",
		}
	}
	encode := func(m map[string]any) []byte {
		data, err := json.Marshal(m)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"unknown field", func(m map[string]any) { m["totally_unknown"] = 1 }},
		{"missing order_id", func(m map[string]any) { delete(m, "order_id") }},
		{"zero order_id", func(m map[string]any) { m["order_id"] = 0 }},
		{"bad side", func(m map[string]any) { m["side"] = "buy" }},
		{"zero size", func(m map[string]any) { m["size"] = 0 }},
		{"negative size", func(m map[string]any) { m["size"] = -5 }},
		{"zero price", func(m map[string]any) { m["price"] = "0" }},
		{"negative price", func(m map[string]any) { m["price"] = "-1" }},
		{"missing symbol", func(m map[string]any) { delete(m, "security_symbol") }},
		{"size as string", func(m map[string]any) { m["size"] = "lots" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)
			_, err := DecodeOrder(encode(m))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeOrder([]byte("definitely not json"))
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("trailing data", func(t *testing.T) {
		data := append(encode(valid()), []byte(`{"order_id": 2}`)...)
		_, err := DecodeOrder(data)
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := DecodeOrder(nil)
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})
}

func TestDecodeOrderNumericPrice(t *testing.T) {
	// 价格既可能以 JSON 数字也可能以字符串形式出现
	data := []byte(`{"order_id": 1, "security_symbol": "AAPL", "side": "ask",
		"size": 10, "price": 99.5, "create_dttm": "2024-01-01T09:30:00Z"}`)

	o, err := DecodeOrder(data)
	require.NoError(t, err)
	assert.True(t, o.Price.Equal(decimal.RequireFromString("99.5")))
}
