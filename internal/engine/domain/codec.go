package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeOrder 将订单序列化为队列消息体。
// 可空字段编码为显式 null，时间统一为 ISO-8601 UTC
func EncodeOrder(o *Order) ([]byte, error) {
	wire := *o
	wire.CreateDttm = o.CreateDttm.UTC()
	if o.CancelledDttm != nil {
		cancelled := o.CancelledDttm.UTC()
		wire.CancelledDttm = &cancelled
	}
	data, err := json.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}
	return data, nil
}

// DecodeOrder 从队列消息体还原订单。
// 未知字段、内容非法、缺失 order_id 的消息一律判为已损坏
func DecodeOrder(data []byte) (*Order, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var o Order
	if err := dec.Decode(&o); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	// 消息体后不允许跟随多余内容
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after order payload", ErrMalformedMessage)
	}

	if o.OrderID < 1 {
		return nil, fmt.Errorf("%w: order_id is required", ErrMalformedMessage)
	}
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return &o, nil
}
