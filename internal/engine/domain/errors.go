package domain

import "errors"

// 错误哨兵，按处理方式分为两类：
// 不可重试的（消息损坏、引用缺失、内部不变量被破坏）直接进死信队列；
// 其余一律视为存储层瞬时故障，由引擎带退避重试
var (
	// ErrMalformedMessage 消息无法解码为合法订单
	ErrMalformedMessage = errors.New("malformed order message")
	// ErrOrderNotFound 订单引用缺失
	ErrOrderNotFound = errors.New("order not found")
	// ErrCompanyNotFound 公司引用缺失
	ErrCompanyNotFound = errors.New("company not found")
	// ErrAssetNotFound 资产引用缺失
	ErrAssetNotFound = errors.New("asset not found")
	// ErrUserNotFound 用户引用缺失（例如带成交的订单没有所有者）
	ErrUserNotFound = errors.New("user not found")
	// ErrInvariantViolation 撮合循环内部不变量被破坏，属程序缺陷
	ErrInvariantViolation = errors.New("match invariant violated")
)

// Severity 错误的处理级别
type Severity int

const (
	// SeverityRetryable 可重试：整个撮合循环以新快照重来
	SeverityRetryable Severity = iota
	// SeverityDeadLetter 不可重试：消息转入死信队列
	SeverityDeadLetter
)

// Classify 判定错误的处理级别
func Classify(err error) Severity {
	switch {
	case errors.Is(err, ErrMalformedMessage),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrCompanyNotFound),
		errors.Is(err, ErrAssetNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrInvariantViolation):
		return SeverityDeadLetter
	default:
		return SeverityRetryable
	}
}
