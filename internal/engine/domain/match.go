package domain

import (
	"fmt"
	"time"
)

// MatchResult 一次撮合循环的全部待提交效果：
//   - Incoming 入场订单本体，active 等持久化字段的变更待提交
//   - IncomingRemain 三种取值：Incoming 本身（未成交或被 AON 回退）、
//     新建的剩余子单（部分成交）、nil（全部成交）
//   - Deactivated 需要置为非活动的被动单 order_id 集合
//   - Reactivated 至多一个被动单的剩余子单
//   - Transactions 本轮产生的成交
type MatchResult struct {
	Incoming       *Order
	IncomingRemain *Order
	Deactivated    []int64
	Reactivated    *Order
	Transactions   []*Transaction
}

// CycleOrder 撮合循环内的订单视图。
// 剩余量是循环的临时状态，只存在于内存，不落库
type CycleOrder struct {
	Order     *Order
	Remaining int64
}

func NewCycleOrder(o *Order) *CycleOrder {
	return &CycleOrder{Order: o, Remaining: o.Size}
}

// ProposeTrade 纯函数：给定入场单与候选单（含各自剩余量），
// 返回两者之间可以发生的成交，无法成交时返回 nil。
// 成交价取候选单（被动方）的限价；候选单的 AON 策略在此处生效，
// 入场单的 AON 策略由撮合循环在遍历结束后统一处理
func ProposeTrade(incoming, candidate *CycleOrder) *Transaction {
	if incoming.Remaining <= 0 || candidate.Remaining <= 0 {
		return nil
	}

	ask, bid := incoming, candidate
	if incoming.Order.Side != SideAsk {
		ask, bid = candidate, incoming
	}
	size := min(ask.Remaining, bid.Remaining)

	// 候选单要求全部成交而本次量不足时放弃
	if candidate.Order.AllOrNone && size < candidate.Remaining {
		return nil
	}

	return &Transaction{
		SecuritySymbol:   ask.Order.SecuritySymbol,
		Size:             size,
		Price:            *candidate.Order.Price,
		AskID:            ask.Order.OrderID,
		BidID:            bid.Order.OrderID,
		AggressorOrderID: incoming.Order.OrderID,
		RestingOrderID:   candidate.Order.OrderID,
	}
}

// Match 执行一次撮合循环：按候选顺序逐一提议成交，累积成交与订单状态变化，
// 最后对入场单执行 AON 与 IOC 策略的后处理。
// 本函数不触碰存储；候选列表由调用方在提交事务内查询后传入。
// 返回错误仅发生在不变量被破坏时（选择器越界、剩余量为负等），属程序缺陷
func Match(incoming *Order, candidates []*Order, now time.Time) (*MatchResult, error) {
	mr := &MatchResult{Incoming: incoming}

	// 重置上一次投递可能遗留的变更，保证消息重投时在新快照上重放出相同结果
	incoming.Active = false
	incoming.CancelledDttm = nil

	in := NewCycleOrder(incoming)
	for _, c := range candidates {
		if in.Remaining <= 0 {
			break
		}
		if err := validateCandidate(incoming, c); err != nil {
			return nil, err
		}

		cand := NewCycleOrder(c)
		transaction := ProposeTrade(in, cand)
		if transaction == nil {
			continue
		}
		transaction.TransactDttm = now

		in.Remaining -= transaction.Size
		cand.Remaining -= transaction.Size
		if in.Remaining < 0 || cand.Remaining < 0 {
			return nil, fmt.Errorf("%w: negative remaining size after trade %s",
				ErrInvariantViolation, transaction)
		}

		mr.Transactions = append(mr.Transactions, transaction)
		mr.Deactivated = append(mr.Deactivated, c.OrderID)

		// 候选单被部分成交时，其剩余量以子单形式回到订单簿；
		// FIFO 遍历下只有最后一个成交的候选可能被部分成交，故至多一个
		if cand.Remaining > 0 {
			mr.Reactivated = c.Suborder(cand.Remaining, now)
			mr.Reactivated.Active = true
		}
	}

	// 决定入场单的剩余表示
	switch {
	case in.Remaining == incoming.Size:
		mr.IncomingRemain = incoming
		incoming.Active = true
	case in.Remaining > 0:
		sub := incoming.Suborder(in.Remaining, now)
		sub.Active = true
		mr.IncomingRemain = sub
	default:
		mr.IncomingRemain = nil
	}

	// 入场单的 AON 策略：未能全部成交则丢弃本轮全部效果，入场单整体挂入订单簿
	if incoming.AllOrNone && in.Remaining > 0 {
		mr.Transactions = nil
		mr.Deactivated = nil
		mr.Reactivated = nil
		mr.IncomingRemain = incoming
		incoming.Active = true
	}

	// 入场单的 IOC 策略：撤销未成交的剩余部分
	if incoming.ImmediateOrCancel && mr.IncomingRemain != nil {
		cancelled := now
		mr.IncomingRemain.CancelledDttm = &cancelled
		mr.IncomingRemain.Active = false
	}

	return mr, nil
}

// validateCandidate 核对选择器的输出：同代码、对手方向、非自成交、且带限价
func validateCandidate(incoming, candidate *Order) error {
	switch {
	case candidate.SecuritySymbol != incoming.SecuritySymbol:
		return fmt.Errorf("%w: candidate %d is for %s, incoming %d is for %s",
			ErrInvariantViolation, candidate.OrderID, candidate.SecuritySymbol,
			incoming.OrderID, incoming.SecuritySymbol)
	case candidate.Side != incoming.Side.Opposite():
		return fmt.Errorf("%w: candidate %d is on the same side as incoming %d",
			ErrInvariantViolation, candidate.OrderID, incoming.OrderID)
	case candidate.Price == nil:
		return fmt.Errorf("%w: resting order %d has no price",
			ErrInvariantViolation, candidate.OrderID)
	case incoming.OwnerID != nil && candidate.OwnerID != nil &&
		*incoming.OwnerID == *candidate.OwnerID:
		return fmt.Errorf("%w: candidate %d shares owner %d with incoming %d",
			ErrInvariantViolation, candidate.OrderID, *candidate.OwnerID, incoming.OrderID)
	}
	return nil
}
