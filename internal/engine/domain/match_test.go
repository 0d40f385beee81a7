package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func px(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func i64(v int64) *int64 { return &v }

type orderOpt func(*Order)

func withOwner(id int64) orderOpt {
	return func(o *Order) { o.OwnerID = i64(id) }
}

func withAON() orderOpt {
	return func(o *Order) { o.AllOrNone = true }
}

func withIOC() orderOpt {
	return func(o *Order) { o.ImmediateOrCancel = true }
}

func withActive() orderOpt {
	return func(o *Order) { o.Active = true }
}

// newTestOrder 构造限价单；price 传空串表示市价单
func newTestOrder(id int64, side Side, size int64, price string, opts ...orderOpt) *Order {
	o := &Order{
		OrderID:        id,
		SecuritySymbol: "AAPL",
		Side:           side,
		Size:           size,
		CreateDttm:     time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC).Add(time.Duration(id) * time.Second),
	}
	if price != "" {
		o.Price = px(price)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func TestProposeTrade(t *testing.T) {
	t.Run("incoming bid against resting ask trades at resting price", func(t *testing.T) {
		incoming := NewCycleOrder(newTestOrder(2, SideBid, 50, "105", withOwner(2)))
		candidate := NewCycleOrder(newTestOrder(1, SideAsk, 100, "100", withOwner(1), withActive()))

		tx := ProposeTrade(incoming, candidate)
		require.NotNil(t, tx)
		assert.Equal(t, int64(50), tx.Size)
		assert.True(t, tx.Price.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, int64(1), tx.AskID)
		assert.Equal(t, int64(2), tx.BidID)
		assert.Equal(t, int64(2), tx.AggressorOrderID)
		assert.Equal(t, int64(1), tx.RestingOrderID)
	})

	t.Run("incoming ask against resting bid trades at resting price", func(t *testing.T) {
		incoming := NewCycleOrder(newTestOrder(2, SideAsk, 30, "95", withOwner(2)))
		candidate := NewCycleOrder(newTestOrder(1, SideBid, 30, "100", withOwner(1), withActive()))

		tx := ProposeTrade(incoming, candidate)
		require.NotNil(t, tx)
		assert.Equal(t, int64(30), tx.Size)
		assert.True(t, tx.Price.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, int64(2), tx.AskID)
		assert.Equal(t, int64(1), tx.BidID)
		assert.Equal(t, int64(2), tx.AggressorOrderID)
		assert.Equal(t, int64(1), tx.RestingOrderID)
	})

	t.Run("market incoming takes resting price", func(t *testing.T) {
		incoming := NewCycleOrder(newTestOrder(2, SideBid, 10, "", withOwner(2)))
		candidate := NewCycleOrder(newTestOrder(1, SideAsk, 10, "42.5", withOwner(1), withActive()))

		tx := ProposeTrade(incoming, candidate)
		require.NotNil(t, tx)
		assert.True(t, tx.Price.Equal(decimal.RequireFromString("42.5")))
	})

	t.Run("no trade when either side has nothing left", func(t *testing.T) {
		incoming := NewCycleOrder(newTestOrder(2, SideBid, 10, "100"))
		incoming.Remaining = 0
		candidate := NewCycleOrder(newTestOrder(1, SideAsk, 10, "100", withActive()))
		assert.Nil(t, ProposeTrade(incoming, candidate))

		incoming.Remaining = 10
		candidate.Remaining = 0
		assert.Nil(t, ProposeTrade(incoming, candidate))
	})

	t.Run("resting all-or-none refuses partial fill", func(t *testing.T) {
		incoming := NewCycleOrder(newTestOrder(2, SideBid, 20, "3"))
		candidate := NewCycleOrder(newTestOrder(1, SideAsk, 100, "2", withAON(), withActive()))
		assert.Nil(t, ProposeTrade(incoming, candidate))
	})

	t.Run("resting all-or-none accepts complete fill", func(t *testing.T) {
		incoming := NewCycleOrder(newTestOrder(2, SideBid, 120, "3"))
		candidate := NewCycleOrder(newTestOrder(1, SideAsk, 100, "2", withAON(), withActive()))

		tx := ProposeTrade(incoming, candidate)
		require.NotNil(t, tx)
		assert.Equal(t, int64(100), tx.Size)
	})

	t.Run("incoming all-or-none is not enforced per trade", func(t *testing.T) {
		// 入场单的 AON 由撮合循环统一处理，单笔提议不受限
		incoming := NewCycleOrder(newTestOrder(2, SideBid, 120, "3", withAON()))
		candidate := NewCycleOrder(newTestOrder(1, SideAsk, 100, "2", withActive()))

		tx := ProposeTrade(incoming, candidate)
		require.NotNil(t, tx)
		assert.Equal(t, int64(100), tx.Size)
	})
}

func TestMatchSweepsBookInPriceOrder(t *testing.T) {
	now := time.Now().UTC()

	// 卖一 99 x 100，卖二 100 x 100；买单 120 @ 101 进场
	a1 := newTestOrder(1, SideAsk, 100, "100", withOwner(1), withActive())
	a2 := newTestOrder(2, SideAsk, 100, "99", withOwner(1), withActive())
	b1 := newTestOrder(3, SideBid, 120, "101", withOwner(2))

	mr, err := Match(b1, []*Order{a2, a1}, now)
	require.NoError(t, err)

	require.Len(t, mr.Transactions, 2)
	first, second := mr.Transactions[0], mr.Transactions[1]
	assert.Equal(t, int64(100), first.Size)
	assert.True(t, first.Price.Equal(decimal.NewFromInt(99)))
	assert.Equal(t, int64(2), first.AskID)
	assert.Equal(t, int64(3), first.BidID)
	assert.Equal(t, int64(20), second.Size)
	assert.True(t, second.Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(1), second.AskID)
	assert.Equal(t, int64(3), second.BidID)

	assert.Equal(t, []int64{2, 1}, mr.Deactivated)

	// 卖二被部分成交，剩余 80 以子单回簿
	require.NotNil(t, mr.Reactivated)
	assert.Equal(t, int64(80), mr.Reactivated.Size)
	assert.True(t, mr.Reactivated.Active)
	require.NotNil(t, mr.Reactivated.ParentOrderID)
	assert.Equal(t, int64(1), *mr.Reactivated.ParentOrderID)
	assert.True(t, mr.Reactivated.Price.Equal(decimal.NewFromInt(100)))

	// 买单全部成交
	assert.Nil(t, mr.IncomingRemain)
	assert.False(t, b1.Active)
}

func TestMatchIncomingAllOrNoneDiscardsPartialCycle(t *testing.T) {
	now := time.Now().UTC()

	a := newTestOrder(1, SideAsk, 100, "1", withOwner(1), withActive())
	b := newTestOrder(2, SideBid, 120, "2", withOwner(2), withAON())

	mr, err := Match(b, []*Order{a}, now)
	require.NoError(t, err)

	assert.Empty(t, mr.Transactions)
	assert.Empty(t, mr.Deactivated)
	assert.Nil(t, mr.Reactivated)

	// 买单原样挂入订单簿，卖单不受影响
	require.NotNil(t, mr.IncomingRemain)
	assert.Same(t, b, mr.IncomingRemain)
	assert.True(t, b.Active)
	assert.Nil(t, b.CancelledDttm)
}

func TestMatchSkipsRestingAllOrNoneItCannotFill(t *testing.T) {
	now := time.Now().UTC()

	aon := newTestOrder(1, SideAsk, 100, "2", withOwner(1), withAON(), withActive())
	plain := newTestOrder(2, SideAsk, 100, "1", withOwner(1), withActive())
	b := newTestOrder(3, SideBid, 120, "3", withOwner(2))

	// 候选按价格升序：先普通卖单，后 AON 卖单
	mr, err := Match(b, []*Order{plain, aon}, now)
	require.NoError(t, err)

	// 普通卖单全部成交；剩余 20 不足以吃掉 AON 卖单，后者保持原状
	require.Len(t, mr.Transactions, 1)
	assert.Equal(t, int64(100), mr.Transactions[0].Size)
	assert.True(t, mr.Transactions[0].Price.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, []int64{2}, mr.Deactivated)
	assert.Nil(t, mr.Reactivated)

	require.NotNil(t, mr.IncomingRemain)
	assert.NotSame(t, b, mr.IncomingRemain)
	assert.Equal(t, int64(20), mr.IncomingRemain.Size)
	assert.True(t, mr.IncomingRemain.Active)
	require.NotNil(t, mr.IncomingRemain.ParentOrderID)
	assert.Equal(t, int64(3), *mr.IncomingRemain.ParentOrderID)
}

func TestMatchImmediateOrCancelCancelsRemainder(t *testing.T) {
	now := time.Now().UTC()

	a := newTestOrder(1, SideAsk, 100, "2", withOwner(1), withActive())
	b := newTestOrder(2, SideBid, 120, "", withOwner(2), withIOC())

	mr, err := Match(b, []*Order{a}, now)
	require.NoError(t, err)

	require.Len(t, mr.Transactions, 1)
	assert.Equal(t, int64(100), mr.Transactions[0].Size)
	assert.True(t, mr.Transactions[0].Price.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, []int64{1}, mr.Deactivated)

	// 市价买单剩余 20 以子单表示并立即撤销
	require.NotNil(t, mr.IncomingRemain)
	assert.Equal(t, int64(20), mr.IncomingRemain.Size)
	assert.Nil(t, mr.IncomingRemain.Price)
	assert.False(t, mr.IncomingRemain.Active)
	require.NotNil(t, mr.IncomingRemain.CancelledDttm)
	assert.Equal(t, now, *mr.IncomingRemain.CancelledDttm)
}

func TestMatchAllOrNoneThenImmediateOrCancel(t *testing.T) {
	now := time.Now().UTC()

	// AON 无法全部成交时回退，IOC 接着撤销整张入场单
	a := newTestOrder(1, SideAsk, 100, "1", withOwner(1), withActive())
	b := newTestOrder(2, SideBid, 120, "2", withOwner(2), withAON(), withIOC())

	mr, err := Match(b, []*Order{a}, now)
	require.NoError(t, err)

	assert.Empty(t, mr.Transactions)
	assert.Empty(t, mr.Deactivated)
	require.NotNil(t, mr.IncomingRemain)
	assert.Same(t, b, mr.IncomingRemain)
	assert.False(t, b.Active)
	require.NotNil(t, b.CancelledDttm)
}

func TestMatchEmptyBook(t *testing.T) {
	now := time.Now().UTC()

	t.Run("limit order rests", func(t *testing.T) {
		b := newTestOrder(1, SideBid, 100, "10", withOwner(1))
		mr, err := Match(b, nil, now)
		require.NoError(t, err)

		assert.Empty(t, mr.Transactions)
		assert.Same(t, b, mr.IncomingRemain)
		assert.True(t, b.Active)
	})

	t.Run("immediate-or-cancel order is cancelled", func(t *testing.T) {
		b := newTestOrder(1, SideBid, 100, "", withOwner(1), withIOC())
		mr, err := Match(b, nil, now)
		require.NoError(t, err)

		assert.Empty(t, mr.Transactions)
		require.NotNil(t, mr.IncomingRemain)
		assert.Same(t, b, mr.IncomingRemain)
		assert.False(t, b.Active)
		assert.NotNil(t, b.CancelledDttm)
	})
}

func TestMatchAtMostOneReactivatedSuborder(t *testing.T) {
	now := time.Now().UTC()

	// 三个候选，最后一个被部分成交
	a1 := newTestOrder(1, SideAsk, 40, "1", withOwner(1), withActive())
	a2 := newTestOrder(2, SideAsk, 40, "2", withOwner(1), withActive())
	a3 := newTestOrder(3, SideAsk, 40, "3", withOwner(1), withActive())
	b := newTestOrder(4, SideBid, 100, "5", withOwner(2))

	mr, err := Match(b, []*Order{a1, a2, a3}, now)
	require.NoError(t, err)

	require.Len(t, mr.Transactions, 3)
	assert.Equal(t, int64(40), mr.Transactions[0].Size)
	assert.Equal(t, int64(40), mr.Transactions[1].Size)
	assert.Equal(t, int64(20), mr.Transactions[2].Size)
	assert.Equal(t, []int64{1, 2, 3}, mr.Deactivated)

	require.NotNil(t, mr.Reactivated)
	assert.Equal(t, int64(20), mr.Reactivated.Size)
	assert.Equal(t, int64(3), *mr.Reactivated.ParentOrderID)
	assert.Nil(t, mr.IncomingRemain)
}

func TestMatchSuborderSizesAddUp(t *testing.T) {
	now := time.Now().UTC()

	a := newTestOrder(1, SideAsk, 70, "2", withOwner(1), withActive())
	b := newTestOrder(2, SideBid, 50, "2", withOwner(2))

	mr, err := Match(b, []*Order{a}, now)
	require.NoError(t, err)

	require.Len(t, mr.Transactions, 1)
	require.NotNil(t, mr.Reactivated)
	// 成交量加子单量等于父单量
	assert.Equal(t, a.Size, mr.Transactions[0].Size+mr.Reactivated.Size)
	assert.Nil(t, mr.IncomingRemain)
}

func TestMatchIdempotentOnRedelivery(t *testing.T) {
	now := time.Now().UTC()

	// 上一次投递把入场单留在了已提交状态，重投时应在新快照上重放出相同结果
	a := newTestOrder(1, SideAsk, 100, "2", withOwner(1), withActive())
	b := newTestOrder(2, SideBid, 120, "", withOwner(2), withIOC())

	first, err := Match(b, []*Order{a}, now)
	require.NoError(t, err)
	require.NotNil(t, first.IncomingRemain)

	// b 此刻带着上一轮写回的 cancelled_dttm 与 active 标记
	aFresh := newTestOrder(1, SideAsk, 100, "2", withOwner(1), withActive())
	second, err := Match(b, []*Order{aFresh}, now)
	require.NoError(t, err)

	require.Len(t, second.Transactions, 1)
	assert.Equal(t, first.Transactions[0].Size, second.Transactions[0].Size)
	assert.True(t, first.Transactions[0].Price.Equal(second.Transactions[0].Price))
	assert.Equal(t, first.IncomingRemain.Size, second.IncomingRemain.Size)
	assert.False(t, second.IncomingRemain.Active)
	assert.NotNil(t, second.IncomingRemain.CancelledDttm)
}

func TestMatchRejectsBadCandidates(t *testing.T) {
	now := time.Now().UTC()

	t.Run("same owner", func(t *testing.T) {
		a := newTestOrder(1, SideAsk, 100, "2", withOwner(7), withActive())
		b := newTestOrder(2, SideBid, 100, "2", withOwner(7))

		_, err := Match(b, []*Order{a}, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvariantViolation)
	})

	t.Run("same side", func(t *testing.T) {
		a := newTestOrder(1, SideBid, 100, "2", withOwner(1), withActive())
		b := newTestOrder(2, SideBid, 100, "2", withOwner(2))

		_, err := Match(b, []*Order{a}, now)
		assert.ErrorIs(t, err, ErrInvariantViolation)
	})

	t.Run("different symbol", func(t *testing.T) {
		a := newTestOrder(1, SideAsk, 100, "2", withOwner(1), withActive())
		a.SecuritySymbol = "MSFT"
		b := newTestOrder(2, SideBid, 100, "2", withOwner(2))

		_, err := Match(b, []*Order{a}, now)
		assert.ErrorIs(t, err, ErrInvariantViolation)
	})

	t.Run("resting market order", func(t *testing.T) {
		a := newTestOrder(1, SideAsk, 100, "", withOwner(1), withActive())
		b := newTestOrder(2, SideBid, 100, "2", withOwner(2))

		_, err := Match(b, []*Order{a}, now)
		assert.ErrorIs(t, err, ErrInvariantViolation)
	})

	t.Run("ownerless orders never self-trade", func(t *testing.T) {
		// 撮合核心允许无主订单，无主之间不算自成交
		a := newTestOrder(1, SideAsk, 100, "2", withActive())
		b := newTestOrder(2, SideBid, 100, "2")

		mr, err := Match(b, []*Order{a}, now)
		require.NoError(t, err)
		assert.Len(t, mr.Transactions, 1)
	})
}

func TestMatchTransactionsCarryTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	a := newTestOrder(1, SideAsk, 100, "2", withOwner(1), withActive())
	b := newTestOrder(2, SideBid, 100, "2", withOwner(2))

	mr, err := Match(b, []*Order{a}, now)
	require.NoError(t, err)
	require.Len(t, mr.Transactions, 1)
	assert.Equal(t, now, mr.Transactions[0].TransactDttm)
}
