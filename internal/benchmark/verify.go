package benchmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
)

// waitQuiescent 轮询队列深度与引擎心跳日志，直到队列排空且
// 心跳行数达到投递的消息数。超过 WaitTimeout 仍未静默则报错
func (r *Runner) waitQuiescent(ctx context.Context, submitted int64) error {
	deadline := time.NewTimer(r.cfg.WaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		depth, err := r.queue.QueueDepth()
		if err != nil {
			return fmt.Errorf("failed to check queue depth: %w", err)
		}
		heartbeats, err := r.store.EngineLogs().CountByMessage(ctx, domain.HeartbeatFinishedMsg)
		if err != nil {
			return fmt.Errorf("failed to count heartbeats: %w", err)
		}
		if depth == 0 && heartbeats >= submitted {
			return nil
		}
		logger.Debug(ctx, "Waiting for engine quiescence",
			"queue_depth", depth, "heartbeats", heartbeats, "expected", submitted)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("engine did not quiesce within %s: %d messages in queue, %d/%d heartbeats",
				r.cfg.WaitTimeout, depth, heartbeats, submitted)
		case <-ticker.C:
		}
	}
}

// verify 核对引擎静默后的账面状态：
//  1. 心跳日志行数恰好等于投递的消息数；
//  2. 买卖双方现金合计等于注入的现金总量；
//  3. 买方持股、卖方持股与簿上托管挂单量合计等于注入的股份总量；
//  4. 买方的每一股都对应一笔成交；
//  5. 公司市价等于最后一笔成交价。
// 基础设施故障通过 error 返回，校验不通过项以文本形式收集返回
func (r *Runner) verify(ctx context.Context, injected, submitted int64) ([]string, error) {
	var failures []string

	heartbeats, err := r.store.EngineLogs().CountByMessage(ctx, domain.HeartbeatFinishedMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to count heartbeats: %w", err)
	}
	if heartbeats != submitted {
		failures = append(failures,
			fmt.Sprintf("expected %d heartbeat log rows, found %d", submitted, heartbeats))
	}

	buyer, err := r.store.Users().GetByUsername(ctx, benchBuyer)
	if err != nil {
		return nil, fmt.Errorf("failed to load buyer: %w", err)
	}
	seller, err := r.store.Users().GetByUsername(ctx, benchSeller)
	if err != nil {
		return nil, fmt.Errorf("failed to load seller: %w", err)
	}

	buyerCash, err := r.balance(ctx, buyer.UserID, domain.CashSymbol)
	if err != nil {
		return nil, err
	}
	sellerCash, err := r.balance(ctx, seller.UserID, domain.CashSymbol)
	if err != nil {
		return nil, err
	}
	totalCash := buyerCash.Add(sellerCash)
	wantCash := seedCash.Mul(decimal.NewFromInt(2))
	if !totalCash.Equal(wantCash) {
		failures = append(failures,
			fmt.Sprintf("cash not conserved: buyer %s + seller %s = %s, want %s",
				buyerCash, sellerCash, totalCash, wantCash))
	}

	buyerShares, err := r.balance(ctx, buyer.UserID, benchSymbol)
	if err != nil {
		return nil, err
	}
	sellerShares, err := r.balance(ctx, seller.UserID, benchSymbol)
	if err != nil {
		return nil, err
	}
	open, err := r.openAskInterest(ctx)
	if err != nil {
		return nil, err
	}
	totalShares := buyerShares.Add(sellerShares).Add(decimal.NewFromInt(open))
	if !totalShares.Equal(decimal.NewFromInt(injected)) {
		failures = append(failures,
			fmt.Sprintf("shares not conserved: buyer %s + seller %s + book %d = %s, want %d",
				buyerShares, sellerShares, open, totalShares, injected))
	}

	txs, err := r.store.Transactions().List(ctx, benchSymbol)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	var traded int64
	for _, t := range txs {
		traded += t.Size
	}
	if !buyerShares.Equal(decimal.NewFromInt(traded)) {
		failures = append(failures,
			fmt.Sprintf("buyer holds %s shares but transactions account for %d", buyerShares, traded))
	}

	if len(txs) > 0 {
		company, err := r.store.Companies().Get(ctx, benchSymbol)
		if err != nil {
			return nil, fmt.Errorf("failed to load company: %w", err)
		}
		last := txs[len(txs)-1].Price
		if !company.MarketPrice.Equal(last) {
			failures = append(failures,
				fmt.Sprintf("market price %s does not match last transaction price %s",
					company.MarketPrice, last))
		}
	}

	return failures, nil
}

// balance 返回持仓数量，持仓行不存在视为零
func (r *Runner) balance(ctx context.Context, ownerID int64, symbol string) (decimal.Decimal, error) {
	a, err := r.store.Assets().Get(ctx, ownerID, symbol)
	if errors.Is(err, domain.ErrAssetNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load %s balance of user %d: %w", symbol, ownerID, err)
	}
	return a.AssetAmount, nil
}

// openAskInterest 用一个无主市价买单探针取回簿上全部活跃卖单，
// 其挂单量之和即仍托管在订单簿里的股份
func (r *Runner) openAskInterest(ctx context.Context) (int64, error) {
	probe := &domain.Order{SecuritySymbol: benchSymbol, Side: domain.SideBid, Size: 1}
	asks, err := r.store.Orders().Candidates(ctx, probe)
	if err != nil {
		return 0, fmt.Errorf("failed to list open asks: %w", err)
	}
	var open int64
	for _, ask := range asks {
		open += ask.Size
	}
	return open, nil
}
