// Package application 撮合引擎的应用服务层。
// 驱动撮合循环，把结果在单一数据库事务内提交，并通过发件箱对外发布成交事件
package application

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
)

// Committer 把一次撮合循环的结果写入存储。
// 全部写入发生在调用方传入的事务 ctx 内，要么全部生效要么全部回滚
type Committer struct {
	store           domain.EngineStore
	publisher       domain.EventPublisher
	ignoreUserLogic bool
	hostname        string
	pid             int
}

// NewCommitter 创建提交器。ignoreUserLogic 为 true 时跳过记账、
// 市价更新与退款，只维护订单簿本身
func NewCommitter(store domain.EngineStore, publisher domain.EventPublisher, ignoreUserLogic bool) *Committer {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Committer{
		store:           store,
		publisher:       publisher,
		ignoreUserLogic: ignoreUserLogic,
		hostname:        hostname,
		pid:             os.Getpid(),
	}
}

// Commit 按固定顺序落库：
//  1. 入场订单本体（active、cancelled_dttm 等变更）
//  2. 入场订单的剩余子单（与本体不同才新建）
//  3. 成交的被动单置为非活跃
//  4. 被动单的剩余子单
//  5. 逐笔成交：插入成交记录、交换买卖双方资产、更新市价、发布成交事件
//  6. 被撤销的卖单剩余把托管股份退回卖家
//  7. 心跳完成日志
func (c *Committer) Commit(ctx context.Context, mr *domain.MatchResult) error {
	if err := c.store.Orders().Save(ctx, mr.Incoming); err != nil {
		return err
	}

	if mr.IncomingRemain != nil && mr.IncomingRemain != mr.Incoming {
		if err := c.store.Orders().Create(ctx, mr.IncomingRemain); err != nil {
			return err
		}
	}

	if err := c.store.Orders().Deactivate(ctx, mr.Deactivated); err != nil {
		return err
	}

	if mr.Reactivated != nil {
		if err := c.store.Orders().Create(ctx, mr.Reactivated); err != nil {
			return err
		}
	}

	for _, t := range mr.Transactions {
		if err := c.store.Transactions().Create(ctx, t); err != nil {
			return err
		}
		if !c.ignoreUserLogic {
			if err := c.exchangeAssets(ctx, t); err != nil {
				return err
			}
			if err := c.store.Companies().SetMarketPrice(ctx, t.SecuritySymbol, t.Price); err != nil {
				return err
			}
		}
		if err := c.publisher.PublishInTx(ctx, domain.TopicTradeExecuted,
			t.SecuritySymbol, domain.NewTradeExecuted(t)); err != nil {
			return err
		}
	}

	if !c.ignoreUserLogic {
		if err := c.refundCancelledRemain(ctx, mr); err != nil {
			return err
		}
	}

	return c.store.EngineLogs().Append(ctx,
		domain.NewEngineLog(c.hostname, c.pid, domain.HeartbeatFinishedMsg))
}

// exchangeAssets 按成交交换买卖双方的资产。
// 卖方只收现金，股份在下单时已被托管扣除；
// 买方得股付现金，现金账户必须已存在，股票账户没有则开
func (c *Committer) exchangeAssets(ctx context.Context, t *domain.Transaction) error {
	ask, err := c.store.Orders().Get(ctx, t.AskID)
	if err != nil {
		return err
	}
	bid, err := c.store.Orders().Get(ctx, t.BidID)
	if err != nil {
		return err
	}
	if ask.OwnerID == nil {
		return fmt.Errorf("%w: ask order %d has no owner", domain.ErrUserNotFound, ask.OrderID)
	}
	if bid.OwnerID == nil {
		return fmt.Errorf("%w: bid order %d has no owner", domain.ErrUserNotFound, bid.OrderID)
	}

	volume := t.CashVolume()
	if err := c.store.Assets().Credit(ctx, *ask.OwnerID, domain.CashSymbol, volume); err != nil {
		return err
	}
	if err := c.store.Assets().Deposit(ctx, *bid.OwnerID, t.SecuritySymbol, decimal.NewFromInt(t.Size)); err != nil {
		return err
	}
	return c.store.Assets().Credit(ctx, *bid.OwnerID, domain.CashSymbol, volume.Neg())
}

// refundCancelledRemain 入场卖单未成交的剩余被撤销时，
// 把对应托管的股份退回卖家账户
func (c *Committer) refundCancelledRemain(ctx context.Context, mr *domain.MatchResult) error {
	remain := mr.IncomingRemain
	if mr.Incoming.Side != domain.SideAsk || remain == nil || remain.CancelledDttm == nil {
		return nil
	}
	if remain.OwnerID == nil {
		return fmt.Errorf("%w: cancelled ask %d has no owner to refund",
			domain.ErrUserNotFound, mr.Incoming.OrderID)
	}
	return c.store.Assets().Credit(ctx, *remain.OwnerID, remain.SecuritySymbol,
		decimal.NewFromInt(remain.Size))
}
