package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xuganyu96/chives-exchange/internal/engine/application"
	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/internal/engine/infrastructure/messaging"
	"github.com/xuganyu96/chives-exchange/internal/engine/infrastructure/persistence"
	"github.com/xuganyu96/chives-exchange/pkg/db"
	"github.com/xuganyu96/chives-exchange/pkg/metrics"
)

// engineQueue 零延迟工作队列：投递即解码并同步交给内嵌的撮合服务
type engineQueue struct {
	svc *application.EngineService
}

func (q *engineQueue) Publish(ctx context.Context, body []byte) error {
	o, err := domain.DecodeOrder(body)
	if err != nil {
		return err
	}
	return q.svc.HandleOrder(ctx, o)
}

func (q *engineQueue) QueueDepth() (int, error) { return 0, nil }

// stuckQueue 接收投递但深度永不归零，用于触发静默超时
type stuckQueue struct{}

func (stuckQueue) Publish(ctx context.Context, body []byte) error { return nil }

func (stuckQueue) QueueDepth() (int, error) { return 1, nil }

func newBenchStore(t *testing.T) *persistence.Store {
	t.Helper()
	uri := fmt.Sprintf("sqlite:///%s", filepath.Join(t.TempDir(), "benchmark.sqlite"))
	d, err := db.Init(db.Config{URI: uri, MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: 60})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, persistence.Reset(d))
	return persistence.NewStore(d)
}

func newBenchRunner(t *testing.T, cfg Config) (*Runner, *persistence.Store) {
	t.Helper()
	store := newBenchStore(t)
	svc := application.NewEngineService(store,
		messaging.NewOutboxPublisher(store.Outbox()), metrics.New("benchmark_test"), application.Config{})
	return NewRunner(store, &engineQueue{svc: svc}, cfg), store
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner(nil, nil, Config{})
	assert.Equal(t, 1, r.cfg.Rounds)
	assert.Equal(t, defaultWaitTimeout, r.cfg.WaitTimeout)
	assert.Equal(t, defaultPollInterval, r.cfg.PollInterval)
}

func TestBenchmarkRunSettlesCleanly(t *testing.T) {
	const rounds = 20
	r, store := newBenchRunner(t, Config{Rounds: rounds, WaitTimeout: 10 * time.Second, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, rounds, res.Rounds)
	assert.Equal(t, 2*rounds, res.OrdersSubmitted)
	assert.Positive(t, res.SharesInjected)

	// 每轮买单恰好吃掉同轮卖单，一轮一笔成交
	txs, err := store.Transactions().List(ctx, benchSymbol)
	require.NoError(t, err)
	assert.Len(t, txs, rounds)

	heartbeats, err := store.EngineLogs().CountByMessage(ctx, domain.HeartbeatFinishedMsg)
	require.NoError(t, err)
	assert.Equal(t, int64(2*rounds), heartbeats)

	buyer, err := store.Users().GetByUsername(ctx, benchBuyer)
	require.NoError(t, err)
	seller, err := store.Users().GetByUsername(ctx, benchSeller)
	require.NoError(t, err)

	buyerShares, err := r.balance(ctx, buyer.UserID, benchSymbol)
	require.NoError(t, err)
	assert.True(t, buyerShares.Equal(decimal.NewFromInt(res.SharesInjected)),
		"buyer holds %s of %d injected shares", buyerShares, res.SharesInjected)
	sellerShares, err := r.balance(ctx, seller.UserID, benchSymbol)
	require.NoError(t, err)
	assert.True(t, sellerShares.IsZero(), "seller still holds %s shares", sellerShares)

	buyerCash, err := r.balance(ctx, buyer.UserID, domain.CashSymbol)
	require.NoError(t, err)
	sellerCash, err := r.balance(ctx, seller.UserID, domain.CashSymbol)
	require.NoError(t, err)
	assert.True(t, buyerCash.Add(sellerCash).Equal(seedCash.Mul(decimal.NewFromInt(2))),
		"cash drifted: buyer %s, seller %s", buyerCash, sellerCash)
}

func TestBenchmarkVerifyFlagsTamperedCash(t *testing.T) {
	r, store := newBenchRunner(t, Config{Rounds: 3, WaitTimeout: 10 * time.Second, PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	res, err := r.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	buyer, err := store.Users().GetByUsername(ctx, benchBuyer)
	require.NoError(t, err)
	require.NoError(t, store.Assets().Credit(ctx, buyer.UserID, domain.CashSymbol,
		decimal.RequireFromString("0.01")))

	failures, err := r.verify(ctx, res.SharesInjected, int64(res.OrdersSubmitted))
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "cash not conserved")
}

func TestBenchmarkSkipVerifyReturnsWithoutWaiting(t *testing.T) {
	store := newBenchStore(t)
	r := NewRunner(store, stuckQueue{}, Config{Rounds: 2, SkipVerify: true})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.OrdersSubmitted)
	assert.Equal(t, []string{"skipped integrity verification"}, res.Errors)
}

func TestBenchmarkWaitQuiescentTimeout(t *testing.T) {
	store := newBenchStore(t)
	r := NewRunner(store, stuckQueue{}, Config{Rounds: 1, WaitTimeout: 60 * time.Millisecond, PollInterval: 10 * time.Millisecond})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not quiesce")
}
