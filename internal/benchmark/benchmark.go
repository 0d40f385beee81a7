// Package benchmark 撮合引擎端到端基准测试。
// 重建后的数据库里造出买卖双方与基准证券，按轮成对投递限价卖单
// 与市价买单，等待引擎静默后核对账目守恒与成交完整性
package benchmark

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
	"github.com/xuganyu96/chives-exchange/pkg/utils"
)

// 基准工作负载参数
const (
	benchSymbol   = "BENCH"
	benchBuyer    = "buyer"
	benchSeller   = "seller"
	minSize       = 1
	maxSize       = 100
	minPriceCents = 1000
	maxPriceCents = 9999
)

// 静默等待缺省值
const (
	defaultWaitTimeout  = 5 * time.Minute
	defaultPollInterval = 200 * time.Millisecond
)

// seedCash 买卖双方的初始现金
var seedCash = decimal.NewFromInt(10000000)

// Queue 订单投递通道，由 RabbitMQ 工作队列实现
type Queue interface {
	// Publish 投递一条订单消息
	Publish(ctx context.Context, body []byte) error
	// QueueDepth 返回队列中尚未被消费的消息数
	QueueDepth() (int, error)
}

// Config 基准测试配置
type Config struct {
	// 投递轮数，每轮一条卖单加一条买单
	Rounds int
	// 只投递不校验，全部消息提交后立即返回
	SkipVerify bool
	// 等待引擎静默的上限
	WaitTimeout time.Duration
	// 静默轮询间隔
	PollInterval time.Duration
}

// Result 基准测试结果
type Result struct {
	// 投递轮数
	Rounds int
	// 投递的订单消息数
	OrdersSubmitted int
	// 注入卖方的股份总量
	SharesInjected int64
	// 从首轮投递到引擎静默的耗时
	Duration time.Duration
	// 未通过的校验项，为空表示账目全部守恒
	Errors []string
}

// Runner 基准测试执行器。
// 只负责造数、投递与校验，撮合引擎进程需另行启动
type Runner struct {
	store domain.EngineStore
	queue Queue
	cfg   Config
}

// NewRunner 创建基准测试执行器
func NewRunner(store domain.EngineStore, queue Queue, cfg Config) *Runner {
	if cfg.Rounds < 1 {
		cfg.Rounds = 1
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Runner{store: store, queue: queue, cfg: cfg}
}

// Run 执行完整的基准流程：造数、逐轮投递、等待静默、校验。
// 基础设施故障通过 error 返回，账目校验不通过记录在 Result.Errors
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	setup, err := r.seed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to seed benchmark data: %w", err)
	}
	logger.Info(ctx, "Benchmark data seeded",
		"rounds", r.cfg.Rounds, "symbol", benchSymbol, "cash", seedCash.String())

	start := time.Now()
	var injected int64
	for i := 0; i < r.cfg.Rounds; i++ {
		size, err := r.submitRound(ctx, setup)
		if err != nil {
			return nil, fmt.Errorf("failed to submit round %d: %w", i+1, err)
		}
		injected += size
	}
	submitted := 2 * r.cfg.Rounds
	logger.Info(ctx, "All order messages submitted",
		"orders", submitted, "shares_injected", injected)

	if r.cfg.SkipVerify {
		logger.Info(ctx, "Skipped integrity verification")
		return &Result{
			Rounds:          r.cfg.Rounds,
			OrdersSubmitted: submitted,
			SharesInjected:  injected,
			Errors:          []string{"skipped integrity verification"},
		}, nil
	}

	if err := r.waitQuiescent(ctx, int64(submitted)); err != nil {
		return nil, err
	}
	duration := time.Since(start)

	checkErrs, err := r.verify(ctx, injected, int64(submitted))
	if err != nil {
		return nil, err
	}
	return &Result{
		Rounds:          r.cfg.Rounds,
		OrdersSubmitted: submitted,
		SharesInjected:  injected,
		Duration:        duration,
		Errors:          checkErrs,
	}, nil
}

// benchSetup 造数阶段产出的初始实体
type benchSetup struct {
	buyer   *domain.User
	seller  *domain.User
	company *domain.Company
}

// seed 创建买卖双方、基准公司，并为双方注入初始现金
func (r *Runner) seed(ctx context.Context) (*benchSetup, error) {
	buyer := &domain.User{Username: benchBuyer, PasswordHash: utils.SHA256Hash("password")}
	if err := r.store.Users().Create(ctx, buyer); err != nil {
		return nil, fmt.Errorf("failed to create buyer: %w", err)
	}
	seller := &domain.User{Username: benchSeller, PasswordHash: utils.SHA256Hash("password")}
	if err := r.store.Users().Create(ctx, seller); err != nil {
		return nil, fmt.Errorf("failed to create seller: %w", err)
	}

	company := &domain.Company{
		Symbol:       benchSymbol,
		Name:         benchSymbol,
		InitialValue: decimal.NewFromInt(10000),
		InitialSize:  10000,
		FounderID:    &seller.UserID,
		MarketPrice:  decimal.NewFromInt(1),
	}
	if err := r.store.Companies().Save(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}

	for _, u := range []*domain.User{buyer, seller} {
		if err := r.store.Assets().Deposit(ctx, u.UserID, domain.CashSymbol, seedCash); err != nil {
			return nil, fmt.Errorf("failed to seed cash for %s: %w", u.Username, err)
		}
	}
	return &benchSetup{buyer: buyer, seller: seller, company: company}, nil
}

// submitRound 执行一轮投递：为卖方注入随机数量的股份并立即托管冻结，
// 然后落库一条限价卖单和一条等量的市价立即成交否则撤销买单，
// 逐条编码后投递到队列。返回本轮注入的股份数
func (r *Runner) submitRound(ctx context.Context, setup *benchSetup) (int64, error) {
	size := int64(utils.RandInt(minSize, maxSize))
	price := decimal.New(int64(utils.RandInt(minPriceCents, maxPriceCents)), -2)

	if err := r.store.Assets().Deposit(ctx, setup.seller.UserID, benchSymbol,
		decimal.NewFromInt(size)); err != nil {
		return 0, fmt.Errorf("failed to inject shares: %w", err)
	}
	if err := r.store.Assets().Credit(ctx, setup.seller.UserID, benchSymbol,
		decimal.NewFromInt(-size)); err != nil {
		return 0, fmt.Errorf("failed to escrow shares: %w", err)
	}

	now := time.Now().UTC()
	ask := &domain.Order{
		SecuritySymbol: benchSymbol,
		Side:           domain.SideAsk,
		Size:           size,
		Price:          &price,
		OwnerID:        &setup.seller.UserID,
		CreateDttm:     now,
	}
	bid := &domain.Order{
		SecuritySymbol:    benchSymbol,
		Side:              domain.SideBid,
		Size:              size,
		ImmediateOrCancel: true,
		OwnerID:           &setup.buyer.UserID,
		CreateDttm:        now,
	}
	for _, o := range []*domain.Order{ask, bid} {
		// 消息体要求带订单 ID，先落库取号再投递
		if err := r.store.Orders().Create(ctx, o); err != nil {
			return 0, fmt.Errorf("failed to insert order: %w", err)
		}
		body, err := domain.EncodeOrder(o)
		if err != nil {
			return 0, err
		}
		if err := r.queue.Publish(ctx, body); err != nil {
			return 0, fmt.Errorf("failed to publish order %d: %w", o.OrderID, err)
		}
	}
	return size, nil
}
