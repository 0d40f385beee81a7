package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xuganyu96/chives-exchange/internal/engine/application"
	"github.com/xuganyu96/chives-exchange/internal/engine/domain"
	"github.com/xuganyu96/chives-exchange/internal/engine/infrastructure/messaging"
	"github.com/xuganyu96/chives-exchange/internal/engine/infrastructure/persistence"
	"github.com/xuganyu96/chives-exchange/internal/engine/interfaces/consumer"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
	"github.com/xuganyu96/chives-exchange/pkg/metrics"
	"github.com/xuganyu96/chives-exchange/pkg/mq"
)

var (
	engineQueueHost string
	engineDryRun    bool
)

func newStartEngineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start_engine",
		Short: "Start a matching engine consuming the incoming order queue",
		RunE:  runStartEngine,
	}
	cmd.Flags().StringVarP(&engineQueueHost, "queue-host", "q", "",
		"RabbitMQ host, overrides config file and environment")
	cmd.Flags().BoolVar(&engineDryRun, "dry-run", false,
		"consume and acknowledge messages without matching")
	return cmd
}

func runStartEngine(cmd *cobra.Command, args []string) error {
	// 1. 配置与日志
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if engineQueueHost != "" {
		cfg.Queue.Host = engineQueueHost
	}
	if engineDryRun {
		cfg.Engine.DryRun = true
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// 消费循环退出后由 cancel 统一收掉中继等后台协程
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info(ctx, "Starting matching engine",
		"queue", cfg.Queue.QueueName, "dry_run", cfg.Engine.DryRun,
		"ignore_user_logic", cfg.Engine.IgnoreUserLogic)

	// 2. 数据库与存储
	d, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer d.Close()
	store := persistence.NewStore(d)

	// 3. 指标
	m := metrics.New("engine")
	if err := m.Register(); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	// 4. 成交事件外发：启用 Kafka 时走事务性发件箱加中继，否则丢弃
	var publisher domain.EventPublisher = messaging.NopPublisher{}
	var relayWG sync.WaitGroup
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			return fmt.Errorf("failed to create kafka producer: %w", err)
		}
		defer producer.Close()

		publisher = messaging.NewOutboxPublisher(store.Outbox())
		relay := messaging.NewRelay(store.Outbox(), producer,
			time.Duration(cfg.Kafka.RelayInterval)*time.Millisecond, m)
		relayWG.Add(1)
		go func() {
			defer relayWG.Done()
			if err := relay.Run(runCtx); err != nil {
				logger.Error(runCtx, "Outbox relay stopped", "error", err)
			}
		}()
	}

	// 5. 撮合服务
	svc := application.NewEngineService(store, publisher, m, application.Config{
		IgnoreUserLogic:  cfg.Engine.IgnoreUserLogic,
		MaxCommitRetries: cfg.Engine.MaxCommitRetries,
		RetryBackoff:     time.Duration(cfg.Engine.RetryBackoff) * time.Millisecond,
	})

	// 6. 队列连接
	client, err := mq.NewRabbitClient(mq.RabbitConfig{
		Host:          cfg.Queue.Host,
		Port:          cfg.Queue.Port,
		VHost:         cfg.Queue.VHost,
		Login:         cfg.Queue.Login,
		Password:      cfg.Queue.Password,
		QueueName:     cfg.Queue.QueueName,
		PrefetchCount: cfg.Queue.PrefetchCount,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer client.Close()

	// 7. 消费循环，阻塞到退出信号或连接断开
	consumeErr := consumer.New(client, svc, m, cfg.Engine.DryRun).Run(runCtx)
	cancel()
	relayWG.Wait()

	if consumeErr != nil {
		return fmt.Errorf("consumer stopped: %w", consumeErr)
	}
	logger.Info(context.Background(), "Matching engine stopped")
	return nil
}
