package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xuganyu96/chives-exchange/internal/benchmark"
	"github.com/xuganyu96/chives-exchange/internal/engine/infrastructure/persistence"
	"github.com/xuganyu96/chives-exchange/pkg/logger"
	"github.com/xuganyu96/chives-exchange/pkg/mq"
)

var (
	benchRounds     int
	benchQueueHost  string
	benchSkipVerify bool
)

func newBenchmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Reset the database and run an end to end matching benchmark",
		Long: "Drops and recreates the exchange schema, seeds a buyer and a seller, " +
			"then submits paired ask/bid orders to the incoming order queue. " +
			"At least one matching engine must be running against the same " +
			"database and queue for the benchmark to drain.",
		RunE: runBenchmark,
	}
	cmd.Flags().IntVarP(&benchRounds, "rounds", "n", 100,
		"number of ask/bid pairs to submit")
	cmd.Flags().StringVarP(&benchQueueHost, "queue-host", "q", "",
		"RabbitMQ host, overrides config file and environment")
	cmd.Flags().BoolVar(&benchSkipVerify, "skip-verify", false,
		"submit orders without waiting for quiescence or verifying integrity")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if benchQueueHost != "" {
		cfg.Queue.Host = benchQueueHost
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer d.Close()

	// 基准测试以空库为前提
	if err := persistence.Reset(d); err != nil {
		return fmt.Errorf("failed to reset schema: %w", err)
	}
	logger.Info(ctx, "Database schema dropped and recreated", "driver", d.Driver())

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

	runner := benchmark.NewRunner(persistence.NewStore(d), client, benchmark.Config{
		Rounds:     benchRounds,
		SkipVerify: benchSkipVerify,
	})
	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info(ctx, "Benchmark finished",
		"rounds", res.Rounds,
		"orders", res.OrdersSubmitted,
		"shares_injected", res.SharesInjected,
		"duration", res.Duration.String(),
		"failed_checks", len(res.Errors))
	for _, msg := range res.Errors {
		logger.Error(ctx, "Benchmark check failed", "check", msg)
	}
	if !benchSkipVerify && len(res.Errors) > 0 {
		return fmt.Errorf("%d benchmark integrity checks failed", len(res.Errors))
	}
	return nil
}
