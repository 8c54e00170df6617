package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"candidate-evaluator/domain"
	"candidate-evaluator/infrastructure"
	"candidate-evaluator/metrics"
	"candidate-evaluator/workers"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue consumers",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runWorkers()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorkers() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting the workers", zap.String("version", version))

	db, err := infrastructure.NewMySQL(cfg.DB.DSN)
	if err != nil {
		logger.Error("connecting to database", zap.Error(err))
		return err
	}
	store := infrastructure.NewStore(db)

	broker, err := infrastructure.NewBroker(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Error("connecting to rabbitmq", zap.Error(err))
		return err
	}
	defer broker.Close()

	aiClient, err := newAIClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("building ai client", zap.Error(err))
		return err
	}

	retriever := infrastructure.NewChromaRetriever(cfg.Chroma.URL, cfg.Chroma.Collection, aiClient, logger)
	extractor := infrastructure.NewFileExtractor(logger)

	extraction := workers.NewExtractionWorker(store, extractor, logger)
	evaluation := workers.NewEvaluationWorker(store, aiClient, retriever, retryPolicy(cfg), logger)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers.Extract; i++ {
		tag := fmt.Sprintf("extract-%d", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			broker.Consume(ctx, infrastructure.QueueExtract, tag, extraction.Handle)
		}()
	}
	for i := 0; i < cfg.Workers.Evaluate; i++ {
		tag := fmt.Sprintf("evaluate-%d", i+1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			broker.Consume(ctx, infrastructure.QueueEvaluate, tag, evaluation.Handle)
		}()
	}

	logger.Info("consumers running",
		zap.Int("extract", cfg.Workers.Extract),
		zap.Int("evaluate", cfg.Workers.Evaluate))

	reaper := cron.New()
	_, err = reaper.AddFunc("@every 1m", func() {
		requeueStale(ctx, cfg, store, broker, logger)
	})
	if err != nil {
		logger.Error("scheduling stale job reaper", zap.Error(err))
		return err
	}
	reaper.Start()
	defer reaper.Stop()

	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()
	return nil
}

// requeueStale recovers jobs stuck in processing, for example after a worker
// crash took its unacked delivery down with the connection, and puts them
// back on the evaluation queue.
func requeueStale(ctx context.Context, cfg *infrastructure.Config, store *infrastructure.Store, broker *infrastructure.Broker, logger *zap.Logger) {
	jobs, err := store.RequeueStale(ctx, cfg.Workers.StaleThreshold)
	if err != nil {
		logger.Warn("stale job sweep failed", zap.Error(err))
		return
	}

	for _, job := range jobs {
		msg := domain.EvaluateMessage{
			JobID:       job.ID,
			CVText:      domain.Text(job.CVText),
			ProjectText: domain.Text(job.ProjectText),
		}
		if err := broker.Publish(ctx, infrastructure.QueueEvaluate, msg); err != nil {
			logger.Warn("republishing stale job failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		metrics.StaleJobsRequeued.Inc()
		logger.Info("requeued stale job", zap.String("job_id", job.ID))
	}
}
