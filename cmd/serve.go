package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"candidate-evaluator/infrastructure"
	"candidate-evaluator/interfaces"
)

// contextCorpus is the grounding material seeded into the retrieval store at
// startup. Evaluation workers pull the relevant snippets from it per job.
var contextCorpus = []string{
	`Job description: Backend Engineer. We are looking for an engineer to design and run
server-side products. Responsibilities include building REST APIs and backend services,
managing databases (MySQL or PostgreSQL), integrating with third-party and LLM APIs,
designing asynchronous job pipelines with message queues, and operating services in the
cloud. Strong candidates show ownership of production systems, awareness of security and
performance, and curiosity about applying LLMs to product features.`,

	`Case study brief: build a backend service that accepts a candidate CV and a project
report, evaluates both against the job requirements using an LLM, and exposes the result
through an asynchronous API. The service must handle long-running evaluation without
blocking the request, survive worker restarts, and control for unreliable LLM output.`,

	`Project evaluation rubric. Correctness (30%): prompt design, LLM chaining and context
injection match the brief. Code quality (25%): clean, modular, reusable, tested code.
Resilience (20%): handles failures, retries transient errors, long jobs do not lose work.
Documentation (15%): clear README with setup instructions and trade-off explanations.
Creativity (10%): improvements beyond the core requirements. CV rubric: technical skills
match (40%), experience level (25%), relevant achievements (20%), cultural fit (15%).`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API producer",
	RunE: func(_ *cobra.Command, _ []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting the api server", zap.String("version", version))

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
	if err := retriever.Seed(ctx, contextCorpus); err != nil {
		// The API can still take uploads; evaluations fail until the
		// retrieval store is reachable and seeded.
		logger.Warn("seeding context collection failed", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		logger.Error("creating uploads dir", zap.Error(err))
		return err
	}

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	interfaces.NewHTTPHandler(router, store, broker, cfg.Uploads.Dir, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("http server failed", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
