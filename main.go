package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/textract"
	_ "github.com/lib/pq"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muhammadolammi/proofbriefworker/internal/briefs"
	"github.com/muhammadolammi/proofbriefworker/internal/config"
	"github.com/muhammadolammi/proofbriefworker/internal/evidence"
	"github.com/muhammadolammi/proofbriefworker/internal/ingest"
	"github.com/muhammadolammi/proofbriefworker/internal/llm"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
	"github.com/muhammadolammi/proofbriefworker/internal/pipeline"
	"github.com/muhammadolammi/proofbriefworker/internal/queue"
	"github.com/muhammadolammi/proofbriefworker/internal/skills"
	"github.com/muhammadolammi/proofbriefworker/internal/storage"
	"github.com/muhammadolammi/proofbriefworker/internal/synth"
)

const helperTemperature = 0.2

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	zlog, err := logger.New(logger.Options{JSON: cfg.Log.JSON, Debug: cfg.Log.Debug, Service: "proofbrief-worker"})
	if err != nil {
		log.Fatalf("error creating logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil {
		zlog.Error("worker stopped with error", zap.Error(err))
		os.Exit(1)
	}
	zlog.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, zlog *zap.Logger) error {
	db, err := sql.Open("postgres", cfg.DBURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	baseAWS, storeAWS, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	objects := storage.NewS3Store(newS3Client(storeAWS, cfg), cfg.Storage.Bucket)

	helperModel, err := llm.NewGenaiGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, helperTemperature, zlog)
	if err != nil {
		return err
	}
	synthesisAgent, err := llm.NewAgentGenerator(ctx, llm.AgentConfig{
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.SynthesisModel,
		Name:        "brief_synthesizer",
		Description: "Writes evidence-justified hiring briefs.",
		Instruction: synth.Instruction,
		Temperature: synth.Temperature,
	}, zlog)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	publisher := queue.NewPublisher(queue.ConnDialer(conn), cfg.RabbitMQ.Queue, cfg.RabbitMQ.Exchange, zlog)

	ingestor := ingest.New(textract.NewFromConfig(baseAWS), objects, zlog)
	ingestor.PollInterval = cfg.Pipeline.PollInterval
	ingestor.MaxWait = cfg.Pipeline.MaxOCRWait

	coordinator := pipeline.NewCoordinator(pipeline.Deps{
		Repo:      pipeline.NewPostgresRepository(db),
		Objects:   objects,
		Ingester:  ingestor,
		GitHub:    githubFactory(cfg, zlog),
		Token:     githubTokenFetcher(baseAWS, cfg),
		Skills:    skills.NewExtractor(helperModel, zlog),
		Selector:  evidence.NewSelector(helperModel, zlog),
		Synth:     synth.New(synthesisAgent, zlog),
		Publisher: publisher,
	}, zlog)
	coordinator.Timeout = cfg.Pipeline.Timeout
	coordinator.MaxRepos = cfg.Pipeline.MaxRepos
	coordinator.MaxSelected = cfg.Pipeline.MaxSelected

	service := briefs.NewService(briefs.NewPostgresStore(db), objects, publisher, zlog)
	service.StaleAfter = cfg.Pipeline.StaleAfter

	workerConfig := &WorkerConfig{
		Config:      cfg,
		Logger:      zlog,
		DB:          db,
		RabbitConn:  conn,
		Briefs:      service,
		Coordinator: coordinator,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return workerConfig.ServeHTTP(gctx) })
	g.Go(func() error { return workerConfig.StartConsumerWorkerPool(gctx) })
	return g.Wait()
}
