package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/api"
	"github.com/muhammadolammi/proofbriefworker/internal/queue"
)

var errConsumersStopped = errors.New("broker closed every consumer channel")

// StartConsumerWorkerPool blocks until ctx is done or every worker stopped.
func (wc *WorkerConfig) StartConsumerWorkerPool(ctx context.Context) error {
	consumer := queue.NewConsumer(queue.ConnDialer(wc.RabbitConn), wc.Config.RabbitMQ.Queue, wc.Coordinator, wc.Logger)
	wc.Logger.Info("starting consumer pool",
		zap.Int("workers", wc.Config.RabbitMQ.Workers),
		zap.String("queue", wc.Config.RabbitMQ.Queue),
	)
	if err := consumer.StartWorkerPool(ctx, wc.Config.RabbitMQ.Workers); err != nil {
		return err
	}
	if ctx.Err() == nil {
		return errConsumersStopped
	}
	return nil
}

// ServeHTTP runs the brief API until ctx is done, then shuts it down.
func (wc *WorkerConfig) ServeHTTP(ctx context.Context) error {
	srv := api.NewServer(wc.Briefs, wc.Logger).NewHTTPServer(wc.Config.HTTP.Addr)

	errCh := make(chan error, 1)
	go func() {
		wc.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
