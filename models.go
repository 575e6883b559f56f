package main

import (
	"database/sql"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/briefs"
	"github.com/muhammadolammi/proofbriefworker/internal/config"
	"github.com/muhammadolammi/proofbriefworker/internal/pipeline"
)

// WorkerConfig holds the process-wide resources shared by the HTTP server
// and the consumer pool.
type WorkerConfig struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *sql.DB
	RabbitConn  *amqp.Connection
	Briefs      *briefs.Service
	Coordinator *pipeline.Coordinator
}
