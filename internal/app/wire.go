// Package app wires configured backends for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/joseph-ayodele/insolvency-docs/internal/analysis"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core"
	"github.com/joseph-ayodele/insolvency-docs/internal/core/async"
	"github.com/joseph-ayodele/insolvency-docs/internal/repository"
	"github.com/joseph-ayodele/insolvency-docs/internal/storage"
)

// Documents is the opened document store with its health probe.
type Documents struct {
	repository.DocumentRepository
	Health func(ctx context.Context) error
	close  func()
}

func (d *Documents) Close() { d.close() }

// OpenDocuments opens the store selected by database.driver and ensures its schema.
func OpenDocuments(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*Documents, error) {
	if cfg.Database.Driver == "firestore" {
		client, err := repository.NewFirestoreClient(ctx, cfg.GCP.ProjectID)
		if err != nil {
			return nil, err
		}
		sink := repository.NewFirestoreSink(client, cfg.Database.Collection, logger.With("component", "firestore"))
		return &Documents{
			DocumentRepository: sink,
			Health: func(ctx context.Context) error {
				_, err := client.Collection(cfg.Database.Collection).Limit(1).Documents(ctx).GetAll()
				return err
			},
			close: func() { _ = client.Close() },
		}, nil
	}

	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := db.HealthCheck(ctx, 5*time.Second, logger); err != nil {
		db.Close(logger)
		return nil, err
	}
	repo := repository.NewDocumentRepository(db, logger.With("component", "repository"))
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close(logger)
		return nil, err
	}
	return &Documents{
		DocumentRepository: repo,
		Health:             func(ctx context.Context) error { return db.HealthCheck(ctx, 2*time.Second, logger) },
		close:              func() { db.Close(logger) },
	}, nil
}

// OpenBlobs returns the blob store selected by storage.backend and its close func.
func OpenBlobs(ctx context.Context, cfg *common.Config, logger *slog.Logger) (storage.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("storage.NewClient: %w", err)
		}
		return storage.NewGCSStore(client, cfg.Storage.Bucket, logger.With("component", "gcs")), func() { _ = client.Close() }, nil
	default:
		fsStore, err := storage.NewFSStore(cfg.Storage.Root, logger.With("component", "blobs"))
		if err != nil {
			return nil, nil, err
		}
		return fsStore, func() {}, nil
	}
}

// NewAssessor returns the Vertex assessor when enabled, else a nil Assessor.
func NewAssessor(ctx context.Context, cfg *common.Config, logger *slog.Logger) (core.Assessor, func(), error) {
	if !cfg.Analysis.VertexEnabled {
		return nil, func() {}, nil
	}
	va, err := analysis.NewVertexAssessor(ctx, cfg.GCP.ProjectID, cfg.GCP.Region, cfg.Analysis.VertexModel, logger.With("component", "vertex"))
	if err != nil {
		return nil, nil, err
	}
	return va, func() { _ = va.Close() }, nil
}

// NewTrigger picks the analysis trigger for analysis.mode. local is used
// as-is in local mode. wait makes a workflow trigger block until the
// execution finishes.
func NewTrigger(ctx context.Context, cfg *common.Config, local async.AnalysisTrigger, wait bool, logger *slog.Logger) (async.AnalysisTrigger, func(), error) {
	switch cfg.Analysis.Mode {
	case "remote":
		return analysis.NewHTTPTrigger(cfg.Analysis.FunctionURL, cfg.Analysis.FunctionToken, cfg.Analysis.Timeout, logger.With("component", "trigger")), func() {}, nil
	case "workflow":
		exec, err := analysis.NewExecutionsClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		trig := analysis.NewWorkflowTrigger(exec,
			analysis.WorkflowName(cfg.GCP.ProjectID, cfg.GCP.Region, cfg.Analysis.WorkflowID),
			analysis.WorkflowOptions{Wait: wait, PollInterval: cfg.Analysis.PollInterval},
			logger.With("component", "workflow"),
		)
		return trig, func() { _ = exec.Close() }, nil
	default:
		return local, func() {}, nil
	}
}
