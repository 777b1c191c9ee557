package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/insolvency-docs/internal/app"
	"github.com/joseph-ayodele/insolvency-docs/internal/common"
	"github.com/joseph-ayodele/insolvency-docs/internal/core"
	"github.com/joseph-ayodele/insolvency-docs/internal/function"
	"github.com/joseph-ayodele/insolvency-docs/internal/ingest"
)

var (
	handler *function.Handler
	once    sync.Once
	initErr error
)

func init() {
	functions.HTTP("AnalyzeDocument", analyzeDocument)
	functions.CloudEvent("IngestUpload", ingestUpload)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		slog.Error("functions framework stopped", "error", err)
		os.Exit(1)
	}
}

// setup builds the handler once per instance. Clients stay open for the
// life of the instance.
func setup() (*function.Handler, error) {
	once.Do(func() {
		handler, initErr = build(context.Background())
	})
	return handler, initErr
}

func build(ctx context.Context) (*function.Handler, error) {
	cfg, err := common.Load(pflag.NewFlagSet("docflow-fn", pflag.ContinueOnError), nil)
	if err != nil {
		return nil, err
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	docs, err := app.OpenDocuments(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	blobs, _, err := app.OpenBlobs(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	recognizer, err := core.NewRecognizer(cfg)
	if err != nil {
		return nil, err
	}
	assessor, _, err := app.NewAssessor(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	processor := core.NewProcessor(logger.With("component", "processor"), blobs, core.NewPipeline(cfg, logger), recognizer, docs, assessor)

	h := function.New(function.Deps{
		Analyzer:     processor,
		Statuses:     docs,
		Blobs:        blobs,
		Token:        cfg.Analysis.FunctionToken,
		UploadPrefix: cfg.Ingest.UploadPrefix,
		Timeout:      cfg.Queue.TaskTimeout,
		Logger:       logger.With("component", "function"),
	})

	// Uploads run in this instance unless a workflow or another function
	// takes the analysis.
	trigger, _, err := app.NewTrigger(ctx, cfg, h, false, logger)
	if err != nil {
		return nil, err
	}
	h.Intake = ingest.NewIntake(docs, blobs, function.Dispatcher{Trigger: trigger}, logger.With("component", "intake"))

	logger.Info("function instance ready",
		"database", cfg.Database.Driver,
		"storage", cfg.Storage.Backend,
		"analysis", cfg.Analysis.Mode,
	)
	return h, nil
}

func analyzeDocument(w http.ResponseWriter, r *http.Request) {
	h, err := setup()
	if err != nil {
		slog.Error("function initialization failed", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	h.AnalyzeDocument(w, r)
}

func ingestUpload(ctx context.Context, e cloudevents.Event) error {
	h, err := setup()
	if err != nil {
		slog.Error("function initialization failed", "error", err)
		return err
	}
	return h.IngestUpload(ctx, e)
}
