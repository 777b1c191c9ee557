package common

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. DOCFLOW_DATABASE_DSN.
const EnvPrefix = "DOCFLOW"

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Storage    StorageConfig
	GCP        GCPConfig
	OCR        OCRConfig
	Extraction ExtractionConfig
	Queue      QueueConfig
	Analysis   AnalysisConfig
	Ingest     IngestConfig
	Log        LogConfig
}

// DatabaseConfig holds database-related configuration. Driver selects the
// document sink: postgres, sqlite or firestore.
type DatabaseConfig struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	Collection       string
}

// ServerConfig holds listener and request limits.
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	RateLimit      float64
	RateBurst      int
	MaxUploadBytes int64
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For header
	// identifies the client. Empty trusts no one.
	TrustedProxies []string
}

// StorageConfig selects where document blobs live (fs or gcs).
type StorageConfig struct {
	Backend string
	Root    string
	Bucket  string
}

type GCPConfig struct {
	ProjectID string
	Region    string
}

// OCRConfig holds tesseract invocation settings.
type OCRConfig struct {
	Tesseract   string
	Language    string
	TessdataDir string
	PSM         int
	OEM         int
	PageTimeout time.Duration
	TempDir     string
}

// ExtractionConfig holds page classification, rasterization and result thresholds.
type ExtractionConfig struct {
	OCRPolicy              string
	InlineMinChars         int
	StrictMinChars         int
	StrictMinWords         int
	StrictMaxDigitPercent  float64
	StrictMinLetterPercent float64
	RenderScale            float64
	MaxWidth               int
	BinarizeThreshold      int
	JPEGQuality            int
	MinTextLength          int
	MinPageTextLength      int
	FormCatalogPath        string
}

type QueueConfig struct {
	TaskTimeout time.Duration
}

// AnalysisConfig selects the analysis trigger: "local" runs extraction
// in-process, "remote" posts to FunctionURL, "workflow" starts a Cloud
// Workflows execution of WorkflowID.
type AnalysisConfig struct {
	Mode          string
	FunctionURL   string
	FunctionToken string
	Timeout       time.Duration
	WorkflowID    string
	PollInterval  time.Duration
	VertexEnabled bool
	VertexModel   string
}

// IngestConfig covers the local inbox watcher and, for the cloud function,
// the bucket prefix whose uploads are taken in.
type IngestConfig struct {
	InboxDir     string
	Debounce     time.Duration
	UploadPrefix string
}

type LogConfig struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"database.driver":            "sqlite",
	"database.dsn":               "file:docflow.db?_pragma=busy_timeout(5000)",
	"database.maxconns":          20,
	"database.minconns":          2,
	"database.maxconnlifetime":   30 * time.Minute,
	"database.maxconnidletime":   5 * time.Minute,
	"database.dialtimeout":       3 * time.Second,
	"database.statementtimeout":  time.Duration(0),
	"database.collection":        "documents",
	"server.httpaddr":            ":8080",
	"server.grpcaddr":            ":9090",
	"server.ratelimit":           5.0,
	"server.rateburst":           10,
	"server.maxuploadbytes":      int64(50 << 20),
	"server.trustedproxies":      []string{},
	"storage.backend":            "fs",
	"storage.root":               "./data",
	"storage.bucket":             "",
	"gcp.projectid":              "",
	"gcp.region":                 "us-central1",
	"ocr.tesseract":              "tesseract",
	"ocr.language":               "eng",
	"ocr.tessdatadir":            "",
	"ocr.psm":                    0,
	"ocr.oem":                    -1,
	"ocr.pagetimeout":            2 * time.Minute,
	"ocr.tempdir":                "",
	"extraction.ocrpolicy":       "inline",
	"extraction.inlineminchars":  100,
	"extraction.strictminchars":  50,
	"extraction.strictminwords":  10,
	"extraction.strictmaxdigit":  80.0,
	"extraction.strictminletter": 20.0,
	"extraction.renderscale":     2.0,
	"extraction.maxwidth":        2000,
	"extraction.threshold":       128,
	"extraction.jpegquality":     95,
	"extraction.mintextlength":   10,
	"extraction.minpagetext":     3,
	"extraction.formcatalog":     "",
	"queue.tasktimeout":          10 * time.Minute,
	"analysis.mode":              "local",
	"analysis.functionurl":       "",
	"analysis.functiontoken":     "",
	"analysis.timeout":           60 * time.Second,
	"analysis.workflowid":        "",
	"analysis.pollinterval":      2 * time.Second,
	"analysis.vertexenabled":     false,
	"analysis.vertexmodel":       "gemini-1.5-pro",
	"ingest.inboxdir":            "",
	"ingest.debounce":            2 * time.Second,
	"ingest.uploadprefix":        "inbox/",
	"log.level":                  "info",
	"log.format":                 "json",
}

// NewViper returns a viper instance with defaults applied and environment
// lookup enabled. If configFile is non-empty it is read as well.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file "+configFile, err)
		}
	}
	return v, nil
}

// BindFlags registers the commonly overridden settings on fs and binds them to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.String("db-driver", v.GetString("database.driver"), "document sink: postgres, sqlite or firestore")
	fs.String("db-dsn", v.GetString("database.dsn"), "database connection string")
	fs.String("http-addr", v.GetString("server.httpaddr"), "HTTP listen address")
	fs.String("grpc-addr", v.GetString("server.grpcaddr"), "gRPC health listen address")
	fs.String("storage-root", v.GetString("storage.root"), "root directory for the fs blob store")
	fs.String("inbox", v.GetString("ingest.inboxdir"), "directory watched for new PDFs")
	fs.String("ocr-policy", v.GetString("extraction.ocrpolicy"), "page OCR policy: inline or strict")
	fs.String("log-level", v.GetString("log.level"), "log level (debug, info, warn, error)")

	_ = v.BindPFlag("database.driver", fs.Lookup("db-driver"))
	_ = v.BindPFlag("database.dsn", fs.Lookup("db-dsn"))
	_ = v.BindPFlag("server.httpaddr", fs.Lookup("http-addr"))
	_ = v.BindPFlag("server.grpcaddr", fs.Lookup("grpc-addr"))
	_ = v.BindPFlag("storage.root", fs.Lookup("storage-root"))
	_ = v.BindPFlag("ingest.inboxdir", fs.Lookup("inbox"))
	_ = v.BindPFlag("extraction.ocrpolicy", fs.Lookup("ocr-policy"))
	_ = v.BindPFlag("log.level", fs.Lookup("log-level"))
}

// LoadConfig populates a Config from v.
func LoadConfig(v *viper.Viper) *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           v.GetString("database.driver"),
			DSN:              v.GetString("database.dsn"),
			MaxConns:         v.GetInt32("database.maxconns"),
			MinConns:         v.GetInt32("database.minconns"),
			MaxConnLifetime:  v.GetDuration("database.maxconnlifetime"),
			MaxConnIdleTime:  v.GetDuration("database.maxconnidletime"),
			DialTimeout:      v.GetDuration("database.dialtimeout"),
			StatementTimeout: v.GetDuration("database.statementtimeout"),
			Collection:       v.GetString("database.collection"),
		},
		Server: ServerConfig{
			HTTPAddr:       v.GetString("server.httpaddr"),
			GRPCAddr:       v.GetString("server.grpcaddr"),
			RateLimit:      v.GetFloat64("server.ratelimit"),
			RateBurst:      v.GetInt("server.rateburst"),
			MaxUploadBytes: v.GetInt64("server.maxuploadbytes"),
			TrustedProxies: v.GetStringSlice("server.trustedproxies"),
		},
		Storage: StorageConfig{
			Backend: v.GetString("storage.backend"),
			Root:    v.GetString("storage.root"),
			Bucket:  v.GetString("storage.bucket"),
		},
		GCP: GCPConfig{
			ProjectID: v.GetString("gcp.projectid"),
			Region:    v.GetString("gcp.region"),
		},
		OCR: OCRConfig{
			Tesseract:   v.GetString("ocr.tesseract"),
			Language:    v.GetString("ocr.language"),
			TessdataDir: v.GetString("ocr.tessdatadir"),
			PSM:         v.GetInt("ocr.psm"),
			OEM:         v.GetInt("ocr.oem"),
			PageTimeout: v.GetDuration("ocr.pagetimeout"),
			TempDir:     v.GetString("ocr.tempdir"),
		},
		Extraction: ExtractionConfig{
			OCRPolicy:              v.GetString("extraction.ocrpolicy"),
			InlineMinChars:         v.GetInt("extraction.inlineminchars"),
			StrictMinChars:         v.GetInt("extraction.strictminchars"),
			StrictMinWords:         v.GetInt("extraction.strictminwords"),
			StrictMaxDigitPercent:  v.GetFloat64("extraction.strictmaxdigit"),
			StrictMinLetterPercent: v.GetFloat64("extraction.strictminletter"),
			RenderScale:            v.GetFloat64("extraction.renderscale"),
			MaxWidth:               v.GetInt("extraction.maxwidth"),
			BinarizeThreshold:      v.GetInt("extraction.threshold"),
			JPEGQuality:            v.GetInt("extraction.jpegquality"),
			MinTextLength:          v.GetInt("extraction.mintextlength"),
			MinPageTextLength:      v.GetInt("extraction.minpagetext"),
			FormCatalogPath:        v.GetString("extraction.formcatalog"),
		},
		Queue: QueueConfig{
			TaskTimeout: v.GetDuration("queue.tasktimeout"),
		},
		Analysis: AnalysisConfig{
			Mode:          v.GetString("analysis.mode"),
			FunctionURL:   v.GetString("analysis.functionurl"),
			FunctionToken: v.GetString("analysis.functiontoken"),
			Timeout:       v.GetDuration("analysis.timeout"),
			WorkflowID:    v.GetString("analysis.workflowid"),
			PollInterval:  v.GetDuration("analysis.pollinterval"),
			VertexEnabled: v.GetBool("analysis.vertexenabled"),
			VertexModel:   v.GetString("analysis.vertexmodel"),
		},
		Ingest: IngestConfig{
			InboxDir:     v.GetString("ingest.inboxdir"),
			Debounce:     v.GetDuration("ingest.debounce"),
			UploadPrefix: v.GetString("ingest.uploadprefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "database.dsn is required for driver "+c.Database.Driver, ErrInvalidInput)
		}
	case "firestore":
		if c.GCP.ProjectID == "" {
			return NewAppError("CONFIG_ERROR", "gcp.projectid is required for the firestore sink", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown database.driver %q", c.Database.Driver), ErrInvalidInput)
	}
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Root == "" {
			return NewAppError("CONFIG_ERROR", "storage.root is required for the fs backend", ErrInvalidInput)
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return NewAppError("CONFIG_ERROR", "storage.bucket is required for the gcs backend", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown storage.backend %q", c.Storage.Backend), ErrInvalidInput)
	}
	if c.Extraction.OCRPolicy != "inline" && c.Extraction.OCRPolicy != "strict" {
		return NewAppError("CONFIG_ERROR", "extraction.ocrpolicy must be inline or strict", ErrInvalidInput)
	}
	if c.Extraction.RenderScale <= 0 {
		return NewAppError("CONFIG_ERROR", "extraction.renderscale must be positive", ErrInvalidInput)
	}
	if c.Extraction.JPEGQuality < 1 || c.Extraction.JPEGQuality > 100 {
		return NewAppError("CONFIG_ERROR", "extraction.jpegquality must be within 1..100", ErrInvalidInput)
	}
	if c.Extraction.BinarizeThreshold < 0 || c.Extraction.BinarizeThreshold > 255 {
		return NewAppError("CONFIG_ERROR", "extraction.threshold must be within 0..255", ErrInvalidInput)
	}
	switch c.Analysis.Mode {
	case "local":
	case "remote":
		if c.Analysis.FunctionURL == "" {
			return NewAppError("CONFIG_ERROR", "analysis.functionurl is required in remote mode", ErrInvalidInput)
		}
	case "workflow":
		if c.GCP.ProjectID == "" || c.Analysis.WorkflowID == "" {
			return NewAppError("CONFIG_ERROR", "gcp.projectid and analysis.workflowid are required in workflow mode", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown analysis.mode %q", c.Analysis.Mode), ErrInvalidInput)
	}
	if c.Analysis.VertexEnabled && c.GCP.ProjectID == "" {
		return NewAppError("CONFIG_ERROR", "gcp.projectid is required when vertex assessment is enabled", ErrInvalidInput)
	}
	return nil
}

// SlogLevel maps Log.Level to a slog.Level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load binds the shared flags plus --config on fs, parses args and returns
// the validated configuration. Precedence: flags set on the command line,
// DOCFLOW_* environment, config file, defaults.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	v, err := NewViper("")
	if err != nil {
		return nil, err
	}
	configFile := fs.String("config", os.Getenv(EnvPrefix+"_CONFIG"), "optional YAML/TOML/JSON config file")
	BindFlags(v, fs)
	if err := fs.Parse(args); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "parse flags", err)
	}
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file "+*configFile, err)
		}
	}
	cfg := LoadConfig(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the process logger: JSON unless Format is "text".
func NewLogger(c LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
