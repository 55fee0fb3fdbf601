package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	defaultHTTPPort         = "8080"
	defaultCompletionPort   = "8081"
	defaultMinioEndpoint    = "localhost:9000"
	defaultWorkingBucket    = "scanned-invoices"
	defaultAnalysesBucket   = "invoice-analyses"
	defaultArchiveBucket    = "processed-invoices"
	defaultEngineTimeoutSec = 30
	defaultPageCap          = 1000
	defaultApprovalLimit    = 10000.0
)

type Config struct {
	HTTPPort       string
	CompletionPort string
	PostgresDSN    string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	WorkingBucket  string
	AnalysesBucket string
	ArchiveBucket  string

	EngineBaseURL    string
	EngineAPIToken   string
	EngineTimeoutSec int
	// CompletionURL is the completion channel registered with every analysis
	// job: the engine posts {job_id, status, document_location} there.
	CompletionURL string

	PageCap              int
	MaxAutoApproveAmount float64
	AllowedUploadBytes   int64
}

func Load() (Config, error) {
	cfg := Config{
		HTTPPort:       getenv("HTTP_PORT", defaultHTTPPort),
		CompletionPort: getenv("COMPLETION_PORT", defaultCompletionPort),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
		WorkingBucket:  getenv("WORKING_BUCKET", defaultWorkingBucket),
		AnalysesBucket: getenv("ANALYSES_BUCKET", defaultAnalysesBucket),
		ArchiveBucket:  getenv("ARCHIVE_BUCKET", defaultArchiveBucket),

		EngineBaseURL:    os.Getenv("ANALYSIS_ENGINE_URL"),
		EngineAPIToken:   os.Getenv("ANALYSIS_ENGINE_TOKEN"),
		EngineTimeoutSec: getenvInt("ANALYSIS_ENGINE_TIMEOUT_SEC", defaultEngineTimeoutSec),
		CompletionURL:    os.Getenv("COMPLETION_URL"),

		PageCap:              getenvInt("RESULT_PAGE_CAP", defaultPageCap),
		MaxAutoApproveAmount: getenvFloat("MAX_AUTO_APPROVE_AMOUNT", defaultApprovalLimit),
		AllowedUploadBytes:   int64(getenvInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.EngineBaseURL == "" {
		return Config{}, fmt.Errorf("ANALYSIS_ENGINE_URL is required")
	}

	return cfg, nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
