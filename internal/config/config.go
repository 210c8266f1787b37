package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Inference backends
const (
	BackendVertex = "vertex"
	BackendLocal  = "local"
	BackendDemo   = "demo"
)

// Archive backends
const (
	ArchiveNone  = "none"
	ArchiveAzure = "azure"
	ArchiveMinio = "minio"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	InferenceTimeout   time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	MaxImageSize       int64
	MaxImagePixels     int64
	AllowedImageTypes  []string
	ResizeMaxDimension int
	CORSAllowedOrigins []string
	CatalogPath        string
	LogLevel           string

	InferenceBackend string
	Vertex           VertexConfig
	LocalInference   LocalInferenceConfig

	Archive ArchiveConfig
}

// VertexConfig holds the Vertex AI endpoint and service account settings
type VertexConfig struct {
	ProjectID           string
	Location            string
	EndpointID          string
	APIBaseURL          string
	ClientEmail         string
	PrivateKey          string
	CredentialsFile     string
	ConfidenceThreshold float64
	MaxPredictions      int
}

type LocalInferenceConfig struct {
	URL string
}

type ArchiveConfig struct {
	Backend string
	Workers int

	AzureAccount   string
	AzureKey       string
	AzureContainer string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// PredictURL builds the Vertex AI predict URL for the configured endpoint.
func (v VertexConfig) PredictURL() string {
	base := strings.TrimRight(v.APIBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", v.Location)
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/endpoints/%s:predict",
		base, v.ProjectID, v.Location, v.EndpointID)
}

// LoadDotEnv copies KEY=VALUE files into the process environment. Variables
// already set win, and missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		InferenceTimeout:   parseDurationOrDefault("INFERENCE_TIMEOUT", 15*time.Second),
		ShutdownTimeout:    parseDurationOrDefault("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		MaxImageSize:       parseIntOrDefault("MAX_IMAGE_SIZE", 5*1024*1024),         // 5MB
		MaxImagePixels:     parseIntOrDefault("MAX_IMAGE_PIXELS", 40_000_000),
		AllowedImageTypes:  parseListOrDefault("ALLOWED_IMAGE_TYPES", []string{"image/jpeg", "image/png"}),
		ResizeMaxDimension: int(parseIntOrDefault("RESIZE_MAX_DIMENSION", 0)),
		CORSAllowedOrigins: parseListOrDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		CatalogPath:        strings.TrimSpace(os.Getenv("CATALOG_PATH")),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		InferenceBackend:   strings.ToLower(strings.TrimSpace(getEnvOrDefault("INFERENCE_BACKEND", BackendLocal))),
		Vertex: VertexConfig{
			ProjectID:           strings.TrimSpace(os.Getenv("GOOGLE_PROJECT_ID")),
			Location:            strings.TrimSpace(getEnvOrDefault("GOOGLE_LOCATION", "us-central1")),
			EndpointID:          strings.TrimSpace(os.Getenv("GOOGLE_ENDPOINT_ID")),
			APIBaseURL:          strings.TrimSpace(os.Getenv("VERTEX_API_BASE_URL")),
			ClientEmail:         strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_EMAIL")),
			PrivateKey:          strings.ReplaceAll(os.Getenv("GOOGLE_PRIVATE_KEY"), `\n`, "\n"),
			CredentialsFile:     strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
			ConfidenceThreshold: parseFloatOrDefault("VERTEX_CONFIDENCE_THRESHOLD", 0.5),
			MaxPredictions:      int(parseIntOrDefault("VERTEX_MAX_PREDICTIONS", 5)),
		},
		LocalInference: LocalInferenceConfig{
			URL: strings.TrimSpace(getEnvOrDefault("LOCAL_INFERENCE_URL", "http://localhost:5000/predict")),
		},
		Archive: ArchiveConfig{
			Backend:        strings.ToLower(strings.TrimSpace(getEnvOrDefault("ARCHIVE_BACKEND", ArchiveNone))),
			Workers:        int(parseIntOrDefault("ARCHIVE_WORKERS", 2)),
			AzureAccount:   strings.TrimSpace(os.Getenv("AZURE_STORAGE_ACCOUNT")),
			AzureKey:       strings.TrimSpace(os.Getenv("AZURE_STORAGE_KEY")),
			AzureContainer: strings.TrimSpace(getEnvOrDefault("AZURE_STORAGE_CONTAINER", "kart-uploads")),
			MinioEndpoint:  strings.TrimSpace(os.Getenv("MINIO_ENDPOINT")),
			MinioAccessKey: strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY")),
			MinioSecretKey: strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY")),
			MinioBucket:    strings.TrimSpace(getEnvOrDefault("MINIO_BUCKET", "kart-uploads")),
			MinioRegion:    strings.TrimSpace(os.Getenv("MINIO_REGION")),
			MinioUseSSL:    parseBoolOrDefault("MINIO_USE_SSL", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and the settings required by the selected backends.
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxImageSize <= 0 {
		return fmt.Errorf("MAX_IMAGE_SIZE must be > 0 (got %d)", c.MaxImageSize)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxImagePixels)
	}
	if c.RequestTimeout <= 0 || c.InferenceTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, inference=%s, shutdown=%s)",
			c.RequestTimeout, c.InferenceTimeout, c.ShutdownTimeout)
	}
	if len(c.AllowedImageTypes) == 0 {
		return fmt.Errorf("ALLOWED_IMAGE_TYPES must not be empty")
	}
	if c.ResizeMaxDimension < 0 {
		return fmt.Errorf("RESIZE_MAX_DIMENSION must be >= 0 (got %d)", c.ResizeMaxDimension)
	}

	switch c.InferenceBackend {
	case BackendVertex:
		v := c.Vertex
		if v.ProjectID == "" || v.Location == "" || v.EndpointID == "" {
			return fmt.Errorf("vertex backend requires GOOGLE_PROJECT_ID, GOOGLE_LOCATION and GOOGLE_ENDPOINT_ID")
		}
		if v.CredentialsFile == "" && (v.ClientEmail == "" || strings.TrimSpace(v.PrivateKey) == "") {
			return fmt.Errorf("vertex backend requires GOOGLE_CLIENT_EMAIL and GOOGLE_PRIVATE_KEY or GOOGLE_APPLICATION_CREDENTIALS")
		}
		if v.ConfidenceThreshold < 0 || v.ConfidenceThreshold > 1 {
			return fmt.Errorf("VERTEX_CONFIDENCE_THRESHOLD must be in [0,1] (got %v)", v.ConfidenceThreshold)
		}
		if v.MaxPredictions <= 0 {
			return fmt.Errorf("VERTEX_MAX_PREDICTIONS must be > 0 (got %d)", v.MaxPredictions)
		}
	case BackendLocal:
		if c.LocalInference.URL == "" {
			return fmt.Errorf("local backend requires LOCAL_INFERENCE_URL")
		}
	case BackendDemo:
	default:
		return fmt.Errorf("unsupported INFERENCE_BACKEND: %q", c.InferenceBackend)
	}

	a := c.Archive
	switch a.Backend {
	case ArchiveNone:
	case ArchiveAzure:
		if a.AzureAccount == "" || a.AzureKey == "" || a.AzureContainer == "" {
			return fmt.Errorf("azure archive requires AZURE_STORAGE_ACCOUNT, AZURE_STORAGE_KEY and AZURE_STORAGE_CONTAINER")
		}
	case ArchiveMinio:
		if a.MinioEndpoint == "" || a.MinioAccessKey == "" || a.MinioSecretKey == "" || a.MinioBucket == "" {
			return fmt.Errorf("minio archive requires MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY and MINIO_BUCKET")
		}
	default:
		return fmt.Errorf("unsupported ARCHIVE_BACKEND: %q", a.Backend)
	}
	if a.Backend != ArchiveNone && a.Workers <= 0 {
		return fmt.Errorf("ARCHIVE_WORKERS must be > 0 (got %d)", a.Workers)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// parseListOrDefault splits a comma separated variable, dropping empty items.
func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
