package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Matching MatchingConfig `yaml:"matching"`
	Vision   VisionConfig   `yaml:"vision"`
	Batch    BatchConfig    `yaml:"batch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	// MaxUploadMB caps the multipart body of batch and selfie uploads.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// Database drivers understood by storage.Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Name       string `yaml:"name"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	MaxConns   int    `yaml:"max_conns"`
	SQLitePath string `yaml:"sqlite_path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MatchingConfig holds the two deployment-wide tunables of the search
// contract. Changing either makes previously stored vectors incomparable,
// so bump Version whenever one of them changes.
type MatchingConfig struct {
	Dimension int     `yaml:"dimension"`
	Threshold float64 `yaml:"threshold"`
	Version   string  `yaml:"version"`
}

type VisionConfig struct {
	// Enabled turns on selfie search and batch embedding. Without it the
	// API only accepts precomputed descriptors.
	Enabled            bool    `yaml:"enabled"`
	LibraryPath        string  `yaml:"library_path"`
	ModelsDir          string  `yaml:"models_dir"`
	DetectorModel      string  `yaml:"detector_model"`
	EmbedderModel      string  `yaml:"embedder_model"`
	EmbedderInput      string  `yaml:"embedder_input"`
	EmbedderOutput     string  `yaml:"embedder_output"`
	EmbedderInputSize  int     `yaml:"embedder_input_size"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	Normalize          bool    `yaml:"normalize"`
}

type BatchConfig struct {
	// WorkerCount is the number of batches a worker process runs at once.
	// Items inside one batch are always processed sequentially.
	WorkerCount int `yaml:"worker_count"`
	MaxItems    int `yaml:"max_items"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the matching contract cannot run with.
func (c *Config) Validate() error {
	if c.Matching.Dimension <= 0 {
		return fmt.Errorf("matching.dimension must be positive, got %d", c.Matching.Dimension)
	}
	if t := c.Matching.Threshold; math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
		return fmt.Errorf("matching.threshold must be a positive finite number, got %v", t)
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 256
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "eventface.db"
	}
	if cfg.Matching.Dimension == 0 {
		cfg.Matching.Dimension = 128
	}
	if cfg.Matching.Threshold == 0 {
		cfg.Matching.Threshold = 0.45
	}
	if cfg.Matching.Version == "" {
		cfg.Matching.Version = fmt.Sprintf("d%d-t%g", cfg.Matching.Dimension, cfg.Matching.Threshold)
	}
	if cfg.Vision.DetectorModel == "" {
		cfg.Vision.DetectorModel = "det_10g.onnx"
	}
	if cfg.Vision.EmbedderModel == "" {
		cfg.Vision.EmbedderModel = "face_recognition.onnx"
	}
	if cfg.Vision.EmbedderInput == "" {
		cfg.Vision.EmbedderInput = "input.1"
	}
	if cfg.Vision.EmbedderOutput == "" {
		cfg.Vision.EmbedderOutput = "output"
	}
	if cfg.Vision.EmbedderInputSize == 0 {
		cfg.Vision.EmbedderInputSize = 150
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Batch.WorkerCount == 0 {
		cfg.Batch.WorkerCount = 2
	}
	if cfg.Batch.MaxItems == 0 {
		cfg.Batch.MaxItems = 500
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvOverrides fails on numeric variables that do not parse.
func applyEnvOverrides(cfg *Config) error {
	if err := envInt("EF_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if v := os.Getenv("EF_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("EF_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("EF_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if err := envInt("EF_DB_PORT", &cfg.Database.Port); err != nil {
		return err
	}
	if v := os.Getenv("EF_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("EF_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("EF_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("EF_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("EF_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("EF_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("EF_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("EF_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("EF_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if err := envInt("EF_MATCH_DIMENSION", &cfg.Matching.Dimension); err != nil {
		return err
	}
	if v := os.Getenv("EF_MATCH_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse EF_MATCH_THRESHOLD: %w", err)
		}
		cfg.Matching.Threshold = f
	}
	if v := os.Getenv("EF_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("EF_VISION_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse EF_VISION_ENABLED: %w", err)
		}
		cfg.Vision.Enabled = b
	}
	if v := os.Getenv("EF_ONNX_LIBRARY"); v != "" {
		cfg.Vision.LibraryPath = v
	}
	if err := envInt("EF_BATCH_WORKER_COUNT", &cfg.Batch.WorkerCount); err != nil {
		return err
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = n
	return nil
}
