package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Vision      VisionConfig      `yaml:"vision"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
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

type VisionConfig struct {
	ModelsDir string `yaml:"models_dir"`
	// DefaultModel must be one of the registered embedding models.
	DefaultModel string `yaml:"default_model"`
	// DetectionThreshold is the strict-mode face detection score cutoff.
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// RelaxedThreshold is the best-effort cutoff used when strict detection
	// finds no usable face.
	RelaxedThreshold float64 `yaml:"relaxed_threshold"`
}

// RecognitionConfig holds the decision thresholds for enrollment and
// verification. DuplicateThreshold is deliberately stricter than
// VerifyThreshold: duplicate detection is a 1:N search across every active
// enrollment, while verification is a 1:1 check against a claimed identity.
type RecognitionConfig struct {
	DuplicateThreshold    float64 `yaml:"duplicate_threshold"`
	VerifyThreshold       float64 `yaml:"verify_threshold"`
	MinFaceConfidence     float64 `yaml:"min_face_confidence"`
	QualityThreshold      float64 `yaml:"quality_threshold"`
	MultiQualityThreshold float64 `yaml:"multi_quality_threshold"`
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

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DefaultModel == "" {
		cfg.Vision.DefaultModel = "arcface_r50"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.RelaxedThreshold == 0 {
		cfg.Vision.RelaxedThreshold = 0.1
	}
	if cfg.Recognition.DuplicateThreshold == 0 {
		cfg.Recognition.DuplicateThreshold = 0.92
	}
	if cfg.Recognition.VerifyThreshold == 0 {
		cfg.Recognition.VerifyThreshold = 0.6
	}
	if cfg.Recognition.MinFaceConfidence == 0 {
		cfg.Recognition.MinFaceConfidence = 0.3
	}
	if cfg.Recognition.QualityThreshold == 0 {
		cfg.Recognition.QualityThreshold = 0.5
	}
	if cfg.Recognition.MultiQualityThreshold == 0 {
		cfg.Recognition.MultiQualityThreshold = 0.4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FC_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FC_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FC_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FC_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FC_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FC_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FC_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FC_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FC_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FC_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FC_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FC_DEFAULT_MODEL"); v != "" {
		cfg.Vision.DefaultModel = v
	}
}
