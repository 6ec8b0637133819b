package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/judge/model"
	"codearena/internal/judge/sandbox/engine"
	"codearena/internal/judge/sandbox/security"
	"codearena/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	PrefetchCount int           `yaml:"prefetchCount"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	MessageTTL    time.Duration `yaml:"messageTTL"`
}

// TopicConfig routes judge task and result topics.
type TopicConfig struct {
	Match         string         `yaml:"match"`
	Practice      string         `yaml:"practice"`
	Results       string         `yaml:"results"`
	Retry         string         `yaml:"retry"`
	DeadLetter    string         `yaml:"deadLetter"`
	Weights       map[string]int `yaml:"weights"`
	PoolRetryMax  int            `yaml:"poolRetryMax"`
	PoolRetryBase time.Duration  `yaml:"poolRetryBaseDelay"`
	PoolRetryMaxD time.Duration  `yaml:"poolRetryMaxDelay"`
}

// JudgeConfig holds judge execution settings.
type JudgeConfig struct {
	WorkRoot       string        `yaml:"workRoot"`
	TaskTimeout    time.Duration `yaml:"taskTimeout"`
	WorkerPoolSize int           `yaml:"workerPoolSize"`
	CompileProfile string        `yaml:"compileProfile"`
	RunProfile     string        `yaml:"runProfile"`

	// StartRateLimit caps how many judge runs may start per interval,
	// independent of how fast workers finish.
	StartRateLimit    int           `yaml:"startRateLimit"`
	StartRateInterval time.Duration `yaml:"startRateInterval"`
}

// SandboxConfig holds sandbox engine settings.
type SandboxConfig struct {
	CgroupRoot           string `yaml:"cgroupRoot"`
	SeccompDir           string `yaml:"seccompDir"`
	HelperPath           string `yaml:"helperPath"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
	EnableCgroup         bool   `yaml:"enableCgroup"`
	EnableNamespaces     bool   `yaml:"enableNamespaces"`
}

// ProfileSpec declares one named isolation profile.
type ProfileSpec struct {
	RootFS         string `yaml:"rootFS"`
	SeccompProfile string `yaml:"seccompProfile"`
}

// AppConfig holds judge-service configuration.
type AppConfig struct {
	Server   ServerConfig           `yaml:"server"`
	Logger   logger.Config          `yaml:"logger"`
	Kafka    KafkaConfig            `yaml:"kafka"`
	Topics   TopicConfig            `yaml:"topics"`
	Database db.MySQLConfig         `yaml:"database"`
	Redis    cache.RedisConfig      `yaml:"redis"`
	MinIO    storage.MinIOConfig    `yaml:"minio"`
	Judge    JudgeConfig            `yaml:"judge"`
	Sandbox  SandboxConfig          `yaml:"sandbox"`
	Profiles map[string]ProfileSpec `yaml:"profiles"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Topics.Match == "" {
		cfg.Topics.Match = model.TopicMatchTasks
	}
	if cfg.Topics.Practice == "" {
		cfg.Topics.Practice = model.TopicPracticeTasks
	}
	if cfg.Topics.Results == "" {
		cfg.Topics.Results = model.TopicResults
	}
	if cfg.Topics.Retry == "" {
		cfg.Topics.Retry = "judge.tasks.retry"
	}
	if cfg.Topics.DeadLetter == "" {
		cfg.Topics.DeadLetter = model.TopicDeadLetter
	}
	if len(cfg.Topics.Weights) == 0 {
		cfg.Topics.Weights = map[string]int{
			cfg.Topics.Match:    model.MatchFetchWeight,
			cfg.Topics.Practice: model.PracticeFetchWeight,
			cfg.Topics.Retry:    model.PracticeFetchWeight,
		}
	}
	if cfg.Topics.PoolRetryMax <= 0 {
		cfg.Topics.PoolRetryMax = 5
	}
	if cfg.Topics.PoolRetryBase == 0 {
		cfg.Topics.PoolRetryBase = time.Second
	}
	if cfg.Topics.PoolRetryMaxD == 0 {
		cfg.Topics.PoolRetryMaxD = 30 * time.Second
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = "/var/lib/codearena/judge"
	}
	if cfg.Judge.TaskTimeout == 0 {
		cfg.Judge.TaskTimeout = 2 * time.Minute
	}
	if cfg.Judge.WorkerPoolSize <= 0 {
		cfg.Judge.WorkerPoolSize = 1
	}
	if cfg.Judge.CompileProfile == "" {
		cfg.Judge.CompileProfile = "compile"
	}
	if cfg.Judge.RunProfile == "" {
		cfg.Judge.RunProfile = "run"
	}
	if cfg.Judge.StartRateLimit <= 0 {
		cfg.Judge.StartRateLimit = 10
	}
	if cfg.Judge.StartRateInterval <= 0 {
		cfg.Judge.StartRateInterval = time.Second
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	cfg := mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		ReadTimeout:  k.ReadTimeout,
		WriteTimeout: k.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
	}
	cfg.Compression = parseCompression(k.Compression)
	return cfg
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

func (s SandboxConfig) toEngineConfig() engine.Config {
	return engine.Config{
		CgroupRoot:           s.CgroupRoot,
		SeccompDir:           s.SeccompDir,
		HelperPath:           s.HelperPath,
		StdoutStderrMaxBytes: s.StdoutStderrMaxBytes,
		EnableSeccomp:        s.EnableSeccomp,
		EnableCgroup:         s.EnableCgroup,
		EnableNamespaces:     s.EnableNamespaces,
	}
}

func buildProfileResolver(specs map[string]ProfileSpec) *security.StaticResolver {
	profiles := make(map[string]security.IsolationProfile, len(specs))
	for name, spec := range specs {
		profiles[name] = security.IsolationProfile{
			RootFS:         spec.RootFS,
			SeccompProfile: spec.SeccompProfile,
		}
	}
	return security.NewStaticResolver(profiles)
}
