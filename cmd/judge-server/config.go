package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/common/db"
	commonmw "contestjudge/internal/common/http/middleware"
	"contestjudge/internal/common/mq"
	"contestjudge/internal/common/storage"
	"contestjudge/internal/judge/sandbox/engine"
	"contestjudge/internal/judge/sandbox/language"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/judge/sandbox/spec"
	"contestjudge/pkg/utils/logger"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultSandboxRetries  = 3

	driverMemory = "memory"
	driverKafka  = "kafka"
)

var (
	defaultCompileLimits = spec.ResourceLimit{CPUTimeMs: 10000, WallTimeMs: 20000, MemoryMB: 512, OutputMB: 16, PIDs: 64}
	defaultRunLimits     = spec.ResourceLimit{StackMB: 64, OutputMB: 16, PIDs: 32}
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	MinBytes     int           `yaml:"minBytes"`
	MaxBytes     int           `yaml:"maxBytes"`
	MaxWait      time.Duration `yaml:"maxWait"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	RequiredAcks int           `yaml:"requiredAcks"`
	Compression  string        `yaml:"compression"`
}

// TopicsConfig names the queue topics.
type TopicsConfig struct {
	Judge       string `yaml:"judge"`
	StatusFinal string `yaml:"statusFinal"`
	DeadLetter  string `yaml:"deadLetter"`
}

// GroupsConfig names the consumer groups.
type GroupsConfig struct {
	Judge       string `yaml:"judge"`
	StatusFinal string `yaml:"statusFinal"`
}

// MQConfig selects and configures the message queue.
type MQConfig struct {
	Driver     string        `yaml:"driver"`
	Buffer     int           `yaml:"buffer"`
	MaxRetries int           `yaml:"maxRetries"`
	RetryDelay time.Duration `yaml:"retryDelay"`
	Topics     TopicsConfig  `yaml:"topics"`
	GroupIDs   GroupsConfig  `yaml:"groupIds"`
	Kafka      KafkaConfig   `yaml:"kafka"`
}

// RecoveryConfig holds stale submission sweep settings.
type RecoveryConfig struct {
	Interval        time.Duration `yaml:"interval"`
	StaleAfter      time.Duration `yaml:"staleAfter"`
	RequeueCooldown time.Duration `yaml:"requeueCooldown"`
	Batch           int           `yaml:"batch"`
}

// JudgeConfig holds judge work settings.
type JudgeConfig struct {
	Workers         int            `yaml:"workers"`
	SandboxRetries  *int           `yaml:"sandboxRetries"`
	RetryBackoff    time.Duration  `yaml:"retryBackoff"`
	RetryBackoffMax time.Duration  `yaml:"retryBackoffMax"`
	LockTTL         time.Duration  `yaml:"lockTTL"`
	WorkerTimeout   time.Duration  `yaml:"workerTimeout"`
	StatusTimeout   time.Duration  `yaml:"statusTimeout"`
	StatusTTL       time.Duration  `yaml:"statusTTL"`
	MetaTTL         time.Duration  `yaml:"metaTTL"`
	Recovery        RecoveryConfig `yaml:"recovery"`
}

// SandboxConfig holds sandbox engine and language settings.
type SandboxConfig struct {
	WorkRoot             string                       `yaml:"workRoot"`
	CgroupRoot           string                       `yaml:"cgroupRoot"`
	SeccompDir           string                       `yaml:"seccompDir"`
	HelperPath           string                       `yaml:"helperPath"`
	StdoutStderrMaxBytes int64                        `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool                         `yaml:"enableSeccomp"`
	EnableCgroup         bool                         `yaml:"enableCgroup"`
	EnableNamespaces     bool                         `yaml:"enableNamespaces"`
	RootFS               string                       `yaml:"rootfs"`
	CompileSeccomp       string                       `yaml:"compileSeccompProfile"`
	RunSeccomp           string                       `yaml:"runSeccompProfile"`
	CompileLimits        spec.ResourceLimit           `yaml:"compileLimits"`
	RunLimits            spec.ResourceLimit           `yaml:"runLimits"`
	Languages            map[string]language.Override `yaml:"languages"`
}

// RateLimitConfig holds per-username submit throttling.
type RateLimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// SubmitConfig holds intake settings.
type SubmitConfig struct {
	MaxCodeBytes         int             `yaml:"maxCodeBytes"`
	IdempotencyTTL       time.Duration   `yaml:"idempotencyTTL"`
	EnforceContestWindow bool            `yaml:"enforceContestWindow"`
	SourcePrefix         string          `yaml:"sourcePrefix"`
	RateLimit            RateLimitConfig `yaml:"rateLimit"`
	Timeout              time.Duration   `yaml:"timeout"`
}

// ContestConfig holds contest catalog settings.
type ContestConfig struct {
	CacheTTL      time.Duration `yaml:"cacheTTL"`
	EmptyCacheTTL time.Duration `yaml:"emptyCacheTTL"`
	Timeout       time.Duration `yaml:"timeout"`
}

// LeaderboardConfig holds leaderboard settings.
type LeaderboardConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SeedConfig toggles the demo contest.
type SeedConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MinIOSection is optional source archiving.
type MinIOSection struct {
	Enabled              bool `yaml:"enabled"`
	storage.MinIOConfig `yaml:",inline"`
}

// AppConfig holds judge-server config.
type AppConfig struct {
	Server      ServerConfig             `yaml:"server"`
	Logger      logger.Config            `yaml:"logger"`
	MySQL       db.MySQLConfig           `yaml:"mysql"`
	Redis       cache.RedisConfig        `yaml:"redis"`
	MinIO       MinIOSection             `yaml:"minio"`
	MQ          MQConfig                 `yaml:"mq"`
	Judge       JudgeConfig              `yaml:"judge"`
	Sandbox     SandboxConfig            `yaml:"sandbox"`
	Submit      SubmitConfig             `yaml:"submit"`
	Contest     ContestConfig            `yaml:"contest"`
	Leaderboard LeaderboardConfig        `yaml:"leaderboard"`
	CORS        commonmw.CORSConfig      `yaml:"cors"`
	RateLimit   commonmw.RateLimitPolicy `yaml:"rateLimit"`
	Seed        SeedConfig               `yaml:"seed"`
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

// loadEnvFile loads KEY=VALUE pairs into the process environment. A missing
// file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file failed: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfg := AppConfig{CORS: commonmw.DefaultCORSConfig()}
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	applyRedisDefaults(&cfg.Redis)
	if err := applyMQDefaults(&cfg.MQ); err != nil {
		return nil, err
	}
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
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Judge.Workers <= 0 {
		cfg.Judge.Workers = 1
	}
	// an explicit 0 disables retries
	if cfg.Judge.SandboxRetries == nil {
		retries := defaultSandboxRetries
		cfg.Judge.SandboxRetries = &retries
	}
	if cfg.Judge.RetryBackoff == 0 {
		cfg.Judge.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Judge.RetryBackoffMax == 0 {
		cfg.Judge.RetryBackoffMax = 5 * time.Second
	}
	if cfg.Judge.LockTTL == 0 {
		cfg.Judge.LockTTL = 30 * time.Second
	}
	if cfg.Judge.WorkerTimeout == 0 {
		cfg.Judge.WorkerTimeout = 2 * time.Minute
	}
	if cfg.Judge.StatusTimeout == 0 {
		cfg.Judge.StatusTimeout = 2 * time.Second
	}
	if cfg.Judge.MetaTTL == 0 {
		cfg.Judge.MetaTTL = 30 * time.Second
	}
	if cfg.Sandbox.WorkRoot == "" {
		cfg.Sandbox.WorkRoot = "/var/lib/contestjudge/work"
	}
	cfg.Sandbox.CompileLimits = defaultCompileLimits.Merge(cfg.Sandbox.CompileLimits)
	cfg.Sandbox.RunLimits = defaultRunLimits.Merge(cfg.Sandbox.RunLimits)
	if cfg.Submit.MaxCodeBytes <= 0 {
		cfg.Submit.MaxCodeBytes = 64 * 1024
	}
	if cfg.Submit.Timeout == 0 {
		cfg.Submit.Timeout = 3 * time.Second
	}
	if cfg.Contest.Timeout == 0 {
		cfg.Contest.Timeout = 3 * time.Second
	}
	if cfg.Leaderboard.CacheTTL == 0 {
		cfg.Leaderboard.CacheTTL = 30 * time.Second
	}
	if cfg.MinIO.Enabled && cfg.MinIO.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required when minio is enabled")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.MQ.Kafka.Brokers = brokers
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
}

func applyMQDefaults(cfg *MQConfig) error {
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	if cfg.Driver == "" {
		cfg.Driver = driverMemory
	}
	switch cfg.Driver {
	case driverMemory:
	case driverKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required")
		}
		if _, err := mq.ParseCompression(cfg.Kafka.Compression); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown mq driver %q", cfg.Driver)
	}
	if cfg.Topics.Judge == "" {
		cfg.Topics.Judge = "judge.tasks"
	}
	if cfg.Topics.StatusFinal == "" {
		cfg.Topics.StatusFinal = "judge.status.final"
	}
	if cfg.Topics.DeadLetter == "" {
		cfg.Topics.DeadLetter = "judge.dead"
	}
	if cfg.GroupIDs.Judge == "" {
		cfg.GroupIDs.Judge = "judge-workers"
	}
	if cfg.GroupIDs.StatusFinal == "" {
		cfg.GroupIDs.StatusFinal = "leaderboard"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return nil
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

func (k KafkaConfig) toMQConfig() (mq.KafkaConfig, error) {
	codec, err := mq.ParseCompression(k.Compression)
	if err != nil {
		return mq.KafkaConfig{}, err
	}
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  codec,
	}, nil
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

func (s SandboxConfig) toProfiles() language.Profiles {
	return language.Profiles{
		Compile: profile.TaskProfile{
			TaskType:       profile.TaskTypeCompile,
			RootFS:         s.RootFS,
			SeccompProfile: s.CompileSeccomp,
			DefaultLimits:  s.CompileLimits,
		},
		Run: profile.TaskProfile{
			TaskType:       profile.TaskTypeRun,
			RootFS:         s.RootFS,
			SeccompProfile: s.RunSeccomp,
			DefaultLimits:  s.RunLimits,
		},
	}
}
