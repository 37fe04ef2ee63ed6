package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines the backing infrastructure
	Tier Tier `json:"tier"`

	// Policy settings for the ML decision path
	Policy PolicyConfig `json:"policy"`

	// Component configurations
	History  HistoryConfig  `json:"history"`
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`
	Model    ModelConfig    `json:"model"`
	Offers   OffersConfig   `json:"offers"`
	LLM      LLMConfig      `json:"llm"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// PolicyConfig holds decision policy settings.
type PolicyConfig struct {
	// ApprovalThreshold is the probability cutoff; exactly the threshold
	// approves. The original system hardcoded 0.5.
	ApprovalThreshold float64 `json:"approvalThreshold"`
}

// ModelConfig holds the scoring artifact location.
type ModelConfig struct {
	// ArtifactPath points at the pre-trained classifier export (JSON).
	ArtifactPath string `json:"artifactPath"`
}

// OffersConfig holds the offer engine data sources.
type OffersConfig struct {
	CatalogPath   string `json:"catalogPath"`
	ClientsPath   string `json:"clientsPath"`
	KnowledgePath string `json:"knowledgePath"`
}

// LLMConfig holds the external text-generation settings.
// The capability is configuration-gated: an empty APIKey disables it and
// every message falls back to the deterministic template.
type LLMConfig struct {
	APIKey      string `json:"-"`
	Model       string `json:"model"`
	Endpoint    string `json:"endpoint"`
	TimeoutSecs int    `json:"timeoutSecs"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultApprovalThreshold is the probability cutoff separating approval
// from denial. Scores exactly at the threshold approve.
const DefaultApprovalThreshold = 0.5

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Policy: PolicyConfig{
			ApprovalThreshold: DefaultApprovalThreshold,
		},
		History: HistoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Model: ModelConfig{
			ArtifactPath: "./model/credit_model.json",
		},
		Offers: OffersConfig{
			CatalogPath:   "./data/products.json",
			ClientsPath:   "./data/clients.json",
			KnowledgePath: "./data/knowledge_base.txt",
		},
		LLM: LLMConfig{
			Model:       "gemini-2.5-flash",
			Endpoint:    "https://generativelanguage.googleapis.com/v1beta/models",
			TimeoutSecs: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.History = HistoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:         "redis",
		RedisAddr:    "localhost:6379",
		LocalMaxSize: 1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
