package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	JWT           JWTConfig
	Password      PasswordConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Scheduling    SchedulingConfig
	Authorization AuthorizationConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Kafka         KafkaConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Scheduling.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Authorization.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MILLFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"MILLFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MILLFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MILLFLOW_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"MILLFLOW_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"MILLFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MILLFLOW_DB_DSN"`
	Driver string `envconfig:"MILLFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MILLFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"MILLFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MILLFLOW_DB_USER"`
	LegacyPassword string `envconfig:"MILLFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"MILLFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"MILLFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MILLFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MILLFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MILLFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MILLFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration above which statements are logged at warn.
	SlowQuery time.Duration `envconfig:"MILLFLOW_DB_SLOW_QUERY" default:"500ms"`

	// TxRetries bounds how often WithTx reruns a unit aborted by a
	// serialization failure or deadlock.
	TxRetries int `envconfig:"MILLFLOW_DB_TX_RETRIES" default:"2"`
}

// IsSQLite reports whether the embedded driver is selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MILLFLOW_REDIS_URL"`
	Address      string        `envconfig:"MILLFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"MILLFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"MILLFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MILLFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MILLFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MILLFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MILLFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MILLFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured. Without one the API
// skips idempotency replay, rate limiting and the confirmation guard.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// HTTPConfig holds the API surface knobs.
type HTTPConfig struct {
	CORSOrigins       []string      `envconfig:"MILLFLOW_HTTP_CORS_ORIGINS" default:"http://localhost:3000"`
	ConfirmRateLimit  int           `envconfig:"MILLFLOW_HTTP_CONFIRM_RATE_LIMIT" default:"30"`
	ConfirmRateWindow time.Duration `envconfig:"MILLFLOW_HTTP_CONFIRM_RATE_WINDOW" default:"1m"`
	IdempotencyTTL    time.Duration `envconfig:"MILLFLOW_HTTP_IDEMPOTENCY_TTL" default:"24h"`
	ReadTimeout       time.Duration `envconfig:"MILLFLOW_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"MILLFLOW_HTTP_WRITE_TIMEOUT" default:"30s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MILLFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MILLFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MILLFLOW_JWT_EXPIRATION_MINUTES" default:"60"`

	// Leeway tolerates clock skew between token issuer and this service.
	Leeway time.Duration `envconfig:"MILLFLOW_JWT_LEEWAY" default:"30s"`
}

// LoadPassword reads only the argon2 parameters, for tools that run without
// the full service environment.
func LoadPassword() (PasswordConfig, error) {
	var cfg PasswordConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing password config: %w", err)
	}
	return cfg, nil
}

// LoadJWT reads only the token settings.
func LoadJWT() (JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing jwt config: %w", err)
	}
	return cfg, nil
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MILLFLOW_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MILLFLOW_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MILLFLOW_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MILLFLOW_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MILLFLOW_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MILLFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MILLFLOW_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	Broker               string        `envconfig:"MILLFLOW_BROKER" default:"pubsub"`
	ConfirmationGuardTTL time.Duration `envconfig:"MILLFLOW_EVENTING_CONFIRMATION_GUARD_TTL" default:"2m"`
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Broker)) {
	case BrokerPubSub, BrokerKafka:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s|%s, got %q", EnvBroker, BrokerPubSub, BrokerKafka, e.Broker)
	}
}

// BrokerKind returns the normalized broker selection.
func (e EventingConfig) BrokerKind() string {
	return strings.ToLower(strings.TrimSpace(e.Broker))
}

// SchedulingConfig holds the lead times used to derive production target dates.
type SchedulingConfig struct {
	WeavingLeadTime             time.Duration `envconfig:"MILLFLOW_SCHEDULING_WEAVING_LEAD_TIME" default:"168h"`
	CoatingLeadTime             time.Duration `envconfig:"MILLFLOW_SCHEDULING_COATING_LEAD_TIME" default:"168h"`
	CoatingAfterWeavingLeadTime time.Duration `envconfig:"MILLFLOW_SCHEDULING_COATING_AFTER_WEAVING_LEAD_TIME" default:"336h"`
}

func (s SchedulingConfig) validate() error {
	if s.WeavingLeadTime <= 0 || s.CoatingLeadTime <= 0 || s.CoatingAfterWeavingLeadTime <= 0 {
		return fmt.Errorf("scheduling lead times must be positive")
	}
	if s.CoatingAfterWeavingLeadTime < s.WeavingLeadTime {
		return fmt.Errorf("coating after weaving lead time must not precede weaving lead time")
	}
	return nil
}

// AuthorizationConfig selects the confirmation policy.
type AuthorizationConfig struct {
	ConfirmationPolicy   string   `envconfig:"MILLFLOW_CONFIRMATION_POLICY" default:"role"`
	ConfirmationRoles    []string `envconfig:"MILLFLOW_CONFIRMATION_ROLES" default:"planner,manager,admin"`
	ConfirmationCodeHash string   `envconfig:"MILLFLOW_CONFIRMATION_CODE_HASH"`
}

func (a AuthorizationConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.ConfirmationPolicy)) {
	case ConfirmationPolicyAllowAll, ConfirmationPolicyRole:
		return nil
	case ConfirmationPolicyCode:
		if strings.TrimSpace(a.ConfirmationCodeHash) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvConfirmationCodeHash, EnvConfirmationPolicy, ConfirmationPolicyCode)
		}
		return nil
	default:
		return fmt.Errorf("unknown confirmation policy %q", a.ConfirmationPolicy)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MILLFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MILLFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MILLFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic     string `envconfig:"MILLFLOW_PUBSUB_ORDERS_TOPIC" default:"mf-order-events"`
	ProductionTopic string `envconfig:"MILLFLOW_PUBSUB_PRODUCTION_TOPIC" default:"mf-production-events"`
	InventoryTopic  string `envconfig:"MILLFLOW_PUBSUB_INVENTORY_TOPIC" default:"mf-inventory-events"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"MILLFLOW_KAFKA_BROKERS"`
	Username     string        `envconfig:"MILLFLOW_KAFKA_USERNAME"`
	Password     string        `envconfig:"MILLFLOW_KAFKA_PASSWORD"`
	CACert       string        `envconfig:"MILLFLOW_KAFKA_CA_CERT"`
	BatchTimeout time.Duration `envconfig:"MILLFLOW_KAFKA_BATCH_TIMEOUT" default:"50ms"`
	WriteTimeout time.Duration `envconfig:"MILLFLOW_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MILLFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MILLFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MILLFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"MILLFLOW_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MILLFLOW_CRON_INTERVAL" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
