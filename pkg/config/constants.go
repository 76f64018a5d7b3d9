package config

// EnvPrefix is passed to envconfig; every field carries its full name in tags.
const EnvPrefix = "MILLFLOW"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DefaultSQLiteDSN = "file:millflow.db?cache=shared&_busy_timeout=5000"

	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"

	ConfirmationPolicyAllowAll = "allow_all"
	ConfirmationPolicyRole     = "role"
	ConfirmationPolicyCode     = "code"
)

const (
	EnvAppEnv               = "MILLFLOW_APP_ENV"
	EnvPort                 = "MILLFLOW_APP_PORT"
	EnvDBDSN                = "MILLFLOW_DB_DSN"
	EnvDBDriver             = "MILLFLOW_DB_DRIVER"
	EnvDBHost               = "MILLFLOW_DB_HOST"
	EnvDBUser               = "MILLFLOW_DB_USER"
	EnvDBName               = "MILLFLOW_DB_NAME"
	EnvUseSQLite            = "MILLFLOW_USE_SQLITE"
	EnvRedisURL             = "MILLFLOW_REDIS_URL"
	EnvJWTSecret            = "MILLFLOW_JWT_SECRET"
	EnvJWTIssuer            = "MILLFLOW_JWT_ISSUER"
	EnvBroker               = "MILLFLOW_BROKER"
	EnvKafkaBrokers         = "MILLFLOW_KAFKA_BROKERS"
	EnvWeavingLeadTime      = "MILLFLOW_SCHEDULING_WEAVING_LEAD_TIME"
	EnvCoatingLeadTime      = "MILLFLOW_SCHEDULING_COATING_LEAD_TIME"
	EnvConfirmationPolicy   = "MILLFLOW_CONFIRMATION_POLICY"
	EnvConfirmationRoles    = "MILLFLOW_CONFIRMATION_ROLES"
	EnvConfirmationCodeHash = "MILLFLOW_CONFIRMATION_CODE_HASH"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
