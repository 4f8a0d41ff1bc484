package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "hauldash"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "HAULDASH_DB_DSN"
	EnvDBHost = "HAULDASH_DB_HOST"
	EnvDBUser = "HAULDASH_DB_USER"
	EnvDBName = "HAULDASH_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Gateway      GatewayConfig
	Booking      BookingConfig
	ServiceArea  ServiceAreaConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HAULDASH_APP_ENV" required:"true"`
	Port         string `envconfig:"HAULDASH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HAULDASH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HAULDASH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"HAULDASH_DB_DSN"`
	Driver string `envconfig:"HAULDASH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HAULDASH_DB_HOST"`
	LegacyPort     int    `envconfig:"HAULDASH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HAULDASH_DB_USER"`
	LegacyPassword string `envconfig:"HAULDASH_DB_PASSWORD"`
	LegacyName     string `envconfig:"HAULDASH_DB_NAME"`
	LegacySSLMode  string `envconfig:"HAULDASH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HAULDASH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HAULDASH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HAULDASH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HAULDASH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HAULDASH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HAULDASH_REDIS_ADDR"`
	Password     string        `envconfig:"HAULDASH_REDIS_PASSWORD"`
	DB           int           `envconfig:"HAULDASH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HAULDASH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HAULDASH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HAULDASH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HAULDASH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HAULDASH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"HAULDASH_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"HAULDASH_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"HAULDASH_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"HAULDASH_JWT_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type StripeConfig struct {
	APIKey        string `envconfig:"HAULDASH_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"HAULDASH_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"HAULDASH_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// GatewayConfig bounds the outbound payment calls. Transient transport
// failures are retried; business declines never are.
type GatewayConfig struct {
	CallTimeout    time.Duration `envconfig:"HAULDASH_GATEWAY_CALL_TIMEOUT" default:"15s"`
	MaxAttempts    int           `envconfig:"HAULDASH_GATEWAY_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"HAULDASH_GATEWAY_INITIAL_BACKOFF" default:"500ms"`
}

// BookingConfig carries the booking-policy knobs, including the
// cancellation-fee tiers applied by elapsed/remaining time.
type BookingConfig struct {
	MinLeadTime            time.Duration `envconfig:"HAULDASH_BOOKING_MIN_LEAD_TIME" default:"1h"`
	InstructionsMaxLen     int           `envconfig:"HAULDASH_BOOKING_INSTRUCTIONS_MAX_LEN" default:"500"`
	GraceWindow            time.Duration `envconfig:"HAULDASH_BOOKING_CANCEL_GRACE_WINDOW" default:"1h"`
	FullRefundLeadTime     time.Duration `envconfig:"HAULDASH_BOOKING_FULL_REFUND_LEAD_TIME" default:"24h"`
	PartialRefundLeadTime  time.Duration `envconfig:"HAULDASH_BOOKING_PARTIAL_REFUND_LEAD_TIME" default:"2h"`
	PartialRefundPercent   int           `envconfig:"HAULDASH_BOOKING_PARTIAL_REFUND_PERCENT" default:"50"`
	EmergencyRefundPercent int           `envconfig:"HAULDASH_BOOKING_EMERGENCY_REFUND_PERCENT" default:"100"`
}

// ServiceAreaConfig describes where bookings may be placed. The area is a
// center point plus radius; exclusion zones arrive as a JSON array of
// {lat,lng,radius_miles} objects.
type ServiceAreaConfig struct {
	CenterLat          float64 `envconfig:"HAULDASH_SERVICE_AREA_CENTER_LAT" default:"30.2672"`
	CenterLng          float64 `envconfig:"HAULDASH_SERVICE_AREA_CENTER_LNG" default:"-97.7431"`
	RadiusMiles        float64 `envconfig:"HAULDASH_SERVICE_AREA_RADIUS_MILES" default:"25"`
	ExclusionZonesJSON string  `envconfig:"HAULDASH_SERVICE_AREA_EXCLUSION_ZONES"`
}

// RateLimitConfig throttles the mutation surface. A limit of zero disables
// the corresponding dimension.
type RateLimitConfig struct {
	Window             time.Duration `envconfig:"HAULDASH_RATE_LIMIT_WINDOW" default:"1m"`
	MutationIPLimit    int           `envconfig:"HAULDASH_RATE_LIMIT_MUTATION_IP_LIMIT" default:"120"`
	MutationActorLimit int           `envconfig:"HAULDASH_RATE_LIMIT_MUTATION_ACTOR_LIMIT" default:"60"`
	WebhookIPLimit     int           `envconfig:"HAULDASH_RATE_LIMIT_WEBHOOK_IP_LIMIT" default:"0"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HAULDASH_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookGuardTTL time.Duration `envconfig:"HAULDASH_EVENTING_WEBHOOK_GUARD_TTL" default:"720h"`
	IdempotencyTTL  time.Duration `envconfig:"HAULDASH_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type PubSubConfig struct {
	BookingsTopic            string `envconfig:"HAULDASH_PUBSUB_BOOKINGS_TOPIC" required:"true"`
	BookingsSubscription     string `envconfig:"HAULDASH_PUBSUB_BOOKINGS_SUBSCRIPTION" required:"true"`
	PaymentsTopic            string `envconfig:"HAULDASH_PUBSUB_PAYMENTS_TOPIC" required:"true"`
	PaymentsSubscription     string `envconfig:"HAULDASH_PUBSUB_PAYMENTS_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"HAULDASH_PUBSUB_NOTIFICATION_TOPIC" default:"hd-notification-events"`
	NotificationSubscription string `envconfig:"HAULDASH_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	ProjectID                string `envconfig:"HAULDASH_GCP_PROJECT_ID"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"HAULDASH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"HAULDASH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"HAULDASH_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
