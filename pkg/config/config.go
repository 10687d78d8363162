package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Billing      BillingConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DUES_APP_ENV" required:"true"`
	Port         string `envconfig:"DUES_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DUES_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DUES_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"DUES_LOG_FORMAT" default:"json"`
	PublicURL    string `envconfig:"DUES_APP_PUBLIC_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DUES_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DUES_DB_DSN"`
	Driver string `envconfig:"DUES_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DUES_DB_HOST"`
	LegacyPort     int    `envconfig:"DUES_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DUES_DB_USER"`
	LegacyPassword string `envconfig:"DUES_DB_PASSWORD"`
	LegacyName     string `envconfig:"DUES_DB_NAME"`
	LegacySSLMode  string `envconfig:"DUES_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"DUES_DB_SQLITE_PATH" default:"dues.db"`

	MaxOpenConns    int           `envconfig:"DUES_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DUES_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DUES_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DUES_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"DUES_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DUES_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DUES_REDIS_ADDR"`
	Password     string        `envconfig:"DUES_REDIS_PASSWORD"`
	DB           int           `envconfig:"DUES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DUES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DUES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DUES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DUES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DUES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DUES_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DUES_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"DUES_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"DUES_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"DUES_STRIPE_ENV" default:"test"`
	// DuesProductID is the processor product every dues subscription price hangs off.
	DuesProductID string `envconfig:"DUES_STRIPE_DUES_PRODUCT_ID"`
	Currency      string `envconfig:"DUES_STRIPE_CURRENCY" default:"usd"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"DUES_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"DUES_SENDGRID_FROM_EMAIL" default:"dues@example.org"`
	FromName    string `envconfig:"DUES_SENDGRID_FROM_NAME" default:"Membership Dues"`

	StatusChangedTemplate   string `envconfig:"DUES_SENDGRID_TEMPLATE_STATUS_CHANGED"`
	PaymentReminderTemplate string `envconfig:"DUES_SENDGRID_TEMPLATE_PAYMENT_REMINDER"`
	PayerSetupTemplate      string `envconfig:"DUES_SENDGRID_TEMPLATE_PAYER_SETUP"`
	OnboardingTemplate      string `envconfig:"DUES_SENDGRID_TEMPLATE_ONBOARDING"`
}

// BillingConfig holds the dues policy knobs shared by payment recording and the overdue sweep.
type BillingConfig struct {
	EligibilityThreshold int           `envconfig:"DUES_BILLING_ELIGIBILITY_THRESHOLD" default:"60"`
	LapseDays            int           `envconfig:"DUES_BILLING_LAPSE_DAYS" default:"7"`
	ReminderOffsetsDays  []int         `envconfig:"DUES_BILLING_REMINDER_OFFSETS_DAYS" default:"3,7,14"`
	MaxReminders         int           `envconfig:"DUES_BILLING_MAX_REMINDERS" default:"3"`
	CancelMonths         int           `envconfig:"DUES_BILLING_CANCEL_MONTHS" default:"24"`
	SweepBatchSize       int           `envconfig:"DUES_BILLING_SWEEP_BATCH_SIZE" default:"200"`
	InviteTTL            time.Duration `envconfig:"DUES_BILLING_INVITE_TTL" default:"336h"`
}

func (b BillingConfig) validate() error {
	if b.EligibilityThreshold <= 0 {
		return fmt.Errorf("%s must be positive", EnvEligibilityThreshold)
	}
	if b.LapseDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvLapseDays)
	}
	if b.CancelMonths <= 0 {
		return fmt.Errorf("%s must be positive", EnvCancelMonths)
	}
	if b.MaxReminders < 0 {
		return fmt.Errorf("%s must not be negative", EnvMaxReminders)
	}
	prev := 0
	for _, offset := range b.ReminderOffsetsDays {
		if offset <= prev {
			return fmt.Errorf("%s must be strictly increasing positive days", EnvReminderOffsets)
		}
		prev = offset
	}
	return nil
}

type CronConfig struct {
	Secret        string        `envconfig:"DUES_CRON_SECRET"`
	Interval      time.Duration `envconfig:"DUES_CRON_INTERVAL" default:"1m"`
	SweepSchedule string        `envconfig:"DUES_CRON_SWEEP_SCHEDULE" default:"0 6 * * *"`
	LockTTL       time.Duration `envconfig:"DUES_CRON_LOCK_TTL" default:"30m"`
	SweepCacheTTL time.Duration `envconfig:"DUES_CRON_SWEEP_CACHE_TTL" default:"48h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
