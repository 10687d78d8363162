package config

const (
	EnvPrefix = "DUES"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "DUES_APP_ENV"
	EnvPort        = "DUES_APP_PORT"
	EnvLogLevel    = "DUES_LOG_LEVEL"
	EnvServiceKind = "DUES_SERVICE_KIND"

	EnvDBDSN  = "DUES_DB_DSN"
	EnvDBHost = "DUES_DB_HOST"
	EnvDBUser = "DUES_DB_USER"
	EnvDBName = "DUES_DB_NAME"

	EnvRedisURL = "DUES_REDIS_URL"

	EnvStripeAPIKey        = "DUES_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "DUES_STRIPE_WEBHOOK_SECRET"

	EnvSendgridAPIKey = "DUES_SENDGRID_API_KEY"

	EnvEligibilityThreshold = "DUES_BILLING_ELIGIBILITY_THRESHOLD"
	EnvLapseDays            = "DUES_BILLING_LAPSE_DAYS"
	EnvReminderOffsets      = "DUES_BILLING_REMINDER_OFFSETS_DAYS"
	EnvMaxReminders         = "DUES_BILLING_MAX_REMINDERS"
	EnvCancelMonths         = "DUES_BILLING_CANCEL_MONTHS"

	EnvCronSecret        = "DUES_CRON_SECRET"
	EnvCronSweepSchedule = "DUES_CRON_SWEEP_SCHEDULE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
