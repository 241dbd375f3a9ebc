package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"runwayiq/models"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

// ErrIntegrationNotConfigured is returned when an optional integration lacks credentials
var ErrIntegrationNotConfigured = errors.New("integration not configured")

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type RabbitMQConfig struct {
	URL      string `json:"-"`
	Exchange string `json:"exchange"`
	Queue    string `json:"queue"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
}

type TwilioConfig struct {
	AccountSID  string `json:"account_sid"`
	AuthToken   string `json:"-"`
	PhoneNumber string `json:"phone_number"`
}

type OpenAIConfig struct {
	APIKey string `json:"-"`
	Model  string `json:"model"`
}

type ElevenLabsConfig struct {
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url"`
}

type SheetsConfig struct {
	ClientEmail   string `json:"client_email"`
	PrivateKey    string `json:"-"`
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range"`
}

type Config struct {
	Environment    string `json:"environment"`
	ServerPort     string `json:"server_port"`
	PublicBaseURL  string `json:"public_base_url"`
	AllowedOrigins string `json:"allowed_origins"`
	JWTSecret      string `json:"-"`
	JWTExpiryHours int    `json:"jwt_expiry_hours"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	SentryDSN string `json:"-"`

	Redis      RedisConfig      `json:"redis"`
	RabbitMQ   RabbitMQConfig   `json:"rabbitmq"`
	SMTP       SMTPConfig       `json:"smtp"`
	Twilio     TwilioConfig     `json:"twilio"`
	OpenAI     OpenAIConfig     `json:"openai"`
	ElevenLabs ElevenLabsConfig `json:"elevenlabs"`
	Sheets     SheetsConfig     `json:"sheets"`

	CampaignTemplatePath string `json:"campaign_template_path"`
	Timezone             string `json:"timezone"`
	RateLimitPerMinute   int    `json:"rate_limit_per_minute"`
	DigestHour           int    `json:"digest_hour"`
	DigestEnabled        bool   `json:"digest_enabled"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:5000"), "/"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		JWTExpiryHours: getEnvAsInt("JWT_EXPIRY_HOURS", 24),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "runwayiq"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		SentryDSN: getEnv("SENTRY_DSN", ""),

		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "calls"),
			Queue:    getEnv("RABBITMQ_QUEUE", "calls.dial"),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("FROM_EMAIL", "no-reply@runwayiq.local"),
		},
		Twilio: TwilioConfig{
			AccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
			PhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
			Model:  getEnv("OPENAI_MODEL", "gpt-4"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:  getEnv("ELEVENLABS_API_KEY", ""),
			BaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		},
		Sheets: SheetsConfig{
			ClientEmail:   getEnv("GOOGLE_SHEETS_CLIENT_EMAIL", ""),
			PrivateKey:    strings.ReplaceAll(getEnv("GOOGLE_SHEETS_PRIVATE_KEY", ""), `\n`, "\n"),
			SpreadsheetID: getEnv("GOOGLE_SHEETS_SPREADSHEET_ID", ""),
			Range:         getEnv("GOOGLE_SHEETS_RANGE", "Sheet1!A:H"),
		},

		CampaignTemplatePath: getEnv("CAMPAIGN_TEMPLATE_PATH", ""),
		Timezone:             getEnv("TIMEZONE", "UTC"),
		RateLimitPerMinute:   getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		DigestHour:           getEnvAsInt("DIGEST_HOUR", 8),
		DigestEnabled:        getEnvAsBool("DIGEST_ENABLED", false),
	}

	if err := AppConfig.Validate(); err != nil {
		return err
	}

	logConfig()
	return nil
}

// Validate checks required values and value ranges
func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Environment == "production" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.DigestHour < 0 || c.DigestHour > 23 {
		return fmt.Errorf("DIGEST_HOUR must be between 0 and 23")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

func (c *Config) TwilioConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.PhoneNumber != ""
}

func (c *Config) OpenAIConfigured() bool { return c.OpenAI.APIKey != "" }

func (c *Config) ElevenLabsConfigured() bool { return c.ElevenLabs.APIKey != "" }

func (c *Config) SheetsConfigured() bool {
	return c.Sheets.ClientEmail != "" && c.Sheets.PrivateKey != "" && c.Sheets.SpreadsheetID != ""
}

func (c *Config) RabbitMQConfigured() bool { return c.RabbitMQ.URL != "" }

func (c *Config) SMTPConfigured() bool { return c.SMTP.Host != "" }

// Location returns the zone campaign dates are computed in
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotConfigured wraps ErrIntegrationNotConfigured with the integration name
func NotConfigured(integration string) error {
	return fmt.Errorf("%s %w", integration, ErrIntegrationNotConfigured)
}

func ConnectDB() error {
	logrus.Info("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	logrus.Info("Using connection string: ", maskPassword(dsn))

	gormLogger := logger.Default.LogMode(logger.Warn)
	if AppConfig.Environment == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logrus.Info("✅ Successfully connected to the database")
	logrus.Info("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	logrus.Info("✅ Database migration completed")
	return nil
}

// MigrateDB creates or updates every table the service uses
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		logrus.Warnf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	logrus.Info("🔧 Loaded configuration:")
	logrus.Infof("Environment: %s", AppConfig.Environment)
	logrus.Infof("Server Port: %s", AppConfig.ServerPort)
	logrus.Infof("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	logrus.Infof("Integrations: Twilio(%t), OpenAI(%t), ElevenLabs(%t), Sheets(%t), RabbitMQ(%t), Redis(%t)",
		AppConfig.TwilioConfigured(),
		AppConfig.OpenAIConfigured(),
		AppConfig.ElevenLabsConfigured(),
		AppConfig.SheetsConfigured(),
		AppConfig.RabbitMQConfigured(),
		AppConfig.Redis.Enabled)
}
