package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPHost string
	HTTPPort string

	DBDriver      string
	DBDSN         string
	DBMaxOpen     int
	DBMaxIdle     int
	DBMaxLifetime time.Duration

	AMQPURL           string
	AMQPExchange      string
	WorkQueue         string
	InitialDelayQueue string
	RetryDelayQueue   string
	InitialDelay      time.Duration
	RetryDelay        time.Duration
	PublisherConfirms bool
	ConsumerCount     int

	MaxRetries  int
	SendTimeout time.Duration

	FromEmail     string
	EmailProvider string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	SMTPTLS       string
	AWSRegion     string
	SESConfigSet  string

	LockBackend   string
	LockTTL       time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel     string
	LogOutput    string
	LogFile      string
	LogMaxSizeMB int
	LogMaxFiles  int

	MaxSubjectSize      int
	MaxTextSize         int
	MaxEmailAddressSize int
	DefaultLimit        int
	DefaultOffset       int
}

// Load reads configuration from the environment, after loading a .env file
// when one exists, and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		HTTPHost: getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		DBDriver:      strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBDSN:         getEnv("DB_DSN", "mailqueue:mailqueue@tcp(localhost:3306)/mailqueue?parseTime=true"),
		DBMaxOpen:     p.getInt("DB_MAX_OPEN", 10),
		DBMaxIdle:     p.getInt("DB_MAX_IDLE", 5),
		DBMaxLifetime: p.getDuration("DB_MAX_LIFETIME", 5*time.Minute),

		AMQPURL:           amqpURL(),
		AMQPExchange:      getEnv("AMQP_EXCHANGE", "amq.direct"),
		WorkQueue:         getEnv("WORK_QUEUE", "messages"),
		InitialDelayQueue: getEnv("INITIAL_DELAY_QUEUE", "work_delay"),
		RetryDelayQueue:   getEnv("RETRY_DELAY_QUEUE", "retry_delay"),
		InitialDelay:      time.Duration(p.getInt("INITIAL_DELAY_MS", 5000)) * time.Millisecond,
		RetryDelay:        time.Duration(p.getInt("RETRY_DELAY_MS", 60000)) * time.Millisecond,
		PublisherConfirms: p.getBool("PUBLISHER_CONFIRMS", true),
		ConsumerCount:     p.getInt("CONSUMER_COUNT", 1),

		MaxRetries:  p.getInt("MAX_RETRIES", 3),
		SendTimeout: p.getDuration("SEND_TIMEOUT", 30*time.Second),

		FromEmail:     os.Getenv("FROM_EMAIL"),
		EmailProvider: strings.ToLower(getEnv("EMAIL_PROVIDER", "smtp")),
		SMTPHost:      getEnv("SMTP_HOST", "localhost"),
		SMTPPort:      p.getInt("SMTP_PORT", 25),
		SMTPUser:      os.Getenv("SMTP_USER"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPTLS:       strings.ToLower(getEnv("SMTP_TLS", "none")),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
		SESConfigSet:  os.Getenv("SES_CONFIGURATION_SET"),

		LockBackend:   strings.ToLower(getEnv("LOCK_BACKEND", "redis")),
		LockTTL:       p.getDuration("LOCK_TTL", 2*time.Minute),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.getInt("REDIS_DB", 0),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogOutput:    strings.ToLower(getEnv("LOG_OUTPUT", "stdout")),
		LogFile:      getEnv("LOG_FILE", "mailqueue.log"),
		LogMaxSizeMB: p.getInt("LOG_MAX_SIZE_MB", 100),
		LogMaxFiles:  p.getInt("LOG_MAX_FILES", 5),

		MaxSubjectSize:      p.getInt("MAX_SUBJECT_SIZE", 255),
		MaxTextSize:         p.getInt("MAX_TEXT_SIZE", 10000),
		MaxEmailAddressSize: p.getInt("MAX_EMAIL_ADDRESS_SIZE", 254),
		DefaultLimit:        p.getInt("DEFAULT_LIMIT", 20),
		DefaultOffset:       p.getInt("DEFAULT_OFFSET", 0),
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.FromEmail != "", "FROM_EMAIL is required")
	check(oneOf(c.DBDriver, "mysql", "postgres"), "DB_DRIVER must be mysql or postgres, got %q", c.DBDriver)
	check(c.DBDSN != "", "DB_DSN is required")
	check(c.AMQPURL != "", "AMQP_URL or RABBITMQ_HOST is required")
	check(c.InitialDelay > 0, "INITIAL_DELAY_MS must be > 0")
	check(c.RetryDelay > 0, "RETRY_DELAY_MS must be > 0")
	check(c.MaxRetries >= 0, "MAX_RETRIES must be >= 0")
	check(c.ConsumerCount >= 1, "CONSUMER_COUNT must be >= 1")
	check(c.SendTimeout > 0, "SEND_TIMEOUT must be > 0")
	check(oneOf(c.EmailProvider, "smtp", "ses", "noop"), "EMAIL_PROVIDER must be smtp, ses or noop, got %q", c.EmailProvider)
	check(oneOf(c.SMTPTLS, "none", "starttls", "implicit"), "SMTP_TLS must be none, starttls or implicit, got %q", c.SMTPTLS)
	check(oneOf(c.LockBackend, "redis", "mysql", "none"), "LOCK_BACKEND must be redis, mysql or none, got %q", c.LockBackend)
	check(!(c.LockBackend == "mysql" && c.DBDriver != "mysql"), "LOCK_BACKEND=mysql requires DB_DRIVER=mysql")
	check(c.LockTTL > 0, "LOCK_TTL must be > 0")
	// The lock is held across the whole send; it must not expire before the send times out.
	check(c.LockTTL > c.SendTimeout, "LOCK_TTL (%s) must exceed SEND_TIMEOUT (%s)", c.LockTTL, c.SendTimeout)
	check(oneOf(c.LogOutput, "stdout", "file"), "LOG_OUTPUT must be stdout or file, got %q", c.LogOutput)
	check(c.DefaultLimit >= 0 && c.DefaultOffset >= 0, "DEFAULT_LIMIT and DEFAULT_OFFSET must be >= 0")

	return errors.Join(errs...)
}

func amqpURL() string {
	if url := os.Getenv("AMQP_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("amqp://guest:guest@%s:5672/", getEnv("RABBITMQ_HOST", "localhost"))
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects conversion errors so Load can report all of them at once.
type parser struct {
	errs []error
}

func (p *parser) getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid int for %s: %q", key, value))
		return defaultValue
	}
	return i
}

func (p *parser) getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid bool for %s: %q", key, value))
		return defaultValue
	}
	return b
}

// getDuration accepts Go duration strings ("30s") or plain seconds ("30").
func (p *parser) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid duration for %s: %q", key, value))
		return defaultValue
	}
	return d
}
