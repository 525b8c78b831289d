package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv    string
	LogFormat string
	HTTPAddr  string
	// TrustProxy keys clients on X-Forwarded-For / X-Real-IP. Enable only
	// behind a proxy that overwrites those headers.
	TrustProxy bool

	DataDir       string
	StorageDriver string
	MySQLDSN      string

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration

	AdminToken    string
	AdminName     string
	AdminEmail    string
	PublicBaseURL string

	MailProvider string
	MailAPIURL   string
	MailAPIKey   string
	MailFrom     string
	MailRPS      int
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string

	RateSubmitPerHour  int
	RateVerifyPer15Min int
	RateAdminPerMin    int

	JanitorWorkers  int
	VerificationTTL time.Duration
}

// Load reads .env (if present) and then the process environment.
// Variables already set in the environment win over .env.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg(".env could not be parsed")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	flag := func(k string, def bool) bool {
		if v := os.Getenv(k); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not a boolean, using default")
		}
		return def
	}
	c := Config{
		AppEnv:    env("APP_ENV", "prod"),
		LogFormat: env("LOG_FORMAT", "json"),
		HTTPAddr:  env("HTTP_ADDR", ":8080"),

		TrustProxy: flag("TRUST_PROXY", false),

		DataDir:       env("DATA_DIR", "data"),
		StorageDriver: env("STORAGE_DRIVER", "file"),
		MySQLDSN:      env("MYSQL_DSN", "root:root@tcp(localhost:3306)/reviews?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),

		RedisAddr: env("REDIS_ADDR", ""),
		RedisDB:   atoi("REDIS_DB", 0),
		RedisPass: env("REDIS_PASSWORD", ""),
		CacheTTL:  time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,

		AdminToken:    env("ADMIN_API_TOKEN", ""),
		AdminName:     env("ADMIN_NAME", "admin"),
		AdminEmail:    env("ADMIN_EMAIL", ""),
		PublicBaseURL: env("PUBLIC_BASE_URL", "http://localhost:3000"),

		MailProvider: env("MAIL_PROVIDER", "log"),
		MailAPIURL:   env("MAIL_API_URL", "https://api.resend.com/emails"),
		MailAPIKey:   env("MAIL_API_KEY", ""),
		MailFrom:     env("MAIL_FROM", ""),
		MailRPS:      atoi("MAIL_RPS", 2),
		SMTPHost:     env("SMTP_HOST", ""),
		SMTPPort:     env("SMTP_PORT", "587"),
		SMTPUser:     env("SMTP_USER", ""),
		SMTPPass:     env("SMTP_PASS", ""),

		RateSubmitPerHour:  atoi("RATE_SUBMIT_PER_HOUR", 3),
		RateVerifyPer15Min: atoi("RATE_VERIFY_PER_15MIN", 10),
		RateAdminPerMin:    atoi("RATE_ADMIN_PER_MIN", 60),

		JanitorWorkers:  atoi("JANITOR_WORKERS", 4),
		VerificationTTL: time.Duration(atoi("VERIFICATION_TTL_HOURS", 168)) * time.Hour,
	}
	if c.AdminToken == "" {
		log.Warn().Msg("ADMIN_API_TOKEN is empty; admin endpoints will reject every request")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
