package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Secrets have no defaults and must come from config.json, .env or the environment.
type AppConfig struct {
	AppPort            string
	PublicBaseURL      string
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Token lifecycle
	AccessTokenSecret     string
	RefreshTokenSecret    string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
	ResetTokenTTLMinutes  int
	VerifyTokenTTLHours   int
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	// Redis for caching, throttles and the denylist cache
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPTLS      bool
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Object storage: local, s3 or minio
	StorageDriver    string
	StorageLocalDir  string
	StoragePublicURL string
	S3Region         string
	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
	S3Bucket         string
	S3UseSSL         bool
	// Mail queue; empty URL sends mail inline
	AMQPURL   string
	MailQueue string
	// Marketplace rules
	PostsLimit          int
	VIPPostsLimit       int
	ListingsPageSize    int
	ListingsMaxPageSize int
	ReportsPageSize     int
	CommentsPageSize    int
	CommentsMaxPageSize int
	ReportCommentPolicy string
	MaxImagesPerListing int
	MaxImageSizeMB      int
	MaxImageMegapixels  int
	// OAuth providers
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectBase  string
	// Registration security
	RegisterCaptchaEnabled     bool
	RegisterMaxPerIPPerDay     int
	RegisterAttemptCooldownSec int
	EmailCooldownSec           int
	// Staff reporting and background tasks
	AdminEmails     []string
	ReportsDir      string
	DailyReportHour int
	TasksEnabled    bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	cfg = LoadSettings()
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		log.Fatal("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be set")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		log.Fatal("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	loaded = true
	return cfg
}

// LoadSettings reads the configuration without validating secrets. Tools such
// as cmd/migrate use it directly.
func LoadSettings() AppConfig {
	var c AppConfig
	// Precedence: .env -> config/config.json -> defaults -> environment variable overrides
	_ = godotenv.Load()

	if err := loadJSONConfig(filepath.Join("config", "config.json"), &c); err != nil {
		log.Fatalf("invalid config/config.json: %v", err)
	}

	applyDefaults(&c)
	applyEnvOverrides(&c)
	return c
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set replaces the cached configuration. Used by tests and tools that build config in code.
func Set(c AppConfig) {
	applyDefaults(&c)
	cfg = c
	loaded = true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// section is one grouped object of config.json.
type section map[string]any

func (s section) str(key string, dst *string) {
	if v, ok := s[key].(string); ok && v != "" {
		*dst = v
	}
}

func (s section) num(key string, dst *int) {
	if v, ok := s[key].(float64); ok && v != 0 {
		*dst = int(v)
	}
}

func (s section) flag(key string, dst *bool) {
	if v, ok := s[key].(bool); ok {
		*dst = v
	}
}

func (s section) list(key string, dst *[]string) {
	arr, ok := s[key].([]any)
	if !ok {
		return
	}
	res := make([]string, 0, len(arr))
	for _, it := range arr {
		if str, ok := it.(string); ok {
			res = append(res, str)
		}
	}
	if len(res) > 0 {
		*dst = res
	}
}

// loadJSONConfig reads the grouped JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}
	get := func(name string) section {
		if m, ok := raw[name].(map[string]any); ok {
			return section(m)
		}
		return section{}
	}

	app := get("app")
	app.str("AppPort", &out.AppPort)
	app.str("PublicBaseURL", &out.PublicBaseURL)
	app.num("RateLimitPerMinute", &out.RateLimitPerMinute)
	app.list("AllowedOrigins", &out.AllowedOrigins)

	gin := get("gin")
	gin.str("Mode", &out.GinMode)
	gin.str("LogPath", &out.GinPath)

	auth := get("auth")
	auth.str("AccessTokenSecret", &out.AccessTokenSecret)
	auth.str("RefreshTokenSecret", &out.RefreshTokenSecret)
	auth.num("AccessTokenTTLMinutes", &out.AccessTokenTTLMinutes)
	auth.num("RefreshTokenTTLDays", &out.RefreshTokenTTLDays)
	auth.num("ResetTokenTTLMinutes", &out.ResetTokenTTLMinutes)
	auth.num("VerifyTokenTTLHours", &out.VerifyTokenTTLHours)

	dbs := get("database")
	dbs.str("Driver", &out.DBDriver)
	dbs.str("DatabaseURI", &out.DatabaseURI)
	dbs.str("DBHost", &out.DBHost)
	dbs.str("DBPort", &out.DBPort)
	dbs.str("DBUser", &out.DBUser)
	dbs.str("DBPassword", &out.DBPassword)
	dbs.str("DBName", &out.DBName)
	dbs.str("SSLMode", &out.DBSSLMode)

	rds := get("redis")
	rds.str("RedisHost", &out.RedisHost)
	rds.num("RedisPort", &out.RedisPort)
	rds.num("RedisDB", &out.RedisDB)
	rds.str("RedisPassword", &out.RedisPassword)

	sm := get("smtp")
	sm.str("SMTPHost", &out.SMTPHost)
	sm.num("SMTPPort", &out.SMTPPort)
	sm.str("SMTPUsername", &out.SMTPUsername)
	sm.str("SMTPPassword", &out.SMTPPassword)
	sm.str("SMTPFrom", &out.SMTPFrom)
	sm.str("SMTPFromName", &out.SMTPFromName)
	sm.flag("SMTPTLS", &out.SMTPTLS)

	lg := get("log")
	lg.str("Level", &out.LogLevel)
	lg.str("Path", &out.LogPath)
	lg.str("GinMode", &out.GinMode)
	lg.str("GinPath", &out.GinPath)
	lg.num("MaxSizeMB", &out.LogMaxSizeMB)
	lg.num("MaxBackups", &out.LogMaxBackups)
	lg.num("MaxAgeDays", &out.LogMaxAgeDays)
	lg.flag("Compress", &out.LogCompress)

	st := get("storage")
	st.str("Driver", &out.StorageDriver)
	st.str("LocalDir", &out.StorageLocalDir)
	st.str("PublicURL", &out.StoragePublicURL)
	st.str("S3Region", &out.S3Region)
	st.str("S3Endpoint", &out.S3Endpoint)
	st.str("S3AccessKey", &out.S3AccessKey)
	st.str("S3SecretKey", &out.S3SecretKey)
	st.str("S3Bucket", &out.S3Bucket)
	st.flag("S3UseSSL", &out.S3UseSSL)

	q := get("queue")
	q.str("AMQPURL", &out.AMQPURL)
	q.str("MailQueue", &out.MailQueue)

	mk := get("market")
	mk.num("PostsLimit", &out.PostsLimit)
	mk.num("VIPPostsLimit", &out.VIPPostsLimit)
	mk.num("ListingsPageSize", &out.ListingsPageSize)
	mk.num("ListingsMaxPageSize", &out.ListingsMaxPageSize)
	mk.num("ReportsPageSize", &out.ReportsPageSize)
	mk.num("CommentsPageSize", &out.CommentsPageSize)
	mk.num("CommentsMaxPageSize", &out.CommentsMaxPageSize)
	mk.str("ReportCommentPolicy", &out.ReportCommentPolicy)
	mk.num("MaxImagesPerListing", &out.MaxImagesPerListing)
	mk.num("MaxImageSizeMB", &out.MaxImageSizeMB)
	mk.num("MaxImageMegapixels", &out.MaxImageMegapixels)

	oa := get("oauth")
	oa.str("GitHubClientID", &out.GitHubClientID)
	oa.str("GitHubClientSecret", &out.GitHubClientSecret)
	oa.str("GoogleClientID", &out.GoogleClientID)
	oa.str("GoogleClientSecret", &out.GoogleClientSecret)
	oa.str("RedirectBase", &out.OAuthRedirectBase)

	rg := get("register")
	rg.flag("CaptchaEnabled", &out.RegisterCaptchaEnabled)
	rg.num("MaxPerIPPerDay", &out.RegisterMaxPerIPPerDay)
	rg.num("AttemptCooldownSec", &out.RegisterAttemptCooldownSec)
	rg.num("EmailCooldownSec", &out.EmailCooldownSec)

	adm := get("admin")
	adm.list("Emails", &out.AdminEmails)
	adm.str("ReportsDir", &out.ReportsDir)
	adm.num("DailyReportHour", &out.DailyReportHour)
	adm.flag("TasksEnabled", &out.TasksEnabled)

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = "http://localhost:" + c.AppPort
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.AccessTokenTTLMinutes == 0 {
		c.AccessTokenTTLMinutes = 30
	}
	if c.RefreshTokenTTLDays == 0 {
		c.RefreshTokenTTLDays = 7
	}
	if c.ResetTokenTTLMinutes == 0 {
		c.ResetTokenTTLMinutes = 10
	}
	if c.VerifyTokenTTLHours == 0 {
		c.VerifyTokenTTLHours = 24
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		if c.DBDriver == "postgres" {
			c.DBPort = "5432"
		} else {
			c.DBPort = "3306"
		}
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "classifieds"
	}
	if c.DBSSLMode == "" {
		c.DBSSLMode = "disable"
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.StorageDriver == "" {
		c.StorageDriver = "local"
	}
	if c.StorageLocalDir == "" {
		c.StorageLocalDir = "static"
	}
	if c.StoragePublicURL == "" {
		c.StoragePublicURL = "/static"
	}
	if c.S3Region == "" {
		c.S3Region = "us-east-1"
	}
	if c.S3Bucket == "" {
		c.S3Bucket = "classifieds"
	}
	if c.MailQueue == "" {
		c.MailQueue = "mail"
	}
	if c.PostsLimit == 0 {
		c.PostsLimit = 10
	}
	if c.VIPPostsLimit == 0 {
		c.VIPPostsLimit = 50
	}
	if c.ListingsPageSize == 0 {
		c.ListingsPageSize = 20
	}
	if c.ListingsMaxPageSize == 0 {
		c.ListingsMaxPageSize = 100
	}
	if c.ReportsPageSize == 0 {
		c.ReportsPageSize = 20
	}
	if c.CommentsPageSize == 0 {
		c.CommentsPageSize = 100
	}
	if c.CommentsMaxPageSize == 0 {
		c.CommentsMaxPageSize = 1000
	}
	if c.ReportCommentPolicy == "" {
		c.ReportCommentPolicy = "staff"
	}
	if c.MaxImagesPerListing == 0 {
		c.MaxImagesPerListing = 10
	}
	if c.MaxImageSizeMB == 0 {
		c.MaxImageSizeMB = 5
	}
	if c.MaxImageMegapixels == 0 {
		c.MaxImageMegapixels = 40
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = c.PublicBaseURL
	}
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
	if c.RegisterAttemptCooldownSec == 0 {
		c.RegisterAttemptCooldownSec = 10
	}
	if c.EmailCooldownSec == 0 {
		c.EmailCooldownSec = 60
	}
	if c.ReportsDir == "" {
		c.ReportsDir = "reports"
	}
	if c.DailyReportHour == 0 {
		c.DailyReportHour = 8
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	str := func(key string, dst *string) {
		if v := getEnv(key, ""); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getEnv(key, ""); v != "" {
			*dst = mustParseInt(v)
		}
	}
	flag := func(key string, dst *bool) {
		if v := getEnv(key, ""); v != "" {
			*dst = v == "true"
		}
	}

	str("APP_PORT", &c.AppPort)
	str("PUBLIC_BASE_URL", &c.PublicBaseURL)
	num("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	if getEnv("CORS_ALLOWED_ORIGINS", "") != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	str("GIN_MODE", &c.GinMode)
	str("GIN_PATH", &c.GinPath)

	str("ACCESS_TOKEN_SECRET", &c.AccessTokenSecret)
	str("REFRESH_TOKEN_SECRET", &c.RefreshTokenSecret)
	num("ACCESS_TOKEN_TTL_MINUTES", &c.AccessTokenTTLMinutes)
	num("REFRESH_TOKEN_TTL_DAYS", &c.RefreshTokenTTLDays)
	num("RESET_TOKEN_TTL_MINUTES", &c.ResetTokenTTLMinutes)
	num("VERIFY_TOKEN_TTL_HOURS", &c.VerifyTokenTTLHours)

	str("DB_DRIVER", &c.DBDriver)
	str("DATABASE_URI", &c.DatabaseURI)
	str("DB_HOST", &c.DBHost)
	str("DB_PORT", &c.DBPort)
	str("DB_USER", &c.DBUser)
	str("DB_PASSWORD", &c.DBPassword)
	str("DB_NAME", &c.DBName)
	str("DB_SSLMODE", &c.DBSSLMode)

	str("REDIS_HOST", &c.RedisHost)
	num("REDIS_PORT", &c.RedisPort)
	num("REDIS_DB", &c.RedisDB)
	str("REDIS_PASSWORD", &c.RedisPassword)

	str("SMTP_HOST", &c.SMTPHost)
	num("SMTP_PORT", &c.SMTPPort)
	str("SMTP_USERNAME", &c.SMTPUsername)
	str("SMTP_PASSWORD", &c.SMTPPassword)
	str("SMTP_FROM", &c.SMTPFrom)
	str("SMTP_FROM_NAME", &c.SMTPFromName)
	flag("SMTP_TLS", &c.SMTPTLS)

	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_PATH", &c.LogPath)
	num("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	num("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	num("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	flag("LOG_COMPRESS", &c.LogCompress)

	str("STORAGE_DRIVER", &c.StorageDriver)
	str("STORAGE_LOCAL_DIR", &c.StorageLocalDir)
	str("STORAGE_PUBLIC_URL", &c.StoragePublicURL)
	str("S3_REGION", &c.S3Region)
	str("S3_ENDPOINT", &c.S3Endpoint)
	str("S3_ACCESS_KEY", &c.S3AccessKey)
	str("S3_SECRET_KEY", &c.S3SecretKey)
	str("S3_BUCKET", &c.S3Bucket)
	flag("S3_USE_SSL", &c.S3UseSSL)

	str("AMQP_URL", &c.AMQPURL)
	str("MAIL_QUEUE", &c.MailQueue)

	num("POSTS_LIMIT", &c.PostsLimit)
	num("VIP_POSTS_LIMIT", &c.VIPPostsLimit)
	str("REPORT_COMMENT_POLICY", &c.ReportCommentPolicy)

	str("GITHUB_CLIENT_ID", &c.GitHubClientID)
	str("GITHUB_CLIENT_SECRET", &c.GitHubClientSecret)
	str("GOOGLE_CLIENT_ID", &c.GoogleClientID)
	str("GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret)
	str("OAUTH_REDIRECT_BASE_URL", &c.OAuthRedirectBase)

	flag("REGISTER_CAPTCHA_ENABLED", &c.RegisterCaptchaEnabled)
	num("REGISTER_MAX_PER_IP_PER_DAY", &c.RegisterMaxPerIPPerDay)
	num("REGISTER_ATTEMPT_COOLDOWN_SEC", &c.RegisterAttemptCooldownSec)
	num("EMAIL_COOLDOWN_SEC", &c.EmailCooldownSec)

	if getEnv("ADMIN_EMAILS", "") != "" {
		c.AdminEmails = readListEnv("ADMIN_EMAILS", c.AdminEmails)
	}
	str("REPORTS_DIR", &c.ReportsDir)
	num("DAILY_REPORT_HOUR", &c.DailyReportHour)
	flag("TASKS_ENABLED", &c.TasksEnabled)
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
