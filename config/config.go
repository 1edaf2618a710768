package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/joho/godotenv"

	"verihunt/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

// RedisConfig configures the rate-limiter/catch-all-cache Redis client.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Config is the process-wide settings surface, trimmed to what this
// service's ambient stack and domain packages actually read.
type Config struct {
	Environment     string        `json:"environment"`
	ServerPort      string        `json:"server_port"`
	DBHost          string        `json:"db_host"`
	DBPort          string        `json:"db_port"`
	DBUser          string        `json:"db_user"`
	DBPassword      string        `json:"-"`
	DBName          string        `json:"db_name"`
	DBSSLMode       string        `json:"db_ssl_mode"`
	DBMaxIdleConns  int           `json:"db_max_idle_conns"`
	DBMaxOpenConns  int           `json:"db_max_open_conns"`
	Redis           RedisConfig   `json:"redis"`
	SourceIPs       []string      `json:"source_ips"`
	HeloHostname    string        `json:"helo_hostname"`
	SenderAddress   string        `json:"sender_address"`
	SMTPIdleTime    time.Duration `json:"smtp_idle_timeout"`
	VerifyEarlyExit bool          `json:"verify_early_exit"`
	VerifyRateLimit int           `json:"verify_rate_limit"`
	LogDir          string        `json:"log_dir"`
	SentryDSN       string        `json:"-"`
}

func init() {
	_ = godotenv.Load()
	envLoaded = true
}

// LoadConfig populates AppConfig from the environment, validating the
// settings the domain packages cannot safely default: the source IP
// pool must be non-empty and every entry must parse as an IP.
func LoadConfig() error {
	ips := splitAndTrim(getEnv("SOURCE_IPS", ""))

	AppConfig = Config{
		Environment:     getEnv("ENVIRONMENT", "development"),
		ServerPort:      getEnv("SERVER_PORT", "5000"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "postgres"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "verihunt"),
		DBSSLMode:       getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns:  getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns:  getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SourceIPs:       ips,
		HeloHostname:    getEnv("HELO_HOSTNAME", "verihunt.local"),
		SenderAddress:   getEnv("SENDER_ADDRESS", "probe@verihunt.local"),
		SMTPIdleTime:    time.Duration(getEnvAsInt("SMTP_IDLE_TIMEOUT_SECONDS", 10)) * time.Second,
		VerifyEarlyExit: getEnvAsBool("VERIFY_EARLY_EXIT", true),
		VerifyRateLimit: getEnvAsInt("VERIFY_RATE_LIMIT_PER_MINUTE", 60),
		LogDir:          getEnv("LOG_DIR", "logs"),
		SentryDSN:       getEnv("SENTRY_DSN", ""),
	}

	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if len(AppConfig.SourceIPs) == 0 {
		return fmt.Errorf("SOURCE_IPS is required: comma-separated list of local source addresses")
	}
	for _, ip := range AppConfig.SourceIPs {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("SOURCE_IPS entry %q is not a valid IP address", ip)
		}
	}

	logConfig()
	return nil
}

// ConnectDB opens the PostgreSQL connection and migrates the domain
// models, following the teacher's exact tuning calls.
func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
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

	log.Println("connected to the database")
	log.Println("starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("database migration completed")
	return nil
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Company{},
		&models.CompanyPattern{},
		&models.PatternGlobal{},
		&models.Person{},
		&models.ProbeLog{},
		&models.CatchAllDomain{},
	)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
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

func splitAndTrim(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
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
	log.Println("loaded configuration:")
	log.Printf("environment: %s", AppConfig.Environment)
	log.Printf("server port: %s", AppConfig.ServerPort)
	log.Printf("database: %s@%s:%s/%s",
		AppConfig.DBUser, AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBName)
	log.Printf("source IP pool: %d addresses", len(AppConfig.SourceIPs))
}
