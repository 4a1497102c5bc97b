package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port           string
	DatabasePath   string
	MigrationsPath string
	LogLevel       string

	// Security settings
	JWTSecret          string
	CSRFAuthKey        []byte
	AccessTokenExpiry  time.Duration
	MaxUploadSizeBytes int64

	// Bootstrap admin, created on first start when the users table is empty
	AdminUsername string
	AdminPassword string

	// Name shown next to the account in authenticator apps
	MFAIssuer string

	// Session and source freshness
	SessionTTL      time.Duration
	SourceFreshness time.Duration

	// CORS
	AllowedOrigins []string

	// Shared settings for the paginated REST sources
	SourceHTTPTimeout       time.Duration
	SourcePageSize          int
	SourceMaxPages          int
	SourceRequestsPerSecond float64
	MerchantAPIBaseURL      string
	MerchantAPIToken        string
	MerchantAPIClientID     string
	MerchantAPIClientSecret string
	MerchantAPITokenURL     string
	AccountingAPIBaseURL    string
	AccountingAPIUser       string
	AccountingAPIPassword   string

	// Rounding audit
	AuditTolerance string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables.")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	// --- Security & Tokens (Secrets) ---
	jwtSecret := getRequiredEnv("JWT_SECRET")
	csrfAuthKeyStr := getRequiredEnv("CSRF_AUTH_KEY")

	// --- File Size Limits ---
	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760") // 10MB default
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		// Core
		Port:           getEnv("PORT", "8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "./conciliador.db"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		// Security
		JWTSecret:          jwtSecret,
		CSRFAuthKey:        []byte(csrfAuthKeyStr),
		AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 8*time.Hour),
		MaxUploadSizeBytes: maxUploadSizeBytes,
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		MFAIssuer:          getEnv("MFA_ISSUER", "Conciliador"),

		// Session
		SessionTTL:      getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		SourceFreshness: getEnvAsDuration("SOURCE_FRESHNESS", 10*time.Minute),

		// REST sources
		SourceHTTPTimeout:       getEnvAsDuration("SOURCE_HTTP_TIMEOUT", 30*time.Second),
		SourcePageSize:          getEnvAsInt("SOURCE_PAGE_SIZE", 100),
		SourceMaxPages:          getEnvAsInt("SOURCE_MAX_PAGES", 50),
		SourceRequestsPerSecond: getEnvAsFloat("SOURCE_REQUESTS_PER_SECOND", 5),
		AllowedOrigins:          getList("ALLOWED_ORIGINS", "http://localhost:3000"),
		MerchantAPIBaseURL:      getEnv("MERCHANT_API_BASE_URL", ""),
		MerchantAPIToken:        getEnv("MERCHANT_API_TOKEN", ""),
		MerchantAPIClientID:     getEnv("MERCHANT_API_CLIENT_ID", ""),
		MerchantAPIClientSecret: getEnv("MERCHANT_API_CLIENT_SECRET", ""),
		MerchantAPITokenURL:     getEnv("MERCHANT_API_TOKEN_URL", ""),
		AccountingAPIBaseURL:    getEnv("ACCOUNTING_API_BASE_URL", ""),
		AccountingAPIUser:       getEnv("ACCOUNTING_API_USER", ""),
		AccountingAPIPassword:   getEnv("ACCOUNTING_API_PASSWORD", ""),

		AuditTolerance: getEnv("AUDIT_TOLERANCE", "0.005"),
	}

	if Cfg.SourcePageSize <= 0 {
		log.Printf("WARNING: SOURCE_PAGE_SIZE must be positive, using 100")
		Cfg.SourcePageSize = 100
	}
	if Cfg.SourceMaxPages <= 0 {
		log.Printf("WARNING: SOURCE_MAX_PAGES must be positive, using 50")
		Cfg.SourceMaxPages = 50
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, MerchantAPI=%t, AccountingAPI=%t",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.MerchantAPIBaseURL != "", Cfg.AccountingAPIBaseURL != "")
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getRequiredEnv retrieves an environment variable or terminates the application if not set.
func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set or is empty. Application cannot start securely.", key)
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getList parses a comma-separated variable, dropping empty entries.
func getList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
