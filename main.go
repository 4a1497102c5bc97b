package main

import (
	"crypto/tls"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/username/conciliador/src/config"
	"github.com/username/conciliador/src/database"
	"github.com/username/conciliador/src/handlers"
	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/model"
	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/processors"
	"github.com/username/conciliador/src/security"
	"github.com/username/conciliador/src/services"
	"github.com/username/conciliador/src/utils"
)

// maxAuditRecords bounds a single audit batch.
const maxAuditRecords = 200000

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			r.RemoteAddr = strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			utils.SendJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(allowed []string) func(http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		allowedOrigins[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
				w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag, Content-Disposition, X-Request-ID")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// buildSourceClients creates a client for every REST source that has a base URL.
func buildSourceClients(cfg *config.AppConfig) map[models.SourceType]services.SourceClient {
	shared := func(source models.SourceType, baseURL string) services.APISourceConfig {
		mapping, _ := processors.MappingFor(source)
		return services.APISourceConfig{
			Source:            source,
			BaseURL:           baseURL,
			RecordsKey:        mapping.RecordsKey,
			PageSize:          cfg.SourcePageSize,
			MaxPages:          cfg.SourceMaxPages,
			Timeout:           cfg.SourceHTTPTimeout,
			RequestsPerSecond: cfg.SourceRequestsPerSecond,
		}
	}

	merchant := shared(models.SourceMerchantAPI, cfg.MerchantAPIBaseURL)
	merchant.BearerToken = cfg.MerchantAPIToken
	merchant.ClientID = cfg.MerchantAPIClientID
	merchant.ClientSecret = cfg.MerchantAPIClientSecret
	merchant.TokenURL = cfg.MerchantAPITokenURL

	accounting := shared(models.SourceAccountingAPI, cfg.AccountingAPIBaseURL)
	accounting.BasicUser = cfg.AccountingAPIUser
	accounting.BasicPass = cfg.AccountingAPIPassword

	clients := map[models.SourceType]services.SourceClient{}
	for _, sc := range []services.APISourceConfig{merchant, accounting} {
		if sc.BaseURL == "" {
			logger.L.Info("REST source not configured", "source", sc.Source)
			continue
		}
		client, err := services.NewAPISourceClient(sc)
		if err != nil {
			logger.L.Error("Failed to configure REST source", "source", sc.Source, "error", err)
			continue
		}
		clients[sc.Source] = client
	}
	return clients
}

// ensureAdmin creates the bootstrap administrator when the users table is empty.
func ensureAdmin(authService *security.AuthService) {
	count, err := model.CountUsers(database.DB)
	if err != nil {
		logger.L.Error("Failed to count users", "error", err)
		return
	}
	if count > 0 {
		return
	}
	if config.Cfg.AdminPassword == "" {
		logger.L.Warn("No users exist and ADMIN_PASSWORD is not set; nobody can log in")
		return
	}
	hash, err := authService.HashPassword(config.Cfg.AdminPassword)
	if err != nil {
		logger.L.Error("Failed to hash bootstrap admin password", "error", err)
		return
	}
	admin := &model.User{Username: config.Cfg.AdminUsername, Password: hash, IsAdmin: true}
	if err := admin.CreateUser(database.DB); err != nil {
		logger.L.Error("Failed to create bootstrap admin", "error", err)
		return
	}
	logger.L.Info("Bootstrap admin created", "username", admin.Username)
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Conciliador backend server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.MigrationsPath)

	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AccessTokenExpiry)
	ensureAdmin(authService)

	tolerance, err := decimal.NewFromString(config.Cfg.AuditTolerance)
	if err != nil {
		logger.L.Warn("Invalid AUDIT_TOLERANCE, using default", "value", config.Cfg.AuditTolerance, "error", err)
		tolerance = processors.DefaultAuditTolerance
	}

	fetchCache := cache.New(config.Cfg.SourceFreshness, services.CacheCleanupInterval)
	sessions := services.NewSessionStore(services.NewSessionCache(config.Cfg.SessionTTL))

	rosterService := services.NewRosterService(database.DB)
	consolidationService := services.NewConsolidationService(
		buildSourceClients(config.Cfg),
		processors.NewNormalizer(),
		processors.NewRosterProcessor(),
		rosterService,
		fetchCache,
	)
	auditService := services.NewAuditService(processors.NewAuditor(tolerance), maxAuditRecords)
	exportService := services.NewExportService()

	userHandler := handlers.NewUserHandler(authService, services.NewMFAService(config.Cfg.MFAIssuer), sessions)
	txHandler := handlers.NewTransactionHandler(consolidationService, processors.NewSummaryProcessor(), exportService, sessions)
	uploadHandler := handlers.NewUploadHandler(consolidationService, sessions, config.Cfg.MaxUploadSizeBytes)
	auditHandler := handlers.NewAuditHandler(auditService, exportService, sessions, config.Cfg.MaxUploadSizeBytes)
	rosterHandler := handlers.NewRosterHandler(rosterService, config.Cfg.MaxUploadSizeBytes)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS(config.Cfg.AllowedOrigins))
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSON(w, http.StatusOK, map[string]string{"message": "Conciliador backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/csrf", handlers.CSRFTokenHandler(config.Cfg.CSRFAuthKey))

		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Post("/auth/login", userHandler.LoginUserHandler)
			r.With(userHandler.AuthMiddleware).Post("/auth/logout", userHandler.LogoutUserHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(handlers.CSRFMiddleware(config.Cfg.CSRFAuthKey))
			r.Use(userHandler.AuthMiddleware)

			r.Get("/user/me", userHandler.HandleGetMe)

			r.Get("/sources", txHandler.HandleGetSources)
			r.Post("/transactions/load", txHandler.HandleLoad)
			r.Get("/transactions", txHandler.HandleGetTransactions)
			r.Get("/transactions/summary", txHandler.HandleGetSummary)
			r.Get("/transactions/export", txHandler.HandleExport)
			r.Post("/upload", uploadHandler.HandleUpload)

			r.Post("/audit", auditHandler.HandleAudit)
			r.Get("/audit/export", auditHandler.HandleAuditExport)

			r.Get("/roster", rosterHandler.HandleGetRoster)

			r.Group(func(r chi.Router) {
				r.Use(userHandler.AdminMiddleware)
				r.Post("/roster", rosterHandler.HandleUploadRoster)

				r.Get("/admin/users", userHandler.HandleListUsers)
				r.Post("/admin/users", userHandler.HandleCreateUser)
				r.Put("/admin/users/{userID}", userHandler.HandleUpdateUser)
				r.Delete("/admin/users/{userID}", userHandler.HandleDeleteUser)

				r.Get("/admin/mfa/setup", userHandler.HandleSetupMFA)
				r.Post("/admin/mfa/enable", userHandler.HandleEnableMFA)
			})
		})
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*config.Cfg.SourceHTTPTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
