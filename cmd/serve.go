package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/querygate/pkg/adapters/datasource/all"
	"github.com/ekaya-inc/querygate/pkg/audit"
	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/crypto"
	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/handlers"
	"github.com/ekaya-inc/querygate/pkg/llm"
	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/mcp"
	mcpauth "github.com/ekaya-inc/querygate/pkg/mcp/auth"
	"github.com/ekaya-inc/querygate/pkg/mcp/tools"
	"github.com/ekaya-inc/querygate/pkg/mcpclient"
	"github.com/ekaya-inc/querygate/pkg/middleware"
	"github.com/ekaya-inc/querygate/pkg/observability"
	"github.com/ekaya-inc/querygate/pkg/repositories"
	"github.com/ekaya-inc/querygate/pkg/services"
	"github.com/ekaya-inc/querygate/pkg/storage/s3"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Server.Env),
		zap.String("base_url", cfg.Server.BaseURL),
		zap.String("app_store", fmt.Sprintf("%s@%s:%d/%s", cfg.EngineDatabase.User, cfg.EngineDatabase.Host, cfg.EngineDatabase.Port, cfg.EngineDatabase.Database)),
		zap.Strings("datasources", cfg.DatasourceIDs()),
		zap.Strings("llm_providers", cfg.ProviderNames()),
		zap.Bool("redis", cfg.Redis.Host != ""),
		zap.Bool("audio_archive", cfg.Storage.Enabled()),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	connManager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, logger.Named("datasources"))
	defer func() {
		if err := connManager.Close(); err != nil {
			logger.Warn("Failed to close datasource connections", zap.String("error", logging.SanitizeError(err)))
		}
	}()

	// Repositories
	userRepo := repositories.NewUserRepository()
	sessionRepo := repositories.NewSessionRepository()
	messageRepo := repositories.NewMessageRepository()
	projectRepo := repositories.NewProjectRepository()
	mcpConnRepo := repositories.NewMCPConnectionRepository()
	savedQueryRepo := repositories.NewSavedQueryRepository()
	auditRepo := repositories.NewQueryAuditRepository()

	// Optional infrastructure. Interfaces stay nil rather than holding typed nils.
	locks := services.NewMemoryTurnLocker()
	var responseCache llm.ResponseCache
	if redisClient != nil {
		locks = services.NewRedisTurnLocker(redisClient, services.DefaultTurnLockTTL)
		if cfg.LLM.ResponseCacheTTL > 0 {
			responseCache = llm.NewRedisResponseCache(redisClient, cfg.LLM.ResponseCacheTTL)
		}
	}

	var archive services.AudioArchive
	if cfg.Storage.Enabled() {
		store, err := s3.New(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open audio archive: %w", err)
		}
		archive = store
	}

	var secretBox *crypto.SecretBox
	if cfg.MCP.CredentialsKey != "" {
		secretBox, err = crypto.NewSecretBox(cfg.MCP.CredentialsKey)
		if err != nil {
			return fmt.Errorf("invalid QG_CREDENTIALS_KEY: %w", err)
		}
	}

	// Services
	scopes := database.NewScopeProvider(db)
	llms := llm.NewRegistry(cfg, logger.Named("llm"))
	securityAuditor := audit.NewSecurityAuditor(logger)
	mcpClient := mcpclient.New(cfg.MCP.ClientTimeout, cfg.Version, logger)

	userService := services.NewUserService(userRepo, scopes, logger)
	auditService := services.NewAuditService(auditRepo, logger)
	catalog := services.NewSchemaCatalog(cfg.Datasources, connManager, cfg.Query.SampleRows, logger)
	executor := services.NewExecutor(catalog, auditService, securityAuditor, services.ExecutorConfig{
		Timeout: cfg.Query.ExecTimeout,
		MaxRows: cfg.Query.MaxRows,
	}, logger)
	translator := services.NewTranslator(catalog, llms, responseCache, auditService, services.TranslatorConfig{
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		HistoryWindow: cfg.Query.HistoryWindow,
		MaxToolRounds: cfg.MCP.MaxToolRounds,
	}, logger)
	mcpConnService := services.NewMCPConnectionService(mcpConnRepo, secretBox, mcpClient, logger)
	projectService := services.NewProjectService(projectRepo, logger)
	sessionService := services.NewSessionService(sessionRepo, messageRepo, projectRepo, catalog, locks, cfg.Query.ContextLimit, logger)
	conversationService := services.NewConversationService(
		sessionRepo, messageRepo, translator, executor, llms, locks,
		mcpConnService, mcpClient, cfg.Query.ContextLimit, logger,
	)
	savedQueryService := services.NewSavedQueryService(savedQueryRepo, catalog, logger)
	transcriptionService := services.NewTranscriptionService(llms, archive, logger)

	if err := userService.EnsureBootstrapAdmin(ctx, cfg.Auth.BootstrapAdmin, cfg.Auth.BootstrapAdminPassword); err != nil {
		return err
	}

	// Authentication
	jwksClient, err := auth.NewJWKSClient(ctx, cfg.Auth.JWKSEndpoints)
	if err != nil {
		return err
	}
	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	sessionStore := auth.NewSessionStore(cfg.Auth.JWTSecret, cfg.Auth.CookieName, cfg.Auth.CookieSecure, cfg.Auth.TokenTTL)
	authService := auth.NewAuthService(auth.NewValidator(cfg.Auth.JWTSecret, jwksClient), sessionStore, userService, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)
	scope := database.WithUserContext(db, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(userService, issuer, sessionStore, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewConfigHandler(cfg, catalog, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewSessionsHandler(sessionService, conversationService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewProjectsHandler(projectService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewMCPConnectionsHandler(mcpConnService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewSavedQueriesHandler(savedQueryService, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewQueriesHandler(translator, executor, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewSchemaHandler(catalog, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewTranscribeHandler(transcriptionService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAuditHandler(auditService, logger).RegisterRoutes(mux, authMiddleware, scope)

	if cfg.MCP.ServerEnabled {
		mcpServer := mcp.NewServer("querygate", cfg.Version, mcp.NewToolCallLogger(logger).Hooks(), logger)
		mcpServer.RegisterDatabaseTools(cfg.Version, &tools.DatabaseToolDeps{
			Catalog:  catalog,
			Executor: executor,
			Logger:   logger,
		})
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, mcpauth.NewMiddleware(authService, logger), scope)
		logger.Info("MCP server enabled", zap.String("path", "/mcp"))
	}

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	var handler http.Handler = observability.MetricsMiddleware(mux)
	handler = middleware.CORS(cfg.Server.CORSOrigins, logger)(handler)
	handler = middleware.RequestLogger(logger)(handler)
	handler = middleware.Recoverer(logger)(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.BindAddr, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting querygate", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
