// Command server starts the SRT panel HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"srtpanel/internal/api"
	"srtpanel/internal/auth"
	"srtpanel/internal/channels"
	"srtpanel/internal/events"
	"srtpanel/internal/mediamtx"
	"srtpanel/internal/monitor"
	"srtpanel/internal/observability/logging"
	"srtpanel/internal/observability/metrics"
	"srtpanel/internal/preview"
	"srtpanel/internal/server"
	"srtpanel/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "listen address (e.g. :8080)")
	mode := flag.String("mode", "", "deployment mode (development or production)")
	dataPath := flag.String("data", "", "path to the JSON datastore file")
	watchData := flag.Bool("watch-data", true, "reload the JSON datastore when the file changes on disk")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string for the datastore")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum Postgres pool connections")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum Postgres pool connections")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime of a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time of a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres pool health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout for acquiring a Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory or redis)")
	sessionTTL := flag.Duration("session-ttl", 0, "session lifetime (0 keeps sessions until logout)")
	sessionRedisAddr := flag.String("session-redis-addr", "", "Redis address for the session store")
	sessionRedisAddrs := flag.String("session-redis-addrs", "", "comma separated Redis addresses for the session store")
	sessionRedisUsername := flag.String("session-redis-username", "", "Redis username for the session store")
	sessionRedisPassword := flag.String("session-redis-password", "", "Redis password for the session store")
	sessionRedisMasterName := flag.String("session-redis-master-name", "", "Redis sentinel master name for the session store")
	sessionRedisPoolSize := flag.Int("session-redis-pool-size", 0, "maximum Redis connections for the session store")
	sessionRedisTimeout := flag.Duration("session-redis-timeout", 0, "timeout for session store Redis operations")
	sessionRedisTLSCA := flag.String("session-redis-tls-ca", "", "path to Redis TLS CA certificate for the session store")
	sessionRedisTLSCert := flag.String("session-redis-tls-cert", "", "path to Redis TLS client certificate for the session store")
	sessionRedisTLSKey := flag.String("session-redis-tls-key", "", "path to Redis TLS client key for the session store")
	sessionRedisTLSServerName := flag.String("session-redis-tls-server-name", "", "override Redis TLS server name for the session store")
	sessionRedisTLSSkipVerify := flag.Bool("session-redis-tls-skip-verify", false, "skip Redis TLS verification for the session store")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate (PEM)")
	tlsKey := flag.String("tls-key", "", "path to TLS private key (PEM)")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log output format (json or text)")
	logFile := flag.String("log-file", "", "path to a size-rotated log file (stdout only when empty)")
	logFileMaxSize := flag.Int("log-file-max-size", 0, "maximum size of the log file in megabytes before rotation")
	logFileMaxBackups := flag.Int("log-file-max-backups", 0, "maximum number of rotated log files to keep")
	logFileMaxAge := flag.Int("log-file-max-age", 0, "maximum age of rotated log files in days")
	logFileCompress := flag.Bool("log-file-compress", false, "gzip rotated log files")
	globalRPS := flag.Float64("rate-global-rps", 0, "global API requests per second (0 disables)")
	globalBurst := flag.Int("rate-global-burst", 0, "burst size for the global API limiter")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	rateRedisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for login throttle Redis operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	monitorInterval := flag.Duration("monitor-interval", 0, "interval between connection polls")
	monitorThreshold := flag.Int("monitor-failure-threshold", 0, "consecutive poll failures before monitoring is suspended")
	hlsPort := flag.Int("hls-port", 0, "HLS port on the media server used for preview playback")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("SRTPANEL_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("SRTPANEL_LOG_FORMAT")),
		File: logging.FileConfig{
			Path:       firstNonEmpty(*logFile, os.Getenv("SRTPANEL_LOG_FILE")),
			MaxSizeMB:  resolveInt(*logFileMaxSize, "SRTPANEL_LOG_FILE_MAX_SIZE"),
			MaxBackups: resolveInt(*logFileMaxBackups, "SRTPANEL_LOG_FILE_MAX_BACKUPS"),
			MaxAgeDays: resolveInt(*logFileMaxAge, "SRTPANEL_LOG_FILE_MAX_AGE"),
			Compress:   resolveBool(*logFileCompress, "SRTPANEL_LOG_FILE_COMPRESS"),
		},
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("SRTPANEL_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("SRTPANEL_ADDR"))

	tlsCertPath := firstNonEmpty(*tlsCert, os.Getenv("SRTPANEL_TLS_CERT"))
	tlsKeyPath := firstNonEmpty(*tlsKey, os.Getenv("SRTPANEL_TLS_KEY"))

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("SRTPANEL_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var (
		store       storage.Repository
		storagePath string
		storageDSN  string
	)
	switch driver {
	case "json":
		storagePath = resolveDataPath(*dataPath, os.Getenv("SRTPANEL_DATA"))
		store, err = storage.NewJSONRepository(storagePath)
	case "postgres":
		storageDSN = postgresDefaultDSN
		if storageDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "SRTPANEL_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "SRTPANEL_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "SRTPANEL_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "SRTPANEL_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "SRTPANEL_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "SRTPANEL_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("SRTPANEL_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(storageDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	sessionRedisCfg := auth.RedisSessionConfig{
		Addr:         firstNonEmpty(*sessionRedisAddr, os.Getenv("SRTPANEL_SESSION_REDIS_ADDR")),
		Addrs:        splitAndTrim(firstNonEmpty(*sessionRedisAddrs, os.Getenv("SRTPANEL_SESSION_REDIS_ADDRS"))),
		Username:     firstNonEmpty(*sessionRedisUsername, os.Getenv("SRTPANEL_SESSION_REDIS_USERNAME")),
		Password:     firstNonEmpty(*sessionRedisPassword, os.Getenv("SRTPANEL_SESSION_REDIS_PASSWORD")),
		MasterName:   firstNonEmpty(*sessionRedisMasterName, os.Getenv("SRTPANEL_SESSION_REDIS_MASTER_NAME")),
		PoolSize:     resolveInt(*sessionRedisPoolSize, "SRTPANEL_SESSION_REDIS_POOL_SIZE"),
		DialTimeout:  resolveDuration(*sessionRedisTimeout, "SRTPANEL_SESSION_REDIS_TIMEOUT", 0),
		ReadTimeout:  resolveDuration(*sessionRedisTimeout, "SRTPANEL_SESSION_REDIS_TIMEOUT", 0),
		WriteTimeout: resolveDuration(*sessionRedisTimeout, "SRTPANEL_SESSION_REDIS_TIMEOUT", 0),
		TLS: auth.RedisTLSConfig{
			CAFile:             firstNonEmpty(*sessionRedisTLSCA, os.Getenv("SRTPANEL_SESSION_REDIS_TLS_CA")),
			CertFile:           firstNonEmpty(*sessionRedisTLSCert, os.Getenv("SRTPANEL_SESSION_REDIS_TLS_CERT")),
			KeyFile:            firstNonEmpty(*sessionRedisTLSKey, os.Getenv("SRTPANEL_SESSION_REDIS_TLS_KEY")),
			ServerName:         firstNonEmpty(*sessionRedisTLSServerName, os.Getenv("SRTPANEL_SESSION_REDIS_TLS_SERVER_NAME")),
			InsecureSkipVerify: resolveBool(*sessionRedisTLSSkipVerify, "SRTPANEL_SESSION_REDIS_TLS_SKIP_VERIFY"),
		},
	}
	sessionConfig, err := resolveSessionStoreConfig(*sessionStoreDriver, os.Getenv("SRTPANEL_SESSION_STORE"), sessionRedisCfg)
	if err != nil {
		logger.Error("failed to resolve session store", "error", err)
		os.Exit(1)
	}

	var (
		sessionStore  auth.SessionStore
		sessionCloser func() error
	)
	switch sessionConfig.Driver {
	case "memory":
		sessionStore = auth.NewMemorySessionStore()
	case "redis":
		redisStore, err := auth.NewRedisSessionStore(sessionRedisCfg)
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		sessionStore = redisStore
		sessionCloser = redisStore.Close
	default:
		logger.Error("unsupported session store driver", "driver", sessionConfig.Driver)
		os.Exit(1)
	}

	sessionLifetime := resolveDuration(*sessionTTL, "SRTPANEL_SESSION_TTL", 0)
	sessions := auth.NewSessionManager(sessionLifetime, auth.WithStore(sessionStore))

	client := mediamtx.NewClient()
	bus := events.New(64)

	channelService := channels.NewService(client, bus, logging.WithComponent(logger, "channels"))

	var monitorOptions []monitor.Option
	if interval := resolveDuration(*monitorInterval, "SRTPANEL_MONITOR_INTERVAL", 0); interval > 0 {
		monitorOptions = append(monitorOptions, monitor.WithInterval(interval))
	}
	if threshold := resolveInt(*monitorThreshold, "SRTPANEL_MONITOR_FAILURE_THRESHOLD"); threshold > 0 {
		monitorOptions = append(monitorOptions, monitor.WithFailureThreshold(threshold))
	}
	monitorOptions = append(monitorOptions, monitor.WithRecorder(recorder))
	mon := monitor.New(client, bus, logging.WithComponent(logger, "monitor"), monitorOptions...)

	var previewOptions []preview.Option
	if port := resolveInt(*hlsPort, "SRTPANEL_HLS_PORT"); port > 0 {
		previewOptions = append(previewOptions, preview.WithHLSPort(port))
	}
	previewOptions = append(previewOptions, preview.WithRecorder(recorder))
	previews := preview.NewService(store, logging.WithComponent(logger, "preview"), previewOptions...)

	handler := api.NewHandler(store, sessions)
	handler.Client = client
	handler.Channels = channelService
	handler.Monitor = mon
	handler.Previews = previews
	handler.Bus = bus
	handler.Metrics = recorder
	handler.SessionCookiePolicy.SecureMode = resolveSessionCookieSecureMode(serverMode)

	// Point the client at the profile that was active when the panel last
	// shut down, so monitoring resumes without operator action.
	if profile, ok := store.GetActiveProfile(); ok {
		client.SetConfig(mediamtx.Config{
			BaseURL:  profile.URL,
			Username: profile.Username,
			Password: profile.Password,
		})
		logger.Info("restored active server profile", "profile_id", profile.ID, "name", profile.Name)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	mon.Start(workerCtx)

	if jsonStore, ok := store.(*storage.Storage); ok && resolveWatchData(*watchData, "SRTPANEL_WATCH_DATA") {
		watcher := storage.NewWatcher(jsonStore, bus, logging.WithComponent(logger, "watcher"))
		if err := watcher.Start(workerCtx); err != nil {
			logger.Warn("datastore watcher unavailable", "error", err)
		}
	}

	sessionPurgeStop := startSessionPurgeWorker(workerCtx, logging.WithComponent(logger, "session-purger"), sessions, 15*time.Minute)
	defer sessionPurgeStop()

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "SRTPANEL_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "SRTPANEL_RATE_GLOBAL_BURST"),
		LoginLimit:    resolveInt(*loginLimit, "SRTPANEL_RATE_LOGIN_LIMIT"),
		LoginWindow:   resolveDuration(*loginWindow, "SRTPANEL_RATE_LOGIN_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*rateRedisAddr, os.Getenv("SRTPANEL_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*rateRedisPassword, os.Getenv("SRTPANEL_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*rateRedisTimeout, "SRTPANEL_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: tlsCertPath,
			KeyFile:  tlsKeyPath,
		},
		RateLimit: rateCfg,
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("SRTPANEL_CORS_ORIGINS"))),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	summary := newStartupSummary(startupSummaryInput{
		Mode:          serverMode,
		Addr:          listenAddr,
		StorageDriver: driver,
		StoragePath:   storagePath,
		StorageDSN:    storageDSN,
		SessionConfig: sessionConfig,
		SessionTTL:    sessionLifetime,
		RateLimit:     rateCfg,
		TLSEnabled:    tlsCertPath != "" && tlsKeyPath != "",
	})
	logger.Info("SRT panel listening", summary.LogArgs()...)

	errs := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	workerCancel()
	mon.Stop()
	sessionPurgeStop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	} else if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close datastore", "error", err)
		}
	}

	if sessionCloser != nil {
		if err := sessionCloser(); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}

	logger.Info("server stopped")
}

type sessionStoreConfig struct {
	Driver string
	Addr   string
}

func resolveSessionStoreConfig(flagDriver, envDriver string, redisCfg auth.RedisSessionConfig) (sessionStoreConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(flagDriver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(envDriver))
	}

	redisAddr := strings.TrimSpace(redisCfg.Addr)
	if redisAddr == "" && len(redisCfg.Addrs) > 0 {
		redisAddr = strings.TrimSpace(redisCfg.Addrs[0])
	}
	if driver == "" {
		if redisAddr != "" {
			driver = "redis"
		} else {
			driver = "memory"
		}
	}

	switch driver {
	case "", "memory":
		return sessionStoreConfig{Driver: "memory"}, nil
	case "redis":
		if redisAddr == "" {
			return sessionStoreConfig{}, fmt.Errorf("redis session store selected without address")
		}
		return sessionStoreConfig{Driver: "redis", Addr: redisAddr}, nil
	default:
		return sessionStoreConfig{}, fmt.Errorf("unsupported session store driver %q", driver)
	}
}

func resolveSessionCookieSecureMode(mode string) api.SessionCookieSecureMode {
	if strings.ToLower(strings.TrimSpace(mode)) == "production" {
		return api.SessionCookieSecureAlways
	}
	return api.SessionCookieSecureAuto
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, dsn string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/panel.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("SRTPANEL_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func resolveWatchData(flagValue bool, envKey string) bool {
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return flagValue
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}

// redactDSN masks the password in a connection string before it reaches the
// logs.
func redactDSN(dsn string) string {
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.User == nil {
		return dsn
	}
	if _, hasPassword := parsed.User.Password(); hasPassword {
		parsed.User = url.UserPassword(parsed.User.Username(), "*****")
	}
	return parsed.String()
}
