package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const usage = `usage: authclient [flags] <command> [args]

commands:
  register <full_name> <username> <email> <mobile>   password from -password
  login <username|email>                             password from -password
  logout
  whoami
  profile <username>
  status
`

func main() {
	_ = godotenv.Load()

	var (
		baseURL   = flag.String("api", getenv("AUTHCLIENT_API_BASE_URL", "http://127.0.0.1:8000/api"), "API base URL")
		storeKind = flag.String("store", getenv("AUTHCLIENT_STORE", "file"), "token storage: memory, file, redis or miniredis")
		storePath = flag.String("store-path", getenv("AUTHCLIENT_STORE_PATH", defaultStorePath()), "token file for file storage")
		redisAddr = flag.String("redis-addr", os.Getenv("AUTHCLIENT_REDIS_ADDR"), "redis address for redis storage")
		password  = flag.String("password", os.Getenv("AUTHCLIENT_PASSWORD"), "password for login and register")
		logLevel  = flag.String("log-level", getenv("AUTHCLIENT_LOG_LEVEL", "warn"), "debug, info, warn or error")
		audit     = flag.Bool("audit", false, "log audit events")
		metrics   = flag.Bool("metrics", false, "print metrics after the command")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, cleanup, err := buildClient(*baseURL, *storeKind, *storePath, *redisAddr, *audit, *metrics, logger)
	if err != nil {
		logger.Error("build client", zap.Error(err))
		os.Exit(1)
	}
	defer cleanup()

	client.OnLogout(func() {
		fmt.Fprintln(os.Stderr, "session expired, please log in again")
	})

	out, err := run(ctx, client, flag.Arg(0), flag.Args()[1:], *password)
	if err != nil {
		report(err)
		cleanup()
		os.Exit(1)
	}
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}

	if *metrics {
		fmt.Print(prometheus.NewPrometheusExporter(client).Render())
	}
}

func run(ctx context.Context, client *goAuthClient.Client, cmd string, args []string, password string) (any, error) {
	switch cmd {
	case "register":
		if len(args) != 4 {
			return nil, errors.New("register needs <full_name> <username> <email> <mobile>")
		}
		return client.Register(ctx, goAuthClient.RegisterRequest{
			FullName:        args[0],
			Username:        args[1],
			Email:           args[2],
			Mobile:          args[3],
			Password:        password,
			ConfirmPassword: password,
		})
	case "login":
		if len(args) != 1 {
			return nil, errors.New("login needs <username|email>")
		}
		res, err := client.Login(ctx, args[0], password)
		if err != nil {
			return nil, err
		}
		return map[string]string{"message": res.Message, "username": res.Username}, nil
	case "logout":
		return client.Logout(ctx)
	case "whoami":
		return client.UserInfo(ctx)
	case "profile":
		if len(args) != 1 {
			return nil, errors.New("profile needs <username>")
		}
		return client.Profile(ctx, args[0])
	case "status":
		return client.Status(ctx), nil
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func buildClient(baseURL, kind, path, redisAddr string, audit, metrics bool, logger *zap.Logger) (*goAuthClient.Client, func(), error) {
	b := goAuthClient.New()
	cleanup := func() {}

	cfg := goAuthClient.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.Logger = logger
	cfg.Metrics.Enabled = metrics
	cfg.Metrics.EnableLatencyHistograms = metrics
	if audit {
		cfg.Audit.Enabled = true
		b.WithAuditSink(goAuthClient.NewZapSink(logger.Named("audit")))
	}

	switch strings.ToLower(kind) {
	case "miniredis":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, cleanup, fmt.Errorf("start miniredis: %w", err)
		}
		redisAddr = mr.Addr()
		cleanup = mr.Close
		kind = string(goAuthClient.StorageRedis)
	case string(goAuthClient.StorageRedis):
		if redisAddr == "" {
			return nil, cleanup, errors.New("redis storage needs -redis-addr or AUTHCLIENT_REDIS_ADDR")
		}
	}

	storage, err := goAuthClient.ParseStorageKind(kind)
	if err != nil {
		return nil, cleanup, err
	}
	cfg.Storage.Kind = storage
	cfg.Storage.FilePath = path
	for _, w := range cfg.Lint() {
		logger.Warn("config", zap.String("code", w.Code), zap.String("message", w.Message))
	}

	if storage == goAuthClient.StorageRedis {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
		prev := cleanup
		cleanup = func() {
			_ = rdb.Close()
			prev()
		}
		b.WithRedis(rdb)
	}

	client, err := b.WithConfig(cfg).Build()
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	prev := cleanup
	return client, func() {
		_ = client.Close()
		prev()
	}, nil
}

func report(err error) {
	var verr *goAuthClient.ValidationError
	var apiErr *goAuthClient.APIError
	switch {
	case errors.As(err, &verr):
		fmt.Fprintln(os.Stderr, "validation failed:")
		for field, msgs := range verr.Fields {
			for _, m := range msgs {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, m)
			}
		}
	case errors.Is(err, goAuthClient.ErrSessionExpired):
		fmt.Fprintln(os.Stderr, "not logged in")
	case errors.As(err, &apiErr):
		fmt.Fprintf(os.Stderr, "server returned %d: %s\n", apiErr.StatusCode, apiErr.Message)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".authclient-tokens.json"
	}
	return filepath.Join(dir, "authclient", "tokens.json")
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
