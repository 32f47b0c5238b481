// Command sessionctl drives a goSession client from the terminal: log in, call the API
// with automatic refresh, and watch the session lifecycle.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/testserver"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const usage = `usage: sessionctl [flags] <command> [args]

commands:
  login               authenticate with -email/-password (or GOSESSION_EMAIL/GOSESSION_PASSWORD)
  whoami              fetch and print the current profile
  get <path>          GET an API path with the session attached
  refresh             exchange the refresh token now
  logout              log out and clear stored credentials
  watch               run the background refresh loop and print session events

Sessions persist between invocations through the OS keyring by default. Use
-storage redis to share one session between machines; -storage memory only keeps
the session for a single command.

flags:
`

type options struct {
	envFile     string
	baseURL     string
	storage     string
	redisAddr   string
	email       string
	password    string
	local       bool
	metricsAddr string
	logLevel    string
}

func main() {
	var opts options
	flag.StringVar(&opts.envFile, "env", ".env", "dotenv file loaded before reading GOSESSION_* variables")
	flag.StringVar(&opts.baseURL, "base-url", "", "API base URL (overrides GOSESSION_BASE_URL)")
	flag.StringVar(&opts.storage, "storage", "", "credential storage: memory, redis or keyring (default keyring, or memory with -local)")
	flag.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; empty uses REDIS_ADDR or an embedded miniredis")
	flag.StringVar(&opts.email, "email", "", "login email")
	flag.StringVar(&opts.password, "password", "", "login password")
	flag.BoolVar(&opts.local, "local", false, "run against an in-process fake backend")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during watch")
	flag.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, command string, args []string) error {
	// A missing .env file is normal.
	_ = godotenv.Load(opts.envFile)

	cfg := goSession.LoadConfigFromEnv()
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	cfg.Storage.Backend = resolveStorage(opts.storage, os.Getenv("GOSESSION_STORAGE"), opts.local)
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
	}
	if opts.email == "" {
		opts.email = os.Getenv("GOSESSION_EMAIL")
	}
	if opts.password == "" {
		opts.password = os.Getenv("GOSESSION_PASSWORD")
	}

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	if opts.local {
		srv := testserver.New(testserver.Options{AccessTTL: 2 * time.Minute, RotateRefresh: true})
		cleanup = append(cleanup, srv.Close)
		cfg.BaseURL = srv.BaseURL()
		if opts.email == "" {
			opts.email, opts.password = "demo@example.test", "secret"
		}
		fmt.Printf("using local backend at %s\n", cfg.BaseURL)
	}

	logger := goSession.NewLogger(cfg.LogLevel)
	b := goSession.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithEventSink(goSession.NewJSONWriterSink(os.Stdout))

	if cfg.Storage.Backend == goSession.StorageRedis {
		rdb, closeRedis, err := openRedis(opts.redisAddr)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, closeRedis)
		b = b.WithRedis(rdb)
	}

	client, err := b.Build()
	if err != nil {
		return err
	}
	cleanup = append(cleanup, func() { _ = client.Close() })

	switch command {
	case "login":
		return login(ctx, client, opts)
	case "whoami":
		if opts.local {
			if err := login(ctx, client, opts); err != nil {
				return err
			}
		}
		profile, err := client.FetchProfile(ctx)
		if err != nil {
			return err
		}
		return printJSON(profile)
	case "get":
		if len(args) != 1 {
			return errors.New("get needs exactly one path")
		}
		return get(ctx, client, args[0])
	case "refresh":
		if err := client.Refresh(ctx); err != nil {
			return err
		}
		fmt.Printf("access token valid for %s\n", client.AccessTokenRemaining(ctx).Round(time.Second))
		return nil
	case "logout":
		return client.Logout(ctx)
	case "watch":
		if opts.local {
			if err := login(ctx, client, opts); err != nil {
				return err
			}
		}
		return watch(ctx, client, opts.metricsAddr)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// resolveStorage picks the credential backend. Each invocation is its own process, so
// without -local the default is the OS keyring, which outlives the process; memory
// storage only makes sense with -local.
func resolveStorage(flagValue, envValue string, local bool) goSession.StorageBackend {
	switch {
	case flagValue != "":
		return goSession.StorageBackend(flagValue)
	case envValue != "":
		return goSession.StorageBackend(envValue)
	case local:
		return goSession.StorageMemory
	default:
		return goSession.StorageKeyring
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}

func login(ctx context.Context, client *goSession.Client, opts options) error {
	if opts.email == "" || opts.password == "" {
		return errors.New("login needs -email and -password")
	}
	res, err := client.Login(ctx, goSession.LoginRequest{Email: opts.email, Password: opts.password})
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s; access token valid for %s\n",
		res.Profile.Email, client.AccessTokenRemaining(ctx).Round(time.Second))
	return nil
}

func get(ctx context.Context, client *goSession.Client, path string) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	resp, err := client.Do(ctx, goSession.Request{Path: path}, nil)
	if resp != nil {
		if resp.Synthetic() {
			fmt.Fprintln(os.Stderr, "(synthetic response)")
		}
		fmt.Printf("%d %s\n%s\n", resp.StatusCode, http.StatusText(resp.StatusCode), resp.Body)
	}
	return err
}

func watch(ctx context.Context, client *goSession.Client, metricsAddr string) error {
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promexport.NewExporter(client).Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "sessionctl: metrics server: %v\n", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		fmt.Printf("serving metrics on %s/metrics\n", metricsAddr)
	}

	client.StartBackgroundRefresh(ctx)
	defer client.StopBackgroundRefresh()

	fmt.Println("watching session; press Ctrl-C to stop")
	<-ctx.Done()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
