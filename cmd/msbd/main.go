package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"msb/cmd/internal/passphrase"
	"msb/config"
	"msb/core/apply"
	"msb/core/codec"
	"msb/core/messages"
	"msb/core/state"
	"msb/crypto"
	"msb/observability/logging"
	telemetry "msb/observability/otel"
	"msb/oplog"
	"msb/storage"
)

const (
	logFileMaxSizeMB  = 64
	logFileMaxBackups = 5
)

func main() {
	configFile := flag.String("config", "./msb.toml", "Path to the configuration file")
	dataDir := flag.String("data-dir", "", "Override the data directory")
	bootstrap := flag.String("bootstrap", "", "Hex-encoded bootstrap writer key of the network to join")
	metricsAddr := flag.String("metrics", "", "Override the metrics and health listen address; \"off\" disables it")
	readStdin := flag.Bool("stdin", false, "Append hex-encoded operations read from stdin, one per line")
	flag.Parse()

	var opts []config.Option
	if *dataDir != "" {
		opts = append(opts, config.WithDataDir(*dataDir))
	}
	if *bootstrap != "" {
		opts = append(opts, config.WithBootstrap(*bootstrap))
	}
	if *metricsAddr != "" {
		opts = append(opts, config.WithMetricsAddress(*metricsAddr))
	}
	cfg, err := config.Load(*configFile, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	instance := uuid.NewString()
	logger := logging.Setup("msbd", cfg.Env,
		logging.WithLevel(level),
		logging.WithFile(cfg.LogFile, logFileMaxSizeMB, logFileMaxBackups)).
		With(slog.String("instance", instance))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "msbd",
		Environment: cfg.Env,
		InstanceID:  instance,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
	})
	if err != nil {
		logger.Error("init telemetry", slog.Any("error", err))
		os.Exit(1)
	}

	pass, err := passphrase.NewSource(passphrase.DefaultEnv, "Enter node key passphrase: ").Get()
	if err != nil {
		logger.Error("read key passphrase", slog.Any("error", err))
		os.Exit(1)
	}
	identity, err := crypto.LoadOrCreateKeyFile(cfg.KeyFile, pass, cfg.Network.AddressPrefix)
	if err != nil {
		logger.Error("load key file", slog.String("path", cfg.KeyFile), slog.Any("error", err))
		os.Exit(1)
	}

	err = run(ctx, cfg, identity, logger, instance, *readStdin)
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if serr := shutdownTelemetry(flushCtx); serr != nil {
		logger.Warn("telemetry shutdown failed", slog.Any("error", serr))
	}
	cancel()
	if err != nil {
		logger.Error("msbd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, identity *crypto.KeyPair, logger *slog.Logger, instance string, readStdin bool) error {
	bootstrap, err := cfg.Network.BootstrapKey()
	if err != nil {
		return err
	}

	logDB, err := storage.NewLevelDB(cfg.LogPath())
	if err != nil {
		return fmt.Errorf("open log database: %w", err)
	}
	opLog, err := oplog.New(logDB, oplog.Options{Bootstrap: bootstrap, Logger: logger})
	if err != nil {
		logDB.Close()
		return err
	}
	viewDB, err := storage.NewLevelDB(cfg.ViewPath())
	if err != nil {
		_ = opLog.Close()
		return fmt.Errorf("open view database: %w", err)
	}

	params, err := cfg.Params(opLog.Bootstrap())
	if err != nil {
		_ = opLog.Close()
		viewDB.Close()
		return err
	}
	engine, err := apply.NewEngine(params, logger)
	if err != nil {
		_ = opLog.Close()
		viewDB.Close()
		return err
	}
	st, err := state.New(opLog, storage.NewView(viewDB, 0), engine, logger)
	if err != nil {
		_ = opLog.Close()
		viewDB.Close()
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("close state", slog.Any("error", err))
		}
	}()

	if err := st.Open(ctx); err != nil {
		return err
	}
	if err := ensureGenesis(ctx, st, identity, logger); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	local := st.LocalKey()
	logger.Info("ledger ready",
		slog.String("address", identity.Address()),
		slog.String("writer", hex.EncodeToString(local[:])),
		slog.Bool("bootstrap", local == params.Bootstrap),
		slog.Bool("writable", st.IsWritable()),
		slog.Bool("indexer", st.IsIndexer()))

	server := startOps(cfg.MetricsAddress, opsRouter(st, instance), logger)
	if readStdin {
		go ingest(ctx, os.Stdin, st, ingestLimiter(cfg.Ingest), logger)
	}

	<-ctx.Done()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops shutdown failed", slog.Any("error", err))
		}
	}
	return nil
}

// ensureGenesis makes identity the admin of a network this node bootstraps
// when no admin has been recorded yet.
func ensureGenesis(ctx context.Context, st *state.State, identity *crypto.KeyPair, logger *slog.Logger) error {
	params := st.Params()
	local := st.LocalKey()
	if local != params.Bootstrap {
		return nil
	}
	entry, err := st.AdminEntry()
	if err != nil {
		return err
	}
	if entry != nil {
		return nil
	}
	txv, err := st.TxValidity()
	if err != nil {
		return err
	}
	op, err := messages.NewDirector(identity, params.AddressPrefix).AddAdmin(txv, local[:])
	if err != nil {
		return err
	}
	record, err := codec.EncodeOperation(op)
	if err != nil {
		return err
	}
	if err := st.Append(ctx, record); err != nil {
		return err
	}
	logger.Info("genesis admin appended", slog.String("address", identity.Address()))
	return nil
}

func ingestLimiter(cfg config.Ingest) *rate.Limiter {
	if cfg.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
}

// ingest appends each non-empty hex line of r to the ledger, pacing appends
// through limiter.
func ingest(ctx context.Context, r io.Reader, st *state.State, limiter *rate.Limiter, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		record, err := hex.DecodeString(line)
		if err != nil {
			logger.Warn("skipping malformed input line", slog.Any("error", err))
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := st.Append(ctx, record); err != nil {
			logger.Error("append failed", slog.Any("error", err))
			continue
		}
		logger.Debug("operation appended", slog.Int("bytes", len(record)))
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Warn("stdin closed", slog.Any("error", err))
	}
}
