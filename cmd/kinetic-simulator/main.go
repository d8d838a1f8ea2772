package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
	"github.com/stephzylstra/kinetic-sim/internal/core/service"
	"github.com/stephzylstra/kinetic-sim/internal/infra/buildinfo"
	"github.com/stephzylstra/kinetic-sim/internal/infra/confloader"
	"github.com/stephzylstra/kinetic-sim/internal/infra/shutdown"
	"github.com/stephzylstra/kinetic-sim/internal/infra/tlsroots"
	"github.com/stephzylstra/kinetic-sim/internal/server/config"
	"github.com/stephzylstra/kinetic-sim/internal/server/httpserver"
	"github.com/stephzylstra/kinetic-sim/internal/server/httpserver/handler"
	ks "github.com/stephzylstra/kinetic-sim/internal/server/kineticserver"
	"github.com/stephzylstra/kinetic-sim/internal/storage"
	"github.com/stephzylstra/kinetic-sim/internal/storage/aclfile"
	"github.com/stephzylstra/kinetic-sim/internal/telemetry/logger"
	"github.com/stephzylstra/kinetic-sim/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app := &cli.App{
		Name:    "kinetic-simulator",
		Usage:   "Simulated Kinetic key-value drive",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"KINETIC_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Storage directory (storage.data_dir)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Kinetic listen port, keeping the configured host",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (log.level)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	loader, cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting kinetic-simulator",
		"version", info.Version,
		"commit", info.Commit,
		"config", loader.FilePath())
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	sd := shutdown.NewHandler(shutdownTimeout, log)

	engine, err := initStorage(cfg, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	sd.OnShutdown("storage", func(context.Context) error {
		return engine.Close()
	})

	sec, err := initSecurity(c.Context, cfg, log)
	if err != nil {
		_ = engine.Close()
		return fmt.Errorf("init security: %w", err)
	}

	metrics := metric.NewRegistry()
	metrics.Registerer().MustRegister(metric.NewCollector(deviceSnapshot(engine, sec)))
	if be, ok := engine.(*storage.BadgerEngine); ok {
		be.RegisterMetrics(metrics.Registerer())
	}

	srv, err := startKinetic(c.Context, cfg, engine, sec, metrics, sd, log)
	if err != nil {
		_ = engine.Close()
		return fmt.Errorf("start kinetic server: %w", err)
	}

	if cfg.Server.HTTP.Enabled {
		deps := handler.Deps{
			Connections: srv,
			ACL:         sec,
			Storage:     engine,
			Logger:      log,
			StartedAt:   time.Now(),
		}
		if err := startHTTP(cfg, deps, metrics, sd, log); err != nil {
			sd.Trigger("http server failed")
			_ = sd.Wait(context.Background())
			return fmt.Errorf("start http server: %w", err)
		}
	}

	watchConfig(loader, sd, log)

	log.Info("simulator started",
		"kinetic", addrString(srv.Addr()),
		"kinetic_tls", addrString(srv.TLSAddr()),
		"security", sec.Enabled())
	if err := sd.Wait(c.Context); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("simulator stopped")
	return nil
}

// addrString renders a listener address, "-" for a listener that is off.
func addrString(a net.Addr) string {
	if a == nil {
		return "-"
	}
	return a.String()
}

// loadConfig layers defaults, file, environment and command-line flags.
func loadConfig(c *cli.Context) (*confloader.Loader, *config.ServerConfig, error) {
	overrides := make(map[string]any)
	if c.IsSet("data-dir") {
		overrides["storage.data_dir"] = c.String("data-dir")
	}
	if c.IsSet("log-level") {
		overrides["log.level"] = c.String("log-level")
	}

	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	loader := confloader.NewLoader(opts...)

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}

	if c.IsSet("port") {
		host, _, err := net.SplitHostPort(cfg.Server.Kinetic.Addr)
		if err != nil {
			host = ""
		}
		cfg.Server.Kinetic.Addr = net.JoinHostPort(host, strconv.Itoa(c.Int("port")))
	}

	if err := config.Verify(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loader, cfg, nil
}

func initStorage(cfg *config.ServerConfig, log *slog.Logger) (storage.KVEngine, error) {
	kv := storage.DefaultKVConfig(cfg.Storage.DataDir)
	kv.Engine = cfg.Storage.Engine

	b := cfg.Storage.Badger
	if b.GCInterval != "" {
		kv.Badger.GCInterval = b.GCInterval
	}
	if b.GCThreshold > 0 {
		kv.Badger.GCThreshold = b.GCThreshold
	}
	if b.CacheSize > 0 {
		kv.Badger.CacheSize = b.CacheSize
	}
	kv.Badger.SyncWrites = b.SyncWrites

	if cfg.Storage.Bolt.File != "" {
		kv.Bolt.File = cfg.Storage.Bolt.File
	}
	if cfg.Storage.Bolt.OpenTimeout > 0 {
		kv.Bolt.OpenTimeout = cfg.Storage.Bolt.OpenTimeout
	}

	engine, err := storage.Open(kv, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", "engine", kv.Engine, "dir", kv.Dir)
	return engine, nil
}

// initSecurity loads the persisted ACL table, bootstrapping the factory
// identity when configured.
func initSecurity(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) (*service.SecurityService, error) {
	dir := cfg.Security.ACLDir
	if dir == "" {
		dir = cfg.Storage.DataDir
	}
	if dir == "" {
		tmp, err := os.MkdirTemp("", "kinetic-acl-")
		if err != nil {
			return nil, err
		}
		log.Warn("no acl_dir or data_dir configured, ACLs will not survive restart", "dir", tmp)
		dir = tmp
	}

	opts := []aclfile.Option{aclfile.WithLogger(log)}
	if key := cfg.Security.ACLEncryptionKey; key != "" {
		opts = append(opts, aclfile.WithSealKey([]byte(key)))
	}
	store, err := aclfile.New(dir, opts...)
	if err != nil {
		return nil, err
	}

	secCfg := &service.SecurityServiceConfig{Enabled: cfg.Security.Enabled}
	if cfg.Security.BootstrapDefault {
		secCfg.DefaultACLs = []*domain.ACL{
			service.DefaultACL(cfg.Security.DefaultIdentity, []byte(cfg.Security.DefaultKey)),
		}
	}

	sec := service.NewSecurityService(store, secCfg, log)
	if err := sec.Init(ctx); err != nil {
		return nil, err
	}
	return sec, nil
}

func deviceSnapshot(engine storage.KVEngine, sec *service.SecurityService) func() metric.Snapshot {
	return func() metric.Snapshot {
		var snap metric.Snapshot
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if st, err := engine.Stats(ctx); err == nil {
			snap.StorageKeys = int64(st.TotalKeys)
			snap.StorageBytes = int64(st.TotalSize)
		}
		table := sec.Table()
		snap.ACLIdentities = table.Len()
		snap.ACLVersion = table.Version()
		snap.SecurityOn = sec.Enabled()
		return snap
	}
}

func startKinetic(ctx context.Context, cfg *config.ServerConfig, engine storage.KVEngine, sec *service.SecurityService,
	metrics *metric.Registry, sd *shutdown.Handler, log *slog.Logger) (*ks.Server, error) {
	kc := cfg.Server.Kinetic
	srvCfg := ks.DefaultConfig()
	srvCfg.Address = kc.Addr
	srvCfg.TLSAddress = kc.TLSAddr
	if kc.ReadTimeout > 0 {
		srvCfg.ReadTimeout = kc.ReadTimeout
	}
	if kc.WriteTimeout > 0 {
		srvCfg.WriteTimeout = kc.WriteTimeout
	}
	if kc.IdleTimeout > 0 {
		srvCfg.IdleTimeout = kc.IdleTimeout
	}
	srvCfg.RateLimit = kc.RateLimit
	srvCfg.RateBurst = kc.RateBurst
	if kc.MaxMessageSize > 0 {
		srvCfg.MaxMessageSize = kc.MaxMessageSize
	}
	if kc.MaxValueSize > 0 {
		srvCfg.MaxValueSize = kc.MaxValueSize
	}

	if kc.TLSAddr != "" {
		tlsCfg, w, err := tlsroots.ServerConfig(tlsroots.ServerOptions{
			CertFile:     kc.TLSCertFile,
			KeyFile:      kc.TLSKeyFile,
			ClientCAFile: kc.TLSClientCAFile,
			Logger:       log,
		})
		if err != nil {
			return nil, err
		}
		w.StartAsync()
		sd.OnShutdown("kinetic certificate watcher", func(context.Context) error {
			w.Stop()
			return nil
		})
		srvCfg.TLSConfig = tlsCfg
	}

	srv := ks.New(srvCfg, ks.NewHandler(engine, sec, metrics), metrics, log)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	sd.OnShutdown("kinetic server", srv.Shutdown)
	return srv, nil
}

func startHTTP(cfg *config.ServerConfig, deps handler.Deps, metrics *metric.Registry, sd *shutdown.Handler, log *slog.Logger) error {
	hc := cfg.Server.HTTP
	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.Deps = deps
	routerCfg.Metrics = metrics
	routerCfg.Logger = log
	routerCfg.AllowList = hc.AllowList
	routerCfg.RateLimit = hc.RateLimit

	var tlsCfg *tls.Config
	if hc.TLSCertFile != "" {
		c, w, err := tlsroots.ServerConfig(tlsroots.ServerOptions{
			CertFile: hc.TLSCertFile,
			KeyFile:  hc.TLSKeyFile,
			Logger:   log,
		})
		if err != nil {
			return err
		}
		w.StartAsync()
		sd.OnShutdown("http certificate watcher", func(context.Context) error {
			w.Stop()
			return nil
		})
		tlsCfg = c
	}

	srv := httpserver.New(hc.Addr, httpserver.NewRouter(routerCfg), tlsCfg, log)
	if err := srv.Start(); err != nil {
		return err
	}
	sd.OnShutdown("http server", srv.Shutdown)
	return nil
}

// watchConfig reloads the log level when the config file changes. Other
// settings need a restart.
func watchConfig(loader *confloader.Loader, sd *shutdown.Handler, log *slog.Logger) {
	path := loader.FilePath()
	if path == "" {
		return
	}
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config watcher disabled", "error", err)
		return
	}
	if err := w.Watch(path); err != nil {
		log.Warn("config watcher disabled", "path", path, "error", err)
		_ = w.Stop()
		return
	}
	w.OnChange(func(string) {
		next := config.Default()
		if err := loader.Reload(next); err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		if !logger.ValidLevel(next.Log.Level) {
			log.Warn("config reload ignored invalid log level", "level", next.Log.Level)
			return
		}
		if next.Log.Level != logger.GetLevel() {
			logger.SetLevel(next.Log.Level)
			log.Info("log level changed", "level", next.Log.Level)
		}
	})
	w.StartAsync()
	sd.OnShutdown("config watcher", func(context.Context) error {
		return w.Stop()
	})
}
