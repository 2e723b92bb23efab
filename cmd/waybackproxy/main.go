// Package main provides the CLI entry point for waybackproxy.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"waybackproxy/internal/archive"
	"waybackproxy/internal/config"
	"waybackproxy/internal/console"
	"waybackproxy/internal/snapshot"
	"waybackproxy/internal/waybackproxy"
)

var CLI struct {
	Config   string `help:"Configuration file path" env:"WAYBACKPROXY_CONFIG" default:"waybackproxy.yaml"`
	Debug    bool   `help:"Enable debug logging" default:"false"`
	Headless bool   `help:"Run without the terminal date selector" default:"false"`
	Port     int    `help:"Listen port, overrides server.port"`
	Date     string `help:"Target date (YYYY, YYYYMM or YYYYMMDD), overrides wayback.date"`
	LogFile  string `help:"Log file while the date selector owns the terminal" default:"waybackproxy.log"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("waybackproxy"),
		kong.Description("HTTP proxy serving the web as archived on a chosen date."),
	)
	if err := run(); err != nil {
		slog.Error("waybackproxy failed", "error", err)
		fmt.Fprintln(os.Stderr, "waybackproxy:", err)
		os.Exit(1)
	}
}

// overrides holds command line settings layered over the config file. The
// date override is dropped once the date is changed interactively.
type overrides struct {
	mu   sync.Mutex
	port int
	date string
}

func (o *overrides) apply(cfg *config.Config) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
	if o.date != "" {
		cfg.Wayback.Date = o.date
	}
	return cfg.Validate()
}

func (o *overrides) clearDate() {
	o.mu.Lock()
	o.date = ""
	o.mu.Unlock()
}

func run() error {
	ov := &overrides{port: CLI.Port, date: CLI.Date}

	load := func() (config.Config, *config.Snapshot, error) {
		cfg, err := config.LoadConfig(CLI.Config)
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("load config: %w", err)
		}
		if err := ov.apply(&cfg); err != nil {
			return config.Config{}, nil, err
		}
		wl, err := config.LoadWhitelist(cfg.WhitelistPath())
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("load whitelist: %w", err)
		}
		snap, err := cfg.Snapshot(wl)
		if err != nil {
			return config.Config{}, nil, err
		}
		return cfg, snap, nil
	}

	cfg, snap, err := load()
	if err != nil {
		return err
	}

	logOut := io.Writer(os.Stderr)
	if !CLI.Headless {
		f, err := os.OpenFile(CLI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	level := slog.LevelInfo
	switch {
	case CLI.Debug:
		level = slog.LevelDebug
	case cfg.Logging.Silent:
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	store := config.NewStore(snap)

	client, err := archive.NewClient(cfg.ArchiveConfig())
	if err != nil {
		return fmt.Errorf("init archive client: %w", err)
	}

	var disk *snapshot.DiskStore
	if p := cfg.DiskPath(); p != "" {
		disk, err = snapshot.OpenDiskStore(p, cfg.DiskMax(), cfg.CacheTTL(), nil)
		if err != nil {
			return fmt.Errorf("open availability store %s: %w", p, err)
		}
		defer func() {
			if err := disk.Close(); err != nil {
				slog.Warn("Closing availability store failed", "error", err)
			}
		}()
	}

	resolver := snapshot.NewResolver(client, snapshot.Options{
		Capacity: cfg.Cache.Capacity,
		TTL:      cfg.CacheTTL(),
		Disk:     disk,
	})
	svc := waybackproxy.NewService(store, client, resolver, waybackproxy.Options{
		SweepEvery: cfg.SweepEvery(),
		StatsEvery: cfg.StatsEvery(),
	})
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(store, func() (*config.Snapshot, error) {
		_, s, err := load()
		return s, err
	}, CLI.Config, cfg.WhitelistPath())
	if err != nil {
		slog.Warn("Config hot reload disabled", "error", err)
	} else {
		watcher.OnDateChange = func(prev, next *config.Snapshot) {
			resolver.Purge()
		}
		defer func() { _ = watcher.Close() }()
		go watcher.Run(ctx)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout(),
	}
	srv.SetKeepAlivesEnabled(false)

	go func() {
		slog.Info("waybackproxy listening", "addr", ln.Addr().String(), "date", snap.Date, "tolerance", snap.ToleranceDays)
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			stop()
		}
	}()

	if CLI.Headless {
		<-ctx.Done()
	} else if err := runConsole(ctx, store, resolver, ov, displayAddr(ln.Addr())); err != nil {
		slog.Error("Date selector failed", "error", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runConsole(ctx context.Context, store *config.Store, resolver *snapshot.Resolver, ov *overrides, addr string) error {
	sel, err := console.NewDateSelector(store.Load().RawDate, nil)
	if err != nil {
		return err
	}
	apply := func(date string) error {
		if err := config.ValidateDate(date, time.Now()); err != nil {
			return err
		}
		if _, err := store.Update(func(s *config.Snapshot) (*config.Snapshot, error) {
			return s.WithDate(date)
		}); err != nil {
			return err
		}
		ov.clearDate()
		resolver.Purge()
		slog.Info("Target date changed", "date", date)
		return persistDate(date)
	}
	return console.Run(ctx, sel, addr, apply)
}

// persistDate writes date to the config file, leaving every other setting as
// the file has it.
func persistDate(date string) error {
	cfg, err := config.LoadConfig(CLI.Config)
	if err != nil {
		return err
	}
	cfg.Wayback.Date = date
	if err := config.SaveConfig(cfg, CLI.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
