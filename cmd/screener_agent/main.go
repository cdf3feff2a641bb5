package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dgnsrekt/screener_agent/internal/api"
	"github.com/dgnsrekt/screener_agent/internal/browser"
	"github.com/dgnsrekt/screener_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/screener_agent/internal/config"
	"github.com/dgnsrekt/screener_agent/internal/controller"
	"github.com/dgnsrekt/screener_agent/internal/events"
	"github.com/dgnsrekt/screener_agent/internal/inject"
	"github.com/dgnsrekt/screener_agent/internal/netutil"
	"github.com/dgnsrekt/screener_agent/internal/resolve"
	"github.com/dgnsrekt/screener_agent/internal/scanner"
	"github.com/dgnsrekt/screener_agent/internal/storage"
	"github.com/dgnsrekt/screener_agent/internal/watchlist"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel, err := setupLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("screener_agent config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"data_dir", cfg.DataDir,
		"scan_max_pages", cfg.ScanMaxPages,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.ProfileDir,
			Binary:     cfg.BrowserBinary,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	probe, err := browser.Probe(ctx, cfg.CDPURL(), cfg.TabURLFilter)
	if err != nil {
		slog.Error("browser probe failed; is Chromium running with --remote-debugging-port?", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	if probe.MatchedCount == 0 {
		slog.Warn("no matching tabs open yet; annotation starts once one is opened",
			"tab_url_filter", cfg.TabURLFilter, "open_pages", probe.PageCount)
	} else {
		slog.Info("found matching tabs", "count", probe.MatchedCount)
	}

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindCandidates, cfg.BindAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	doc := storage.NewDocumentStore(filepath.Join(cfg.DataDir, "watchlist.json"))
	buffered := storage.NewBufferedStore(doc, 5*time.Second)
	defer buffered.Close()

	store := watchlist.NewStore(buffered, watchlist.WithSettingsHook(func(s watchlist.Settings) {
		logLevel.Set(parseLevel(s.LogLevel))
	}))
	store.Load(ctx)

	scanLog := storage.NewScanLog(cfg.DataDir, cfg.ScanLogSizeMB)
	defer func() {
		if err := scanLog.Close(); err != nil {
			slog.Debug("scan log close failed", "error", err)
		}
	}()

	cdpClient := cdpcontrol.NewClient(cfg.CDPURL(), cfg.TabURLFilter, time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	resolver := resolve.New()
	broker := events.NewBroker()

	// The injector registers its page bindings on the client, so it must
	// exist before the first CDP session is attached.
	injector := inject.New(cdpClient, store, resolver, broker, cfg.ChartBaseURL,
		inject.WithResyncInterval(time.Duration(cfg.ResyncSeconds)*time.Second),
		inject.WithDebounce(cfg.DebounceMS),
	)

	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("failed to connect to CDP", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	go injector.Run(ctx)

	sc := scanner.New(
		scanner.WithMaxPages(cfg.ScanMaxPages),
		scanner.WithPageDelay(time.Duration(cfg.ScanPageDelayMS)*time.Millisecond),
	)

	svc := controller.NewService(store, sc, resolver, cdpClient, scanLog, broker, cfg.ChartBaseURL)
	if screens, err := config.LoadScreens(cfg.ScreensPath); err == nil {
		svc.SetScreens(screens)
		slog.Info("loaded screen presets", "count", len(screens.Screens), "path", cfg.ScreensPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("screens config invalid, presets disabled", "path", cfg.ScreensPath, "error", err)
	}
	if cfg.NtfyEndpoint != "" {
		svc.SetNotifyEndpoint(cfg.NtfyEndpoint)
	}

	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, broker)}

	go func() {
		slog.Info("screener_agent listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	buffered.Flush()
}

// setupLogger installs a text handler writing to stdout and a rotated log
// file. The returned LevelVar lets the settings hook adjust verbosity at
// runtime.
func setupLogger(level, filename string) (*slog.LevelVar, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLevel(level))

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(h))
	return logLevel, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
