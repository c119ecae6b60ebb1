package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/shaharia-lab/devgate/internal/build"
	"github.com/shaharia-lab/devgate/internal/clientenv"
	"github.com/shaharia-lab/devgate/internal/config"
	"github.com/shaharia-lab/devgate/internal/logger"
	"github.com/shaharia-lab/devgate/internal/metrics"
	"github.com/shaharia-lab/devgate/internal/server"
	"github.com/shaharia-lab/devgate/internal/telemetry"
)

type serveOptions struct {
	port      int
	mode      string
	viteURL   string
	distDir   string
	noBrowser bool
	logStderr bool
}

// NewServeCmd returns the "serve" subcommand that starts the HTTP server.
func NewServeCmd(load func() (*config.AppConfig, error)) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the devgate HTTP server",
		Long: `Start the devgate HTTP server. In development and test modes it proxies to the
Vite dev server; in production it serves the client bundle from --dist or the
bundle embedded in the binary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			// CLI flags override env config.
			if err := applyFlags(cmd, cfg, opts); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 0, "HTTP server port (overrides PORT env var)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "development, production or test (overrides DEVGATE_MODE)")
	cmd.Flags().StringVar(&opts.viteURL, "vite-url", "", "Vite dev server URL (overrides DEVGATE_VITE_URL)")
	cmd.Flags().StringVar(&opts.distDir, "dist", "", "Directory with the built client bundle (overrides DEVGATE_DIST_DIR)")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Do not automatically open the browser on startup")
	cmd.Flags().BoolVar(&opts.logStderr, "log-stderr", false, "Write logs to stderr instead of the log file")

	return cmd
}

func applyFlags(cmd *cobra.Command, cfg *config.AppConfig, opts serveOptions) error {
	if cmd.Flags().Changed("port") {
		cfg.Port = opts.port
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode = opts.mode
	}
	if cmd.Flags().Changed("vite-url") {
		cfg.ViteURL = opts.viteURL
	}
	if cmd.Flags().Changed("dist") {
		cfg.DistDir = opts.distDir
	}
	return cfg.Validate()
}

func runServe(ctx context.Context, cfg *config.AppConfig, opts serveOptions, out io.Writer) error {
	sysLogger, logTarget, closeLog, err := newLogger(cfg, opts.logStderr)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer closeLog()

	sysLogger.Info("devgate starting",
		slog.Int("port", cfg.Port),
		slog.String("mode", cfg.Mode),
		slog.String("data_dir", cfg.DataDir),
		slog.String("version", build.Version),
		slog.String("commit", build.CommitSHA),
		slog.String("build_date", build.BuildDate),
	)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "devgate", build.Version)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			sysLogger.Warn("flushing traces", "error", err)
		}
	}()

	envStore, err := startClientEnv(ctx, cfg, sysLogger)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Deps{
		Config:     cfg,
		Logger:     sysLogger,
		Metrics:    metrics.New(),
		ClientEnv:  envStore.Handler(),
		FrontendFS: frontendFS(cfg),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d", cfg.Port)
	printBanner(out, build.Version, cfg, url, logTarget)
	sysLogger.Info("server ready", "url", url)

	if !opts.noBrowser {
		go openBrowser(url)
	}

	return srv.Run(ctx)
}

// newLogger returns the system logger, a description of where it writes, and
// a func releasing the log file.
func newLogger(cfg *config.AppConfig, toStderr bool) (*slog.Logger, string, func(), error) {
	if toStderr {
		return logger.NewConsoleLogger(os.Stderr, cfg.SlogLevel()), "stderr", func() {}, nil
	}
	l, closer, err := logger.NewSystemLogger(cfg.LogDir(), cfg.SlogLevel())
	if err != nil {
		return nil, "", nil, err
	}
	return l, filepath.Join(cfg.LogDir(), "system.log"), func() { _ = closer.Close() }, nil
}

// startClientEnv loads the public env snapshot and keeps it fresh while ctx
// lives. A directory that cannot be watched only disables reloading.
func startClientEnv(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*clientenv.Store, error) {
	loader, err := clientenv.NewLoader(cfg.EnvDir, cfg.Mode, cfg.EnvPrefixes)
	if err != nil {
		return nil, fmt.Errorf("configuring client env: %w", err)
	}
	store, err := clientenv.NewStore(loader, log)
	if err != nil {
		return nil, fmt.Errorf("loading client env: %w", err)
	}

	w, err := clientenv.NewWatcher(store, log)
	if err != nil {
		log.Warn("client env reload disabled", "dir", cfg.EnvDir, "error", err)
		return store, nil
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			log.Warn("client env watcher stopped", "error", err)
		}
	}()
	return store, nil
}

func frontendFS(cfg *config.AppConfig) fs.FS {
	if cfg.DistDir != "" {
		return os.DirFS(cfg.DistDir)
	}
	return WebFS
}

var (
	bannerTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	bannerKey   = lipgloss.NewStyle().Faint(true).Width(8)
	bannerBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
)

// printBanner writes the startup banner. It is the only output visible in
// the terminal during normal operation; all structured logs go to the log
// file instead.
func printBanner(out io.Writer, version string, cfg *config.AppConfig, serverURL, logTarget string) {
	upstream := cfg.ViteURL
	if cfg.IsProduction() {
		upstream = "client bundle"
		if cfg.DistDir != "" {
			upstream = cfg.DistDir
		}
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		bannerTitle.Render("devgate "+version),
		"",
		bannerKey.Render("Local")+serverURL,
		bannerKey.Render("Mode")+cfg.Mode,
		bannerKey.Render("Serving")+upstream,
		bannerKey.Render("Logs")+logTarget,
	)
	fmt.Fprintln(out, bannerBox.Render(body))
}

func openBrowser(url string) {
	time.Sleep(600 * time.Millisecond)
	ctx := context.Background()
	var c *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		c = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		c = exec.CommandContext(ctx, "open", url)
	default:
		c = exec.CommandContext(ctx, "xdg-open", url)
	}
	_ = c.Start()
}
