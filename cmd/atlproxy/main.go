// Package main provides the atlproxy server binary: a credential-holding
// fetch-through cache and proxy in front of a Confluence instance.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpatlassian "github.com/mortimer-cra/mcp-atlassian"
	"github.com/mortimer-cra/mcp-atlassian/confluence"
	"github.com/mortimer-cra/mcp-atlassian/internal/accesslog"
	"github.com/mortimer-cra/mcp-atlassian/internal/logging"
	"github.com/mortimer-cra/mcp-atlassian/internal/ratelimit"
	"github.com/mortimer-cra/mcp-atlassian/internal/version"
	"github.com/mortimer-cra/mcp-atlassian/preprocessing"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "atlproxy",
		Short:        "Confluence attachment fetch-through cache and proxy",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to a YAML or JSON config file (overlaid on the environment)")

	root.AddCommand(serveCmd(), validateCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return run(cmd.Context(), *cfg)
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config is valid\n")
			fmt.Fprintf(cmd.OutOrStdout(), "  confluence_url: %s\n", cfg.ConfluenceURL)
			fmt.Fprintf(cmd.OutOrStdout(), "  listen:         :%d%s\n", cfg.Port, cfg.BasePath)
			fmt.Fprintf(cmd.OutOrStdout(), "  cache:          %d entries, ttl %s\n", cfg.CacheMaxSize, cfg.CacheTTL)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "atlproxy %s\n", version.String())
		},
	}
}

// loadConfig builds the configuration from the environment, overlaying the
// --config file when one was given, and validates the result.
func loadConfig() (*mcpatlassian.Config, error) {
	var cfg *mcpatlassian.Config
	if configPath != "" {
		loaded, err := mcpatlassian.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		env := mcpatlassian.FromEnv()
		cfg = &env
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg mcpatlassian.Config) error {
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	log := logging.Logger

	var cred confluence.Credential
	if cfg.OAuthToken != "" {
		cred = confluence.NewTokenAuth(cfg.OAuthToken)
	} else {
		cred = confluence.BasicAuth{Username: cfg.Username, Token: cfg.APIToken}
	}

	client := confluence.NewClient(cfg.ConfluenceURL, cred, cfg.UpstreamTimeout)
	pre := preprocessing.NewConfluence(cfg.ConfluenceURL)
	svc := mcpatlassian.NewService(cfg, client, client, pre)

	var access accesslog.Writer = accesslog.NoopWriter{}
	switch cfg.AccessLogDriver {
	case "sqlite":
		w, err := accesslog.NewSQLiteWriter(cfg.AccessLogDSN)
		if err != nil {
			return fmt.Errorf("access log: %w", err)
		}
		defer w.Close()
		access = w
	case "postgres":
		w, err := accesslog.NewPostgresWriter(cfg.AccessLogDSN)
		if err != nil {
			return fmt.Errorf("access log: %w", err)
		}
		defer w.Close()
		access = w
	}

	var limiter *ratelimit.Store
	if cfg.RateLimitRPS > 0 {
		limiter = ratelimit.NewStore(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	s := &server{
		cfg:     cfg,
		svc:     svc,
		general: confluence.NewClient(cfg.ConfluenceURL, nil, cfg.UpstreamTimeout),
		access:  access,
		limiter: limiter,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(corsOriginsFromEnv()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err.Error())
		}
	}()

	log.Info("atlproxy listening",
		"version", version.Short(),
		"addr", srv.Addr,
		"base_path", cfg.BasePath,
		"upstream", cfg.ConfluenceURL,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	log.Info("server stopped")
	return nil
}
