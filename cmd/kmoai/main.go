// kmoai answers questions about an organisation's documents.
//
// Usage:
//
//	kmoai serve --config kmoai.yaml               # MCP server on stdio
//	kmoai ask "how do I reset my vpn token?"      # one-shot answer
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kmoai/kmoai"
	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/config"
	"github.com/kmoai/kmoai/metrics"
)

var (
	configPath  string
	logLevel    string
	metricsAddr string
	promptID    string
	filter      string
)

var rootCmd = &cobra.Command{
	Use:           "kmoai",
	Short:         "Knowledge-base question answering over documents and the web",
	Version:       kmoai.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, cfg, err := open(ctx)
		if err != nil {
			return err
		}
		defer closeClient(client)

		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				logger.Infof("metrics: listening on %s", metricsAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("metrics: %v", err)
				}
			}()
			defer srv.Close()
		}

		logger.Infof("serve: chain=%s model=%s", cfg.Agent.Chain, cfg.LLM.Model)
		return server.ServeStdio(kmoai.NewServer("kmoai", client))
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer one question and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*cfg.RequestTimeout())
		defer cancel()
		res := client.Ask(ctx, args[0], promptID, filter)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func open(ctx context.Context) (*kmoai.Client, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logger.Init(level, cfg.Log.Development); err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	client, err := kmoai.NewClient(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create client: %w", err)
	}
	return client, cfg, nil
}

func closeClient(c *kmoai.Client) {
	if err := c.Close(); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
	_ = logger.Sync()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the Prometheus endpoint, e.g. :9090")
	askCmd.Flags().StringVar(&promptID, "prompt-id", "", "Continue the conversation with this id")
	askCmd.Flags().StringVar(&filter, "filter", "", "Search filter, e.g. @container:{hr}")

	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
