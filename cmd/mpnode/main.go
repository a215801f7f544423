package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mpnetwork/mpnode/pkg/config"
	"github.com/mpnetwork/mpnode/pkg/log"
	"github.com/mpnetwork/mpnode/pkg/node"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mpnode",
	Short: "mpnode - verifiable request-execution node",
	Long: `mpnode hosts containerised agents behind a replicated transaction log.
Every external request is ordered, executed in an isolated container and
answered together with a BLS-aggregated proof of computation.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"mpnode version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node",
	Long: `Start the node: consensus log, transaction pool, container backend,
execution bridge and the HTTP ingress and admin interfaces.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		// The config file's log settings win over flag defaults.
		if configPath != "" && cfg.Node.LogLevel != "" {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logJSON, _ := cmd.Flags().GetBool("log-json")
			if !cmd.Flags().Changed("log-level") {
				logLevel = cfg.Node.LogLevel
			}
			if !cmd.Flags().Changed("log-json") {
				logJSON = cfg.Node.LogJSON
			}
			log.Init(log.Config{
				Level:      log.Level(logLevel),
				JSONOutput: logJSON,
			})
		}

		n, err := node.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialise node: %w", err)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Info("Shutting down")
			n.Stop()
			cancel()
			os.Exit(0)
		}()

		return n.Start(ctx)
	},
}

func init() {
	startCmd.Flags().String("config", "", "Path to the configuration file (YAML)")
}
