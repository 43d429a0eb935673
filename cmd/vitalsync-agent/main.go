package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lanternworks/vitalsync/internal/apiclient"
	"github.com/lanternworks/vitalsync/internal/config"
	"github.com/lanternworks/vitalsync/internal/healthsource"
	"github.com/lanternworks/vitalsync/internal/logging"
	"github.com/lanternworks/vitalsync/internal/syncer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vitalsync-agent",
		Short: "VitalSync extraction agent",
		Long:  "Pulls health records from a local export directory and pushes them to the VitalSync backend.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Run one incremental sync cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, false)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "import",
		Short: "Run one historical bulk import over the full lookback window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, true)
		},
	})
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync periodically until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, err := cmd.Flags().GetDuration("interval")
			if err != nil {
				return err
			}
			return watchAgent(cmd, interval)
		},
	}
	watchCmd.Flags().Duration("interval", 15*time.Minute, "Delay between sync cycles")
	rootCmd.AddCommand(watchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("server-url", defaults.GetString("agent.server_url"), "VitalSync API base URL")
	cmd.PersistentFlags().String("owner", defaults.GetString("agent.owner"), "Owner identifier for submitted records")
	cmd.PersistentFlags().String("export-dir", defaults.GetString("agent.export_dir"), "Directory holding health export files")
	cmd.PersistentFlags().StringSlice("metric-types", defaults.GetStringSlice("agent.metric_types"), "Metric types to extract")
	cmd.PersistentFlags().Int("lookback-days", defaults.GetInt("agent.lookback_days"), "Initial sync lookback window in days")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("api-key", "", "Shared secret for the sync API (overrides env)")

	bindFlag(cmd, "agent.server_url", "server-url")
	bindFlag(cmd, "agent.owner", "owner")
	bindFlag(cmd, "agent.export_dir", "export-dir")
	bindFlag(cmd, "agent.metric_types", "metric-types")
	bindFlag(cmd, "agent.lookback_days", "lookback-days")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "sync.api_key", "api-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func buildOrchestrator() (*syncer.Orchestrator, *zap.Logger, error) {
	agentConfig, err := config.LoadAgent(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewAgentLogger(agentConfig.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	source, err := healthsource.NewExportDirSource(agentConfig.ExportDir, time.Now)
	if err != nil {
		return nil, nil, err
	}

	client, err := apiclient.NewClient(apiclient.Options{
		BaseURL: agentConfig.ServerURL,
		APIKey:  agentConfig.APIKey,
		Timeout: agentConfig.HTTPTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	orchestrator, err := syncer.New(syncer.Config{
		Source:             source,
		API:                client,
		Owner:              agentConfig.Owner,
		MetricTypes:        agentConfig.MetricTypes,
		Lookback:           time.Duration(agentConfig.LookbackDays) * 24 * time.Hour,
		HistoricalLookback: time.Duration(agentConfig.HistoricalDays) * 24 * time.Hour,
		RingWindow:         time.Duration(agentConfig.RingWindowDays) * 24 * time.Hour,
		Clock:              time.Now,
		Logger:             logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return orchestrator, logger, nil
}

func runAgent(cmd *cobra.Command, historical bool) error {
	orchestrator, logger, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if historical {
		err = orchestrator.TriggerHistoricalImport(cmd.Context())
	} else {
		err = orchestrator.TriggerSync(cmd.Context())
	}
	if err != nil {
		return err
	}

	status := orchestrator.Status()
	fmt.Fprintf(cmd.OutOrStdout(), "sync complete at %s\n", status.LastSyncAt.Format(time.RFC3339))
	return nil
}

func watchAgent(cmd *cobra.Command, interval time.Duration) error {
	orchestrator, logger, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := orchestrator.TriggerSync(cmd.Context()); err != nil && !errors.Is(err, syncer.ErrSyncInProgress) {
			logger.Warn("sync cycle failed", zap.Error(err))
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}
