package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quartzchain/quartz/config"
	"github.com/quartzchain/quartz/eventstore"
	"github.com/quartzchain/quartz/exception"
	"github.com/quartzchain/quartz/execution"
	"github.com/quartzchain/quartz/ledger"
	"github.com/quartzchain/quartz/logx"
	"github.com/quartzchain/quartz/monitoring"
	"github.com/quartzchain/quartz/rolls"
	"github.com/quartzchain/quartz/vm"
)

var (
	genesisPath string
	execPath    string
	metricsAddr string
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the execution core",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode()
	},
}

func init() {
	nodeCmd.Flags().StringVar(&genesisPath, "genesis", "genesis.yml", "path to the genesis config")
	nodeCmd.Flags().StringVar(&execPath, "config", "", "path to the execution tuning config (.ini)")
	nodeCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9154", "prometheus metrics listen address")
	rootCmd.AddCommand(nodeCmd)
}

func runNode() error {
	genesisCfg, err := config.LoadGenesisConfig(genesisPath)
	if err != nil {
		return fmt.Errorf("failed to load genesis config: %w", err)
	}
	execCfg := config.DefaultExecutionConfig()
	if execPath != "" {
		execCfg, err = config.LoadExecutionConfig(execPath)
		if err != nil {
			return fmt.Errorf("failed to load execution config: %w", err)
		}
	}

	monitoring.InitMetrics()
	mux := http.NewServeMux()
	monitoring.RegisterMetrics(mux)
	exception.SafeGoWithPanic("metrics-server", func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logx.Error("CMD", "Metrics server stopped:", err)
		}
	})

	if err := os.MkdirAll(execCfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	finalLedger, err := ledger.NewFinalLedger(filepath.Join(execCfg.DataDir, "ledger.db"))
	if err != nil {
		return err
	}
	defer finalLedger.Close()

	runtime := vm.NewWasmRuntime(context.Background())
	defer runtime.Close(context.Background())

	bus := eventstore.NewBus(execCfg.EventChannelSize)
	events := eventstore.NewStore(bus)
	registry := rolls.NewRegistry()

	cfg := execution.ConfigFromFiles(genesisCfg, execCfg)
	_, mgr := execution.Start(cfg, finalLedger, events, registry, runtime)
	logx.Info("CMD", fmt.Sprintf("Execution core running (chain %s, %d threads)", genesisCfg.ChainID, genesisCfg.ThreadCount))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logx.Info("CMD", "Shutting down")
	mgr.Stop()
	return nil
}
