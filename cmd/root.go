package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/quartzchain/quartz/logx"
)

var rootCmd = &cobra.Command{
	Use:   "quartz",
	Short: "Quartz execution core CLI",
	Long:  "Command line interface for running and managing a Quartz execution core.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
