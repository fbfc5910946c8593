package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kelsos/ledger-sync/internal/logger"
)

type globalFlags struct {
	configFile  string
	chainsFile  string
	mnemonicEnv string
	metricsAddr string
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "ledger-sync",
		Short: "A CLI tool for discovering hardware wallet accounts across chains",
		Long: `ledger-sync derives the accounts of a hardware wallet on every configured chain,
fetches their balances and pairs them with destination addresses on the migration chain.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to a .env file with LEDGER_SYNC_* settings")
	rootCmd.PersistentFlags().StringVarP(&flags.chainsFile, "chains", "", "", "Path to the chain registry YAML (default: built-in registry)")
	rootCmd.PersistentFlags().StringVarP(&flags.mnemonicEnv, "mnemonic-env", "", "", "Environment variable holding the device mnemonic")
	rootCmd.PersistentFlags().StringVarP(&flags.metricsAddr, "metrics-addr", "", "", "Address to serve Prometheus metrics on, e.g. :9090")

	rootCmd.AddCommand(newSyncCmd(&flags))
	rootCmd.AddCommand(newDeepScanCmd(&flags))
	rootCmd.AddCommand(newChainsCmd(&flags))

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command failed: %v", err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
