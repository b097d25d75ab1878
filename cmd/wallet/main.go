package main

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tokenwallet/internal/aggregator"
	"tokenwallet/internal/logger"
	"tokenwallet/internal/trustbase"
)

// Global flags shared by all subcommands.
var (
	flagAggregator  string
	flagSecretFile  string
	flagTrustBase   string
	flagAllowDevTB  bool
	flagVaultPath   string
	flagNoVault     bool
	flagVerbose     bool
	flagPollTimeout time.Duration
	flagPollEvery   time.Duration
)

// rootCmd is the wallet entry point.
var rootCmd = &cobra.Command{
	Use:           "wallet",
	Short:         "Token wallet for a ledger network",
	Long:          "Mint, send, receive, and verify tokens whose transfers are anchored by aggregator inclusion proofs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(flagVerbose)
	},
}

// exitError carries an explicit process exit code up to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// exitWith wraps an error with a process exit code.
func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagAggregator, "aggregator", "", "Aggregator endpoint URL (defaults to $"+aggregator.URLEnv+")")
	rootCmd.PersistentFlags().StringVar(&flagSecretFile, "secret-file", "", "Wallet secret file (defaults to $WALLET_SECRET)")
	rootCmd.PersistentFlags().StringVar(&flagTrustBase, "trustbase", "", "Trust base JSON file (defaults to $"+trustbase.PathEnv+")")
	rootCmd.PersistentFlags().BoolVar(&flagAllowDevTB, "allow-dev-trustbase", false, "Permit the built-in dev trust base when no file is configured")
	rootCmd.PersistentFlags().StringVar(&flagVaultPath, "vault", defaultVaultPath(), "Local token index directory")
	rootCmd.PersistentFlags().BoolVar(&flagNoVault, "no-vault", false, "Skip updating the local token index")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&flagPollTimeout, "timeout", aggregator.DefaultTimeout, "Total inclusion-proof poll deadline")
	rootCmd.PersistentFlags().DurationVar(&flagPollEvery, "interval", aggregator.DefaultInterval, "Pause between inclusion-proof polls")

	rootCmd.AddCommand(mintCmd, sendCmd, receiveCmd, verifyCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		// Execute can fail before PersistentPreRun runs (flag errors);
		// Init is a once, so this is a no-op on the normal path.
		logger.Init(flagVerbose)
		logger.Error("command failed", "err", err)

		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}

		os.Exit(1)
	}
}

// defaultVaultPath places the vault under the user's home directory.
func defaultVaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tokenwallet/vault"
	}

	return home + "/.tokenwallet/vault"
}
