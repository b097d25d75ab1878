package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tokenwallet/internal/logger"
	"tokenwallet/internal/ownership"
	"tokenwallet/internal/txf"
	"tokenwallet/internal/verify"
)

var (
	verifyToken      string
	verifySkipNet    bool
	verifyDiagnostic bool
)

// verifyCmd validates a token file and reports its ownership scenario.
//
// Exit codes: 0 = valid/current, 1 = validation failure or outdated state,
// 2 = file-level error. --diagnostic always exits 0. A network failure during
// the ownership query degrades gracefully: the scenario is reported as
// "error" and the command still exits 0, because the local file data remains
// informative without on-chain confirmation.
var verifyCmd = &cobra.Command{
	Use:   "verify-token",
	Short: "Verify a token file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyToken == "" {
			return failCode(2, fmt.Errorf("--token is required"))
		}

		env, raw, err := txf.Load(verifyToken)
		if err != nil {
			return failCode(2, err)
		}

		allowUncommitted := env.OfflineTransfer != nil || env.Status == txf.StatusPending

		result := verify.ValidateStructure(raw, allowUncommitted)

		if result.Valid() {
			tb, err := resolveTrustBase()
			if err != nil {
				return diagnosable(fmt.Errorf("cryptographic validation unavailable:\n%w", err))
			}

			result.Merge(verify.ValidateToken(env.Token(), tb, allowUncommitted))
		}

		for _, w := range result.Warnings {
			logger.Warn(w)
		}

		scenario := ownership.Scenario("")
		if !verifySkipNet {
			client, _, err := newPoller()
			if err != nil {
				return diagnosable(err)
			}

			res := ownership.Resolve(cmd.Context(), env, client)
			scenario = res.Scenario
			logger.Debug("ownership resolved", "scenario", res.Scenario, "detail", res.Detail)
		}

		printReport(env, result, scenario)

		if !result.Valid() {
			return diagnosable(fmt.Errorf("token validation failed"))
		}

		// Outdated is the only spent-state scenario that fails verification:
		// the token was spent elsewhere. An error scenario never fails.
		if scenario == ownership.ScenarioOutdated {
			return diagnosable(fmt.Errorf("token state is outdated: spent on-chain with no local record"))
		}

		rememberToken(env, verifyToken, scenario)

		return nil
	},
}

// diagnosable downgrades a validation failure to exit 0 when --diagnostic is set.
func diagnosable(err error) error {
	return failCode(1, err)
}

// failCode wraps a failure with its exit code; --diagnostic forces exit 0
// regardless of the failure class.
func failCode(code int, err error) error {
	if verifyDiagnostic {
		logger.Warn("diagnostic mode: ignoring failure", "err", err)
		return nil
	}

	return exitWith(code, err)
}

// printReport writes the verification summary to stdout.
func printReport(env *txf.Envelope, result *verify.Result, scenario ownership.Scenario) {
	fmt.Printf("token:    %s\n", env.Genesis.Data.TokenID)
	fmt.Printf("type:     %s\n", env.Genesis.Data.TokenType)
	fmt.Printf("status:   %s\n", orUnset(env.Status))
	fmt.Printf("scenario: %s\n", orUnset(string(scenario)))
	fmt.Printf("errors:   %d, warnings: %d\n", len(result.Errors), len(result.Warnings))

	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}

// orUnset substitutes a placeholder for empty values.
func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}

	return s
}

func init() {
	verifyCmd.Flags().StringVar(&verifyToken, "token", "", "Token file to verify")
	verifyCmd.Flags().BoolVar(&verifySkipNet, "skip-network", false, "Skip the on-chain ownership query")
	verifyCmd.Flags().BoolVar(&verifyDiagnostic, "diagnostic", false, "Report findings but always exit 0")
}
