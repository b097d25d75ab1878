package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tokenwallet/internal/aggregator"
	"tokenwallet/internal/logger"
	"tokenwallet/internal/ownership"
	"tokenwallet/internal/predicate"
	"tokenwallet/internal/trustbase"
	"tokenwallet/internal/txf"
	"tokenwallet/internal/wallet"
)

var (
	receiveToken     string
	receiveOffline   bool
	receiveNonce     string
	receiveStateData string
	receiveOutput    string
)

// receiveCmd finalizes an incoming transfer.
var receiveCmd = &cobra.Command{
	Use:   "receive-token",
	Short: "Receive a token",
	Long: "Finalize an incoming transfer: resolve its inclusion proof if needed, verify it is addressed " +
		"to this wallet, and write the confirmed token file. --offline defers on-chain resolution.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if receiveToken == "" {
			return fmt.Errorf("--token is required")
		}

		output := receiveOutput
		if output == "" {
			output = receiveToken
		}

		env, _, err := txf.Load(receiveToken)
		if err != nil {
			return err
		}

		secret, err := predicate.AcquireSecret(flagSecretFile)
		if err != nil {
			return err
		}
		defer secret.Zero()

		nonce, err := decodeNonce(receiveNonce)
		if err != nil {
			return err
		}

		var stateData []byte
		if receiveStateData != "" {
			stateData = []byte(receiveStateData)
		}

		var poller *aggregator.Poller
		var tb *trustbase.TrustBase

		if !receiveOffline {
			_, poller, err = newPoller()
			if err != nil {
				return err
			}

			tb, err = resolveTrustBase()
			if err != nil {
				return err
			}
		}

		out, err := wallet.Receive(cmd.Context(), env, poller, wallet.ReceiveOptions{
			Secret:    secret.Bytes(),
			Nonce:     nonce,
			StateData: stateData,
			Offline:   receiveOffline,
			TrustBase: tb,
			Policy:    pollPolicy(),
		})
		if err != nil {
			return err
		}

		if err := txf.Save(output, out); err != nil {
			return err
		}

		scenario := ownership.ScenarioConfirmed
		if receiveOffline {
			scenario = ownership.ScenarioPending
		}

		rememberToken(out, output, scenario)
		logger.Info("token received", "tokenId", out.Genesis.Data.TokenID, "file", output, "status", out.Status)

		return nil
	},
}

func init() {
	receiveCmd.Flags().StringVar(&receiveToken, "token", "", "Incoming token file")
	receiveCmd.Flags().BoolVar(&receiveOffline, "offline", false, "Verify locally only; defer on-chain resolution")
	receiveCmd.Flags().StringVar(&receiveNonce, "nonce", "", "Hex nonce for a masked recipient predicate")
	receiveCmd.Flags().StringVar(&receiveStateData, "state-data", "", "State data, required iff the transfer commits to a data hash")
	receiveCmd.Flags().StringVarP(&receiveOutput, "output", "o", "", "Output token file (defaults to --token)")
}
