package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tokenwallet/internal/logger"
	"tokenwallet/internal/ownership"
	"tokenwallet/internal/predicate"
	"tokenwallet/internal/txf"
	"tokenwallet/internal/wallet"
)

var (
	mintType   string
	mintData   string
	mintOutput string
)

// mintCmd mints a new token owned by this wallet.
var mintCmd = &cobra.Command{
	Use:   "mint-token",
	Short: "Mint a new token",
	Long:  "Mint a new token owned by this wallet's secret, wait for the mint inclusion proof, and write the token file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if mintOutput == "" {
			return fmt.Errorf("--output is required")
		}

		start := time.Now()

		secret, err := predicate.AcquireSecret(flagSecretFile)
		if err != nil {
			return err
		}
		defer secret.Zero()

		_, poller, err := newPoller()
		if err != nil {
			return err
		}

		tb, err := resolveTrustBase()
		if err != nil {
			return err
		}

		var data []byte
		if mintData != "" {
			data = []byte(mintData)
		}

		env, err := wallet.Mint(cmd.Context(), poller, wallet.MintOptions{
			TokenType: mintType,
			Data:      data,
			Secret:    secret.Bytes(),
			TrustBase: tb,
			Policy:    pollPolicy(),
		})
		if err != nil {
			return err
		}

		if err := txf.Save(mintOutput, env); err != nil {
			return err
		}

		rememberToken(env, mintOutput, ownership.ScenarioCurrent)
		logger.Info("token minted", "tokenId", env.Genesis.Data.TokenID, "file", mintOutput, logger.Timed(start))
		fmt.Println(env.Genesis.Data.TokenID)

		return nil
	},
}

func init() {
	mintCmd.Flags().StringVar(&mintType, "type", "token", "Token type identifier")
	mintCmd.Flags().StringVar(&mintData, "data", "", "Initial state data")
	mintCmd.Flags().StringVarP(&mintOutput, "output", "o", "", "Output token file")
}
