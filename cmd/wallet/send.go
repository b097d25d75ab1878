package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"tokenwallet/internal/aggregator"
	"tokenwallet/internal/hash"
	"tokenwallet/internal/logger"
	"tokenwallet/internal/predicate"
	"tokenwallet/internal/txf"
	"tokenwallet/internal/wallet"
)

var (
	sendToken     string
	sendRecipient string
	sendMessage   string
	sendDataHash  string
	sendNonce     string
	sendSubmitNow bool
	sendOutput    string
)

// sendCmd transfers a token to a recipient.
var sendCmd = &cobra.Command{
	Use:   "send-token",
	Short: "Send a token",
	Long: "Append a transfer to a token. With --submit-now the commitment is submitted and proven; " +
		"otherwise the output file carries an offline package the recipient submits themselves.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendToken == "" || sendRecipient == "" {
			return fmt.Errorf("--token and --recipient are required")
		}

		output := sendOutput
		if output == "" {
			output = sendToken
		}

		env, _, err := txf.Load(sendToken)
		if err != nil {
			return err
		}

		secret, err := predicate.AcquireSecret(flagSecretFile)
		if err != nil {
			return err
		}
		defer secret.Zero()

		nonce, err := decodeNonce(sendNonce)
		if err != nil {
			return err
		}

		var dataHash hash.Imprint
		if sendDataHash != "" {
			dataHash = hash.Imprint(sendDataHash)
			if !dataHash.Valid() {
				return fmt.Errorf("--data-hash must be a %s-prefixed imprint", hash.AlgBlake3)
			}
		}

		opts := wallet.SendOptions{
			Secret:            secret.Bytes(),
			Nonce:             nonce,
			Recipient:         sendRecipient,
			RecipientDataHash: dataHash,
			Message:           sendMessage,
			SubmitNow:         sendSubmitNow,
			Policy:            pollPolicy(),
		}

		// The poller is only needed when submitting now; a pure offline send
		// must work with no aggregator configured at all.
		var poller *aggregator.Poller
		if sendSubmitNow {
			_, poller, err = newPoller()
			if err != nil {
				return err
			}
		}

		out, err := wallet.Send(cmd.Context(), env, poller, opts)
		if err != nil {
			return err
		}

		if err := txf.Save(output, out); err != nil {
			return err
		}

		rememberToken(out, output, "")
		logger.Info("token sent", "tokenId", out.Genesis.Data.TokenID, "file", output, "submitted", sendSubmitNow)

		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendToken, "token", "", "Token file to send from")
	sendCmd.Flags().StringVar(&sendRecipient, "recipient", "", "Recipient address or hex public key")
	sendCmd.Flags().StringVar(&sendMessage, "message", "", "Optional transfer message")
	sendCmd.Flags().StringVar(&sendDataHash, "data-hash", "", "Imprint the recipient's state data must hash to")
	sendCmd.Flags().StringVar(&sendNonce, "nonce", "", "Hex nonce, required when the token is held under a masked predicate")
	sendCmd.Flags().BoolVar(&sendSubmitNow, "submit-now", false, "Submit the commitment and wait for its proof")
	sendCmd.Flags().StringVarP(&sendOutput, "output", "o", "", "Output token file (defaults to --token)")
}

// decodeNonce parses an optional hex nonce flag.
func decodeNonce(arg string) ([]byte, error) {
	if arg == "" {
		return nil, nil
	}

	nonce, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("--nonce must be hex: %v", err)
	}

	return nonce, nil
}
