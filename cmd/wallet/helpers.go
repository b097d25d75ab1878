package main

import (
	"fmt"
	"os"
	"time"

	"tokenwallet/internal/aggregator"
	"tokenwallet/internal/logger"
	"tokenwallet/internal/ownership"
	"tokenwallet/internal/trustbase"
	"tokenwallet/internal/txf"
	"tokenwallet/internal/vault"
)

// newPoller builds the aggregator client and poller from the global flags.
func newPoller() (*aggregator.Client, *aggregator.Poller, error) {
	endpoint := flagAggregator
	if endpoint == "" {
		endpoint = os.Getenv(aggregator.URLEnv)
	}

	if endpoint == "" {
		return nil, nil, fmt.Errorf("no aggregator endpoint: set $%s or pass --aggregator", aggregator.URLEnv)
	}

	client := aggregator.New(endpoint)

	return client, aggregator.NewPoller(client), nil
}

// pollPolicy builds the retry policy from the global flags.
func pollPolicy() aggregator.RetryPolicy {
	return aggregator.RetryPolicy{Timeout: flagPollTimeout, Interval: flagPollEvery}
}

// resolveTrustBase loads the trust base per the global flags.
func resolveTrustBase() (*trustbase.TrustBase, error) {
	return trustbase.Resolve(flagTrustBase, flagAllowDevTB)
}

// rememberToken records the token in the vault, best effort: index failures
// warn and never fail the command.
func rememberToken(env *txf.Envelope, path string, scenario ownership.Scenario) {
	if flagNoVault {
		return
	}

	v, err := vault.Open(flagVaultPath)
	if err != nil {
		logger.Warn("vault unavailable", "err", err)
		return
	}
	defer v.Close()

	rec := vault.Record{
		TokenID:   string(env.Genesis.Data.TokenID),
		Path:      path,
		Status:    env.Status,
		Scenario:  string(scenario),
		UpdatedAt: time.Now().UTC(),
	}

	if err := v.Put(rec); err != nil {
		logger.Warn("vault update failed", "tokenId", rec.TokenID, "err", err)
	}
}
