package providers

import (
	"fmt"

	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/ledger"
	"github.com/provideplatform/attestation/ledger/providers/ethereum"
	"github.com/provideplatform/attestation/ledger/providers/local"
)

// LedgerProviderFactory returns the ledger client for the configured provider
func LedgerProviderFactory(provider string) (ledger.Client, error) {
	switch provider {
	case common.LedgerProviderLocal:
		return local.InitLocalLedger(
			common.LedgerBlockInterval,
			common.LedgerPollInterval,
			common.LedgerConfirmationTimeout,
			nil,
		), nil
	case common.LedgerProviderEthereum:
		if common.LedgerRPCURL == "" {
			return nil, fmt.Errorf("failed to initialize %s ledger provider; LEDGER_RPC_URL required", provider)
		}
		return ethereum.Dial(
			common.LedgerRPCURL,
			common.LedgerAccountPrivateKey,
			common.LedgerAnchorAddress,
			common.LedgerAnchorABI,
			common.LedgerPollInterval,
			common.LedgerConfirmationTimeout,
		)
	}

	return nil, fmt.Errorf("failed to initialize ledger provider; unknown provider: %s", provider)
}
