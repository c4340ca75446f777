package providers

import (
	"testing"

	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/ledger/providers/local"
	"github.com/stretchr/testify/require"
)

func TestLedgerProviderFactory(t *testing.T) {
	client, err := LedgerProviderFactory(common.LedgerProviderLocal)
	require.NoError(t, err)
	require.IsType(t, &local.Ledger{}, client)

	_, err = LedgerProviderFactory("infura")
	require.Error(t, err)
}
