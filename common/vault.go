package common

import (
	"fmt"
	"os"
	"time"

	"github.com/provideplatform/provide-go/api/vault"
	"github.com/provideplatform/provide-go/common/util"
)

// DefaultVault for this attestation instance
var DefaultVault *vault.Vault

// RequireVault resolves the default vault, creating one when none exists
func RequireVault() {
	util.RequireVault()

	vaults, err := vault.ListVaults(util.DefaultVaultAccessJWT, map[string]interface{}{})
	if err != nil {
		Log.Panicf("failed to fetch vaults for given attestation vault token; %s", err.Error())
	}

	if len(vaults) > 0 {
		DefaultVault = vaults[0]
		Log.Debugf("resolved default attestation vault instance: %s", DefaultVault.ID.String())
	} else {
		DefaultVault, err = vault.CreateVault(util.DefaultVaultAccessJWT, map[string]interface{}{
			"name":        fmt.Sprintf("attestation vault %d", time.Now().Unix()),
			"description": "default attestation vault",
		})
		if err != nil {
			Log.Panicf("failed to create default vaults for attestation instance; %s", err.Error())
		}
		Log.Debugf("created default attestation vault instance: %s", DefaultVault.ID.String())
	}
}

// ResolveUserPrivateKey returns the hex-encoded private key material of the local user;
// the key is read from the vault when ATTESTATION_USER_KEY_SECRET_ID is set
func ResolveUserPrivateKey() (*string, error) {
	secretID := os.Getenv("ATTESTATION_USER_KEY_SECRET_ID")
	if secretID == "" {
		key := os.Getenv("ATTESTATION_USER_PRIVATE_KEY")
		if key == "" {
			return nil, fmt.Errorf("failed to resolve user private key; ATTESTATION_USER_PRIVATE_KEY or ATTESTATION_USER_KEY_SECRET_ID required")
		}
		return &key, nil
	}

	if DefaultVault == nil {
		RequireVault()
	}

	secret, err := vault.FetchSecret(
		util.DefaultVaultAccessJWT,
		DefaultVault.ID.String(),
		secretID,
		map[string]interface{}{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user private key secret %s from vault %s; %s", secretID, DefaultVault.ID.String(), err.Error())
	}

	return secret.Value, nil
}
