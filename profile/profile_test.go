package profile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/ledger/providers/local"
	"github.com/provideplatform/attestation/messaging"
	"github.com/provideplatform/attestation/protocol"
	"github.com/provideplatform/attestation/store"
	"github.com/provideplatform/attestation/zkp/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileLifecycle(t *testing.T) {
	manager := NewManager(store.NewMemoryStore())

	_, err := manager.RetrieveProfile(context.TODO(), "alice")
	assert.True(t, credential.IsNotFound(err))

	profile, err := manager.CreateProfile(context.TODO(), "alice", common.StringOrNil("Alice"), common.StringOrNil("alice@example.com"))
	require.NoError(t, err)
	assert.Equal(t, ProfileStatusActive, *profile.Status)
	assert.NotEqual(t, uuid.Nil, profile.ID)

	_, err = manager.CreateProfile(context.TODO(), "alice", nil, nil)
	assert.True(t, errors.Is(err, credential.ErrSchema))

	retrieved, err := manager.RetrieveProfile(context.TODO(), "alice")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, retrieved.ID)
	assert.Equal(t, "Alice", *retrieved.Name)

	disabled, err := manager.DisableProfile(context.TODO(), "alice")
	require.NoError(t, err)
	assert.Equal(t, ProfileStatusDisabled, *disabled.Status)

	disabled, err = manager.DisableProfile(context.TODO(), "alice")
	require.NoError(t, err)
	assert.Equal(t, ProfileStatusDisabled, *disabled.Status)

	retrieved, err = manager.RetrieveProfile(context.TODO(), "alice")
	require.NoError(t, err)
	assert.Equal(t, ProfileStatusDisabled, *retrieved.Status)

	_, err = manager.DisableProfile(context.TODO(), "bob")
	assert.True(t, credential.IsNotFound(err))
}

func TestCreateProfileInvalidEmail(t *testing.T) {
	manager := NewManager(store.NewMemoryStore())

	_, err := manager.CreateProfile(context.TODO(), "alice", nil, common.StringOrNil("not-an-email"))
	assert.True(t, errors.Is(err, credential.ErrSchema))
}

func newTestAuthority(t *testing.T, userKey string) (*Authority, store.RecordStore) {
	records := store.NewMemoryStore()
	chain := local.InitLocalLedger(0, 10*time.Millisecond, time.Second, nil)

	engine, err := protocol.NewEngine(&protocol.Config{
		Store:  records,
		Ledger: chain,
		Messaging: messaging.NewNatsClient(records, func(subject string, payload []byte) error {
			return nil
		}),
		Crypto:   providers.InitGnarkCryptoProvider(),
		User:     &credential.User{Key: userKey, PrivateKey: credential.Key{"00"}},
		Observer: protocol.LogObserver{},
	})
	require.NoError(t, err)

	return NewAuthority(engine, NewManager(records)), records
}

func TestAuthorityRequiresActiveProfile(t *testing.T) {
	authority, records := newTestAuthority(t, "issuer")
	content := json.RawMessage(`{"name":"alice"}`)

	_, err := authority.IssueDocument(context.TODO(), content, "holder")
	assert.True(t, credential.IsNotFound(err))

	_, err = authority.CreateProfile(context.TODO(), "issuer", common.StringOrNil("Issuer"), nil)
	require.NoError(t, err)

	issued, err := authority.IssueDocument(context.TODO(), content, "holder")
	require.NoError(t, err)
	assert.Equal(t, credential.StatusCreated, issued.Status)
	assert.Equal(t, "issuer", *issued.IssuerKey)

	_, err = authority.DisableProfile(context.TODO(), "issuer")
	require.NoError(t, err)

	_, err = authority.IssueDocument(context.TODO(), content, "holder")
	assert.True(t, errors.Is(err, ErrProfileDisabled))

	_, err = authority.Award(context.TODO(), issued.ID)
	assert.True(t, errors.Is(err, ErrProfileDisabled))

	id, _ := uuid.NewV4()
	_, err = authority.CreateShareRequest(context.TODO(), id, "verifier")
	assert.True(t, errors.Is(err, ErrProfileDisabled))

	_, err = authority.Request(context.TODO(), id)
	assert.True(t, errors.Is(err, ErrProfileDisabled))

	_, err = authority.Proof(context.TODO(), id)
	assert.True(t, errors.Is(err, ErrProfileDisabled))

	_, err = authority.Acknowledge(context.TODO(), id, content)
	assert.True(t, errors.Is(err, ErrProfileDisabled))

	// the issued document is untouched by the rejected award
	rec, err := store.GetByID(context.TODO(), records, credential.KindIssuedDocument, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, credential.StatusCreated, rec.(*credential.IssuedDocument).Status)
}

var _ protocol.Exchange = (*Authority)(nil)
