package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/stretchr/testify/require"
)

func newIssuedDocument(t *testing.T, s RecordStore) *credential.IssuedDocument {
	doc, err := credential.NewDocument(common.StringOrNil("issuer"), json.RawMessage(`{"name":"alice"}`))
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), doc))

	issued := &credential.IssuedDocument{
		DocumentID: &doc.ID,
		IssuerKey:  common.StringOrNil("issuer"),
		HolderKey:  common.StringOrNil("holder"),
		Status:     credential.StatusCreated,
	}
	require.NoError(t, s.Create(context.Background(), issued))
	return issued
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	issued := newIssuedDocument(t, s)
	require.NotEqual(t, uuid.Nil, issued.ID)

	rec, err := GetByID(ctx, s, credential.KindIssuedDocument, issued.ID)
	require.NoError(t, err)
	require.Equal(t, issued.ID, rec.RecordID())
	require.Equal(t, "holder", *rec.(*credential.IssuedDocument).HolderKey)

	rec, err = s.GetBy(ctx, credential.KindIssuedDocument, map[string]interface{}{"holder_key": "holder"})
	require.NoError(t, err)
	require.Equal(t, issued.ID, rec.RecordID())

	_, err = s.GetBy(ctx, credential.KindIssuedDocument, map[string]interface{}{"holder_key": "mallory"})
	require.True(t, credential.IsNotFound(err))

	_, err = s.GetBy(ctx, credential.Kind("Bogus"), map[string]interface{}{})
	require.True(t, errors.Is(err, credential.ErrSchema))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	issued := newIssuedDocument(t, s)

	issued.Commitment = common.StringOrNil("mutated")

	rec, err := GetByID(ctx, s, credential.KindIssuedDocument, issued.ID)
	require.NoError(t, err)
	require.Nil(t, rec.(*credential.IssuedDocument).Commitment)
}

func TestMemoryStoreCreateRejectsInvalid(t *testing.T) {
	s := NewMemoryStore()
	err := s.Create(context.Background(), &credential.IssuedDocument{})
	require.True(t, errors.Is(err, credential.ErrSchema))

	issued := newIssuedDocument(t, s)
	dup := *issued
	err = s.Create(context.Background(), &dup)
	require.True(t, errors.Is(err, credential.ErrSchema))
}

func TestMemoryStoreUpdateRules(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	issued := newIssuedDocument(t, s)

	issued.Status = credential.StatusPending
	issued.Commitment = common.StringOrNil("c")
	issued.Randomness = common.StringOrNil("r")
	issued.AwardSignature = common.StringOrNil("s")
	require.NoError(t, s.Update(ctx, issued))

	issued.LedgerRef = common.StringOrNil("0x01")
	require.NoError(t, s.Update(ctx, issued))

	issued.Status = credential.StatusConfirmed
	require.NoError(t, s.Update(ctx, issued))

	regressed := *issued
	regressed.Status = credential.StatusPending
	require.True(t, errors.Is(s.Update(ctx, &regressed), credential.ErrInvalidTransition))

	rewritten := *issued
	rewritten.LedgerRef = common.StringOrNil("0x02")
	require.True(t, errors.Is(s.Update(ctx, &rewritten), credential.ErrImmutable))

	missing := *issued
	missing.ID, _ = uuid.NewV4()
	require.True(t, credential.IsNotFound(s.Update(ctx, &missing)))

	rec, err := GetByID(ctx, s, credential.KindIssuedDocument, issued.ID)
	require.NoError(t, err)
	require.Equal(t, credential.StatusConfirmed, rec.(*credential.IssuedDocument).Status)
	require.Equal(t, "0x01", *rec.(*credential.IssuedDocument).LedgerRef)
}

func TestMemoryStoreDocumentImmutable(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc, err := credential.NewDocument(nil, json.RawMessage(`{"name":"alice"}`))
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, doc))

	doc.Content = json.RawMessage(`{"name":"bob"}`)
	require.True(t, errors.Is(s.Update(ctx, doc), credential.ErrImmutable))
}

func TestMemoryStoreConcurrentCreate(t *testing.T) {
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entity := &credential.Entity{
				Key:       common.StringOrNil("verifier"),
				PublicKey: credential.Key{"pub"},
				Type:      credential.EntityTypeVerifier,
			}
			require.NoError(t, s.Create(context.Background(), entity))
		}()
	}
	wg.Wait()

	require.Len(t, s.records[credential.KindEntity], 32)
}
