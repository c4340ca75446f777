package profile

import (
	"context"
	"encoding/json"
	"fmt"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/protocol"
)

// Authority runs the credential exchange on behalf of the local user as long
// as the user's profile is active
type Authority struct {
	*protocol.Engine
	Manager
}

// NewAuthority composes the engine with the profile manager
func NewAuthority(engine *protocol.Engine, manager Manager) *Authority {
	return &Authority{
		Engine:  engine,
		Manager: manager,
	}
}

// requireActive returns ErrProfileDisabled unless the local user has an active profile
func (a *Authority) requireActive(ctx context.Context) error {
	userKey := a.Engine.User().Key

	profile, err := a.Manager.RetrieveProfile(ctx, userKey)
	if err != nil {
		return fmt.Errorf("failed to resolve profile for user %s; %w", userKey, err)
	}

	if common.StringValue(profile.Status) != ProfileStatusActive {
		return fmt.Errorf("%w: user %s", ErrProfileDisabled, userKey)
	}
	return nil
}

func (a *Authority) IssueDocument(ctx context.Context, content json.RawMessage, holderKey string) (*credential.IssuedDocument, error) {
	if err := a.requireActive(ctx); err != nil {
		return nil, err
	}
	return a.Engine.IssueDocument(ctx, content, holderKey)
}

func (a *Authority) CreateShareRequest(ctx context.Context, awardedDocumentID uuid.UUID, verifierKey string) (*credential.ShareRequest, error) {
	if err := a.requireActive(ctx); err != nil {
		return nil, err
	}
	return a.Engine.CreateShareRequest(ctx, awardedDocumentID, verifierKey)
}

func (a *Authority) Award(ctx context.Context, issuedDocumentID uuid.UUID) (*credential.IssuedDocument, error) {
	if err := a.requireActive(ctx); err != nil {
		return nil, err
	}
	return a.Engine.Award(ctx, issuedDocumentID)
}

func (a *Authority) Request(ctx context.Context, shareRequestID uuid.UUID) (*credential.ShareRequest, error) {
	if err := a.requireActive(ctx); err != nil {
		return nil, err
	}
	return a.Engine.Request(ctx, shareRequestID)
}

func (a *Authority) Proof(ctx context.Context, proofRequestID uuid.UUID) (*credential.ProofShareRequest, error) {
	if err := a.requireActive(ctx); err != nil {
		return nil, err
	}
	return a.Engine.Proof(ctx, proofRequestID)
}

func (a *Authority) Acknowledge(ctx context.Context, receivedProofID uuid.UUID, document []byte) (*credential.ReceivedProof, error) {
	if err := a.requireActive(ctx); err != nil {
		return nil, err
	}
	return a.Engine.Acknowledge(ctx, receivedProofID, document)
}
