package credential

import (
	"bytes"
	"encoding/json"
	"fmt"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	provide "github.com/provideplatform/provide-go/api"
)

// EntityType is the role of a resolvable party
type EntityType string

const (
	EntityTypeHolder   EntityType = "Holder"
	EntityTypeIssuer   EntityType = "Issuer"
	EntityTypeVerifier EntityType = "Verifier"
)

// Document is the credential content to be attested; immutable once created
type Document struct {
	provide.Model

	IssuerKey *string         `json:"issuer_key"`
	Content   json.RawMessage `sql:"type:bytea;not null" json:"content" validate:"required"`
	ContentID *string         `json:"content_id"`
}

// NewDocument returns a document for the given content with its content identifier set
func NewDocument(issuerKey *string, content json.RawMessage) (*Document, error) {
	if !json.Valid(content) {
		return nil, fmt.Errorf("%w: document content is not valid json", ErrSchema)
	}

	contentID, err := common.ContentIdentifier(content)
	if err != nil {
		return nil, err
	}

	return &Document{
		IssuerKey: issuerKey,
		Content:   content,
		ContentID: contentID,
	}, nil
}

// Verify returns an error if the content no longer matches its content identifier
func (d *Document) Verify() error {
	if d.ContentID == nil {
		return fmt.Errorf("%w: document %s has no content identifier", ErrSchema, d.ID)
	}

	contentID, err := common.ContentIdentifier(d.Content)
	if err != nil {
		return err
	}

	if *contentID != *d.ContentID {
		return fmt.Errorf("%w: document %s content does not match content identifier %s", ErrImmutable, d.ID, *d.ContentID)
	}

	return nil
}

// Equals returns true if the other document has identical content
func (d *Document) Equals(other *Document) bool {
	return other != nil &&
		bytes.Equal(d.Content, other.Content) &&
		common.StringValue(d.ContentID) == common.StringValue(other.ContentID) &&
		common.StringValue(d.IssuerKey) == common.StringValue(other.IssuerKey)
}

// IssuedDocument links a document to its issuer and holder and carries the award artifacts
type IssuedDocument struct {
	provide.Model

	DocumentID *uuid.UUID `sql:"type:uuid;not null" json:"document_id" validate:"required"`
	IssuerKey  *string    `json:"issuer_key"`
	HolderKey  *string    `json:"holder_key" validate:"required"`

	Commitment     *string `gorm:"column:c" json:"c,omitempty"`
	Randomness     *string `gorm:"column:r" json:"r,omitempty"`
	AwardSignature *string `gorm:"column:s_awd" json:"s_awd,omitempty"`
	LedgerRef      *string `gorm:"column:t_awd" json:"t_awd,omitempty"`

	Status Status `sql:"not null;default:'created'" json:"status"`
}

// AwardedDocument is the holder-side view of a confirmed award
type AwardedDocument struct {
	provide.Model

	IssuedDocumentID *uuid.UUID      `sql:"type:uuid;not null" json:"issued_document_id" validate:"required"`
	IssuerKey        *string         `json:"issuer_key" validate:"required"`
	Content          json.RawMessage `sql:"type:bytea" json:"content"`
	ContentID        *string         `json:"content_id"`
	LedgerRef        *string         `gorm:"column:t_awd" json:"t_awd" validate:"required"`
	Commitment       *string         `gorm:"column:c" json:"c" validate:"required"`
}

// ShareRequest is a holder's request to disclose an awarded credential to a verifier
type ShareRequest struct {
	provide.Model

	AwardedDocumentID *uuid.UUID `sql:"type:uuid;not null" json:"awarded_document_id" validate:"required"`
	IssuerKey         *string    `json:"issuer_key" validate:"required"`
	VerifierKey       *string    `json:"verifier_key" validate:"required"`

	RequestSignature *string `gorm:"column:s_req" json:"s_req,omitempty"`
	LedgerRef        *string `gorm:"column:t_req" json:"t_req,omitempty"`

	Status Status `sql:"not null;default:'created'" json:"status"`
}

// ProofShareRequest tracks the issuer-side construction of a disclosure proof
type ProofShareRequest struct {
	provide.Model

	IssuedDocumentID *uuid.UUID `sql:"type:uuid;not null" json:"issued_document_id" validate:"required"`
	HolderKey        *string    `json:"holder_key" validate:"required"`
	VerifierKey      *string    `json:"verifier_key" validate:"required"`
	RequestLedgerRef *string    `gorm:"column:t_req" json:"t_req" validate:"required"`

	ProofSignature *string         `gorm:"column:s_prf" json:"s_prf,omitempty"`
	Proof          json.RawMessage `sql:"type:bytea" json:"proof,omitempty"`
	LedgerRef      *string         `gorm:"column:t_prf" json:"t_prf,omitempty"`

	Status Status `sql:"not null;default:'created'" json:"status"`
}

// ReceivedProof is the verifier-side record of a relayed proof
type ReceivedProof struct {
	provide.Model

	IssuerKey        *string         `json:"issuer_key" validate:"required"`
	HolderKey        *string         `json:"holder_key"`
	Proof            json.RawMessage `sql:"type:bytea" json:"proof" validate:"required"`
	ProofLedgerRef   *string         `gorm:"column:t_prf" json:"t_prf" validate:"required"`
	RequestLedgerRef *string         `gorm:"column:t_req" json:"t_req" validate:"required"`

	AckSignature    *string `gorm:"column:s_ack" json:"s_ack,omitempty"`
	AckLedgerRef    *string `gorm:"column:t_ack" json:"t_ack,omitempty"`
	AckLedgerStatus *Status `json:"ack_ledger_status,omitempty"`

	Status Status `sql:"not null;default:'created'" json:"status"`
}

// Entity is a resolvable party
type Entity struct {
	provide.Model

	Key           *string    `json:"key" validate:"required"`
	Title         *string    `json:"title"`
	PublicKey     Key        `sql:"type:text[]" json:"public_key" validate:"required"`
	WalletAddress *string    `json:"wallet_address"`
	Service       *string    `json:"service"`
	Type          EntityType `sql:"not null" json:"type" validate:"oneof=Holder Issuer Verifier"`
	Contract      *string    `json:"contract"`
}

// Profile is a user profile managed by an authority
type Profile struct {
	provide.Model

	UserKey *string `json:"user_key" validate:"required"`
	Name    *string `json:"name"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Status  *string `sql:"not null;default:'active'" json:"status" validate:"required,oneof=active disabled"`
}

// User is the local actor, holding the private key material used for artifact construction
type User struct {
	Key        string `json:"key"`
	Email      string `json:"email"`
	PrivateKey Key    `json:"-"`
}

// Kind implements Record
func (d *Document) Kind() Kind { return KindDocument }

func (d *Document) RecordID() uuid.UUID { return d.ID }

func (d *Document) SetRecordID(id uuid.UUID) { d.ID = id }

// Kind implements Record
func (d *IssuedDocument) Kind() Kind { return KindIssuedDocument }

func (d *IssuedDocument) RecordID() uuid.UUID { return d.ID }

func (d *IssuedDocument) SetRecordID(id uuid.UUID) { d.ID = id }

// Kind implements Record
func (d *AwardedDocument) Kind() Kind { return KindAwardedDocument }

func (d *AwardedDocument) RecordID() uuid.UUID { return d.ID }

func (d *AwardedDocument) SetRecordID(id uuid.UUID) { d.ID = id }

// Kind implements Record
func (r *ShareRequest) Kind() Kind { return KindShareRequest }

func (r *ShareRequest) RecordID() uuid.UUID { return r.ID }

func (r *ShareRequest) SetRecordID(id uuid.UUID) { r.ID = id }

// Kind implements Record
func (r *ProofShareRequest) Kind() Kind { return KindProofShareRequest }

func (r *ProofShareRequest) RecordID() uuid.UUID { return r.ID }

func (r *ProofShareRequest) SetRecordID(id uuid.UUID) { r.ID = id }

// Kind implements Record
func (p *ReceivedProof) Kind() Kind { return KindReceivedProof }

func (p *ReceivedProof) RecordID() uuid.UUID { return p.ID }

func (p *ReceivedProof) SetRecordID(id uuid.UUID) { p.ID = id }

// Kind implements Record
func (e *Entity) Kind() Kind { return KindEntity }

func (e *Entity) RecordID() uuid.UUID { return e.ID }

func (e *Entity) SetRecordID(id uuid.UUID) { e.ID = id }

// Kind implements Record
func (p *Profile) Kind() Kind { return KindProfile }

func (p *Profile) RecordID() uuid.UUID { return p.ID }

func (p *Profile) SetRecordID(id uuid.UUID) { p.ID = id }

// LifecycleStatus implements Tracked
func (d *IssuedDocument) LifecycleStatus() Status { return d.Status }

// WriteOnce implements Tracked; the commitment triple and ledger reference are set exactly once
func (d *IssuedDocument) WriteOnce() map[string]*string {
	return map[string]*string{
		"c":     d.Commitment,
		"r":     d.Randomness,
		"s_awd": d.AwardSignature,
		"t_awd": d.LedgerRef,
	}
}

// LifecycleStatus implements Tracked
func (r *ShareRequest) LifecycleStatus() Status { return r.Status }

// WriteOnce implements Tracked
func (r *ShareRequest) WriteOnce() map[string]*string {
	return map[string]*string{
		"s_req": r.RequestSignature,
		"t_req": r.LedgerRef,
	}
}

// LifecycleStatus implements Tracked
func (r *ProofShareRequest) LifecycleStatus() Status { return r.Status }

// WriteOnce implements Tracked
func (r *ProofShareRequest) WriteOnce() map[string]*string {
	return map[string]*string{
		"s_prf": r.ProofSignature,
		"t_prf": r.LedgerRef,
	}
}

// LifecycleStatus implements Tracked
func (p *ReceivedProof) LifecycleStatus() Status { return p.Status }

// WriteOnce implements Tracked
func (p *ReceivedProof) WriteOnce() map[string]*string {
	return map[string]*string{
		"s_ack": p.AckSignature,
		"t_ack": p.AckLedgerRef,
	}
}
