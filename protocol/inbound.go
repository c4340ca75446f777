package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/store"
)

// Receive converts an inbound message into the record the local party acts on
// next; acknowledgements are observed but produce no record
func (e *Engine) Receive(ctx context.Context, msg *credential.Message) (credential.Record, error) {
	err := msg.Validate()
	if err != nil {
		return nil, err
	}

	var record credential.Record

	switch msg.Kind {
	case credential.MessageKindAward:
		record, err = e.receiveAward(ctx, msg.Award)
	case credential.MessageKindRequest:
		record, err = e.receiveRequest(ctx, msg.Request)
	case credential.MessageKindProof:
		record, err = e.receiveProof(ctx, msg.Proof)
	case credential.MessageKindAck:
		e.observer.Observe(ctx, &Event{
			Kind:      credential.KindReceivedProof,
			Phase:     PhaseAcknowledge,
			Status:    msg.Ack.Status,
			LedgerRef: msg.Ack.AckLedgerRef,
			Timestamp: time.Now(),
		})
		common.Log.Debugf("received %s acknowledgement of proof tx %s from %s", msg.Ack.Status, *msg.Ack.ProofLedgerRef, *msg.Ack.VerifierKey)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.observer.Observe(ctx, &Event{
		RecordID:  record.RecordID(),
		Kind:      record.Kind(),
		Phase:     PhaseReceive,
		Status:    credential.StatusCreated,
		Timestamp: time.Now(),
	})
	common.Log.Debugf("received %s message from %s; created %s %s", msg.Kind, *msg.Sender, record.Kind(), record.RecordID())
	return record, nil
}

func (e *Engine) receiveAward(ctx context.Context, payload *credential.AwardPayload) (*credential.AwardedDocument, error) {
	if payload.ContentID != nil {
		doc := &credential.Document{Content: payload.Content, ContentID: payload.ContentID}
		err := doc.Verify()
		if err != nil {
			return nil, err
		}
	}

	issuedDocumentID := payload.IssuedDocumentID
	awarded := &credential.AwardedDocument{
		IssuedDocumentID: &issuedDocumentID,
		IssuerKey:        payload.IssuerKey,
		Content:          payload.Content,
		ContentID:        payload.ContentID,
		LedgerRef:        payload.LedgerRef,
		Commitment:       payload.Commitment,
	}

	err := e.store.Create(ctx, awarded)
	if err != nil {
		return nil, err
	}
	return awarded, nil
}

func (e *Engine) receiveRequest(ctx context.Context, payload *credential.RequestPayload) (*credential.ProofShareRequest, error) {
	rec, err := store.GetByID(ctx, e.store, credential.KindIssuedDocument, payload.IssuedDocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve issued document %s for inbound request; %w", payload.IssuedDocumentID, err)
	}
	issued := rec.(*credential.IssuedDocument)

	if common.StringValue(issued.HolderKey) != *payload.HolderKey {
		return nil, fmt.Errorf("%w: issued document %s was not awarded to %s", credential.ErrSchema, issued.ID, *payload.HolderKey)
	}

	issuedDocumentID := payload.IssuedDocumentID
	req := &credential.ProofShareRequest{
		IssuedDocumentID: &issuedDocumentID,
		HolderKey:        payload.HolderKey,
		VerifierKey:      payload.VerifierKey,
		RequestLedgerRef: payload.RequestLedgerRef,
		Status:           credential.StatusCreated,
	}

	err = e.store.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (e *Engine) receiveProof(ctx context.Context, payload *credential.ProofPayload) (*credential.ReceivedProof, error) {
	received := &credential.ReceivedProof{
		IssuerKey:        payload.IssuerKey,
		HolderKey:        payload.HolderKey,
		Proof:            payload.Proof,
		ProofLedgerRef:   payload.LedgerRef,
		RequestLedgerRef: payload.RequestLedgerRef,
		Status:           credential.StatusCreated,
	}

	err := e.store.Create(ctx, received)
	if err != nil {
		return nil, err
	}
	return received, nil
}

// IssueDocument creates a document and the issued document naming its holder
func (e *Engine) IssueDocument(ctx context.Context, content json.RawMessage, holderKey string) (*credential.IssuedDocument, error) {
	doc, err := credential.NewDocument(common.StringOrNil(e.user.Key), content)
	if err != nil {
		return nil, err
	}

	err = e.store.Create(ctx, doc)
	if err != nil {
		return nil, err
	}

	issued := &credential.IssuedDocument{
		DocumentID: &doc.ID,
		IssuerKey:  common.StringOrNil(e.user.Key),
		HolderKey:  common.StringOrNil(holderKey),
		Status:     credential.StatusCreated,
	}

	err = e.store.Create(ctx, issued)
	if err != nil {
		return nil, err
	}

	common.Log.Debugf("issued document %s to %s; issued document: %s", doc.ID, holderKey, issued.ID)
	return issued, nil
}

// CreateShareRequest creates a request to disclose the awarded document to the verifier
func (e *Engine) CreateShareRequest(ctx context.Context, awardedDocumentID uuid.UUID, verifierKey string) (*credential.ShareRequest, error) {
	rec, err := store.GetByID(ctx, e.store, credential.KindAwardedDocument, awardedDocumentID)
	if err != nil {
		return nil, err
	}
	awarded := rec.(*credential.AwardedDocument)

	req := &credential.ShareRequest{
		AwardedDocumentID: &awarded.ID,
		IssuerKey:         awarded.IssuerKey,
		VerifierKey:       common.StringOrNil(verifierKey),
		Status:            credential.StatusCreated,
	}

	err = e.store.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return req, nil
}
