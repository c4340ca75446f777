package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/ledger"
	"github.com/provideplatform/attestation/messaging"
	"github.com/provideplatform/attestation/store"
	"github.com/provideplatform/attestation/zkp/providers"
)

// Config wires the engine to its collaborators
type Config struct {
	Store     store.RecordStore
	Ledger    ledger.Client
	Messaging messaging.Client
	Crypto    providers.CryptoProvider
	Outbox    messaging.Outbox
	Observer  Observer

	// User is the local party on whose behalf artifacts are constructed
	User *credential.User

	// MinConfirmations is the confirmation depth required of every anchored artifact
	MinConfirmations uint64
}

// Engine drives the award, request, proof and acknowledge phases of the
// credential exchange; all state lives in the record store
type Engine struct {
	store            store.RecordStore
	ledger           ledger.Client
	messaging        messaging.Client
	crypto           providers.CryptoProvider
	outbox           messaging.Outbox
	observer         Observer
	user             *credential.User
	minConfirmations uint64
}

// NewEngine returns an engine for the given configuration
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine configuration required")
	}
	if cfg.Store == nil || cfg.Ledger == nil || cfg.Messaging == nil || cfg.Crypto == nil {
		return nil, errors.New("engine requires a record store, ledger, messaging and crypto provider")
	}
	if cfg.User == nil || cfg.User.Key == "" || len(cfg.User.PrivateKey) == 0 {
		return nil, errors.New("engine requires a user with key material")
	}

	outbox := cfg.Outbox
	if outbox == nil {
		outbox = messaging.NewMemoryOutbox()
	}

	observer := cfg.Observer
	if observer == nil {
		observer = LogObserver{}
	}

	return &Engine{
		store:            cfg.Store,
		ledger:           cfg.Ledger,
		messaging:        cfg.Messaging,
		crypto:           cfg.Crypto,
		outbox:           outbox,
		observer:         observer,
		user:             cfg.User,
		minConfirmations: cfg.MinConfirmations,
	}, nil
}

// User returns the local party
func (e *Engine) User() *credential.User {
	return e.user
}

// GenerateKeys returns a new key pair for onboarding a party
func (e *Engine) GenerateKeys() (credential.Key, credential.Key, error) {
	return e.crypto.GenerateKeys()
}

// Award commits to the issued document, anchors the award signature and, once
// confirmed, sends the document to its holder
func (e *Engine) Award(ctx context.Context, issuedDocumentID uuid.UUID) (*credential.IssuedDocument, error) {
	rec, err := store.GetByID(ctx, e.store, credential.KindIssuedDocument, issuedDocumentID)
	if err != nil {
		return nil, err
	}
	issued := rec.(*credential.IssuedDocument)

	if err := resumable(issued, issued.Status); err != nil || issued.Status == credential.StatusConfirmed {
		return issued, err
	}

	rec, err = store.GetByID(ctx, e.store, credential.KindDocument, *issued.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document %s for issued document %s; %w", issued.DocumentID, issued.ID, err)
	}
	doc := rec.(*credential.Document)

	err = doc.Verify()
	if err != nil {
		return nil, err
	}

	if issued.AwardSignature == nil {
		award, err := e.crypto.ComputeAward(doc.Content, e.user.PrivateKey)
		if err != nil {
			return nil, cryptoError("award", issued.ID, err)
		}

		issued.Commitment = common.StringOrNil(award.Commitment)
		issued.Randomness = common.StringOrNil(award.Randomness)
		issued.AwardSignature = common.StringOrNil(award.AwardSignature)
		err = e.transition(ctx, PhaseAward, issued, &issued.Status, credential.StatusPending, issued.LedgerRef)
		if err != nil {
			return nil, err
		}
	} else {
		common.Log.Debugf("resuming award of issued document %s", issued.ID)
	}

	tx, err := e.anchor(ctx, issued, *issued.AwardSignature, &issued.LedgerRef)
	if err != nil {
		return issued, err
	}

	err = e.transition(ctx, PhaseAward, issued, &issued.Status, tx.Status, issued.LedgerRef)
	if err != nil {
		return nil, err
	}

	if !tx.Confirmed() {
		return issued, nil
	}

	msg := credential.NewAwardMessage(e.user.Key, &credential.AwardPayload{
		IssuedDocumentID: issued.ID,
		IssuerKey:        common.StringOrNil(e.user.Key),
		Content:          doc.Content,
		ContentID:        doc.ContentID,
		LedgerRef:        issued.LedgerRef,
		Commitment:       issued.Commitment,
	})
	return issued, e.deliver(ctx, *issued.HolderKey, msg)
}

// Request signs a disclosure request for an awarded document, anchors it and,
// once confirmed, sends it to the issuer
func (e *Engine) Request(ctx context.Context, shareRequestID uuid.UUID) (*credential.ShareRequest, error) {
	rec, err := store.GetByID(ctx, e.store, credential.KindShareRequest, shareRequestID)
	if err != nil {
		return nil, err
	}
	req := rec.(*credential.ShareRequest)

	if err := resumable(req, req.Status); err != nil || req.Status == credential.StatusConfirmed {
		return req, err
	}

	rec, err = store.GetByID(ctx, e.store, credential.KindAwardedDocument, *req.AwardedDocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve awarded document %s for share request %s; %w", req.AwardedDocumentID, req.ID, err)
	}
	awarded := rec.(*credential.AwardedDocument)

	sAwd, err := e.retrieveArtifact(ctx, "award", *awarded.LedgerRef)
	if err != nil {
		return nil, err
	}

	issuer, err := e.messaging.GetEntity(ctx, *req.IssuerKey)
	if err != nil {
		return nil, err
	}

	verifier, err := e.messaging.GetEntity(ctx, *req.VerifierKey)
	if err != nil {
		return nil, err
	}

	if req.RequestSignature == nil {
		sReq, err := e.crypto.ComputeRequest(sAwd, *awarded.Commitment, verifier.PublicKey, e.user.PrivateKey)
		if err != nil {
			return nil, cryptoError("request", req.ID, err)
		}

		req.RequestSignature = sReq
		err = e.transition(ctx, PhaseRequest, req, &req.Status, credential.StatusPending, req.LedgerRef)
		if err != nil {
			return nil, err
		}
	} else {
		common.Log.Debugf("resuming share request %s", req.ID)
	}

	tx, err := e.anchor(ctx, req, *req.RequestSignature, &req.LedgerRef)
	if err != nil {
		return req, err
	}

	err = e.transition(ctx, PhaseRequest, req, &req.Status, tx.Status, req.LedgerRef)
	if err != nil {
		return nil, err
	}

	if !tx.Confirmed() {
		return req, nil
	}

	msg := credential.NewRequestMessage(e.user.Key, &credential.RequestPayload{
		IssuedDocumentID: *awarded.IssuedDocumentID,
		RequestLedgerRef: req.LedgerRef,
		AwardSignature:   common.StringOrNil(sAwd),
		HolderKey:        common.StringOrNil(e.user.Key),
		VerifierKey:      verifier.Key,
		IssuerKey:        issuer.Key,
	})
	return req, e.deliver(ctx, *issuer.Key, msg)
}

// Proof proves the issued document's commitment opening to the requesting
// verifier, anchors the proof signature and, once confirmed, relays the proof
func (e *Engine) Proof(ctx context.Context, proofRequestID uuid.UUID) (*credential.ProofShareRequest, error) {
	rec, err := store.GetByID(ctx, e.store, credential.KindProofShareRequest, proofRequestID)
	if err != nil {
		return nil, err
	}
	req := rec.(*credential.ProofShareRequest)

	if err := resumable(req, req.Status); err != nil || req.Status == credential.StatusConfirmed {
		return req, err
	}

	rec, err = store.GetByID(ctx, e.store, credential.KindIssuedDocument, *req.IssuedDocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve issued document %s for proof request %s; %w", req.IssuedDocumentID, req.ID, err)
	}
	issued := rec.(*credential.IssuedDocument)

	if issued.Status != credential.StatusConfirmed || issued.Commitment == nil || issued.Randomness == nil || issued.AwardSignature == nil {
		return nil, fmt.Errorf("%w: issued document %s has no confirmed award", credential.ErrNotFound, issued.ID)
	}

	verifier, err := e.messaging.GetEntity(ctx, *req.VerifierKey)
	if err != nil {
		return nil, err
	}

	if req.ProofSignature == nil {
		sReq, err := e.retrieveArtifact(ctx, "request", *req.RequestLedgerRef)
		if err != nil {
			return nil, err
		}

		proof, err := e.crypto.ComputeProof(sReq, *issued.Randomness, *issued.Commitment, *issued.AwardSignature, verifier.PublicKey, e.user.PrivateKey)
		if err != nil {
			return nil, cryptoError("proof", req.ID, err)
		}

		req.ProofSignature = common.StringOrNil(proof.ProofSignature)
		req.Proof = proof.Proof
		err = e.transition(ctx, PhaseProof, req, &req.Status, credential.StatusPending, req.LedgerRef)
		if err != nil {
			return nil, err
		}
	} else {
		common.Log.Debugf("resuming proof request %s", req.ID)
	}

	tx, err := e.anchor(ctx, req, *req.ProofSignature, &req.LedgerRef)
	if err != nil {
		return req, err
	}

	// the persisted status is the observed ledger outcome
	err = e.transition(ctx, PhaseProof, req, &req.Status, tx.Status, req.LedgerRef)
	if err != nil {
		return nil, err
	}

	if !tx.Confirmed() {
		return req, nil
	}

	msg := credential.NewProofMessage(e.user.Key, &credential.ProofPayload{
		Proof:            req.Proof,
		LedgerRef:        req.LedgerRef,
		RequestLedgerRef: req.RequestLedgerRef,
		IssuerKey:        common.StringOrNil(e.user.Key),
		HolderKey:        req.HolderKey,
	})
	return req, e.deliver(ctx, *verifier.Key, msg)
}

// Acknowledge verifies a received proof against the disclosed document, persists
// the outcome, anchors the acknowledgement and, once confirmed, notifies the issuer
func (e *Engine) Acknowledge(ctx context.Context, receivedProofID uuid.UUID, document []byte) (*credential.ReceivedProof, error) {
	rec, err := store.GetByID(ctx, e.store, credential.KindReceivedProof, receivedProofID)
	if err != nil {
		return nil, err
	}
	received := rec.(*credential.ReceivedProof)

	if received.AckLedgerStatus != nil && received.AckLedgerStatus.IsTerminal() {
		return received, nil
	}

	if received.AckSignature == nil {
		sPrf, err := e.retrieveArtifact(ctx, "proof", *received.ProofLedgerRef)
		if err != nil {
			return nil, err
		}

		sReq, err := e.retrieveArtifact(ctx, "request", *received.RequestLedgerRef)
		if err != nil {
			return nil, err
		}

		issuer, err := e.messaging.GetEntity(ctx, *received.IssuerKey)
		if err != nil {
			return nil, err
		}

		ack, err := e.crypto.ComputeAck(document, sPrf, received.Proof, sReq, issuer.PublicKey, e.user.PrivateKey)
		if err != nil {
			return nil, cryptoError("acknowledge", received.ID, err)
		}

		received.AckSignature = common.StringOrNil(ack.AckSignature)
		err = e.transition(ctx, PhaseAcknowledge, received, &received.Status, ack.Status, nil)
		if err != nil {
			return nil, err
		}
	} else {
		common.Log.Debugf("resuming acknowledgement of received proof %s", received.ID)
	}

	tx, err := e.anchor(ctx, received, *received.AckSignature, &received.AckLedgerRef)
	if err != nil {
		return received, err
	}

	ackLedgerStatus := tx.Status
	received.AckLedgerStatus = &ackLedgerStatus
	err = e.store.Update(ctx, received)
	if err != nil {
		return nil, err
	}

	if !tx.Confirmed() {
		return received, nil
	}

	msg := credential.NewAckMessage(e.user.Key, &credential.AckPayload{
		ProofLedgerRef: received.ProofLedgerRef,
		AckLedgerRef:   received.AckLedgerRef,
		AckSignature:   received.AckSignature,
		Status:         received.Status,
		VerifierKey:    common.StringOrNil(e.user.Key),
	})
	return received, e.deliver(ctx, *received.IssuerKey, msg)
}

// resumable returns ErrAttemptFrozen when the record failed
func resumable(record credential.Record, status credential.Status) error {
	if status == credential.StatusFail {
		return fmt.Errorf("%w: %s %s failed; a new attempt requires a new record", credential.ErrAttemptFrozen, record.Kind(), record.RecordID())
	}
	return nil
}

// transition persists the record with the given status and notifies the observer
func (e *Engine) transition(ctx context.Context, phase Phase, record credential.Record, status *credential.Status, next credential.Status, ledgerRef *string) error {
	*status = next

	err := e.store.Update(ctx, record)
	if err != nil {
		return err
	}

	e.observer.Observe(ctx, &Event{
		RecordID:  record.RecordID(),
		Kind:      record.Kind(),
		Phase:     phase,
		Status:    next,
		LedgerRef: ledgerRef,
		Timestamp: time.Now(),
	})
	return nil
}

// anchor publishes the artifact unless the record already holds a ledger
// reference, persists the reference and blocks until a terminal status
func (e *Engine) anchor(ctx context.Context, record credential.Record, artifact string, ledgerRef **string) (*ledger.Transaction, error) {
	if *ledgerRef == nil {
		txHash, err := e.ledger.Publish(ctx, []byte(artifact))
		if err != nil {
			if !errors.Is(err, credential.ErrLedgerPublish) {
				err = fmt.Errorf("%w: %s", credential.ErrLedgerPublish, err.Error())
			}
			return nil, err
		}

		*ledgerRef = txHash
		err = e.store.Update(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("failed to persist ledger reference %s for %s %s; %w", *txHash, record.Kind(), record.RecordID(), err)
		}
		common.Log.Debugf("anchored artifact for %s %s in tx %s", record.Kind(), record.RecordID(), *txHash)
	}

	tx, err := e.ledger.GetTransactionSync(ctx, **ledgerRef, e.minConfirmations)
	if err != nil {
		return nil, err
	}

	return tx, nil
}

// retrieveArtifact replays a confirmed transaction to recover the artifact it anchored
func (e *Engine) retrieveArtifact(ctx context.Context, name, ledgerRef string) (string, error) {
	tx, err := e.ledger.GetTransactionSync(ctx, ledgerRef, e.minConfirmations)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve %s artifact from tx %s; %w", name, ledgerRef, err)
	}

	if !tx.Confirmed() || len(tx.Data) == 0 {
		return "", fmt.Errorf("%w: %s artifact unavailable; tx %s is %s", credential.ErrNotFound, name, ledgerRef, tx.Status)
	}

	return string(tx.Data), nil
}

// deliver sends the message; a failure leaves the message in the outbox
func (e *Engine) deliver(ctx context.Context, recipientKey string, msg *credential.Message) error {
	err := e.messaging.SendMessage(ctx, recipientKey, msg)
	if err == nil {
		return nil
	}

	common.Log.Warningf("failed to deliver %s message to %s; %s", msg.Kind, recipientKey, err.Error())
	deliveryErr := &DeliveryError{
		Kind:         msg.Kind,
		RecipientKey: recipientKey,
		Err:          err,
	}

	outboxID, outboxErr := e.outbox.Enqueue(ctx, recipientKey, msg, err)
	if outboxErr != nil {
		common.Log.Warningf("failed to enqueue %s message for %s in outbox; %s", msg.Kind, recipientKey, outboxErr.Error())
	}
	deliveryErr.OutboxMessageID = outboxID

	return deliveryErr
}

func cryptoError(phase string, id uuid.UUID, err error) error {
	if errors.Is(err, credential.ErrCryptoComputation) {
		return err
	}
	return fmt.Errorf("%w: failed to compute %s artifact for %s; %s", credential.ErrCryptoComputation, phase, id, err.Error())
}
