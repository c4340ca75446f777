package credential

import (
	"encoding/json"
	"fmt"

	uuid "github.com/kthomas/go.uuid"
)

// MessageKind identifies the payload carried by a Message
type MessageKind string

const (
	MessageKindAward   MessageKind = "award"
	MessageKindRequest MessageKind = "request"
	MessageKindProof   MessageKind = "proof"
	MessageKindAck     MessageKind = "ack"
)

// Message is the envelope exchanged between parties; exactly one payload
// matching Kind is set
type Message struct {
	Kind   MessageKind `json:"kind" validate:"required,oneof=award request proof ack"`
	Sender *string     `json:"sender" validate:"required"`

	Award   *AwardPayload   `json:"award,omitempty"`
	Request *RequestPayload `json:"request,omitempty"`
	Proof   *ProofPayload   `json:"proof,omitempty"`
	Ack     *AckPayload     `json:"ack,omitempty"`
}

// AwardPayload is sent by the issuer to the holder once the award is confirmed
type AwardPayload struct {
	IssuedDocumentID uuid.UUID       `json:"issued_document_id" validate:"required"`
	IssuerKey        *string         `json:"issuer_key" validate:"required"`
	Content          json.RawMessage `json:"content"`
	ContentID        *string         `json:"content_id"`
	LedgerRef        *string         `json:"t_awd" validate:"required"`
	Commitment       *string         `json:"c" validate:"required"`
}

// RequestPayload is sent by the holder to the issuer once the share request is confirmed
type RequestPayload struct {
	IssuedDocumentID uuid.UUID `json:"issued_document_id" validate:"required"`
	RequestLedgerRef *string   `json:"t_req" validate:"required"`
	AwardSignature   *string   `json:"s_awd"`
	HolderKey        *string   `json:"holder_key" validate:"required"`
	VerifierKey      *string   `json:"verifier_key" validate:"required"`
	IssuerKey        *string   `json:"issuer_key" validate:"required"`
}

// ProofPayload is sent by the issuer to the verifier once the proof is anchored
type ProofPayload struct {
	Proof            json.RawMessage `json:"proof" validate:"required"`
	LedgerRef        *string         `json:"t_prf" validate:"required"`
	RequestLedgerRef *string         `json:"t_req" validate:"required"`
	IssuerKey        *string         `json:"issuer_key" validate:"required"`
	HolderKey        *string         `json:"holder_key"`
}

// AckPayload is sent by the verifier to the issuer once the proof is checked
type AckPayload struct {
	ProofLedgerRef *string `json:"t_prf" validate:"required"`
	AckLedgerRef   *string `json:"t_ack"`
	AckSignature   *string `json:"s_ack" validate:"required"`
	Status         Status  `json:"status" validate:"required,oneof=success fail"`
	VerifierKey    *string `json:"verifier_key" validate:"required"`
}

// NewAwardMessage returns an award message
func NewAwardMessage(sender string, payload *AwardPayload) *Message {
	return &Message{Kind: MessageKindAward, Sender: &sender, Award: payload}
}

// NewRequestMessage returns a request message
func NewRequestMessage(sender string, payload *RequestPayload) *Message {
	return &Message{Kind: MessageKindRequest, Sender: &sender, Request: payload}
}

// NewProofMessage returns a proof message
func NewProofMessage(sender string, payload *ProofPayload) *Message {
	return &Message{Kind: MessageKindProof, Sender: &sender, Proof: payload}
}

// NewAckMessage returns an acknowledgement message
func NewAckMessage(sender string, payload *AckPayload) *Message {
	return &Message{Kind: MessageKindAck, Sender: &sender, Ack: payload}
}

// Payload returns the payload matching the message kind
func (m *Message) Payload() interface{} {
	switch m.Kind {
	case MessageKindAward:
		return m.Award
	case MessageKindRequest:
		return m.Request
	case MessageKindProof:
		return m.Proof
	case MessageKindAck:
		return m.Ack
	}
	return nil
}

// Validate returns ErrSchema if the message is malformed
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrSchema)
	}

	err := validate.Struct(m)
	if err != nil {
		return fmt.Errorf("%w: invalid message; %s", ErrSchema, err.Error())
	}

	payloads := 0
	for _, set := range []bool{m.Award != nil, m.Request != nil, m.Proof != nil, m.Ack != nil} {
		if set {
			payloads++
		}
	}
	if payloads != 1 {
		return fmt.Errorf("%w: %s message must carry exactly one payload; found %d", ErrSchema, m.Kind, payloads)
	}

	switch m.Kind {
	case MessageKindAward:
		if m.Award == nil {
			return fmt.Errorf("%w: award message missing award payload", ErrSchema)
		}
	case MessageKindRequest:
		if m.Request == nil {
			return fmt.Errorf("%w: request message missing request payload", ErrSchema)
		}
	case MessageKindProof:
		if m.Proof == nil {
			return fmt.Errorf("%w: proof message missing proof payload", ErrSchema)
		}
	case MessageKindAck:
		if m.Ack == nil {
			return fmt.Errorf("%w: ack message missing ack payload", ErrSchema)
		}
	}

	return nil
}

// UnmarshalMessage parses and validates a raw message
func UnmarshalMessage(raw []byte) (*Message, error) {
	msg := &Message{}
	err := json.Unmarshal(raw, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal message; %s", ErrSchema, err.Error())
	}

	err = msg.Validate()
	if err != nil {
		return nil, err
	}

	return msg, nil
}
