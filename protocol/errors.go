package protocol

import (
	"fmt"

	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/credential"
)

// DeliveryError is returned alongside a confirmed record when the counterpart
// could not be notified; the message is held in the outbox for redelivery
type DeliveryError struct {
	Kind            credential.MessageKind
	RecipientKey    string
	OutboxMessageID *uuid.UUID
	Err             error
}

func (e *DeliveryError) Error() string {
	outboxID := "none"
	if e.OutboxMessageID != nil {
		outboxID = e.OutboxMessageID.String()
	}
	return fmt.Sprintf("%s: failed to deliver %s message to %s; outbox message: %s; %s",
		credential.ErrMessagingDelivery.Error(), e.Kind, e.RecipientKey, outboxID, e.Err.Error())
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is reports delivery errors as credential.ErrMessagingDelivery regardless of the cause
func (e *DeliveryError) Is(target error) bool {
	return target == credential.ErrMessagingDelivery
}
