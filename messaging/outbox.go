package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/gorm"
	dbconf "github.com/kthomas/go-db-config"
	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	provide "github.com/provideplatform/provide-go/api"
)

const natsOutboxPendingSubject = "attestation.outbox.pending"
const outboxSweepBatchSize = 100

// OutboxMessage is a message whose delivery failed after its phase was confirmed
type OutboxMessage struct {
	provide.Model

	RecipientKey *string                `sql:"not null" json:"recipient_key"`
	Kind         credential.MessageKind `sql:"not null" json:"kind"`
	Payload      json.RawMessage        `sql:"type:json;not null" json:"payload"`
	Attempts     int                    `sql:"not null;default:0" json:"attempts"`
	LastError    *string                `json:"last_error"`
	DeliveredAt  *time.Time             `json:"delivered_at"`
}

// Message returns the undelivered message
func (m *OutboxMessage) Message() (*credential.Message, error) {
	return credential.UnmarshalMessage(m.Payload)
}

// Outbox holds undelivered messages for later redelivery
type Outbox interface {
	// Enqueue records the message and the delivery failure; the outbox id is returned
	Enqueue(ctx context.Context, recipientKey string, msg *credential.Message, cause error) (*uuid.UUID, error)

	// Redeliver attempts delivery of the identified message using the given client
	Redeliver(ctx context.Context, id uuid.UUID, client Client) error

	// Sweep attempts redelivery of undelivered messages and returns the number delivered
	Sweep(ctx context.Context, client Client) (int, error)
}

// sweep redelivers each of the given outbox messages until ctx is done
func sweep(ctx context.Context, outbox Outbox, ids []uuid.UUID, client Client) (int, error) {
	delivered := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		err := outbox.Redeliver(ctx, id, client)
		if err != nil {
			common.Log.Debugf("outbox message %s remains undelivered; %s", id, err.Error())
			continue
		}
		delivered++
	}

	if delivered > 0 {
		common.Log.Debugf("swept %d of %d undelivered outbox message(s)", delivered, len(ids))
	}
	return delivered, nil
}

func newOutboxMessage(recipientKey string, msg *credential.Message, cause error) (*OutboxMessage, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message for outbox; %s", msg.Kind, err.Error())
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate outbox message id; %s", err.Error())
	}

	outboxMsg := &OutboxMessage{
		RecipientKey: common.StringOrNil(recipientKey),
		Kind:         msg.Kind,
		Payload:      payload,
		Attempts:     1,
	}
	outboxMsg.ID = id
	if cause != nil {
		outboxMsg.LastError = common.StringOrNil(cause.Error())
	}

	return outboxMsg, nil
}

// deliver attempts delivery and records the outcome on the outbox message
func (m *OutboxMessage) deliver(ctx context.Context, client Client) error {
	if m.DeliveredAt != nil {
		return nil
	}

	msg, err := m.Message()
	if err != nil {
		return err
	}

	m.Attempts++
	err = client.SendMessage(ctx, *m.RecipientKey, msg)
	if err != nil {
		m.LastError = common.StringOrNil(err.Error())
		return err
	}

	now := time.Now()
	m.DeliveredAt = &now
	m.LastError = nil
	return nil
}

// DatabaseOutbox persists undelivered messages and schedules their redelivery
// through the outbox jetstream subject
type DatabaseOutbox struct {
	db      *gorm.DB
	publish PublishFunc
}

// NewDatabaseOutbox initializes an outbox on the shared database connection; a nil
// publish func uses the shared jetstream connection
func NewDatabaseOutbox(publish PublishFunc) *DatabaseOutbox {
	if publish == nil {
		publish = NatsJetstreamPublish
	}

	return &DatabaseOutbox{
		db:      dbconf.DatabaseConnection(),
		publish: publish,
	}
}

// Enqueue implements Outbox
func (o *DatabaseOutbox) Enqueue(ctx context.Context, recipientKey string, msg *credential.Message, cause error) (*uuid.UUID, error) {
	outboxMsg, err := newOutboxMessage(recipientKey, msg, cause)
	if err != nil {
		return nil, err
	}

	result := o.db.Create(outboxMsg)
	if errs := result.GetErrors(); len(errs) > 0 {
		return nil, fmt.Errorf("failed to persist outbox message for %s; %s", recipientKey, errs[0].Error())
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"outbox_message_id": outboxMsg.ID.String(),
	})
	err = o.publish(natsOutboxPendingSubject, payload)
	if err != nil {
		common.Log.Warningf("failed to schedule redelivery of outbox message %s; %s", outboxMsg.ID, err.Error())
	}

	common.Log.Debugf("enqueued %s message for %s in outbox: %s", msg.Kind, recipientKey, outboxMsg.ID)
	return &outboxMsg.ID, nil
}

// Redeliver implements Outbox
func (o *DatabaseOutbox) Redeliver(ctx context.Context, id uuid.UUID, client Client) error {
	outboxMsg := &OutboxMessage{}
	db := o.db.Where("id = ?", id).First(outboxMsg)
	if db.RecordNotFound() {
		return fmt.Errorf("%w: outbox message %s", credential.ErrNotFound, id)
	}

	deliveryErr := outboxMsg.deliver(ctx, client)

	result := o.db.Save(outboxMsg)
	if errs := result.GetErrors(); len(errs) > 0 {
		common.Log.Warningf("failed to update outbox message %s; %s", id, errs[0].Error())
	}

	return deliveryErr
}

// Sweep implements Outbox
func (o *DatabaseOutbox) Sweep(ctx context.Context, client Client) (int, error) {
	var ids []uuid.UUID
	result := o.db.Model(&OutboxMessage{}).
		Where("delivered_at IS NULL").
		Order("created_at ASC").
		Limit(outboxSweepBatchSize).
		Pluck("id", &ids)
	if errs := result.GetErrors(); len(errs) > 0 {
		return 0, fmt.Errorf("failed to query undelivered outbox messages; %s", errs[0].Error())
	}

	return sweep(ctx, o, ids, client)
}

// MemoryOutbox is an in-process Outbox
type MemoryOutbox struct {
	mutex    sync.Mutex
	messages map[uuid.UUID]*OutboxMessage
}

// NewMemoryOutbox initializes an empty in-memory outbox
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{
		messages: map[uuid.UUID]*OutboxMessage{},
	}
}

// Enqueue implements Outbox
func (o *MemoryOutbox) Enqueue(ctx context.Context, recipientKey string, msg *credential.Message, cause error) (*uuid.UUID, error) {
	outboxMsg, err := newOutboxMessage(recipientKey, msg, cause)
	if err != nil {
		return nil, err
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.messages[outboxMsg.ID] = outboxMsg

	return &outboxMsg.ID, nil
}

// Redeliver implements Outbox
func (o *MemoryOutbox) Redeliver(ctx context.Context, id uuid.UUID, client Client) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	outboxMsg, ok := o.messages[id]
	if !ok {
		return fmt.Errorf("%w: outbox message %s", credential.ErrNotFound, id)
	}

	return outboxMsg.deliver(ctx, client)
}

// Sweep implements Outbox
func (o *MemoryOutbox) Sweep(ctx context.Context, client Client) (int, error) {
	return sweep(ctx, o, o.Pending(), client)
}

// Get returns a copy of the identified outbox message
func (o *MemoryOutbox) Get(id uuid.UUID) (*OutboxMessage, bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	outboxMsg, ok := o.messages[id]
	if !ok {
		return nil, false
	}
	cpy := *outboxMsg
	return &cpy, true
}

// Pending returns the ids of undelivered messages
func (o *MemoryOutbox) Pending() []uuid.UUID {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	ids := make([]uuid.UUID, 0)
	for id, outboxMsg := range o.messages {
		if outboxMsg.DeliveredAt == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
