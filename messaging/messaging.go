package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	natsutil "github.com/kthomas/go-natsutil"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/store"
)

const defaultNatsStream = "attestation"

const natsInboxSubjectPrefix = "attestation.inbox"

const defaultDeliveryMaxRetries = 3

// Client resolves party identities and delivers messages between parties
type Client interface {
	// SendMessage delivers the message to the party identified by recipientKey;
	// failures wrap credential.ErrMessagingDelivery
	SendMessage(ctx context.Context, recipientKey string, msg *credential.Message) error

	// GetEntity resolves a party by key
	GetEntity(ctx context.Context, key string) (*credential.Entity, error)
}

// PublishFunc publishes a raw payload to a subject
type PublishFunc func(subject string, payload []byte) error

// NatsClient delivers messages to per-party inbox subjects on the shared NATS
// jetstream and resolves entities from the record store
type NatsClient struct {
	directory  store.RecordStore
	publish    PublishFunc
	maxRetries uint64
}

// InboxSubject returns the subject on which messages for the given party are delivered
func InboxSubject(key string) string {
	return fmt.Sprintf("%s.%s", natsInboxSubjectPrefix, common.SHA256(key))
}

// NatsJetstreamPublish publishes the payload using the shared jetstream connection
func NatsJetstreamPublish(subject string, payload []byte) error {
	_, err := natsutil.NatsJetstreamPublish(subject, payload)
	return err
}

// NewNatsClient initializes a messaging client; a nil publish func uses the shared jetstream connection
func NewNatsClient(directory store.RecordStore, publish PublishFunc) *NatsClient {
	if publish == nil {
		publish = NatsJetstreamPublish
	}

	return &NatsClient{
		directory:  directory,
		publish:    publish,
		maxRetries: defaultDeliveryMaxRetries,
	}
}

// GetEntity implements Client
func (c *NatsClient) GetEntity(ctx context.Context, key string) (*credential.Entity, error) {
	record, err := c.directory.GetBy(ctx, credential.KindEntity, map[string]interface{}{
		"key": key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entity %s; %w", key, err)
	}

	return record.(*credential.Entity), nil
}

// SendMessage implements Client
func (c *NatsClient) SendMessage(ctx context.Context, recipientKey string, msg *credential.Message) error {
	err := msg.Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", credential.ErrMessagingDelivery, err)
	}

	_, err = c.GetEntity(ctx, recipientKey)
	if err != nil {
		return fmt.Errorf("%w: unresolved recipient; %w", credential.ErrMessagingDelivery, err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal %s message; %s", credential.ErrMessagingDelivery, msg.Kind, err.Error())
	}

	subject := InboxSubject(recipientKey)
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Millisecond * 100
	policy.MaxElapsedTime = time.Second * 10

	err = backoff.Retry(func() error {
		return c.publish(subject, payload)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
	if err != nil {
		return fmt.Errorf("%w: failed to publish %s message to %s; %s", credential.ErrMessagingDelivery, msg.Kind, recipientKey, err.Error())
	}

	common.Log.Debugf("delivered %d-byte %s message to %s on subject: %s", len(payload), msg.Kind, recipientKey, subject)
	return nil
}
