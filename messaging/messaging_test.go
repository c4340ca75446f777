package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	uuid "github.com/kthomas/go.uuid"
	"github.com/nats-io/nats.go"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/store"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mutex    sync.Mutex
	failures int
	subjects []string
	payloads [][]byte
}

func (p *recordingPublisher) publish(subject string, payload []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("nats: timeout")
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return nil
}

func registerEntity(t *testing.T, s store.RecordStore, key string, entityType credential.EntityType) {
	require.NoError(t, s.Create(context.Background(), &credential.Entity{
		Key:       common.StringOrNil(key),
		PublicKey: credential.Key{"04ab"},
		Type:      entityType,
	}))
}

func testAwardMessage() *credential.Message {
	id, _ := uuid.NewV4()
	return credential.NewAwardMessage("issuer", &credential.AwardPayload{
		IssuedDocumentID: id,
		IssuerKey:        common.StringOrNil("issuer"),
		LedgerRef:        common.StringOrNil("0x01"),
		Commitment:       common.StringOrNil("c"),
	})
}

func TestSendMessage(t *testing.T) {
	directory := store.NewMemoryStore()
	registerEntity(t, directory, "holder", credential.EntityTypeHolder)

	publisher := &recordingPublisher{failures: 2}
	client := NewNatsClient(directory, publisher.publish)

	err := client.SendMessage(context.Background(), "holder", testAwardMessage())
	require.NoError(t, err)
	require.Equal(t, []string{InboxSubject("holder")}, publisher.subjects)

	delivered, err := credential.UnmarshalMessage(publisher.payloads[0])
	require.NoError(t, err)
	require.Equal(t, credential.MessageKindAward, delivered.Kind)
}

func TestSendMessageFailures(t *testing.T) {
	directory := store.NewMemoryStore()
	registerEntity(t, directory, "holder", credential.EntityTypeHolder)

	publisher := &recordingPublisher{failures: 100}
	client := NewNatsClient(directory, publisher.publish)

	err := client.SendMessage(context.Background(), "holder", testAwardMessage())
	require.True(t, errors.Is(err, credential.ErrMessagingDelivery))

	err = client.SendMessage(context.Background(), "stranger", testAwardMessage())
	require.True(t, errors.Is(err, credential.ErrMessagingDelivery))
	require.True(t, errors.Is(err, credential.ErrNotFound))

	err = client.SendMessage(context.Background(), "holder", &credential.Message{Kind: credential.MessageKindAward})
	require.True(t, errors.Is(err, credential.ErrSchema))
}

func TestGetEntity(t *testing.T) {
	directory := store.NewMemoryStore()
	registerEntity(t, directory, "verifier", credential.EntityTypeVerifier)
	client := NewNatsClient(directory, (&recordingPublisher{}).publish)

	entity, err := client.GetEntity(context.Background(), "verifier")
	require.NoError(t, err)
	require.Equal(t, credential.EntityTypeVerifier, entity.Type)

	_, err = client.GetEntity(context.Background(), "nobody")
	require.True(t, credential.IsNotFound(err))
}

func TestMemoryOutboxRedeliver(t *testing.T) {
	ctx := context.Background()
	directory := store.NewMemoryStore()
	registerEntity(t, directory, "holder", credential.EntityTypeHolder)

	outbox := NewMemoryOutbox()
	id, err := outbox.Enqueue(ctx, "holder", testAwardMessage(), errors.New("nats: no responders"))
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{*id}, outbox.Pending())

	failing := NewNatsClient(directory, (&recordingPublisher{failures: 100}).publish)
	require.Error(t, outbox.Redeliver(ctx, *id, failing))

	outboxMsg, ok := outbox.Get(*id)
	require.True(t, ok)
	require.Equal(t, 2, outboxMsg.Attempts)
	require.NotNil(t, outboxMsg.LastError)

	publisher := &recordingPublisher{}
	require.NoError(t, outbox.Redeliver(ctx, *id, NewNatsClient(directory, publisher.publish)))
	require.Empty(t, outbox.Pending())
	require.Len(t, publisher.subjects, 1)

	// delivered messages are not sent again
	require.NoError(t, outbox.Redeliver(ctx, *id, NewNatsClient(directory, publisher.publish)))
	require.Len(t, publisher.subjects, 1)

	missing, _ := uuid.NewV4()
	require.True(t, credential.IsNotFound(outbox.Redeliver(ctx, missing, failing)))
}

func TestMemoryOutboxSweep(t *testing.T) {
	ctx := context.Background()
	directory := store.NewMemoryStore()
	registerEntity(t, directory, "holder", credential.EntityTypeHolder)

	outbox := NewMemoryOutbox()
	delivered, err := outbox.Enqueue(ctx, "holder", testAwardMessage(), errors.New("nats: timeout"))
	require.NoError(t, err)
	stranded, err := outbox.Enqueue(ctx, "verifier", testAwardMessage(), errors.New("nats: timeout"))
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	client := NewNatsClient(directory, publisher.publish)

	n, err := outbox.Sweep(ctx, client)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []uuid.UUID{*stranded}, outbox.Pending())

	outboxMsg, _ := outbox.Get(*delivered)
	require.NotNil(t, outboxMsg.DeliveredAt)

	// the recipient becomes resolvable; the next sweep delivers the remainder
	registerEntity(t, directory, "verifier", credential.EntityTypeVerifier)
	n, err = outbox.Sweep(ctx, client)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, outbox.Pending())
	require.Equal(t, []string{InboxSubject("holder"), InboxSubject("verifier")}, publisher.subjects)

	n, err = outbox.Sweep(ctx, client)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMemoryOutboxSweepCancelled(t *testing.T) {
	directory := store.NewMemoryStore()
	registerEntity(t, directory, "holder", credential.EntityTypeHolder)

	outbox := NewMemoryOutbox()
	_, err := outbox.Enqueue(context.Background(), "holder", testAwardMessage(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := outbox.Sweep(ctx, NewNatsClient(directory, (&recordingPublisher{}).publish))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, n)
	require.Len(t, outbox.Pending(), 1)
}

func TestInboxMessageHandler(t *testing.T) {
	var received []*credential.Message
	handler := inboxMessageHandler(func(ctx context.Context, msg *credential.Message) error {
		received = append(received, msg)
		return nil
	})

	raw, err := json.Marshal(testAwardMessage())
	require.NoError(t, err)

	handler(&nats.Msg{Subject: InboxSubject("holder"), Data: raw})
	handler(&nats.Msg{Subject: InboxSubject("holder"), Data: []byte(`{"kind":"award"}`)})

	require.Len(t, received, 1)
	require.Equal(t, credential.MessageKindAward, received[0].Kind)
}

func TestOutboxMessageHandler(t *testing.T) {
	ctx := context.Background()
	directory := store.NewMemoryStore()
	registerEntity(t, directory, "holder", credential.EntityTypeHolder)

	outbox := NewMemoryOutbox()
	id, err := outbox.Enqueue(ctx, "holder", testAwardMessage(), nil)
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	handler := outboxMessageHandler(NewNatsClient(directory, publisher.publish), outbox)

	raw, _ := json.Marshal(map[string]interface{}{"outbox_message_id": id.String()})
	handler(&nats.Msg{Subject: natsOutboxPendingSubject, Data: raw})

	require.Empty(t, outbox.Pending())
	require.Equal(t, []string{InboxSubject("holder")}, publisher.subjects)
}
