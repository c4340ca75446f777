package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/ledger"
	"github.com/provideplatform/attestation/messaging"
	"github.com/provideplatform/attestation/store"
	"github.com/provideplatform/attestation/zkp/providers"
	"github.com/stretchr/testify/require"
)

// callLog records the order of collaborator calls across fakes
type callLog struct {
	mutex sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]string{}, l.calls...)
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, call := range l.all() {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func (l *callLog) indexOf(call string) int {
	for i, c := range l.all() {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeLedger struct {
	mutex     sync.Mutex
	calls     *callLog
	seq       int
	txs       map[string]*ledger.Transaction
	published map[string]bool

	// terminal status of newly published artifacts; confirmed when unset
	publishStatus credential.Status
	publishErr    error
	syncErr       error
	onPublish     func(artifact []byte)
}

func newFakeLedger(calls *callLog) *fakeLedger {
	return &fakeLedger{
		calls:     calls,
		txs:       map[string]*ledger.Transaction{},
		published: map[string]bool{},
	}
}

func (l *fakeLedger) nextHash() string {
	l.seq++
	return fmt.Sprintf("0x%064d", l.seq)
}

// preload anchors a confirmed artifact as if published by a counterpart
func (l *fakeLedger) preload(artifact string) *string {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	hash := l.nextHash()
	l.txs[hash] = &ledger.Transaction{
		Hash:          hash,
		Status:        credential.StatusConfirmed,
		Data:          []byte(artifact),
		Confirmations: 1,
	}
	return &hash
}

func (l *fakeLedger) Publish(ctx context.Context, artifact []byte) (*string, error) {
	l.calls.add("publish:%s", artifact)
	if l.onPublish != nil {
		l.onPublish(artifact)
	}
	if l.publishErr != nil {
		return nil, l.publishErr
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	status := l.publishStatus
	if status == "" {
		status = credential.StatusConfirmed
	}

	hash := l.nextHash()
	tx := &ledger.Transaction{Hash: hash, Status: status, Confirmations: 1}
	if status == credential.StatusConfirmed {
		tx.Data = append([]byte{}, artifact...)
	}
	l.txs[hash] = tx
	l.published[hash] = true
	return &hash, nil
}

func (l *fakeLedger) GetTransaction(ctx context.Context, hash string, minConfirmations uint64) (*ledger.Transaction, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	tx, ok := l.txs[hash]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	cpy := *tx
	return &cpy, nil
}

func (l *fakeLedger) GetTransactionSync(ctx context.Context, hash string, minConfirmations uint64) (*ledger.Transaction, error) {
	l.calls.add("getTransactionSync:%s", hash)

	l.mutex.Lock()
	syncErr := l.syncErr
	published := l.published[hash]
	l.mutex.Unlock()

	if syncErr != nil && published {
		return nil, syncErr
	}
	return l.GetTransaction(ctx, hash, minConfirmations)
}

type sentMessage struct {
	recipient string
	msg       *credential.Message
}

type fakeMessaging struct {
	mutex    sync.Mutex
	calls    *callLog
	entities map[string]*credential.Entity
	sent     []*sentMessage
	sendErr  error
}

func newFakeMessaging(calls *callLog) *fakeMessaging {
	m := &fakeMessaging{
		calls:    calls,
		entities: map[string]*credential.Entity{},
	}
	for key, entityType := range map[string]credential.EntityType{
		"issuer":   credential.EntityTypeIssuer,
		"holder":   credential.EntityTypeHolder,
		"verifier": credential.EntityTypeVerifier,
	} {
		m.entities[key] = &credential.Entity{
			Key:       common.StringOrNil(key),
			PublicKey: credential.Key{key + "-pub"},
			Type:      entityType,
		}
	}
	return m
}

func (m *fakeMessaging) SendMessage(ctx context.Context, recipientKey string, msg *credential.Message) error {
	m.calls.add("sendMessage:%s:%s", msg.Kind, recipientKey)
	if m.sendErr != nil {
		return fmt.Errorf("%w: %s", credential.ErrMessagingDelivery, m.sendErr.Error())
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sent = append(m.sent, &sentMessage{recipient: recipientKey, msg: msg})
	return nil
}

func (m *fakeMessaging) GetEntity(ctx context.Context, key string) (*credential.Entity, error) {
	m.calls.add("getEntity:%s", key)
	entity, ok := m.entities[key]
	if !ok {
		return nil, fmt.Errorf("%w: entity %s", credential.ErrNotFound, key)
	}
	return entity, nil
}

func (m *fakeMessaging) messages() []*sentMessage {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]*sentMessage{}, m.sent...)
}

type ackInputs struct {
	document    []byte
	sPrf        string
	proof       json.RawMessage
	sReq        string
	issuerPub   credential.Key
	verifierKey credential.Key
}

type fakeCrypto struct {
	mutex     sync.Mutex
	calls     *callLog
	seq       int
	err       error
	ackStatus credential.Status
	ack       *ackInputs
}

func (c *fakeCrypto) next() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.seq++
	return c.seq
}

func (c *fakeCrypto) GenerateKeys() (credential.Key, credential.Key, error) {
	return credential.Key{"private"}, credential.Key{"public"}, nil
}

func (c *fakeCrypto) ComputeAward(document []byte, issuerKey credential.Key) (*providers.AwardArtifacts, error) {
	c.calls.add("computeAward")
	if c.err != nil {
		return nil, c.err
	}
	n := c.next()
	return &providers.AwardArtifacts{
		AwardSignature: fmt.Sprintf("s_awd-%d", n),
		Commitment:     fmt.Sprintf("c-%d", n),
		Randomness:     fmt.Sprintf("r-%d", n),
	}, nil
}

func (c *fakeCrypto) ComputeRequest(sAwd, commitment string, verifierPub, holderKey credential.Key) (*string, error) {
	c.calls.add("computeRequest:%s:%s:%s", sAwd, commitment, verifierPub.Primary())
	if c.err != nil {
		return nil, c.err
	}
	return common.StringOrNil(fmt.Sprintf("s_req-%d", c.next())), nil
}

func (c *fakeCrypto) ComputeProof(sReq, r, commitment, sAwd string, verifierPub, issuerKey credential.Key) (*providers.ProofArtifacts, error) {
	c.calls.add("computeProof:%s:%s:%s:%s", sReq, r, commitment, sAwd)
	if c.err != nil {
		return nil, c.err
	}
	n := c.next()
	return &providers.ProofArtifacts{
		ProofSignature: fmt.Sprintf("s_prf-%d", n),
		Proof:          json.RawMessage(fmt.Sprintf(`{"proof":%d}`, n)),
	}, nil
}

func (c *fakeCrypto) ComputeAck(document []byte, sPrf string, proof json.RawMessage, sReq string, issuerPub, verifierKey credential.Key) (*providers.AckArtifacts, error) {
	c.calls.add("computeAck:%s:%s", sPrf, sReq)
	c.mutex.Lock()
	c.ack = &ackInputs{document, sPrf, proof, sReq, issuerPub, verifierKey}
	c.mutex.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	status := c.ackStatus
	if status == "" {
		status = credential.StatusSuccess
	}
	return &providers.AckArtifacts{
		AckSignature: fmt.Sprintf("s_ack-%d", c.next()),
		Status:       status,
	}, nil
}

type recordingObserver struct {
	mutex  sync.Mutex
	events []*Event
}

func (r *recordingObserver) Observe(ctx context.Context, event *Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingObserver) statuses(phase Phase) []credential.Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	statuses := make([]credential.Status, 0)
	for _, event := range r.events {
		if event.Phase == phase {
			statuses = append(statuses, event.Status)
		}
	}
	return statuses
}

type harness struct {
	calls     *callLog
	store     *store.MemoryStore
	ledger    *fakeLedger
	messaging *fakeMessaging
	crypto    *fakeCrypto
	outbox    *messaging.MemoryOutbox
	observer  *recordingObserver
	engine    *Engine
}

func newHarness(t *testing.T, userKey string) *harness {
	calls := &callLog{}
	h := &harness{
		calls:     calls,
		store:     store.NewMemoryStore(),
		ledger:    newFakeLedger(calls),
		messaging: newFakeMessaging(calls),
		crypto:    &fakeCrypto{calls: calls},
		outbox:    messaging.NewMemoryOutbox(),
		observer:  &recordingObserver{},
	}

	engine, err := NewEngine(&Config{
		Store:     h.store,
		Ledger:    h.ledger,
		Messaging: h.messaging,
		Crypto:    h.crypto,
		Outbox:    h.outbox,
		Observer:  h.observer,
		User: &credential.User{
			Key:        userKey,
			PrivateKey: credential.Key{userKey + "-private"},
		},
		MinConfirmations: 1,
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}
