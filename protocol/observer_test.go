package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	uuid "github.com/kthomas/go.uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/stretchr/testify/require"
)

func testEvent(phase Phase, status credential.Status) *Event {
	id, _ := uuid.NewV4()
	return &Event{
		RecordID:  id,
		Kind:      credential.KindIssuedDocument,
		Phase:     phase,
		Status:    status,
		LedgerRef: common.StringOrNil("0xabc"),
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestMultiObserver(t *testing.T) {
	first := &recordingObserver{}
	second := &recordingObserver{}
	calls := 0

	observer := MultiObserver{first, nil, ObserverFunc(func(ctx context.Context, event *Event) { calls++ }), second}
	observer.Observe(context.TODO(), testEvent(PhaseAward, credential.StatusPending))

	require.Equal(t, []credential.Status{credential.StatusPending}, first.statuses(PhaseAward))
	require.Equal(t, []credential.Status{credential.StatusPending}, second.statuses(PhaseAward))
	require.Equal(t, 1, calls)
}

func TestPrometheusObserver(t *testing.T) {
	registry := prometheus.NewRegistry()
	observer, err := NewPrometheusObserver(registry)
	require.NoError(t, err)

	observer.Observe(context.TODO(), testEvent(PhaseAward, credential.StatusPending))
	observer.Observe(context.TODO(), testEvent(PhaseAward, credential.StatusConfirmed))
	observer.Observe(context.TODO(), testEvent(PhaseProof, credential.StatusFail))

	require.Equal(t, float64(1), testutil.ToFloat64(observer.transitions.WithLabelValues("award", "pending")))
	require.Equal(t, float64(1), testutil.ToFloat64(observer.transitions.WithLabelValues("award", "confirmed")))
	require.Equal(t, float64(1), testutil.ToFloat64(observer.transitions.WithLabelValues("proof", "fail")))
	require.Equal(t, float64(1700000000), testutil.ToFloat64(observer.lastTransition.WithLabelValues("award")))

	_, err = NewPrometheusObserver(registry)
	require.Error(t, err)
}

func TestNatsObserver(t *testing.T) {
	published := map[string][]byte{}
	observer := NewNatsObserver(func(subject string, payload []byte) error {
		published[subject] = payload
		return nil
	})

	event := testEvent(PhaseRequest, credential.StatusConfirmed)
	observer.Observe(context.TODO(), event)

	payload, ok := published["attestation.notification.request.confirmed"]
	require.True(t, ok)

	var decoded Event
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, event.RecordID, decoded.RecordID)
	require.Equal(t, "0xabc", *decoded.LedgerRef)

	require.Error(t, observer.dispatchNotification(&Event{}))

	failing := NewNatsObserver(func(subject string, payload []byte) error {
		return errors.New("nats unavailable")
	})
	require.Error(t, failing.dispatchNotification(event))
	failing.Observe(context.TODO(), event)
}
