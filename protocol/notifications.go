package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/messaging"
)

const natsNotificationSubjectPrefix = "attestation.notification"

// NatsObserver broadcasts each transition to a namespaced notification subject
type NatsObserver struct {
	publish messaging.PublishFunc
}

// NewNatsObserver returns an observer publishing with the given func; a nil
// func uses the shared jetstream connection
func NewNatsObserver(publish messaging.PublishFunc) *NatsObserver {
	if publish == nil {
		publish = messaging.NatsJetstreamPublish
	}
	return &NatsObserver{publish: publish}
}

// Observe implements Observer
func (o *NatsObserver) Observe(ctx context.Context, event *Event) {
	err := o.dispatchNotification(event)
	if err != nil {
		common.Log.Warningf("failed to dispatch %s notification for %s %s; %s", event.Phase, event.Kind, event.RecordID, err.Error())
	}
}

// dispatchNotification broadcasts an event to its qualified subject
func (o *NatsObserver) dispatchNotification(event *Event) error {
	subject := notificationsSubject(event)
	if subject == "" {
		return fmt.Errorf("failed to dispatch event notification; no phase")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return o.publish(subject, payload)
}

// notificationsSubject returns a namespaced subject suitable for pub/sub subscriptions
func notificationsSubject(event *Event) string {
	if event.Phase == "" {
		return ""
	}
	return fmt.Sprintf("%s.%s.%s", natsNotificationSubjectPrefix, event.Phase, event.Status)
}
