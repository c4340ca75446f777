/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	natsutil "github.com/kthomas/go-natsutil"
	uuid "github.com/kthomas/go.uuid"
	"github.com/nats-io/nats.go"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
)

const natsInboxMaxInFlight = 64
const inboxAckWait = time.Minute * 10
const inboxMaxDeliveries = 5

const natsOutboxMaxInFlight = 32
const outboxAckWait = time.Minute * 1
const outboxMaxDeliveries = 10

// InboxHandler processes an inbound message addressed to the local party
type InboxHandler func(ctx context.Context, msg *credential.Message) error

// RequireConsumers establishes the shared jetstream connection and subscribes the
// inbox of the given party and the outbox redelivery subject
func RequireConsumers(wg *sync.WaitGroup, localKey string, client Client, outbox Outbox, handler InboxHandler) {
	natsutil.EstablishSharedNatsConnection(nil)
	natsutil.NatsCreateStream(defaultNatsStream, []string{
		fmt.Sprintf("%s.>", defaultNatsStream),
	})

	inboxSubject := InboxSubject(localKey)
	for i := uint64(0); i < natsutil.GetNatsConsumerConcurrency(); i++ {
		natsutil.RequireNatsJetstreamSubscription(wg,
			inboxAckWait,
			inboxSubject,
			inboxSubject,
			inboxSubject,
			inboxMessageHandler(handler),
			inboxAckWait,
			natsInboxMaxInFlight,
			inboxMaxDeliveries,
			nil,
		)

		natsutil.RequireNatsJetstreamSubscription(wg,
			outboxAckWait,
			natsOutboxPendingSubject,
			natsOutboxPendingSubject,
			natsOutboxPendingSubject,
			outboxMessageHandler(client, outbox),
			outboxAckWait,
			natsOutboxMaxInFlight,
			outboxMaxDeliveries,
			nil,
		)
	}

	common.Log.Debugf("subscribed to inbox subject %s and outbox redelivery", inboxSubject)
}

func inboxMessageHandler(handler InboxHandler) func(msg *nats.Msg) {
	return func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				common.Log.Warningf("recovered during inbox message handling; %s", r)
				msg.Nak()
			}
		}()

		common.Log.Debugf("consuming %d-byte NATS inbox message on subject: %s", len(msg.Data), msg.Subject)

		inbound, err := credential.UnmarshalMessage(msg.Data)
		if err != nil {
			// malformed messages are never redeliverable
			common.Log.Warningf("dropping invalid inbox message; %s", err.Error())
			msg.Ack()
			return
		}

		err = handler(context.Background(), inbound)
		if err != nil {
			common.Log.Warningf("failed to handle inbound %s message from %s; %s", inbound.Kind, common.StringValue(inbound.Sender), err.Error())
			if errors.Is(err, credential.ErrSchema) {
				msg.Ack()
				return
			}
			msg.Nak()
			return
		}

		msg.Ack()
	}
}

func outboxMessageHandler(client Client, outbox Outbox) func(msg *nats.Msg) {
	return func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				common.Log.Warningf("recovered during outbox redelivery; %s", r)
				msg.Nak()
			}
		}()

		params := map[string]interface{}{}
		err := json.Unmarshal(msg.Data, &params)
		if err != nil {
			common.Log.Warningf("failed to unmarshal outbox redelivery message; %s", err.Error())
			msg.Nak()
			return
		}

		outboxMessageID, ok := params["outbox_message_id"].(string)
		if !ok {
			common.Log.Warning("failed to unmarshal outbox_message_id during redelivery message handler")
			msg.Nak()
			return
		}

		id, err := uuid.FromString(outboxMessageID)
		if err != nil {
			common.Log.Warningf("invalid outbox message id %s; %s", outboxMessageID, err.Error())
			msg.Ack()
			return
		}

		err = outbox.Redeliver(context.Background(), id, client)
		if err != nil {
			common.Log.Warningf("failed to redeliver outbox message %s; %s", id, err.Error())
			msg.Nak()
			return
		}

		common.Log.Debugf("redelivered outbox message %s", id)
		msg.Ack()
	}
}
