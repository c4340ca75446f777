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

package protocol

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/credential"
	provide "github.com/provideplatform/provide-go/common"
	"github.com/provideplatform/provide-go/common/util"
)

// Exchange is the set of credential exchange operations served by the API
type Exchange interface {
	GenerateKeys() (credential.Key, credential.Key, error)
	IssueDocument(ctx context.Context, content json.RawMessage, holderKey string) (*credential.IssuedDocument, error)
	CreateShareRequest(ctx context.Context, awardedDocumentID uuid.UUID, verifierKey string) (*credential.ShareRequest, error)

	Award(ctx context.Context, issuedDocumentID uuid.UUID) (*credential.IssuedDocument, error)
	Request(ctx context.Context, shareRequestID uuid.UUID) (*credential.ShareRequest, error)
	Proof(ctx context.Context, proofRequestID uuid.UUID) (*credential.ProofShareRequest, error)
	Acknowledge(ctx context.Context, receivedProofID uuid.UUID, document []byte) (*credential.ReceivedProof, error)

	Receive(ctx context.Context, msg *credential.Message) (credential.Record, error)
}

// InstallAPI registers the credential exchange API handlers with gin
func InstallAPI(r *gin.Engine, engine Exchange) {
	r.POST("/api/v1/keys", generateKeysHandler(engine))

	r.POST("/api/v1/documents", issueDocumentHandler(engine))
	r.POST("/api/v1/issued_documents/:id/award", awardHandler(engine))

	r.POST("/api/v1/share_requests", createShareRequestHandler(engine))
	r.POST("/api/v1/share_requests/:id/request", requestHandler(engine))

	r.POST("/api/v1/proof_requests/:id/proof", proofHandler(engine))
	r.POST("/api/v1/received_proofs/:id/acknowledge", acknowledgeHandler(engine))

	r.POST("/api/v1/messages", receiveMessageHandler(engine))
}

func authorized(c *gin.Context) bool {
	appID := util.AuthorizedSubjectID(c, "application")
	orgID := util.AuthorizedSubjectID(c, "organization")
	userID := util.AuthorizedSubjectID(c, "user")
	if appID == nil && orgID == nil && userID == nil {
		provide.RenderError("unauthorized", 401, c)
		return false
	}
	return true
}

// renderPhaseResult renders the record a phase returned; a delivery failure is
// not an error for the caller since the record reflects the ledger outcome
func renderPhaseResult(record credential.Record, err error, c *gin.Context) {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) && record != nil {
		provide.Render(map[string]interface{}{
			"record":            record,
			"delivery_error":    deliveryErr.Error(),
			"outbox_message_id": deliveryErr.OutboxMessageID,
		}, 202, c)
		return
	}

	if err != nil {
		renderError(err, c)
		return
	}

	provide.Render(record, 200, c)
}

func renderError(err error, c *gin.Context) {
	switch {
	case errors.Is(err, credential.ErrNotFound):
		provide.RenderError(err.Error(), 404, c)
	case errors.Is(err, credential.ErrSchema), errors.Is(err, credential.ErrCryptoComputation):
		provide.RenderError(err.Error(), 422, c)
	case errors.Is(err, credential.ErrInvalidTransition), errors.Is(err, credential.ErrImmutable), errors.Is(err, credential.ErrAttemptFrozen):
		provide.RenderError(err.Error(), 409, c)
	case errors.Is(err, credential.ErrLedgerPublish):
		provide.RenderError(err.Error(), 502, c)
	case errors.Is(err, credential.ErrLedgerTimeout):
		provide.RenderError(err.Error(), 504, c)
	default:
		provide.RenderError(err.Error(), 500, c)
	}
}

func recordID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		provide.RenderError("invalid record id", 400, c)
		return uuid.Nil, false
	}
	return id, true
}

func generateKeysHandler(engine Exchange) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		private, public, err := engine.GenerateKeys()
		if err != nil {
			renderError(err, c)
			return
		}

		provide.Render(map[string]interface{}{
			"private_key": private,
			"public_key":  public,
		}, 201, c)
	}
}

func issueDocumentHandler(engine Exchange) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		buf, err := c.GetRawData()
		if err != nil {
			provide.RenderError(err.Error(), 400, c)
			return
		}

		params := struct {
			Content   json.RawMessage `json:"content"`
			HolderKey string          `json:"holder_key"`
		}{}
		err = json.Unmarshal(buf, &params)
		if err != nil {
			provide.RenderError(err.Error(), 422, c)
			return
		}

		if params.HolderKey == "" {
			provide.RenderError("holder_key required", 422, c)
			return
		}

		issued, err := engine.IssueDocument(c, params.Content, params.HolderKey)
		if err != nil {
			renderError(err, c)
			return
		}

		provide.Render(issued, 201, c)
	}
}

func awardHandler(engine Exchange) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		id, ok := recordID(c)
		if !ok {
			return
		}

		issued, err := engine.Award(c, id)
		if issued == nil {
			renderPhaseResult(nil, err, c)
			return
		}
		renderPhaseResult(issued, err, c)
	}
}

func createShareRequestHandler(engine Exchange) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		buf, err := c.GetRawData()
		if err != nil {
			provide.RenderError(err.Error(), 400, c)
			return
		}

		params := struct {
			AwardedDocumentID uuid.UUID `json:"awarded_document_id"`
			VerifierKey       string    `json:"verifier_key"`
		}{}
		err = json.Unmarshal(buf, &params)
		if err != nil {
			provide.RenderError(err.Error(), 422, c)
			return
		}

		if params.AwardedDocumentID == uuid.Nil || params.VerifierKey == "" {
			provide.RenderError("awarded_document_id and verifier_key required", 422, c)
			return
		}

		req, err := engine.CreateShareRequest(c, params.AwardedDocumentID, params.VerifierKey)
		if err != nil {
			renderError(err, c)
			return
		}

		provide.Render(req, 201, c)
	}
}

func requestHandler(engine Exchange) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		id, ok := recordID(c)
		if !ok {
			return
		}

		req, err := engine.Request(c, id)
		if req == nil {
			renderPhaseResult(nil, err, c)
			return
		}
		renderPhaseResult(req, err, c)
	}
}

func proofHandler(engine Exchange) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		id, ok := recordID(c)
		if !ok {
			return
		}

		req, err := engine.Proof(c, id)
		if req == nil {
			renderPhaseResult(nil, err, c)
			return
		}
		renderPhaseResult(req, err, c)
	}
}

// the request body is the disclosed document
func acknowledgeHandler(engine Exchange) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		id, ok := recordID(c)
		if !ok {
			return
		}

		document, err := c.GetRawData()
		if err != nil {
			provide.RenderError(err.Error(), 400, c)
			return
		}

		received, err := engine.Acknowledge(c, id, document)
		if received == nil {
			renderPhaseResult(nil, err, c)
			return
		}
		renderPhaseResult(received, err, c)
	}
}

func receiveMessageHandler(engine Exchange) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		buf, err := c.GetRawData()
		if err != nil {
			provide.RenderError(err.Error(), 400, c)
			return
		}

		msg, err := credential.UnmarshalMessage(buf)
		if err != nil {
			renderError(err, c)
			return
		}

		record, err := engine.Receive(c, msg)
		if err != nil {
			renderError(err, c)
			return
		}

		if record == nil {
			provide.Render(nil, 204, c)
			return
		}
		provide.Render(record, 201, c)
	}
}
