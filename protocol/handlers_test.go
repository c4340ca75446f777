package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/credential"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext() (*httptest.ResponseRecorder, *gin.Context) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	return w, c
}

func TestHandlersRequireAuthorization(t *testing.T) {
	h := newHarness(t, "issuer")
	r := gin.New()
	InstallAPI(r, h.engine)

	id, _ := uuid.NewV4()
	for _, path := range []string{
		"/api/v1/keys",
		"/api/v1/documents",
		fmt.Sprintf("/api/v1/issued_documents/%s/award", id),
		"/api/v1/share_requests",
		fmt.Sprintf("/api/v1/share_requests/%s/request", id),
		fmt.Sprintf("/api/v1/proof_requests/%s/proof", id),
		fmt.Sprintf("/api/v1/received_proofs/%s/acknowledge", id),
		"/api/v1/messages",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`)))
		require.Equal(t, 401, w.Code, path)
	}
	require.Empty(t, h.calls.all())
}

func TestRenderError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: issued document", credential.ErrNotFound), 404},
		{fmt.Errorf("%w: bad message", credential.ErrSchema), 422},
		{credential.ErrCryptoComputation, 422},
		{credential.ErrAttemptFrozen, 409},
		{credential.ErrImmutable, 409},
		{credential.ErrInvalidTransition, 409},
		{fmt.Errorf("%w: rejected", credential.ErrLedgerPublish), 502},
		{fmt.Errorf("%w: still pending", credential.ErrLedgerTimeout), 504},
		{errors.New("database unavailable"), 500},
	}

	for _, tc := range cases {
		w, c := testContext()
		renderError(tc.err, c)
		require.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func TestRenderPhaseResult(t *testing.T) {
	id, _ := uuid.NewV4()
	issued := &credential.IssuedDocument{Status: credential.StatusConfirmed}
	issued.ID = id

	w, c := testContext()
	renderPhaseResult(issued, nil, c)
	require.Equal(t, 200, w.Code)

	outboxID, _ := uuid.NewV4()
	w, c = testContext()
	renderPhaseResult(issued, &DeliveryError{
		Kind:            credential.MessageKindAward,
		RecipientKey:    "holder",
		OutboxMessageID: &outboxID,
		Err:             errors.New("holder unreachable"),
	}, c)
	require.Equal(t, 202, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, outboxID.String(), body["outbox_message_id"])
	require.Equal(t, "confirmed", body["record"].(map[string]interface{})["status"])

	w, c = testContext()
	renderPhaseResult(nil, credential.ErrAttemptFrozen, c)
	require.Equal(t, 409, w.Code)
}
