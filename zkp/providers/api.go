package providers

import (
	"encoding/json"

	"github.com/provideplatform/attestation/credential"
)

// CryptoProviderGnark gnark groth16 commitment provider
const CryptoProviderGnark = "gnark"

// AwardArtifacts are produced once per issued document
type AwardArtifacts struct {
	AwardSignature string `json:"s_awd"`
	Commitment     string `json:"c"`
	Randomness     string `json:"r"`
}

// ProofArtifacts are produced in response to a share request
type ProofArtifacts struct {
	ProofSignature string          `json:"s_prf"`
	Proof          json.RawMessage `json:"proof"`
}

// AckArtifacts are produced by the verifier on receipt of a proof
type AckArtifacts struct {
	AckSignature string            `json:"s_ack"`
	Status       credential.Status `json:"status"`
}

// CryptoProvider constructs the artifact of each phase; inputs it cannot use
// are rejected with credential.ErrCryptoComputation
type CryptoProvider interface {
	GenerateKeys() (private, public credential.Key, err error)

	ComputeAward(document []byte, issuerKey credential.Key) (*AwardArtifacts, error)

	ComputeRequest(sAwd, c string, verifierPub, holderKey credential.Key) (*string, error)

	ComputeProof(sReq, r, c, sAwd string, verifierPub, issuerKey credential.Key) (*ProofArtifacts, error)

	// ComputeAck checks the proof against the document; a proof which does not
	// verify yields status fail rather than an error
	ComputeAck(document []byte, sPrf string, proof json.RawMessage, sReq string, issuerPub, verifierKey credential.Key) (*AckArtifacts, error)
}
