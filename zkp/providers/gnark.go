package providers

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/provideplatform/attestation/common"
	"github.com/provideplatform/attestation/credential"
	"github.com/provideplatform/attestation/zkp/lib/circuits/gnark"
)

const provingSchemeGroth16 = "groth16"

// commitmentProof is the proof payload relayed from the issuer to the verifier
type commitmentProof struct {
	Scheme       string `json:"scheme"`
	Curve        string `json:"curve"`
	Commitment   string `json:"c"`
	Audience     string `json:"audience"`
	Proof        []byte `json:"proof"`
	VerifyingKey []byte `json:"verifying_key"`
}

// signedParts returns the parts of the payload covered by s_prf
func (cp *commitmentProof) signedParts(sReq []byte) ([][]byte, error) {
	c, err := decodeHex("c", cp.Commitment)
	if err != nil {
		return nil, err
	}

	audience, err := decodeHex("audience", cp.Audience)
	if err != nil {
		return nil, err
	}

	return [][]byte{sReq, c, audience, cp.Proof, cp.VerifyingKey}, nil
}

// GnarkCryptoProvider commits to documents with MiMC over the bn254 scalar field,
// proves knowledge of the opening with groth16 and signs artifacts with secp256k1 keys
type GnarkCryptoProvider struct {
	curveID ecc.ID

	once     sync.Once
	setupErr error
	ccs      constraint.ConstraintSystem
	pk       groth16.ProvingKey
	vk       groth16.VerifyingKey
}

// InitGnarkCryptoProvider initializes and configures a new GnarkCryptoProvider instance
func InitGnarkCryptoProvider() *GnarkCryptoProvider {
	return &GnarkCryptoProvider{
		curveID: common.GnarkCurveIDFactory(common.StringOrNil(ecc.BN254.String())),
	}
}

// setup compiles the commitment circuit and runs the groth16 setup once per provider
func (p *GnarkCryptoProvider) setup() error {
	p.once.Do(func() {
		var circuit gnark.CommitmentCircuit
		p.ccs, p.setupErr = frontend.Compile(p.curveID.ScalarField(), r1cs.NewBuilder, &circuit)
		if p.setupErr != nil {
			common.Log.Warningf("failed to compile commitment circuit; %s", p.setupErr.Error())
			return
		}

		p.pk, p.vk, p.setupErr = groth16.Setup(p.ccs)
		if p.setupErr != nil {
			common.Log.Warningf("failed to setup commitment circuit; %s", p.setupErr.Error())
			return
		}

		common.Log.Debugf("compiled commitment circuit with %d constraint(s)", p.ccs.GetNbConstraints())
	})

	return p.setupErr
}

// GenerateKeys implements CryptoProvider
func (p *GnarkCryptoProvider) GenerateKeys() (credential.Key, credential.Key, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to generate keypair; %s", credential.ErrCryptoComputation, err.Error())
	}

	return credential.Key{hex.EncodeToString(crypto.FromECDSA(key))},
		credential.Key{hex.EncodeToString(crypto.FromECDSAPub(&key.PublicKey))},
		nil
}

// ComputeAward implements CryptoProvider
func (p *GnarkCryptoProvider) ComputeAward(document []byte, issuerKey credential.Key) (*AwardArtifacts, error) {
	if len(document) == 0 {
		return nil, fmt.Errorf("%w: empty document", credential.ErrCryptoComputation)
	}

	issuer, err := parsePrivateKey(issuerKey)
	if err != nil {
		return nil, err
	}

	digest := documentDigest(document)

	var blinding fr.Element
	if _, err := blinding.SetRandom(); err != nil {
		return nil, fmt.Errorf("%w: failed to sample blinding factor; %s", credential.ErrCryptoComputation, err.Error())
	}

	c := commit(digest, blinding)
	cBytes := c.Bytes()

	sAwd, err := sign(issuer, cBytes[:])
	if err != nil {
		return nil, err
	}

	return &AwardArtifacts{
		AwardSignature: sAwd,
		Commitment:     hex.EncodeToString(cBytes[:]),
		Randomness:     encodeOpening(blinding, digest),
	}, nil
}

// ComputeRequest implements CryptoProvider
func (p *GnarkCryptoProvider) ComputeRequest(sAwd, c string, verifierPub, holderKey credential.Key) (*string, error) {
	holder, err := parsePrivateKey(holderKey)
	if err != nil {
		return nil, err
	}

	verifierRaw, err := parsePublicKey(verifierPub)
	if err != nil {
		return nil, err
	}

	sAwdRaw, err := decodeHex("s_awd", sAwd)
	if err != nil {
		return nil, err
	}

	cRaw, err := decodeHex("c", c)
	if err != nil {
		return nil, err
	}

	sReq, err := sign(holder, sAwdRaw, cRaw, verifierRaw)
	if err != nil {
		return nil, err
	}

	return &sReq, nil
}

// ComputeProof implements CryptoProvider
func (p *GnarkCryptoProvider) ComputeProof(sReq, r, c, sAwd string, verifierPub, issuerKey credential.Key) (*ProofArtifacts, error) {
	issuer, err := parsePrivateKey(issuerKey)
	if err != nil {
		return nil, err
	}

	verifierRaw, err := parsePublicKey(verifierPub)
	if err != nil {
		return nil, err
	}

	sReqRaw, err := decodeHex("s_req", sReq)
	if err != nil {
		return nil, err
	}

	blinding, digest, err := decodeOpening(r)
	if err != nil {
		return nil, err
	}

	commitment, err := decodeElement("c", c)
	if err != nil {
		return nil, err
	}

	expected := commit(digest, blinding)
	if !expected.Equal(&commitment) {
		return nil, fmt.Errorf("%w: opening does not match commitment %s", credential.ErrCryptoComputation, c)
	}

	cBytes := commitment.Bytes()
	if !verify(crypto.FromECDSAPub(&issuer.PublicKey), sAwd, cBytes[:]) {
		return nil, fmt.Errorf("%w: award signature was not produced by the issuer", credential.ErrCryptoComputation)
	}

	err = p.setup()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", credential.ErrCryptoComputation, err.Error())
	}

	assignment := &gnark.CommitmentCircuit{
		Commitment: commitment.BigInt(new(big.Int)),
		Digest:     digest.BigInt(new(big.Int)),
		Blinding:   blinding.BigInt(new(big.Int)),
	}

	witness, err := frontend.NewWitness(assignment, p.curveID.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build witness; %s", credential.ErrCryptoComputation, err.Error())
	}

	proof, err := groth16.Prove(p.ccs, p.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to prove commitment opening; %s", credential.ErrCryptoComputation, err.Error())
	}

	proofBuf := new(bytes.Buffer)
	if _, err := proof.WriteTo(proofBuf); err != nil {
		return nil, fmt.Errorf("%w: failed to serialize proof; %s", credential.ErrCryptoComputation, err.Error())
	}

	vkBuf := new(bytes.Buffer)
	if _, err := p.vk.WriteTo(vkBuf); err != nil {
		return nil, fmt.Errorf("%w: failed to serialize verifying key; %s", credential.ErrCryptoComputation, err.Error())
	}

	relayed := &commitmentProof{
		Scheme:       provingSchemeGroth16,
		Curve:        p.curveID.String(),
		Commitment:   c,
		Audience:     hex.EncodeToString(verifierRaw),
		Proof:        proofBuf.Bytes(),
		VerifyingKey: vkBuf.Bytes(),
	}

	payload, err := json.Marshal(relayed)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal proof; %s", credential.ErrCryptoComputation, err.Error())
	}

	parts, err := relayed.signedParts(sReqRaw)
	if err != nil {
		return nil, err
	}

	sPrf, err := sign(issuer, parts...)
	if err != nil {
		return nil, err
	}

	return &ProofArtifacts{
		ProofSignature: sPrf,
		Proof:          payload,
	}, nil
}

// ComputeAck implements CryptoProvider
func (p *GnarkCryptoProvider) ComputeAck(document []byte, sPrf string, proof json.RawMessage, sReq string, issuerPub, verifierKey credential.Key) (*AckArtifacts, error) {
	verifier, err := parsePrivateKey(verifierKey)
	if err != nil {
		return nil, err
	}

	issuerRaw, err := parsePublicKey(issuerPub)
	if err != nil {
		return nil, err
	}

	sPrfRaw, err := decodeHex("s_prf", sPrf)
	if err != nil {
		return nil, err
	}

	sReqRaw, err := decodeHex("s_req", sReq)
	if err != nil {
		return nil, err
	}

	payload := &commitmentProof{}
	err = json.Unmarshal(proof, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal proof; %s", credential.ErrCryptoComputation, err.Error())
	}

	status := credential.StatusSuccess
	reason := p.verifyProof(document, payload, hex.EncodeToString(crypto.FromECDSAPub(&verifier.PublicKey)))
	if reason == nil {
		parts, err := payload.signedParts(sReqRaw)
		if err != nil || !verify(issuerRaw, sPrf, parts...) {
			reason = fmt.Errorf("proof signature was not produced by the issuer")
		}
	}
	if reason != nil {
		common.Log.Debugf("proof did not verify; %s", reason.Error())
		status = credential.StatusFail
	}

	sAck, err := sign(verifier, sPrfRaw, []byte(status))
	if err != nil {
		return nil, err
	}

	return &AckArtifacts{
		AckSignature: sAck,
		Status:       status,
	}, nil
}

// verifyProof returns the reason the proof does not open the commitment to the document, or nil
func (p *GnarkCryptoProvider) verifyProof(document []byte, payload *commitmentProof, audience string) error {
	if payload.Scheme != provingSchemeGroth16 || payload.Curve != p.curveID.String() {
		return fmt.Errorf("unsupported proof %s/%s", payload.Scheme, payload.Curve)
	}

	if !strings.EqualFold(payload.Audience, audience) {
		return fmt.Errorf("proof was constructed for another verifier")
	}

	commitment, err := decodeElement("c", payload.Commitment)
	if err != nil {
		return err
	}

	vk := groth16.NewVerifyingKey(p.curveID)
	if _, err := vk.ReadFrom(bytes.NewReader(payload.VerifyingKey)); err != nil {
		return fmt.Errorf("failed to read verifying key; %s", err.Error())
	}

	proof := groth16.NewProof(p.curveID)
	if _, err := proof.ReadFrom(bytes.NewReader(payload.Proof)); err != nil {
		return fmt.Errorf("failed to read proof; %s", err.Error())
	}

	digest := documentDigest(document)
	publicWitness, err := frontend.NewWitness(&gnark.CommitmentCircuit{
		Commitment: commitment.BigInt(new(big.Int)),
		Digest:     digest.BigInt(new(big.Int)),
	}, p.curveID.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("failed to build public witness; %s", err.Error())
	}

	return groth16.Verify(proof, vk, publicWitness)
}

// documentDigest maps the keccak256 digest of the document into the scalar field
func documentDigest(document []byte) fr.Element {
	var digest fr.Element
	digest.SetBytes(crypto.Keccak256(document))
	return digest
}

// commit returns MiMC(digest, blinding)
func commit(digest, blinding fr.Element) fr.Element {
	h := mimc.NewMiMC()
	d := digest.Bytes()
	b := blinding.Bytes()
	h.Write(d[:])
	h.Write(b[:])

	var c fr.Element
	c.SetBytes(h.Sum(nil))
	return c
}

// encodeOpening encodes the commitment opening as blinding.digest
func encodeOpening(blinding, digest fr.Element) string {
	b := blinding.Bytes()
	d := digest.Bytes()
	return fmt.Sprintf("%s.%s", hex.EncodeToString(b[:]), hex.EncodeToString(d[:]))
}

func decodeOpening(r string) (fr.Element, fr.Element, error) {
	parts := strings.Split(r, ".")
	if len(parts) != 2 {
		return fr.Element{}, fr.Element{}, fmt.Errorf("%w: malformed commitment opening", credential.ErrCryptoComputation)
	}

	blinding, err := decodeElement("r", parts[0])
	if err != nil {
		return fr.Element{}, fr.Element{}, err
	}

	digest, err := decodeElement("r", parts[1])
	if err != nil {
		return fr.Element{}, fr.Element{}, err
	}

	return blinding, digest, nil
}

func decodeElement(name, val string) (fr.Element, error) {
	var e fr.Element

	raw, err := decodeHex(name, val)
	if err != nil {
		return e, err
	}
	if len(raw) != fr.Bytes {
		return e, fmt.Errorf("%w: %s must be %d bytes", credential.ErrCryptoComputation, name, fr.Bytes)
	}

	e.SetBytes(raw)
	return e, nil
}

func decodeHex(name, val string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(val, "0x"))
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s is not valid hex", credential.ErrCryptoComputation, name)
	}
	return raw, nil
}

func parsePrivateKey(key credential.Key) (*ecdsa.PrivateKey, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(key.Primary(), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key; %s", credential.ErrCryptoComputation, err.Error())
	}
	return priv, nil
}

// parsePublicKey returns the uncompressed encoding of the given public key
func parsePublicKey(key credential.Key) ([]byte, error) {
	raw, err := decodeHex("public key", key.Primary())
	if err != nil {
		return nil, err
	}

	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid public key; %s", credential.ErrCryptoComputation, err.Error())
	}

	return crypto.FromECDSAPub(pub), nil
}

// sign returns the hex-encoded signature over the keccak256 digest of the given parts
func sign(key *ecdsa.PrivateKey, parts ...[]byte) (string, error) {
	sig, err := crypto.Sign(crypto.Keccak256(parts...), key)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sign artifact; %s", credential.ErrCryptoComputation, err.Error())
	}
	return hex.EncodeToString(sig), nil
}

func verify(pub []byte, sigHex string, parts ...[]byte) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	return crypto.VerifySignature(pub, crypto.Keccak256(parts...), sig[:crypto.RecoveryIDOffset])
}
