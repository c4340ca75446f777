package gnark

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// CommitmentCircuit proves knowledge of the blinding factor opening a commitment
// to a document digest
type CommitmentCircuit struct {
	Commitment frontend.Variable `gnark:",public"`
	Digest     frontend.Variable `gnark:",public"`
	Blinding   frontend.Variable // known to the issuer only
}

// Define the commitment opening circuit
func (circuit *CommitmentCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	h.Write(circuit.Digest, circuit.Blinding)
	api.AssertIsEqual(circuit.Commitment, h.Sum())
	return nil
}
