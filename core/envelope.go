package core

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"

	"lendcore/crypto"
)

// MaxInstructions bounds the size of one batch.
const MaxInstructions = 64

// Instruction is one operation of a batch. Params is the op's JSON payload.
type Instruction struct {
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Envelope is a signed batch of instructions executed atomically.
type Envelope struct {
	Signer       crypto.Address `json:"signer"`
	Nonce        uint64         `json:"nonce"`
	Instructions []Instruction  `json:"instructions"`
	Signature    hexutil.Bytes  `json:"signature"`
}

// NewInstruction encodes params as the payload of op.
func NewInstruction(op string, params any) (Instruction, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{Op: op, Params: raw}, nil
}

// Digest is keccak256(rlp([signer, nonce, instructionsJSON])).
func (e *Envelope) Digest() ([]byte, error) {
	instructions, err := json.Marshal(e.Instructions)
	if err != nil {
		return nil, fmt.Errorf("encode instructions: %w", err)
	}
	encoded, err := rlp.EncodeToBytes([]interface{}{e.Signer[:], e.Nonce, instructions})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// Sign sets the signer from key and signs the envelope.
func (e *Envelope) Sign(key *crypto.PrivateKey) error {
	e.Signer = key.PubKey().Address()
	digest, err := e.Digest()
	if err != nil {
		return err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// Verify checks the signature against Signer.
func (e *Envelope) Verify() error {
	if len(e.Signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d bytes", ErrBadSignature, crypto.SignatureLength)
	}
	digest, err := e.Digest()
	if err != nil {
		return err
	}
	recovered, err := crypto.RecoverAddress(digest, e.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if recovered != e.Signer {
		return ErrBadSignature
	}
	return nil
}
