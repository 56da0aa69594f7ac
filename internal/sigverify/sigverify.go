// Package sigverify binds a user's ed25519 signature to the intent hash being
// revealed.
//
// Two binders exist. InstructionBinder re-reads the ed25519 verification
// instruction that must immediately precede the reveal inside the same
// transaction. Detached verifies a signature handed over out of band, which
// is what the HTTP API uses.
package sigverify

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
)

// Verification instruction layout:
// count(1) signature(64) pubkey(32) msg_len(2 LE) msg.
const (
	signatureSize = 64
	pubkeySize    = 32
	headerSize    = 1 + signatureSize + pubkeySize + 2
)

var errMalformed = errors.New("malformed ed25519 instruction")

// Payload is a decoded verification instruction.
type Payload struct {
	Signature solana.Signature
	PublicKey solana.PublicKey
	Message   []byte
}

// ParseInstructionData decodes the verification instruction data.
// Exactly one signature is accepted.
func ParseInstructionData(data []byte) (*Payload, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", errMalformed, len(data))
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("%w: %d signatures", errMalformed, data[0])
	}

	p := &Payload{}
	off := 1
	copy(p.Signature[:], data[off:off+signatureSize])
	off += signatureSize
	copy(p.PublicKey[:], data[off:off+pubkeySize])
	off += pubkeySize
	msgLen := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2

	if len(data) < off+msgLen {
		return nil, fmt.Errorf("%w: message length %d exceeds payload", errMalformed, msgLen)
	}
	p.Message = append([]byte(nil), data[off:off+msgLen]...)
	return p, nil
}

// EncodeInstructionData is the inverse of ParseInstructionData.
func EncodeInstructionData(sig solana.Signature, pubkey solana.PublicKey, msg []byte) ([]byte, error) {
	if len(msg) > math.MaxUint16 {
		return nil, fmt.Errorf("message too long: %d bytes", len(msg))
	}
	buf := make([]byte, 0, headerSize+len(msg))
	buf = append(buf, 1)
	buf = append(buf, sig[:]...)
	buf = append(buf, pubkey[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(msg)))
	buf = append(buf, msg...)
	return buf, nil
}

// NewInstruction builds the verification instruction that must precede a reveal.
func NewInstruction(sig solana.Signature, pubkey solana.PublicKey, msg []byte) (solana.Instruction, error) {
	data, err := EncodeInstructionData(sig, pubkey, msg)
	if err != nil {
		return solana.Instruction{}, err
	}
	return solana.Instruction{ProgramID: solana.Ed25519ProgramID, Data: data}, nil
}

// VerifyInstruction checks the signature carried by a verification
// instruction. The batch processor calls it for every ed25519 instruction
// before running program instructions.
func VerifyInstruction(ix solana.Instruction) error {
	if !ix.ProgramID.Equals(solana.Ed25519ProgramID) {
		return fmt.Errorf("program %s is not the ed25519 program", ix.ProgramID)
	}
	p, err := ParseInstructionData(ix.Data)
	if err != nil {
		return err
	}
	if !p.Signature.Verify(p.PublicKey, p.Message) {
		return fmt.Errorf("ed25519 signature by %s does not verify", p.PublicKey)
	}
	return nil
}

// Binder proves that user signed hash.
type Binder interface {
	Bind(user solana.PublicKey, hash domain.Hash, sig solana.Signature) error
}

// InstructionBinder checks the instruction preceding Current in Instructions.
// The instruction itself is assumed to have been cryptographically verified
// already; the binder only compares its content with the reveal.
type InstructionBinder struct {
	Instructions []solana.Instruction
	Current      int
}

// Compile-time interface check.
var _ Binder = InstructionBinder{}

// Bind fails with domain.ErrInvalidSignature unless the preceding instruction
// is an ed25519 verification of exactly (sig, user, hash).
func (b InstructionBinder) Bind(user solana.PublicKey, hash domain.Hash, sig solana.Signature) error {
	if b.Current <= 0 || b.Current > len(b.Instructions) {
		return fmt.Errorf("%w: no preceding verification instruction", domain.ErrInvalidSignature)
	}
	prev := b.Instructions[b.Current-1]
	if !prev.ProgramID.Equals(solana.Ed25519ProgramID) {
		return fmt.Errorf("%w: preceding instruction targets %s", domain.ErrInvalidSignature, prev.ProgramID)
	}

	p, err := ParseInstructionData(prev.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	if p.Signature != sig {
		return fmt.Errorf("%w: signature mismatch", domain.ErrInvalidSignature)
	}
	if !p.PublicKey.Equals(user) {
		return fmt.Errorf("%w: public key mismatch", domain.ErrInvalidSignature)
	}
	if !bytes.Equal(p.Message, hash[:]) {
		return fmt.Errorf("%w: message mismatch", domain.ErrInvalidSignature)
	}
	return nil
}

// Detached verifies sig over hash directly.
type Detached struct{}

// Compile-time interface check.
var _ Binder = Detached{}

// Bind fails with domain.ErrInvalidSignature unless sig is user's signature of hash.
func (Detached) Bind(user solana.PublicKey, hash domain.Hash, sig solana.Signature) error {
	if !sig.Verify(user, hash[:]) {
		return fmt.Errorf("%w: signature does not verify", domain.ErrInvalidSignature)
	}
	return nil
}
