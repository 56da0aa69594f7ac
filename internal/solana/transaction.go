package solana

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMissingSignature is returned when a declared signer has no valid signature.
	ErrMissingSignature = errors.New("missing or invalid signer signature")

	// ErrEmptyTransaction is returned for a transaction without instructions.
	ErrEmptyTransaction = errors.New("transaction has no instructions")
)

// Instruction is one call into a program. Accounts are positional; each
// program documents the order it expects.
type Instruction struct {
	ProgramID PublicKey   `json:"program_id"`
	Accounts  []PublicKey `json:"accounts"`
	Data      []byte      `json:"data"`
}

// Transaction is an ordered batch of instructions executed atomically.
// Signers are the identities that authorised the batch; Signatures[i] is
// Signers[i]'s signature over Message(). ValidUntil (unix seconds) is signed
// too, so a captured batch cannot be replayed after it lapses.
type Transaction struct {
	ValidUntil   int64         `json:"valid_until"`
	Signers      []PublicKey   `json:"signers"`
	Signatures   []Signature   `json:"signatures"`
	Instructions []Instruction `json:"instructions"`
}

// Message returns the canonical bytes covered by signer signatures.
//
// Layout: i64 LE valid-until, u8 signer count, signers, u8 instruction count, then per
// instruction: program id, u8 account count, accounts, u16 LE data length, data.
func (t *Transaction) Message() ([]byte, error) {
	if len(t.Signers) > math.MaxUint8 || len(t.Instructions) > math.MaxUint8 {
		return nil, errors.New("transaction too large")
	}

	buf := make([]byte, 0, 256)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.ValidUntil))
	buf = append(buf, uint8(len(t.Signers)))
	for _, s := range t.Signers {
		buf = append(buf, s[:]...)
	}
	buf = append(buf, uint8(len(t.Instructions)))
	for i, ix := range t.Instructions {
		if len(ix.Accounts) > math.MaxUint8 || len(ix.Data) > math.MaxUint16 {
			return nil, fmt.Errorf("instruction %d too large", i)
		}
		buf = append(buf, ix.ProgramID[:]...)
		buf = append(buf, uint8(len(ix.Accounts)))
		for _, a := range ix.Accounts {
			buf = append(buf, a[:]...)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return buf, nil
}

// Sign sets Signers and Signatures from the given keypairs.
func (t *Transaction) Sign(keypairs ...*Keypair) error {
	t.Signers = t.Signers[:0]
	for _, kp := range keypairs {
		t.Signers = append(t.Signers, kp.PublicKey())
	}
	msg, err := t.Message()
	if err != nil {
		return err
	}
	t.Signatures = make([]Signature, len(keypairs))
	for i, kp := range keypairs {
		t.Signatures[i] = kp.Sign(msg)
	}
	return nil
}

// VerifySignatures checks that every declared signer signed the message.
func (t *Transaction) VerifySignatures() error {
	if len(t.Instructions) == 0 {
		return ErrEmptyTransaction
	}
	if len(t.Signatures) != len(t.Signers) {
		return fmt.Errorf("%w: %d signers, %d signatures", ErrMissingSignature, len(t.Signers), len(t.Signatures))
	}
	msg, err := t.Message()
	if err != nil {
		return err
	}
	for i, signer := range t.Signers {
		if !t.Signatures[i].Verify(signer, msg) {
			return fmt.Errorf("%w: %s", ErrMissingSignature, signer)
		}
	}
	return nil
}

// IsSigner reports whether key is among the transaction signers.
func (t *Transaction) IsSigner(key PublicKey) bool {
	for _, s := range t.Signers {
		if s == key {
			return true
		}
	}
	return false
}
