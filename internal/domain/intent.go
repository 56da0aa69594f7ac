package domain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"solana-intent-settlement/internal/solana"
)

// HashLength is the size of an intent digest.
const HashLength = 32

// Hash is a SHA-256 intent digest.
type Hash [HashLength]byte

// ParseHash decodes a hex digest, with or without 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}
	if len(b) != HashLength {
		return h, fmt.Errorf("decode hash: length %d, want %d", len(b), HashLength)
	}
	copy(h[:], b)
	return h, nil
}

// String returns the lowercase hex form.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// IntentSize is the length of the canonical intent serialization.
const IntentSize = 32 + 8 + 8 + 32 + 8 + 32 + 32 + 8 + 8

// RevealedIntent is the full set of trade terms disclosed at reveal time.
type RevealedIntent struct {
	User       solana.PublicKey `json:"user"`
	Nonce      uint64           `json:"nonce"`
	Expiry     uint64           `json:"expiry"` // unix seconds
	Relayer    solana.PublicKey `json:"relayer"`
	RelayerFee uint64           `json:"relayer_fee"` // paid in token_out
	TokenIn    solana.PublicKey `json:"token_in"`
	TokenOut   solana.PublicKey `json:"token_out"`
	AmountIn   uint64           `json:"amount_in"`
	MinOut     uint64           `json:"min_out"`
}

// Bytes returns the canonical little-endian serialization that the intent
// hash commits to. Field order is fixed.
func (i *RevealedIntent) Bytes() []byte {
	buf := make([]byte, 0, IntentSize)
	buf = append(buf, i.User[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, i.Nonce)
	buf = binary.LittleEndian.AppendUint64(buf, i.Expiry)
	buf = append(buf, i.Relayer[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, i.RelayerFee)
	buf = append(buf, i.TokenIn[:]...)
	buf = append(buf, i.TokenOut[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, i.AmountIn)
	buf = binary.LittleEndian.AppendUint64(buf, i.MinOut)
	return buf
}

// MarshalBinary implements encoding.BinaryMarshaler. It never fails.
func (i *RevealedIntent) MarshalBinary() ([]byte, error) {
	return i.Bytes(), nil
}

// UnmarshalBinary decodes the canonical serialization.
func (i *RevealedIntent) UnmarshalBinary(b []byte) error {
	if len(b) != IntentSize {
		return fmt.Errorf("decode intent: length %d, want %d", len(b), IntentSize)
	}
	r := reader{buf: b}
	i.User = r.key()
	i.Nonce = r.u64()
	i.Expiry = r.u64()
	i.Relayer = r.key()
	i.RelayerFee = r.u64()
	i.TokenIn = r.key()
	i.TokenOut = r.key()
	i.AmountIn = r.u64()
	i.MinOut = r.u64()
	return nil
}

// reader walks a fixed-size buffer whose length was checked by the caller.
type reader struct {
	buf []byte
	off int
}

func (r *reader) key() solana.PublicKey {
	var k solana.PublicKey
	copy(k[:], r.buf[r.off:r.off+solana.PublicKeyLength])
	r.off += solana.PublicKeyLength
	return k
}

func (r *reader) hash() Hash {
	var h Hash
	copy(h[:], r.buf[r.off:r.off+HashLength])
	r.off += HashLength
	return h
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) u8() byte {
	v := r.buf[r.off]
	r.off++
	return v
}
