package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"solana-intent-settlement/internal/solana"
)

// Commitment record layout: tag(8) user(32) hash(32) nonce(8) expiry(8)
// timestamp(8) revealed(1).
const (
	CommitmentTagSize    = 8
	CommitmentBodySize   = 32 + HashLength + 8 + 8 + 8 + 1
	CommitmentRecordSize = CommitmentTagSize + CommitmentBodySize
)

// CommitmentTag identifies a commitment record.
var CommitmentTag = recordTag("SwapIntent")

func recordTag(name string) [CommitmentTagSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var tag [CommitmentTagSize]byte
	copy(tag[:], sum[:CommitmentTagSize])
	return tag
}

// TradeCommitment is the on-ledger record created by commit.
type TradeCommitment struct {
	Address    solana.PublicKey `json:"address"` // derived from (user, nonce), not part of the record
	User       solana.PublicKey `json:"user"`
	IntentHash Hash             `json:"intent_hash"`
	Nonce      uint64           `json:"nonce"`
	Expiry     uint64           `json:"expiry"`    // unix seconds
	Timestamp  int64            `json:"timestamp"` // commit time, unix seconds
	Revealed   bool             `json:"revealed"`
}

// Expired reports whether the commitment can no longer be revealed at now.
func (c *TradeCommitment) Expired(now time.Time) bool {
	ts := now.Unix()
	if ts < 0 {
		return false
	}
	return c.Expiry <= uint64(ts)
}

// MarshalBinary encodes the tagged record.
func (c *TradeCommitment) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, CommitmentRecordSize)
	buf = append(buf, CommitmentTag[:]...)
	buf = append(buf, c.User[:]...)
	buf = append(buf, c.IntentHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, c.Nonce)
	buf = binary.LittleEndian.AppendUint64(buf, c.Expiry)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Timestamp))
	if c.Revealed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf, nil
}

// UnmarshalBinary decodes a tagged record. Address is left untouched.
func (c *TradeCommitment) UnmarshalBinary(b []byte) error {
	if len(b) != CommitmentRecordSize {
		return fmt.Errorf("decode commitment: length %d, want %d", len(b), CommitmentRecordSize)
	}
	if !bytes.Equal(b[:CommitmentTagSize], CommitmentTag[:]) {
		return fmt.Errorf("decode commitment: unexpected record tag %x", b[:CommitmentTagSize])
	}

	r := reader{buf: b, off: CommitmentTagSize}
	c.User = r.key()
	c.IntentHash = r.hash()
	c.Nonce = r.u64()
	c.Expiry = r.u64()
	c.Timestamp = int64(r.u64())
	switch r.u8() {
	case 0:
		c.Revealed = false
	case 1:
		c.Revealed = true
	default:
		return fmt.Errorf("decode commitment: invalid revealed flag")
	}
	return nil
}

// CommitMessage is the payload a user signs to authorise a commit outside a
// signed transaction: intent_hash | nonce LE | expiry LE.
func CommitMessage(hash Hash, nonce, expiry uint64) []byte {
	buf := make([]byte, 0, HashLength+16)
	buf = append(buf, hash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, nonce)
	buf = binary.LittleEndian.AppendUint64(buf, expiry)
	return buf
}
