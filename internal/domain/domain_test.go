package domain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"solana-intent-settlement/internal/solana"
)

func testKey(b byte) solana.PublicKey {
	var k solana.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

func TestRevealedIntent_MarshalBinary_Layout(t *testing.T) {
	intent := &RevealedIntent{
		User:       testKey(1),
		Nonce:      42,
		Expiry:     1_700_000_000,
		Relayer:    testKey(2),
		RelayerFee: 5,
		TokenIn:    testKey(3),
		TokenOut:   testKey(4),
		AmountIn:   1_000_000,
		MinOut:     990_000,
	}

	b, err := intent.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary error: %v", err)
	}
	if len(b) != IntentSize || IntentSize != 168 {
		t.Fatalf("len = %d, IntentSize = %d, want 168", len(b), IntentSize)
	}

	if !bytes.Equal(b[0:32], intent.User[:]) {
		t.Error("user not at offset 0")
	}
	if got := binary.LittleEndian.Uint64(b[32:40]); got != 42 {
		t.Errorf("nonce = %d, want 42", got)
	}
	if got := binary.LittleEndian.Uint64(b[40:48]); got != 1_700_000_000 {
		t.Errorf("expiry = %d", got)
	}
	if !bytes.Equal(b[48:80], intent.Relayer[:]) {
		t.Error("relayer not at offset 48")
	}
	if got := binary.LittleEndian.Uint64(b[80:88]); got != 5 {
		t.Errorf("relayer_fee = %d, want 5", got)
	}
	if !bytes.Equal(b[88:120], intent.TokenIn[:]) || !bytes.Equal(b[120:152], intent.TokenOut[:]) {
		t.Error("token fields misplaced")
	}
	if got := binary.LittleEndian.Uint64(b[152:160]); got != 1_000_000 {
		t.Errorf("amount_in = %d", got)
	}
	if got := binary.LittleEndian.Uint64(b[160:168]); got != 990_000 {
		t.Errorf("min_out = %d", got)
	}

	if !bytes.Equal(intent.Bytes(), b) {
		t.Error("Bytes() differs from MarshalBinary()")
	}
	var zero RevealedIntent
	if got := len(zero.Bytes()); got != IntentSize {
		t.Errorf("zero intent encodes to %d bytes, want %d", got, IntentSize)
	}

	var decoded RevealedIntent
	if err := decoded.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary error: %v", err)
	}
	if decoded != *intent {
		t.Errorf("decoded = %+v, want %+v", decoded, *intent)
	}
}

func TestRevealedIntent_UnmarshalBinary_BadLength(t *testing.T) {
	var i RevealedIntent
	if err := i.UnmarshalBinary(make([]byte, IntentSize-1)); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestTradeCommitment_RecordLayout(t *testing.T) {
	c := &TradeCommitment{
		User:       testKey(9),
		IntentHash: Hash{0xaa, 0xbb},
		Nonce:      7,
		Expiry:     100,
		Timestamp:  50,
		Revealed:   true,
	}

	b, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary error: %v", err)
	}
	if len(b) != CommitmentRecordSize || CommitmentRecordSize != 97 {
		t.Fatalf("record size = %d, want 97", len(b))
	}
	if !bytes.Equal(b[:8], CommitmentTag[:]) {
		t.Error("record must start with commitment tag")
	}
	if b[len(b)-1] != 1 {
		t.Error("revealed flag must be last byte")
	}

	var decoded TradeCommitment
	if err := decoded.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary error: %v", err)
	}
	if decoded != *c {
		t.Errorf("decoded = %+v, want %+v", decoded, *c)
	}

	b[0] ^= 0xff
	if err := decoded.UnmarshalBinary(b); err == nil {
		t.Error("expected error for wrong tag")
	}
}

func TestTradeCommitment_Expired(t *testing.T) {
	c := &TradeCommitment{Expiry: 1000}

	tests := []struct {
		now  int64
		want bool
	}{
		{999, false},
		{1000, true},
		{1001, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.now), func(t *testing.T) {
			if got := c.Expired(time.Unix(tt.now, 0)); got != tt.want {
				t.Errorf("Expired(%d) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestHash_Parse(t *testing.T) {
	h := Hash{1, 2, 3}
	parsed, err := ParseHash("0x" + h.String())
	if err != nil {
		t.Fatalf("ParseHash error: %v", err)
	}
	if parsed != h {
		t.Error("hash round trip mismatch")
	}
	if _, err := ParseHash("abcd"); err == nil {
		t.Error("expected error for short hash")
	}
}

func TestErrors_Codes(t *testing.T) {
	tests := []struct {
		err  *Error
		code ErrorCode
	}{
		{ErrAlreadyRevealed, 6000},
		{ErrIntentExpired, 6001},
		{ErrHashMismatch, 6004},
		{ErrAmountTooLarge, 6015},
		{ErrDuplicateIntent, 6016},
	}
	for _, tt := range tests {
		t.Run(tt.err.Name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %d, want %d", tt.err.Code, tt.code)
			}
			byCode, ok := ErrorByCode(tt.code)
			if !ok || byCode != tt.err {
				t.Errorf("ErrorByCode(%d) = %v", tt.code, byCode)
			}
		})
	}
}

func TestErrors_Wrapping(t *testing.T) {
	err := fmt.Errorf("reveal: %w", ErrSlippageExceeded)
	if !errors.Is(err, ErrSlippageExceeded) {
		t.Error("errors.Is should match wrapped protocol error")
	}
	pe, ok := AsError(err)
	if !ok || pe.Name != "SlippageExceeded" {
		t.Errorf("AsError = %v, %v", pe, ok)
	}
	if errors.Is(err, ErrHashMismatch) {
		t.Error("different protocol errors must not match")
	}
}

func TestFeePools_Destination(t *testing.T) {
	p := &FeePools{Destinations: []PoolDestination{
		{Kind: PoolTreasury, Address: testKey(1)},
	}}
	if d, ok := p.Destination(PoolTreasury); !ok || d.Address != testKey(1) {
		t.Error("treasury destination not found")
	}
	if _, ok := p.Destination(PoolMEVBounty); ok {
		t.Error("bounty destination should be absent")
	}
}
