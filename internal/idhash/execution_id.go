package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-intent-settlement/internal/solana"
)

// ComputeExecutionID computes a deterministic trade execution id using SHA256.
// Formula: SHA256(user|nonce). A commitment is revealed at most once, so the
// id is unique per executed trade.
// Returns hex-encoded hash (64 characters).
func ComputeExecutionID(user solana.PublicKey, nonce uint64) string {
	data := fmt.Sprintf("%s|%d", user.String(), nonce)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeDistributionID computes a deterministic fee distribution id.
// Formula: SHA256(token|caller|timestamp|total).
func ComputeDistributionID(token, caller solana.PublicKey, timestamp int64, total uint64) string {
	data := fmt.Sprintf("%s|%s|%d|%d", token.String(), caller.String(), timestamp, total)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
