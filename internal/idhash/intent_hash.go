package idhash

import (
	"crypto/sha256"

	"solana-intent-settlement/internal/domain"
)

// ComputeIntentHash computes the commitment digest of a revealed intent.
// Formula: SHA256(canonical little-endian serialization, see RevealedIntent.Bytes).
func ComputeIntentHash(intent *domain.RevealedIntent) domain.Hash {
	return sha256.Sum256(intent.Bytes())
}
