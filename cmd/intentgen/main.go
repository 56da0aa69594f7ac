// Package main generates a signed trade intent with everything needed to
// commit and reveal it: the HTTP request bodies, the ed25519 verification
// instruction and a signed commit+reveal transaction.
package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"solana-intent-settlement/internal/config"
	"solana-intent-settlement/internal/pda"
	"solana-intent-settlement/internal/security"
	"solana-intent-settlement/internal/solana"
)

func main() {
	config.LoadEnvFile(".env")

	userPath := flag.String("user-keypair", "", "User wallet file (generated and written here if missing)")
	relayerPath := flag.String("relayer-keypair", os.Getenv("RELAYER_KEYPAIR"), "Relayer wallet file (generated and written here if missing)")
	programID := flag.String("program-id", os.Getenv("PROGRAM_ID"), "Settlement program id")
	feeBps := flag.Uint("fee-bps", 30, "Protocol fee in basis points")
	tokenIn := flag.String("token-in", "", "Input mint")
	tokenOut := flag.String("token-out", "", "Output mint")
	amountIn := flag.Uint64("amount-in", 1_000_000, "Input amount")
	minOut := flag.Uint64("min-out", 0, "Minimum output (0 derives it from the quote)")
	slippage := flag.Uint("slippage-bps", 100, "Slippage applied when deriving min-out")
	relayerFee := flag.Uint64("relayer-fee", 0, "Relayer fee paid in token_out")
	nonce := flag.Uint64("nonce", 0, "Nonce (0 picks a random one)")
	ttl := flag.Duration("ttl", 10*time.Minute, "Time until the intent expires")
	txTTL := flag.Duration("tx-ttl", 2*time.Minute, "Time until the generated transaction expires")
	jwtKey := flag.String("jwt-key", os.Getenv("JWT_PRIVATE_KEY_PATH"), "RS256 private key for minting an operator token")
	jwtSub := flag.String("jwt-sub", "operator", "Operator token subject")
	jwtIss := flag.String("jwt-iss", "", "Operator token issuer")
	jwtAud := flag.String("jwt-aud", "", "Operator token audience")
	flag.Parse()

	if err := run(params{
		userPath: *userPath, relayerPath: *relayerPath, programID: *programID,
		feeBps: *feeBps, tokenIn: *tokenIn, tokenOut: *tokenOut, amountIn: *amountIn,
		minOut: *minOut, slippage: *slippage, relayerFee: *relayerFee, nonce: *nonce, ttl: *ttl,
		txTTL: *txTTL,
		jwtKey: *jwtKey, jwtSub: *jwtSub, jwtIss: *jwtIss, jwtAud: *jwtAud,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type params struct {
	userPath, relayerPath, programID string
	feeBps                           uint
	tokenIn, tokenOut                string
	amountIn, minOut                 uint64
	slippage                         uint
	relayerFee, nonce                uint64
	ttl, txTTL                       time.Duration
	jwtKey, jwtSub, jwtIss, jwtAud   string
}

func run(f params) error {
	if f.tokenIn == "" || f.tokenOut == "" {
		return fmt.Errorf("--token-in and --token-out are required")
	}
	if f.feeBps >= 10_000 || f.slippage >= 10_000 {
		return fmt.Errorf("--fee-bps and --slippage-bps must be below 10000")
	}

	p := Params{
		ProgramID:   pda.DefaultProgramID,
		FeeBps:      uint16(f.feeBps),
		AmountIn:    f.amountIn,
		MinOut:      f.minOut,
		SlippageBps: uint16(f.slippage),
		RelayerFee:  f.relayerFee,
		Nonce:       f.nonce,
		TTL:         f.ttl,
		TxTTL:       f.txTTL,
	}
	var err error
	if f.programID != "" {
		if p.ProgramID, err = solana.ParsePublicKey(f.programID); err != nil {
			return fmt.Errorf("--program-id: %w", err)
		}
	}
	if p.TokenIn, err = solana.ParsePublicKey(f.tokenIn); err != nil {
		return fmt.Errorf("--token-in: %w", err)
	}
	if p.TokenOut, err = solana.ParsePublicKey(f.tokenOut); err != nil {
		return fmt.Errorf("--token-out: %w", err)
	}
	if p.Nonce == 0 {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return err
		}
		p.Nonce = binary.LittleEndian.Uint64(b[:])
	}

	user, err := loadOrCreate(f.userPath)
	if err != nil {
		return fmt.Errorf("user keypair: %w", err)
	}
	relayer, err := loadOrCreate(f.relayerPath)
	if err != nil {
		return fmt.Errorf("relayer keypair: %w", err)
	}

	bundle, err := Generate(context.Background(), p, user, relayer, time.Now())
	if err != nil {
		return err
	}

	if f.jwtKey != "" {
		signer, err := security.LoadRS256Signer(f.jwtKey, f.jwtIss, f.jwtAud)
		if err != nil {
			return err
		}
		if bundle.OperatorJWT, err = signer.Mint(f.jwtSub, time.Hour); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(bundle)
}

// loadOrCreate reads the wallet at path, or generates one and writes it
// there. An empty path yields an ephemeral keypair.
func loadOrCreate(path string) (*solana.Keypair, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return solana.LoadKeypairFile(path)
		}
	}
	kp, err := solana.NewKeypair()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := kp.WriteKeypairFile(path); err != nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%s)\n", path, kp.PublicKey())
	}
	return kp, nil
}
