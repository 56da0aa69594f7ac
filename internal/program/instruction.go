// Package program decodes settlement program instructions and executes
// transactions against the settlement service.
package program

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/settlement"
	"solana-intent-settlement/internal/solana"
)

// ErrInvalidInstruction is returned for instructions that cannot be decoded
// or carry the wrong accounts.
var ErrInvalidInstruction = errors.New("invalid instruction")

// Instruction names.
const (
	NameCommitTrade           = "commit_trade"
	NameRevealTrade           = "reveal_trade"
	NameSettleTrade           = "settle_trade"
	NameInitializeFeeAccounts = "initialize_fee_accounts"
)

// DiscriminatorSize is the length of the instruction selector prefix.
const DiscriminatorSize = 8

// Discriminator is sha256("global:<name>")[:8].
type Discriminator [DiscriminatorSize]byte

// DiscriminatorOf returns the selector of the named instruction.
func DiscriminatorOf(name string) Discriminator {
	sum := sha256.Sum256([]byte("global:" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var (
	discCommit   = DiscriminatorOf(NameCommitTrade)
	discReveal   = DiscriminatorOf(NameRevealTrade)
	discSettle   = DiscriminatorOf(NameSettleTrade)
	discInitFees = DiscriminatorOf(NameInitializeFeeAccounts)
)

// Call is a decoded program instruction.
type Call interface {
	Name() string
}

// CommitTrade stores an intent hash.
//
// Accounts: [commitment, user].
type CommitTrade struct {
	Commitment solana.PublicKey
	User       solana.PublicKey
	IntentHash domain.Hash
	Nonce      uint64
	Expiry     uint64
}

func (CommitTrade) Name() string { return NameCommitTrade }

// RevealTrade discloses and executes a committed intent.
//
// Accounts: [commitment, user, relayer, user_token_in, user_token_out,
// relayer_token_in, relayer_token_out, token_in_mint, token_out_mint,
// fee_collection].
type RevealTrade struct {
	Accounts     settlement.RevealAccounts
	Intent       domain.RevealedIntent
	ExpectedHash domain.Hash
	Signature    solana.Signature
}

func (RevealTrade) Name() string { return NameRevealTrade }

// SettleTrade distributes collected fees.
//
// Accounts: [mint, caller].
type SettleTrade struct {
	Mint      solana.PublicKey
	Caller    solana.PublicKey
	FeeAmount uint64
}

func (SettleTrade) Name() string { return NameSettleTrade }

// InitializeFeeAccounts opens the fee accounts of a mint.
//
// Accounts: [mint, payer].
type InitializeFeeAccounts struct {
	Mint  solana.PublicKey
	Payer solana.PublicKey
}

func (InitializeFeeAccounts) Name() string { return NameInitializeFeeAccounts }

const (
	commitArgsSize = domain.HashLength + 8 + 8
	revealArgsSize = domain.IntentSize + domain.HashLength + solana.SignatureLength
	settleArgsSize = 8
	revealAccounts = 10
)

// Encode builds the instruction for c addressed to programID.
func Encode(programID solana.PublicKey, c Call) (solana.Instruction, error) {
	ix := solana.Instruction{ProgramID: programID}

	switch v := c.(type) {
	case CommitTrade:
		ix.Accounts = []solana.PublicKey{v.Commitment, v.User}
		ix.Data = append(ix.Data, discCommit[:]...)
		ix.Data = append(ix.Data, v.IntentHash[:]...)
		ix.Data = binary.LittleEndian.AppendUint64(ix.Data, v.Nonce)
		ix.Data = binary.LittleEndian.AppendUint64(ix.Data, v.Expiry)

	case RevealTrade:
		a := v.Accounts
		ix.Accounts = []solana.PublicKey{
			a.Commitment, a.User, a.Relayer,
			a.UserTokenIn, a.UserTokenOut, a.RelayerTokenIn, a.RelayerTokenOut,
			a.TokenInMint, a.TokenOutMint, a.FeeCollection,
		}
		ix.Data = append(ix.Data, discReveal[:]...)
		ix.Data = append(ix.Data, v.Intent.Bytes()...)
		ix.Data = append(ix.Data, v.ExpectedHash[:]...)
		ix.Data = append(ix.Data, v.Signature[:]...)

	case SettleTrade:
		ix.Accounts = []solana.PublicKey{v.Mint, v.Caller}
		ix.Data = append(ix.Data, discSettle[:]...)
		ix.Data = binary.LittleEndian.AppendUint64(ix.Data, v.FeeAmount)

	case InitializeFeeAccounts:
		ix.Accounts = []solana.PublicKey{v.Mint, v.Payer}
		ix.Data = append(ix.Data, discInitFees[:]...)

	default:
		return ix, fmt.Errorf("%w: unsupported call %T", ErrInvalidInstruction, c)
	}
	return ix, nil
}

// Decode parses a program instruction.
func Decode(ix solana.Instruction) (Call, error) {
	if len(ix.Data) < DiscriminatorSize {
		return nil, fmt.Errorf("%w: data too short", ErrInvalidInstruction)
	}
	var disc Discriminator
	copy(disc[:], ix.Data[:DiscriminatorSize])
	args := ix.Data[DiscriminatorSize:]

	switch disc {
	case discCommit:
		if err := expect(NameCommitTrade, ix.Accounts, 2, args, commitArgsSize); err != nil {
			return nil, err
		}
		c := CommitTrade{Commitment: ix.Accounts[0], User: ix.Accounts[1]}
		copy(c.IntentHash[:], args[:domain.HashLength])
		c.Nonce = binary.LittleEndian.Uint64(args[domain.HashLength:])
		c.Expiry = binary.LittleEndian.Uint64(args[domain.HashLength+8:])
		return c, nil

	case discReveal:
		if err := expect(NameRevealTrade, ix.Accounts, revealAccounts, args, revealArgsSize); err != nil {
			return nil, err
		}
		acc := ix.Accounts
		r := RevealTrade{Accounts: settlement.RevealAccounts{
			Commitment:      acc[0],
			User:            acc[1],
			Relayer:         acc[2],
			UserTokenIn:     acc[3],
			UserTokenOut:    acc[4],
			RelayerTokenIn:  acc[5],
			RelayerTokenOut: acc[6],
			TokenInMint:     acc[7],
			TokenOutMint:    acc[8],
			FeeCollection:   acc[9],
		}}
		if err := r.Intent.UnmarshalBinary(args[:domain.IntentSize]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		off := domain.IntentSize
		copy(r.ExpectedHash[:], args[off:off+domain.HashLength])
		off += domain.HashLength
		copy(r.Signature[:], args[off:])
		return r, nil

	case discSettle:
		if err := expect(NameSettleTrade, ix.Accounts, 2, args, settleArgsSize); err != nil {
			return nil, err
		}
		return SettleTrade{
			Mint:      ix.Accounts[0],
			Caller:    ix.Accounts[1],
			FeeAmount: binary.LittleEndian.Uint64(args),
		}, nil

	case discInitFees:
		if err := expect(NameInitializeFeeAccounts, ix.Accounts, 2, args, 0); err != nil {
			return nil, err
		}
		return InitializeFeeAccounts{Mint: ix.Accounts[0], Payer: ix.Accounts[1]}, nil
	}
	return nil, fmt.Errorf("%w: unknown discriminator %x", ErrInvalidInstruction, disc)
}

func expect(name string, accounts []solana.PublicKey, nAccounts int, args []byte, nArgs int) error {
	if len(accounts) != nAccounts {
		return fmt.Errorf("%w: %s takes %d accounts, got %d", ErrInvalidInstruction, name, nAccounts, len(accounts))
	}
	if len(args) != nArgs {
		return fmt.Errorf("%w: %s args are %d bytes, got %d", ErrInvalidInstruction, name, nArgs, len(args))
	}
	return nil
}
