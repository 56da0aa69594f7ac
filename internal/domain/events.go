package domain

import "solana-intent-settlement/internal/solana"

// Event names.
const (
	EventTradeExecuted       = "TradeExecuted"
	EventFeeDistributed      = "FeeDistributed"
	EventFeePoolsInitialized = "FeePoolsInitialized"
)

// Event is emitted after a successful state transition.
type Event interface {
	EventName() string
}

// TradeExecuted is emitted by a successful reveal.
type TradeExecuted struct {
	User        solana.PublicKey `json:"user"`
	Relayer     solana.PublicKey `json:"relayer"`
	TokenIn     solana.PublicKey `json:"token_in"`
	TokenOut    solana.PublicKey `json:"token_out"`
	AmountIn    uint64           `json:"amount_in"`
	AmountOut   uint64           `json:"amount_out"`
	ProtocolFee uint64           `json:"protocol_fee"`
	RelayerFee  uint64           `json:"relayer_fee"`
	Nonce       uint64           `json:"nonce"`
	Timestamp   int64            `json:"timestamp"`
}

func (TradeExecuted) EventName() string { return EventTradeExecuted }

// FeeDistributed is emitted by settle.
type FeeDistributed struct {
	Token         solana.PublicKey `json:"token"`
	TotalAmount   uint64           `json:"total_amount"`
	StakersShare  uint64           `json:"stakers_share"`
	TreasuryShare uint64           `json:"treasury_share"`
	BountyShare   uint64           `json:"bounty_share"`
	Caller        solana.PublicKey `json:"caller"`
	Timestamp     int64            `json:"timestamp"`
}

func (FeeDistributed) EventName() string { return EventFeeDistributed }

// FeePoolsInitialized is emitted when the fee accounts for a mint are created.
type FeePoolsInitialized struct {
	TokenMint        solana.PublicKey `json:"token_mint"`
	FeeAuthority     solana.PublicKey `json:"fee_authority"`
	LiquidityStakers solana.PublicKey `json:"liquidity_stakers"`
	Treasury         solana.PublicKey `json:"treasury"`
	MEVBounty        solana.PublicKey `json:"mev_bounty"`
	FeeCollection    solana.PublicKey `json:"fee_collection"`
	Timestamp        int64            `json:"timestamp"`
}

func (FeePoolsInitialized) EventName() string { return EventFeePoolsInitialized }
