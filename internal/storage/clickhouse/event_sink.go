package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/idhash"
	"solana-intent-settlement/internal/solana"
)

// EventSink copies settlement events into ClickHouse for analytics.
// Tables are ReplacingMergeTree keyed by deterministic ids, so replaying an
// event does not double count it after merges.
type EventSink struct {
	conn *Conn
}

// NewEventSink creates a new EventSink.
func NewEventSink(conn *Conn) *EventSink {
	return &EventSink{conn: conn}
}

// TradeExecution is one analytics row of trade_executions.
type TradeExecution struct {
	ExecutionID string    `json:"execution_id"`
	User        string    `json:"user"`
	Relayer     string    `json:"relayer"`
	TokenIn     string    `json:"token_in"`
	TokenOut    string    `json:"token_out"`
	AmountIn    uint64    `json:"amount_in"`
	AmountOut   uint64    `json:"amount_out"`
	ProtocolFee uint64    `json:"protocol_fee"`
	RelayerFee  uint64    `json:"relayer_fee"`
	Nonce       uint64    `json:"nonce"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// Publish stores e. Events other than TradeExecuted and FeeDistributed are ignored.
func (s *EventSink) Publish(ctx context.Context, e domain.Event) error {
	switch ev := e.(type) {
	case *domain.TradeExecuted:
		return s.insertTrade(ctx, ev)
	case domain.TradeExecuted:
		return s.insertTrade(ctx, &ev)
	case *domain.FeeDistributed:
		return s.insertDistribution(ctx, ev)
	case domain.FeeDistributed:
		return s.insertDistribution(ctx, &ev)
	default:
		return nil
	}
}

func (s *EventSink) insertTrade(ctx context.Context, ev *domain.TradeExecuted) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_executions (
			execution_id, user, relayer, token_in, token_out,
			amount_in, amount_out, protocol_fee, relayer_fee, nonce, executed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		idhash.ComputeExecutionID(ev.User, ev.Nonce),
		ev.User.String(), ev.Relayer.String(),
		ev.TokenIn.String(), ev.TokenOut.String(),
		ev.AmountIn, ev.AmountOut, ev.ProtocolFee, ev.RelayerFee, ev.Nonce,
		time.Unix(ev.Timestamp, 0).UTC(),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *EventSink) insertDistribution(ctx context.Context, ev *domain.FeeDistributed) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO fee_distributions (
			distribution_id, token, total_amount,
			stakers_share, treasury_share, bounty_share, caller, distributed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		idhash.ComputeDistributionID(ev.Token, ev.Caller, ev.Timestamp, ev.TotalAmount),
		ev.Token.String(), ev.TotalAmount,
		ev.StakersShare, ev.TreasuryShare, ev.BountyShare,
		ev.Caller.String(),
		time.Unix(ev.Timestamp, 0).UTC(),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListTradeExecutions returns the latest executions of user, newest first.
func (s *EventSink) ListTradeExecutions(ctx context.Context, user solana.PublicKey, limit int) ([]*TradeExecution, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.conn.Query(ctx, `
		SELECT execution_id, user, relayer, token_in, token_out,
			amount_in, amount_out, protocol_fee, relayer_fee, nonce, executed_at
		FROM trade_executions FINAL
		WHERE user = ?
		ORDER BY executed_at DESC, nonce DESC
		LIMIT ?
	`, user.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query trade executions: %w", err)
	}
	defer rows.Close()

	var result []*TradeExecution
	for rows.Next() {
		var t TradeExecution
		if err := rows.Scan(
			&t.ExecutionID, &t.User, &t.Relayer, &t.TokenIn, &t.TokenOut,
			&t.AmountIn, &t.AmountOut, &t.ProtocolFee, &t.RelayerFee, &t.Nonce, &t.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade execution: %w", err)
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// FeeTotals is the sum of distributions for one token.
type FeeTotals struct {
	Token         string `json:"token"`
	Distributions uint64 `json:"distributions"`
	TotalAmount   uint64 `json:"total_amount"`
	StakersShare  uint64 `json:"stakers_share"`
	TreasuryShare uint64 `json:"treasury_share"`
	BountyShare   uint64 `json:"bounty_share"`
}

// FeeTotals sums every recorded distribution of token.
func (s *EventSink) FeeTotals(ctx context.Context, token solana.PublicKey) (*FeeTotals, error) {
	t := FeeTotals{Token: token.String()}
	err := s.conn.QueryRow(ctx, `
		SELECT count(), sum(total_amount), sum(stakers_share), sum(treasury_share), sum(bounty_share)
		FROM fee_distributions FINAL
		WHERE token = ?
	`, token.String()).Scan(&t.Distributions, &t.TotalAmount, &t.StakersShare, &t.TreasuryShare, &t.BountyShare)
	if err != nil {
		return nil, fmt.Errorf("query fee totals: %w", err)
	}
	return &t, nil
}
