package settlement

import (
	"context"
	"fmt"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/ledger"
	"solana-intent-settlement/internal/sigverify"
	"solana-intent-settlement/internal/storage"
)

// Reveal validates req against its commitment and executes the trade.
// On any error the caller must roll tx back; writes made before the failure
// are not undone here.
func (e *Engine) Reveal(ctx context.Context, tx storage.Tx, req RevealRequest, binder sigverify.Binder) (*domain.TradeExecuted, error) {
	rc, err := e.loadRevealContext(ctx, tx, req.Accounts)
	if err != nil {
		return nil, err
	}
	if err := e.validateReveal(rc, &req, binder); err != nil {
		return nil, err
	}

	intent := &req.Intent
	a := req.Accounts

	protocolFee, err := ProtocolFee(intent.AmountIn, e.cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	afterFee, err := checkedSub(intent.AmountIn, protocolFee)
	if err != nil {
		return nil, err
	}

	out, err := e.quoter.Quote(ctx, intent.TokenIn, intent.TokenOut, afterFee)
	if err != nil {
		return nil, fmt.Errorf("%w: quote: %w", domain.ErrSwapExecutionFailed, err)
	}
	if out < intent.MinOut {
		return nil, fmt.Errorf("%w: out %d below min %d", domain.ErrSlippageExceeded, out, intent.MinOut)
	}
	if rc.relayerTokenOut.Amount < out {
		return nil, fmt.Errorf("%w: relayer holds %d, needs %d", domain.ErrInsufficientBalance, rc.relayerTokenOut.Amount, out)
	}

	legs := []struct {
		name     string
		transfer ledger.Transfer
		skip     bool
	}{
		{"input", ledger.Transfer{From: a.UserTokenIn, To: a.RelayerTokenIn, Amount: afterFee, Authority: a.User}, false},
		{"protocol fee", ledger.Transfer{From: a.UserTokenIn, To: a.FeeCollection, Amount: protocolFee, Authority: a.User}, protocolFee == 0},
		{"output", ledger.Transfer{From: a.RelayerTokenOut, To: a.UserTokenOut, Amount: out, Authority: a.Relayer}, false},
		{"relayer fee", ledger.Transfer{From: a.UserTokenOut, To: a.RelayerTokenOut, Amount: intent.RelayerFee, Authority: a.User}, intent.RelayerFee == 0},
	}
	for _, leg := range legs {
		if leg.skip {
			continue
		}
		if err := ledger.Execute(ctx, tx, leg.transfer); err != nil {
			return nil, fmt.Errorf("%w: %s leg: %w", domain.ErrSwapExecutionFailed, leg.name, err)
		}
	}

	if err := tx.MarkRevealed(ctx, a.Commitment); err != nil {
		return nil, fmt.Errorf("mark revealed: %w", err)
	}

	return &domain.TradeExecuted{
		User:        intent.User,
		Relayer:     intent.Relayer,
		TokenIn:     intent.TokenIn,
		TokenOut:    intent.TokenOut,
		AmountIn:    intent.AmountIn,
		AmountOut:   out,
		ProtocolFee: protocolFee,
		RelayerFee:  intent.RelayerFee,
		Nonce:       intent.Nonce,
		Timestamp:   e.now().Unix(),
	}, nil
}
