package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-intent-settlement/internal/domain"
	"solana-intent-settlement/internal/solana"
	"solana-intent-settlement/internal/storage"
)

// CommitmentStore implements storage.CommitmentStore using PostgreSQL.
type CommitmentStore struct {
	db   querier
	lock bool
}

// NewCommitmentStore creates a new CommitmentStore.
func NewCommitmentStore(pool *Pool) *CommitmentStore {
	return &CommitmentStore{db: pool}
}

// Compile-time interface check.
var _ storage.CommitmentStore = (*CommitmentStore)(nil)

const commitmentColumns = `address, user_key, intent_hash, nonce, expiry, committed_at, revealed`

// InsertCommitment adds a new commitment. Returns ErrDuplicateKey if address exists.
func (s *CommitmentStore) InsertCommitment(ctx context.Context, c *domain.TradeCommitment) error {
	if c == nil || c.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_commitments (` + commitmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query,
		c.Address.String(),
		c.User.String(),
		c.IntentHash[:],
		toDBAmount(c.Nonce),
		toDBAmount(c.Expiry),
		c.Timestamp,
		c.Revealed,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert commitment: %w", err)
	}
	return nil
}

// GetCommitment retrieves a commitment by address. Returns ErrNotFound if not exists.
func (s *CommitmentStore) GetCommitment(ctx context.Context, address solana.PublicKey) (*domain.TradeCommitment, error) {
	query := `
		SELECT ` + commitmentColumns + `
		FROM trade_commitments
		WHERE address = $1` + lockClause(s.lock)

	c, err := scanCommitment(s.db.QueryRow(ctx, query, address.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get commitment: %w", err)
	}
	return c, nil
}

// MarkRevealed sets the revealed flag. Returns ErrNotFound if not exists.
func (s *CommitmentStore) MarkRevealed(ctx context.Context, address solana.PublicKey) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE trade_commitments
		SET revealed = TRUE, revealed_at = NOW()
		WHERE address = $1
	`, address.String())
	if err != nil {
		return fmt.Errorf("mark revealed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListCommitmentsByUser returns a user's commitments ordered by nonce ASC as
// unsigned values. Nonces are stored bit-cast into BIGINT, so those of 2^63
// and above are negative in the column and sort after the rest.
func (s *CommitmentStore) ListCommitmentsByUser(ctx context.Context, user solana.PublicKey) ([]*domain.TradeCommitment, error) {
	query := `
		SELECT ` + commitmentColumns + `
		FROM trade_commitments
		WHERE user_key = $1
		ORDER BY (nonce < 0), nonce ASC
	`

	rows, err := s.db.Query(ctx, query, user.String())
	if err != nil {
		return nil, fmt.Errorf("list commitments by user: %w", err)
	}
	defer rows.Close()

	var result []*domain.TradeCommitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func scanCommitment(row pgx.Row) (*domain.TradeCommitment, error) {
	var (
		address, user string
		hash          []byte
		nonce, expiry int64
		c             domain.TradeCommitment
	)

	if err := row.Scan(&address, &user, &hash, &nonce, &expiry, &c.Timestamp, &c.Revealed); err != nil {
		return nil, err
	}

	var err error
	if c.Address, err = parseKey(address); err != nil {
		return nil, err
	}
	if c.User, err = parseKey(user); err != nil {
		return nil, err
	}
	if len(hash) != domain.HashLength {
		return nil, fmt.Errorf("stored intent hash has length %d", len(hash))
	}
	copy(c.IntentHash[:], hash)
	c.Nonce = fromDBAmount(nonce)
	c.Expiry = fromDBAmount(expiry)
	return &c, nil
}
