package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/dsc/internal/domain/entity"
	"github.com/archon-research/dsc/internal/ports/outbound"
)

// Compile-time check that PositionRepository implements outbound.PositionRepository
var _ outbound.PositionRepository = (*PositionRepository)(nil)

// PositionRepository is a PostgreSQL implementation of the outbound.PositionRepository port.
// A position is stored as one collateral_balances row per non-zero token and a
// debts row when debt is non-zero; an empty position has no rows.
type PositionRepository struct {
	pool   *pgxpool.Pool
	txm    outbound.TxManager
	logger *slog.Logger
}

// NewPositionRepository creates a new PostgreSQL position repository.
// Returns an error if the pool or transaction manager is nil.
func NewPositionRepository(pool *pgxpool.Pool, txm outbound.TxManager, logger *slog.Logger) (*PositionRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if txm == nil {
		return nil, fmt.Errorf("transaction manager cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PositionRepository{
		pool:   pool,
		txm:    txm,
		logger: logger.With("component", "position-repository"),
	}, nil
}

// SavePositions replaces the stored rows of every given position atomically.
func (r *PositionRepository) SavePositions(ctx context.Context, positions []*entity.Position) error {
	if len(positions) == 0 {
		return nil
	}

	return r.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, p := range positions {
			if err := r.savePosition(ctx, tx, p); err != nil {
				return fmt.Errorf("failed to save position of %s: %w", p.User.Hex(), err)
			}
		}
		return nil
	})
}

func (r *PositionRepository) savePosition(ctx context.Context, tx pgx.Tx, p *entity.Position) error {
	batch := &pgx.Batch{}
	user := p.User.Bytes()

	batch.Queue(`DELETE FROM collateral_balances WHERE user_address = $1`, user)
	for _, token := range p.Tokens() {
		amount := p.Collateral[token]
		if amount.IsZero() {
			continue
		}
		numeric, err := numericFromUint256(amount)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO collateral_balances (user_address, token_address, amount, updated_at)
			 VALUES ($1, $2, $3::numeric, NOW())`,
			user, token.Bytes(), numeric)
	}

	if p.Debt == nil || p.Debt.IsZero() {
		batch.Queue(`DELETE FROM debts WHERE user_address = $1`, user)
	} else {
		numeric, err := numericFromUint256(p.Debt)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO debts (user_address, amount, updated_at)
			 VALUES ($1, $2::numeric, NOW())
			 ON CONFLICT (user_address) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at`,
			user, numeric)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}

// LoadPositions returns every stored position ordered by user address.
func (r *PositionRepository) LoadPositions(ctx context.Context) ([]*entity.Position, error) {
	positions := make(map[common.Address]*entity.Position)
	get := func(user common.Address) (*entity.Position, error) {
		if p, ok := positions[user]; ok {
			return p, nil
		}
		p, err := entity.NewPosition(user, nil, nil)
		if err != nil {
			return nil, err
		}
		positions[user] = p
		return p, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT user_address, token_address, amount::text FROM collateral_balances`)
	if err != nil {
		return nil, fmt.Errorf("failed to query collateral balances: %w", err)
	}
	for rows.Next() {
		var userBytes, tokenBytes []byte
		var raw string
		if err := rows.Scan(&userBytes, &tokenBytes, &raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan collateral balance: %w", err)
		}
		user, token, amount, err := parseCollateralRow(userBytes, tokenBytes, raw)
		if err != nil {
			rows.Close()
			return nil, err
		}
		p, err := get(user)
		if err != nil {
			rows.Close()
			return nil, err
		}
		p.Collateral[token] = amount
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collateral balances: %w", err)
	}

	rows, err = r.pool.Query(ctx, `SELECT user_address, amount::text FROM debts`)
	if err != nil {
		return nil, fmt.Errorf("failed to query debts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var userBytes []byte
		var raw string
		if err := rows.Scan(&userBytes, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		user, err := addressFromBytes(userBytes)
		if err != nil {
			return nil, fmt.Errorf("debt row: %w", err)
		}
		amount, err := uint256FromNumeric(raw)
		if err != nil {
			return nil, fmt.Errorf("debt of %s: %w", user.Hex(), err)
		}
		p, err := get(user)
		if err != nil {
			return nil, err
		}
		p.Debt = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate debts: %w", err)
	}

	result := make([]*entity.Position, 0, len(positions))
	for _, p := range positions {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].User.Cmp(result[j].User) < 0
	})

	r.logger.Debug("loaded positions", "count", len(result))
	return result, nil
}

func parseCollateralRow(userBytes, tokenBytes []byte, raw string) (common.Address, common.Address, *uint256.Int, error) {
	user, err := addressFromBytes(userBytes)
	if err != nil {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("collateral row user: %w", err)
	}
	token, err := addressFromBytes(tokenBytes)
	if err != nil {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("collateral row token: %w", err)
	}
	amount, err := uint256FromNumeric(raw)
	if err != nil {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("collateral of %s in %s: %w", user.Hex(), token.Hex(), err)
	}
	return user, token, amount, nil
}
