package sqlite

import (
	"context"
	"database/sql" // basic sql
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3" // additional driver for sqlite

	"github.com/dappnode/staking-pool-manager/internal/application/domain"
	"github.com/dappnode/staking-pool-manager/internal/application/ports"
)

// Implements ports.RegistryStoragePort

type SQLiteStorage struct {
	DB *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite db: %w", err)
	}
	return &SQLiteStorage{DB: db}, nil
}

func migrate(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS operators (
			idx INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			payout_address TEXT NOT NULL,
			active BOOLEAN NOT NULL,
			slot_limit INTEGER NOT NULL,
			keys INTEGER NOT NULL,
			funded INTEGER NOT NULL,
			stopped INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS pool_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			buffered_balance TEXT NOT NULL,
			deposited_validators INTEGER NOT NULL,
			last_reported_balance TEXT,
			global_fee INTEGER NOT NULL,
			operator_rewards_share INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_operators_name ON operators(name);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const upsertOperatorQuery = `INSERT INTO operators (idx, name, payout_address, active, slot_limit, keys, funded, stopped)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(idx) DO UPDATE SET
		name=excluded.name,
		payout_address=excluded.payout_address,
		active=excluded.active,
		slot_limit=excluded.slot_limit,
		keys=excluded.keys,
		funded=excluded.funded,
		stopped=excluded.stopped,
		updated_at=CURRENT_TIMESTAMP;`

// UpsertOperator inserts or updates the operator held at a registry index.
// The index is the primary key: a record keeps its row for life.
func (s *SQLiteStorage) UpsertOperator(ctx context.Context, index int, op domain.Operator) error {
	_, err := s.DB.ExecContext(ctx, upsertOperatorQuery,
		index, op.Name, op.PayoutAddress.Hex(), op.Active, op.Limit, op.Keys, op.Funded, op.Stopped,
	)
	return err
}

// UpsertOperators writes a batch of records in a single transaction, so a
// failed write rolls the whole batch back.
func (s *SQLiteStorage) UpsertOperators(ctx context.Context, records []ports.OperatorRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin operator batch: %w", err)
	}
	for _, rec := range records {
		op := rec.Operator
		if _, err := tx.ExecContext(ctx, upsertOperatorQuery,
			rec.Index, op.Name, op.PayoutAddress.Hex(), op.Active, op.Limit, op.Keys, op.Funded, op.Stopped,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert operator %q: %w", op.Name, err)
		}
	}
	return tx.Commit()
}

// LoadOperators returns all operators ordered by registry index.
func (s *SQLiteStorage) LoadOperators(ctx context.Context) ([]domain.Operator, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT name, payout_address, active, slot_limit, keys, funded, stopped
		FROM operators ORDER BY idx ASC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []domain.Operator
	for rows.Next() {
		var op domain.Operator
		var payout string
		if err := rows.Scan(&op.Name, &payout, &op.Active, &op.Limit, &op.Keys, &op.Funded, &op.Stopped); err != nil {
			return nil, err
		}
		op.PayoutAddress = common.HexToAddress(payout)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// SavePoolState overwrites the single pool state row. Balances are stored as
// decimal strings since they exceed sqlite's integer range.
func (s *SQLiteStorage) SavePoolState(ctx context.Context, st domain.PoolState) error {
	buffered := "0"
	if st.BufferedBalance != nil {
		buffered = st.BufferedBalance.String()
	}
	var lastReported *string
	if st.LastReportedBalance != nil {
		v := st.LastReportedBalance.String()
		lastReported = &v
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO pool_state (id, buffered_balance, deposited_validators, last_reported_balance, global_fee, operator_rewards_share)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			buffered_balance=excluded.buffered_balance,
			deposited_validators=excluded.deposited_validators,
			last_reported_balance=excluded.last_reported_balance,
			global_fee=excluded.global_fee,
			operator_rewards_share=excluded.operator_rewards_share,
			updated_at=CURRENT_TIMESTAMP;`,
		buffered, st.DepositedValidators, lastReported, st.GlobalFee, st.OperatorRewardsShare,
	)
	return err
}

// LoadPoolState returns the persisted pool state, or ok=false when none was
// ever saved.
func (s *SQLiteStorage) LoadPoolState(ctx context.Context) (domain.PoolState, bool, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT buffered_balance, deposited_validators, last_reported_balance, global_fee, operator_rewards_share
		FROM pool_state WHERE id = 1;`)

	var st domain.PoolState
	var buffered string
	var lastReported *string
	err := row.Scan(&buffered, &st.DepositedValidators, &lastReported, &st.GlobalFee, &st.OperatorRewardsShare)
	if err == sql.ErrNoRows {
		return domain.PoolState{}, false, nil
	}
	if err != nil {
		return domain.PoolState{}, false, err
	}

	st.BufferedBalance, err = parseBalance(buffered)
	if err != nil {
		return domain.PoolState{}, false, err
	}
	if lastReported != nil {
		st.LastReportedBalance, err = parseBalance(*lastReported)
		if err != nil {
			return domain.PoolState{}, false, err
		}
	}
	return st, true, nil
}

func parseBalance(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored balance %q", s)
	}
	return v, nil
}
