package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/shared"
)

const (
	holdHeld        = "held"
	holdReleased    = "released"
	holdTransferred = "transferred"
)

var ledgerSchema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_accounts (
		user_id    TEXT PRIMARY KEY,
		balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_holds (
		id          UUID PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES ledger_accounts (user_id),
		amount      BIGINT NOT NULL CHECK (amount >= 0),
		status      TEXT NOT NULL DEFAULT 'held',
		transfer_to TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		closed_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_holds_open_idx ON ledger_holds (user_id) WHERE status = 'held'`,
}

// Ledger implements escrow.Ledger on two tables. Balances are available
// funds; a hold moves its amount out of the balance until it is closed.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Migrate creates the ledger tables.
func (l *Ledger) Migrate(ctx context.Context) error {
	for _, stmt := range ledgerSchema {
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// Credit adds funds to an account, creating it when needed.
func (l *Ledger) Credit(ctx context.Context, user shared.UserID, amount shared.Amount) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if amount < 0 {
		return escrow.ErrInvalidAmount
	}
	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		return credit(ctx, tx, user, amount)
	})
}

func (l *Ledger) Hold(ctx context.Context, user shared.UserID, amount shared.Amount) (shared.HoldID, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	if amount < 0 {
		return "", escrow.ErrInvalidAmount
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	err = pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		if err := credit(ctx, tx, user, 0); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE ledger_accounts SET balance = balance - $2, updated_at = now()
			 WHERE user_id = $1 AND balance >= $2`,
			string(user), int64(amount))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return escrow.ErrInsufficientFunds
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_holds (id, user_id, amount) VALUES ($1, $2, $3)`,
			id.String(), string(user), int64(amount))
		return err
	})
	if err != nil {
		return "", translate(err)
	}
	return shared.HoldID(id.String()), nil
}

func (l *Ledger) Release(ctx context.Context, id shared.HoldID) error {
	return l.close(ctx, id, "")
}

func (l *Ledger) Transfer(ctx context.Context, id shared.HoldID, to shared.UserID) error {
	if err := to.Validate(); err != nil {
		return err
	}
	return l.close(ctx, id, to)
}

// close moves a held amount to its destination exactly once.
func (l *Ledger) close(ctx context.Context, id shared.HoldID, to shared.UserID) error {
	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		var (
			owner  string
			amount int64
			status string
		)
		err := tx.QueryRow(ctx,
			`SELECT user_id, amount, status FROM ledger_holds WHERE id = $1 FOR UPDATE`,
			string(id)).Scan(&owner, &amount, &status)
		if err != nil {
			return err
		}
		if status != holdHeld {
			return escrow.ErrHoldClosed
		}
		next := holdTransferred
		if to == "" {
			to, next = shared.UserID(owner), holdReleased
		}
		_, err = tx.Exec(ctx,
			`UPDATE ledger_holds SET status = $2, transfer_to = $3, closed_at = now() WHERE id = $1`,
			string(id), next, string(to))
		if err != nil {
			return err
		}
		return credit(ctx, tx, to, shared.Amount(amount))
	})
	return holdError(err)
}

func (l *Ledger) Balance(ctx context.Context, user shared.UserID) (shared.Amount, error) {
	var balance int64
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM ledger_accounts WHERE user_id = $1`, string(user)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return shared.Amount(balance), nil
}

func credit(ctx context.Context, tx pgx.Tx, user shared.UserID, amount shared.Amount) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_accounts (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = ledger_accounts.balance + EXCLUDED.balance, updated_at = now()`,
		string(user), int64(amount))
	return err
}

// holdError reports unknown or malformed hold ids as ErrHoldNotFound.
func holdError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return escrow.ErrHoldNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation {
		return escrow.ErrHoldNotFound
	}
	return translate(err)
}
