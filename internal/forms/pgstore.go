package forms

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// PGStore reads form configuration from Postgres.
type PGStore struct {
	db DB
}

// NewPGStore returns a store backed by db.
func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

const selectForm = `SELECT id, title, description, livemode, connected_account_id, currency,
	amount, min_amount, price_ids, statement_descriptor, capture_method,
	payment_method_types, setup_future_usage, success_url, error_url
FROM payment_forms
WHERE id = $1 AND archived_at IS NULL`

// Resolve implements Resolver.
func (s *PGStore) Resolve(ctx context.Context, id string) (Form, error) {
	var f Form
	err := s.db.QueryRow(ctx, selectForm, id).Scan(
		&f.ID, &f.Title, &f.Description, &f.Livemode, &f.ConnectedAccountID, &f.Currency,
		&f.Amount, &f.MinAmount, &f.PriceIDs, &f.StatementDescriptor, &f.CaptureMethod,
		&f.PaymentMethodTypes, &f.SetupFutureUsage, &f.SuccessURL, &f.ErrorURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Form{}, ErrNotFound
		}
		return Form{}, fmt.Errorf("forms: resolve %s: %w", id, err)
	}
	return f, nil
}

const upsertForm = `INSERT INTO payment_forms (id, title, description, livemode, connected_account_id,
	currency, amount, min_amount, price_ids, statement_descriptor, capture_method,
	payment_method_types, setup_future_usage, success_url, error_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	livemode = EXCLUDED.livemode,
	connected_account_id = EXCLUDED.connected_account_id,
	currency = EXCLUDED.currency,
	amount = EXCLUDED.amount,
	min_amount = EXCLUDED.min_amount,
	price_ids = EXCLUDED.price_ids,
	statement_descriptor = EXCLUDED.statement_descriptor,
	capture_method = EXCLUDED.capture_method,
	payment_method_types = EXCLUDED.payment_method_types,
	setup_future_usage = EXCLUDED.setup_future_usage,
	success_url = EXCLUDED.success_url,
	error_url = EXCLUDED.error_url,
	updated_at = now(),
	archived_at = NULL`

// Upsert stores a form, used when seeding from a static file.
func (s *PGStore) Upsert(ctx context.Context, f Form) error {
	if err := f.Validate(); err != nil {
		return err
	}
	capture := f.CaptureMethod
	if capture == "" {
		capture = CaptureAutomatic
	}
	priceIDs := f.PriceIDs
	if priceIDs == nil {
		priceIDs = []string{}
	}
	methods := f.PaymentMethodTypes
	if methods == nil {
		methods = []string{}
	}
	_, err := s.db.Exec(ctx, upsertForm,
		f.ID, f.Title, f.Description, f.Livemode, f.ConnectedAccountID,
		f.Currency, f.Amount, f.MinAmount, priceIDs, f.StatementDescriptor, capture,
		methods, f.SetupFutureUsage, f.SuccessURL, f.ErrorURL,
	)
	if err != nil {
		return fmt.Errorf("forms: upsert %s: %w", f.ID, err)
	}
	return nil
}
