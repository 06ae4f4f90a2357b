package repository

import (
	"context"
	"fmt"

	db "github.com/azizikri/loyalty-wallet/db/gen"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier holds the operations that may run inside a ledger transaction.
type Querier interface {
	GetCustomerForUpdate(ctx context.Context, id string) (db.Customer, error)
	UpdateCustomerPoints(ctx context.Context, arg db.UpdateCustomerPointsParams) (db.Customer, error)
	InsertLedgerEntry(ctx context.Context, arg db.InsertLedgerEntryParams) (db.LedgerEntry, error)
	TouchCard(ctx context.Context, id string) error
	CreateCard(ctx context.Context, arg db.CreateCardParams) (db.Card, error)
	GetCardByCustomer(ctx context.Context, customerID string) (db.Card, error)
	SetCustomerCard(ctx context.Context, arg db.SetCustomerCardParams) error
}

type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(Querier) error) error

	CreateCustomer(ctx context.Context, arg db.CreateCustomerParams) (db.Customer, error)
	GetCustomer(ctx context.Context, id string) (db.Customer, error)
	ListCustomersByOwner(ctx context.Context, arg db.ListCustomersByOwnerParams) ([]db.Customer, error)
	ListLedgerEntries(ctx context.Context, arg db.ListLedgerEntriesParams) ([]db.LedgerEntry, error)

	GetCard(ctx context.Context, id string) (db.Card, error)
	GetCardTemplate(ctx context.Context, id string) (db.CardTemplate, error)

	UpsertAppleRegistration(ctx context.Context, arg db.UpsertAppleRegistrationParams) (bool, error)
	DeleteAppleRegistration(ctx context.Context, arg db.DeleteAppleRegistrationParams) (int64, error)
	DeleteAppleRegistrationByToken(ctx context.Context, arg db.DeleteAppleRegistrationByTokenParams) (int64, error)
	UpsertGoogleRegistration(ctx context.Context, arg db.UpsertGoogleRegistrationParams) (bool, error)
	DeleteGoogleRegistration(ctx context.Context, objectID string) (int64, error)
	ListRegistrationsBySerial(ctx context.Context, serial string) ([]db.WalletRegistration, error)
	ListRegistrationsByDevice(ctx context.Context, arg db.ListRegistrationsByDeviceParams) ([]db.WalletRegistration, error)
	ListUpdatedSerials(ctx context.Context, arg db.ListUpdatedSerialsParams) ([]db.ListUpdatedSerialsRow, error)

	UpsertPushSubscription(ctx context.Context, arg db.UpsertPushSubscriptionParams) error
	DeletePushSubscription(ctx context.Context, endpoint string) (int64, error)
	ListPushSubscriptionsByCustomer(ctx context.Context, customerID pgtype.Text) ([]db.PushSubscription, error)
	ListPushSubscriptionsByOwner(ctx context.Context, ownerID pgtype.Text) ([]db.PushSubscription, error)
}

type store struct {
	*db.Queries
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) Store {
	return &store{
		Queries: db.New(pool),
		pool:    pool,
	}
}

func (s *store) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	q := s.Queries.WithTx(tx)
	if err := fn(q); err != nil {
		return rollbackError(err, tx.Rollback(ctx))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// rollbackError keeps err in the chain when the rollback also failed.
func rollbackError(err, rbErr error) error {
	if rbErr != nil {
		return fmt.Errorf("%w (rollback: %v)", err, rbErr)
	}
	return err
}

// Text converts an optional string to a nullable column value.
func Text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
