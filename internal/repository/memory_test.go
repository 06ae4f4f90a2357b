package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	db "github.com/azizikri/loyalty-wallet/db/gen"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCustomerWithCard(t *testing.T, m *MemoryStore) (db.Customer, db.Card) {
	t.Helper()
	ctx := context.Background()
	c, err := m.CreateCustomer(ctx, db.CreateCustomerParams{ID: "cust-1", OwnerID: "owner-1", FullName: "Ana", MemberID: "M-1"})
	require.NoError(t, err)
	card, err := m.CreateCard(ctx, db.CreateCardParams{ID: "card-1", CustomerID: c.ID, AuthToken: "tok"})
	require.NoError(t, err)
	return c, card
}

func TestMemoryExecTx_RollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	c, _ := seedCustomerWithCard(t, m)

	boom := errors.New("boom")
	err := m.ExecTx(ctx, func(q Querier) error {
		if _, err := q.UpdateCustomerPoints(ctx, db.UpdateCustomerPointsParams{ID: c.ID, Points: 40}); err != nil {
			return err
		}
		if _, err := q.InsertLedgerEntry(ctx, db.InsertLedgerEntryParams{CustomerID: c.ID, Delta: 40, Reason: "earn", ResultingBalance: 40}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), got.Points)

	entries, err := m.ListLedgerEntries(ctx, db.ListLedgerEntriesParams{CustomerID: c.ID, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryExecTx_Commits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	c, _ := seedCustomerWithCard(t, m)

	err := m.ExecTx(ctx, func(q Querier) error {
		_, err := q.UpdateCustomerPoints(ctx, db.UpdateCustomerPointsParams{ID: c.ID, Points: 15})
		return err
	})
	require.NoError(t, err)

	got, _ := m.GetCustomer(ctx, c.ID)
	assert.Equal(t, int32(15), got.Points)
}

func TestMemory_NegativePointsViolatesCheck(t *testing.T) {
	m := NewMemory()
	c, _ := seedCustomerWithCard(t, m)

	_, err := m.UpdateCustomerPoints(context.Background(), db.UpdateCustomerPointsParams{ID: c.ID, Points: -1})

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23514", pgErr.Code)
}

func TestMemory_UnknownCustomer(t *testing.T) {
	m := NewMemory()
	_, err := m.GetCustomer(context.Background(), "missing")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemory_AppleRegistrationUpsertIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, card := seedCustomerWithCard(t, m)

	arg := db.UpsertAppleRegistrationParams{Serial: card.ID, PassTypeID: "pass.x", DeviceID: "dev-1", PushToken: "t1"}
	created, err := m.UpsertAppleRegistration(ctx, arg)
	require.NoError(t, err)
	assert.True(t, created)

	arg.PushToken = "t2"
	created, err = m.UpsertAppleRegistration(ctx, arg)
	require.NoError(t, err)
	assert.False(t, created)

	regs, _ := m.ListRegistrationsBySerial(ctx, card.ID)
	require.Len(t, regs, 1)
	assert.Equal(t, "t2", regs[0].PushToken)
}

func TestMemory_DeleteByTokenKeepsRefreshedRegistration(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, card := seedCustomerWithCard(t, m)

	_, _ = m.UpsertAppleRegistration(ctx, db.UpsertAppleRegistrationParams{Serial: card.ID, PassTypeID: "pass.x", DeviceID: "dev-1", PushToken: "fresh"})

	n, err := m.DeleteAppleRegistrationByToken(ctx, db.DeleteAppleRegistrationByTokenParams{
		DeviceID: "dev-1", PassTypeID: "pass.x", Serial: card.ID, PushToken: "stale",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	regs, _ := m.ListRegistrationsBySerial(ctx, card.ID)
	assert.Len(t, regs, 1)
}

func TestMemory_ListUpdatedSerials(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return base }
	_, card := seedCustomerWithCard(t, m)
	_, _ = m.UpsertAppleRegistration(ctx, db.UpsertAppleRegistrationParams{Serial: card.ID, PassTypeID: "pass.x", DeviceID: "dev-1", PushToken: "t"})

	since := pgtype.Timestamptz{Time: base, Valid: true}
	rows, err := m.ListUpdatedSerials(ctx, db.ListUpdatedSerialsParams{DeviceID: "dev-1", PassTypeID: "pass.x", UpdatedAt: since})
	require.NoError(t, err)
	assert.Empty(t, rows)

	m.Now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, m.TouchCard(ctx, card.ID))

	rows, err = m.ListUpdatedSerials(ctx, db.ListUpdatedSerialsParams{DeviceID: "dev-1", PassTypeID: "pass.x", UpdatedAt: since})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, card.ID, rows[0].ID)
}

func TestMemory_PushSubscriptionUpsertAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	arg := db.UpsertPushSubscriptionParams{Endpoint: "https://push/1", P256dh: "k", Auth: "a", OwnerID: Text("owner-1")}
	require.NoError(t, m.UpsertPushSubscription(ctx, arg))
	require.NoError(t, m.UpsertPushSubscription(ctx, arg))

	subs, _ := m.ListPushSubscriptionsByOwner(ctx, Text("owner-1"))
	assert.Len(t, subs, 1)

	n, _ := m.DeletePushSubscription(ctx, "https://push/1")
	assert.Equal(t, int64(1), n)
	n, _ = m.DeletePushSubscription(ctx, "https://push/1")
	assert.Equal(t, int64(0), n)
}
