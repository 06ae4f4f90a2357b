package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	db "github.com/azizikri/loyalty-wallet/db/gen"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const uniqueViolation = "23505"

// MemoryStore is a process-local Store. Transactions are serialized and rolled
// back through an undo log, which gives the same per-customer read-modify-write
// atomicity as the row lock taken by the Postgres store.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	customers     map[string]db.Customer
	entries       []db.LedgerEntry
	cards         map[string]db.Card
	templates     map[string]db.CardTemplate
	registrations map[int64]db.WalletRegistration
	subscriptions map[string]db.PushSubscription
	nextEntryID   int64
	nextRegID     int64

	Now func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		customers:     make(map[string]db.Customer),
		cards:         make(map[string]db.Card),
		templates:     make(map[string]db.CardTemplate),
		registrations: make(map[int64]db.WalletRegistration),
		subscriptions: make(map[string]db.PushSubscription),
		Now:           time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) ts() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: m.Now().UTC(), Valid: true}
}

// PutTemplate seeds a card template.
func (m *MemoryStore) PutTemplate(t db.CardTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !t.CreatedAt.Valid {
		t.CreatedAt = m.ts()
	}
	m.templates[t.ID] = t
}

func (m *MemoryStore) ExecTx(ctx context.Context, fn func(Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		m.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// memTx records an undo entry for every write so a failed transaction leaves
// no trace. Undo funcs run with m.mu held.
type memTx struct {
	m    *MemoryStore
	undo []func()
}

func (t *memTx) GetCustomerForUpdate(ctx context.Context, id string) (db.Customer, error) {
	return t.m.GetCustomer(ctx, id)
}

func (t *memTx) UpdateCustomerPoints(ctx context.Context, arg db.UpdateCustomerPointsParams) (db.Customer, error) {
	return t.m.updateCustomerPoints(arg, t.record)
}

func (t *memTx) InsertLedgerEntry(ctx context.Context, arg db.InsertLedgerEntryParams) (db.LedgerEntry, error) {
	return t.m.insertLedgerEntry(arg, t.record)
}

func (t *memTx) TouchCard(ctx context.Context, id string) error {
	return t.m.touchCard(id, t.record)
}

func (t *memTx) CreateCard(ctx context.Context, arg db.CreateCardParams) (db.Card, error) {
	return t.m.createCard(arg, t.record)
}

func (t *memTx) GetCardByCustomer(ctx context.Context, customerID string) (db.Card, error) {
	return t.m.GetCardByCustomer(ctx, customerID)
}

func (t *memTx) SetCustomerCard(ctx context.Context, arg db.SetCustomerCardParams) error {
	return t.m.setCustomerCard(arg, t.record)
}

func (t *memTx) record(fn func()) {
	t.undo = append(t.undo, fn)
}

func noUndo(func()) {}

// --- customers ---

func (m *MemoryStore) CreateCustomer(ctx context.Context, arg db.CreateCustomerParams) (db.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[arg.ID]; ok {
		return db.Customer{}, &pgconn.PgError{Code: uniqueViolation, ConstraintName: "customers_pkey"}
	}
	for _, c := range m.customers {
		if c.MemberID == arg.MemberID {
			return db.Customer{}, &pgconn.PgError{Code: uniqueViolation, ConstraintName: "customers_member_id_key"}
		}
	}
	if arg.TemplateID.Valid {
		if _, ok := m.templates[arg.TemplateID.String]; !ok {
			return db.Customer{}, &pgconn.PgError{Code: "23503", ConstraintName: "customers_template_id_fkey"}
		}
	}

	now := m.ts()
	c := db.Customer{
		ID:         arg.ID,
		OwnerID:    arg.OwnerID,
		FullName:   arg.FullName,
		Phone:      arg.Phone,
		Email:      arg.Email,
		MemberID:   arg.MemberID,
		TemplateID: arg.TemplateID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.customers[c.ID] = c
	return c, nil
}

func (m *MemoryStore) GetCustomer(ctx context.Context, id string) (db.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return db.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *MemoryStore) GetCustomerForUpdate(ctx context.Context, id string) (db.Customer, error) {
	return m.GetCustomer(ctx, id)
}

func (m *MemoryStore) ListCustomersByOwner(ctx context.Context, arg db.ListCustomersByOwnerParams) ([]db.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []db.Customer
	for _, c := range m.customers {
		if c.OwnerID == arg.OwnerID {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].FullName < items[j].FullName })
	if arg.Limit > 0 && len(items) > int(arg.Limit) {
		items = items[:arg.Limit]
	}
	return items, nil
}

func (m *MemoryStore) UpdateCustomerPoints(ctx context.Context, arg db.UpdateCustomerPointsParams) (db.Customer, error) {
	return m.updateCustomerPoints(arg, noUndo)
}

func (m *MemoryStore) updateCustomerPoints(arg db.UpdateCustomerPointsParams, record func(func())) (db.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.customers[arg.ID]
	if !ok {
		return db.Customer{}, pgx.ErrNoRows
	}
	if arg.Points < 0 {
		return db.Customer{}, &pgconn.PgError{Code: "23514", ConstraintName: "customers_points_check"}
	}
	next := prev
	next.Points = arg.Points
	next.UpdatedAt = m.ts()
	m.customers[arg.ID] = next
	record(func() { m.customers[arg.ID] = prev })
	return next, nil
}

func (m *MemoryStore) SetCustomerCard(ctx context.Context, arg db.SetCustomerCardParams) error {
	return m.setCustomerCard(arg, noUndo)
}

func (m *MemoryStore) setCustomerCard(arg db.SetCustomerCardParams, record func(func())) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.customers[arg.ID]
	if !ok {
		return nil
	}
	next := prev
	next.CardID = arg.CardID
	next.UpdatedAt = m.ts()
	m.customers[arg.ID] = next
	record(func() { m.customers[arg.ID] = prev })
	return nil
}

// --- ledger ---

func (m *MemoryStore) InsertLedgerEntry(ctx context.Context, arg db.InsertLedgerEntryParams) (db.LedgerEntry, error) {
	return m.insertLedgerEntry(arg, noUndo)
}

func (m *MemoryStore) insertLedgerEntry(arg db.InsertLedgerEntryParams, record func(func())) (db.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[arg.CustomerID]; !ok {
		return db.LedgerEntry{}, &pgconn.PgError{Code: "23503", ConstraintName: "ledger_entries_customer_id_fkey"}
	}
	m.nextEntryID++
	e := db.LedgerEntry{
		ID:               m.nextEntryID,
		CustomerID:       arg.CustomerID,
		Delta:            arg.Delta,
		Reason:           arg.Reason,
		ResultingBalance: arg.ResultingBalance,
		Note:             arg.Note,
		CreatedAt:        m.ts(),
	}
	m.entries = append(m.entries, e)
	record(func() {
		for i := range m.entries {
			if m.entries[i].ID == e.ID {
				m.entries = append(m.entries[:i], m.entries[i+1:]...)
				return
			}
		}
	})
	return e, nil
}

func (m *MemoryStore) ListLedgerEntries(ctx context.Context, arg db.ListLedgerEntriesParams) ([]db.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []db.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].CustomerID != arg.CustomerID {
			continue
		}
		items = append(items, m.entries[i])
		if arg.Limit > 0 && len(items) == int(arg.Limit) {
			break
		}
	}
	return items, nil
}

// --- cards ---

func (m *MemoryStore) CreateCard(ctx context.Context, arg db.CreateCardParams) (db.Card, error) {
	return m.createCard(arg, noUndo)
}

func (m *MemoryStore) createCard(arg db.CreateCardParams, record func(func())) (db.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.cards {
		if c.CustomerID == arg.CustomerID {
			return db.Card{}, &pgconn.PgError{Code: uniqueViolation, ConstraintName: "cards_customer_id_key"}
		}
	}
	now := m.ts()
	c := db.Card{
		ID:         arg.ID,
		CustomerID: arg.CustomerID,
		TemplateID: arg.TemplateID,
		AuthToken:  arg.AuthToken,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.cards[c.ID] = c
	record(func() { delete(m.cards, c.ID) })
	return c, nil
}

func (m *MemoryStore) GetCard(ctx context.Context, id string) (db.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cards[id]
	if !ok {
		return db.Card{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *MemoryStore) GetCardByCustomer(ctx context.Context, customerID string) (db.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.cards {
		if c.CustomerID == customerID {
			return c, nil
		}
	}
	return db.Card{}, pgx.ErrNoRows
}

func (m *MemoryStore) TouchCard(ctx context.Context, id string) error {
	return m.touchCard(id, noUndo)
}

func (m *MemoryStore) touchCard(id string, record func(func())) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.cards[id]
	if !ok {
		return nil
	}
	next := prev
	next.UpdatedAt = m.ts()
	m.cards[id] = next
	record(func() { m.cards[id] = prev })
	return nil
}

func (m *MemoryStore) GetCardTemplate(ctx context.Context, id string) (db.CardTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[id]
	if !ok {
		return db.CardTemplate{}, pgx.ErrNoRows
	}
	return t, nil
}

// --- wallet registrations ---

func (m *MemoryStore) UpsertAppleRegistration(ctx context.Context, arg db.UpsertAppleRegistrationParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cards[arg.Serial]; !ok {
		return false, &pgconn.PgError{Code: "23503", ConstraintName: "wallet_registrations_serial_fkey"}
	}
	for id, r := range m.registrations {
		if r.Platform == "apple" && r.DeviceID == arg.DeviceID && r.PassTypeID == arg.PassTypeID && r.Serial == arg.Serial {
			r.PushToken = arg.PushToken
			r.UpdatedAt = m.ts()
			m.registrations[id] = r
			return false, nil
		}
	}
	m.nextRegID++
	now := m.ts()
	m.registrations[m.nextRegID] = db.WalletRegistration{
		ID:         m.nextRegID,
		Platform:   "apple",
		Serial:     arg.Serial,
		PassTypeID: arg.PassTypeID,
		DeviceID:   arg.DeviceID,
		PushToken:  arg.PushToken,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return true, nil
}

func (m *MemoryStore) DeleteAppleRegistration(ctx context.Context, arg db.DeleteAppleRegistrationParams) (int64, error) {
	return m.deleteRegistrations(func(r db.WalletRegistration) bool {
		return r.Platform == "apple" && r.DeviceID == arg.DeviceID && r.PassTypeID == arg.PassTypeID && r.Serial == arg.Serial
	}), nil
}

func (m *MemoryStore) DeleteAppleRegistrationByToken(ctx context.Context, arg db.DeleteAppleRegistrationByTokenParams) (int64, error) {
	return m.deleteRegistrations(func(r db.WalletRegistration) bool {
		return r.Platform == "apple" && r.DeviceID == arg.DeviceID && r.PassTypeID == arg.PassTypeID &&
			r.Serial == arg.Serial && r.PushToken == arg.PushToken
	}), nil
}

func (m *MemoryStore) UpsertGoogleRegistration(ctx context.Context, arg db.UpsertGoogleRegistrationParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cards[arg.Serial]; !ok {
		return false, &pgconn.PgError{Code: "23503", ConstraintName: "wallet_registrations_serial_fkey"}
	}
	for id, r := range m.registrations {
		if r.Platform == "google" && r.ObjectID == arg.ObjectID {
			r.Serial = arg.Serial
			r.UpdatedAt = m.ts()
			m.registrations[id] = r
			return false, nil
		}
	}
	m.nextRegID++
	now := m.ts()
	m.registrations[m.nextRegID] = db.WalletRegistration{
		ID:        m.nextRegID,
		Platform:  "google",
		Serial:    arg.Serial,
		ObjectID:  arg.ObjectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (m *MemoryStore) DeleteGoogleRegistration(ctx context.Context, objectID string) (int64, error) {
	return m.deleteRegistrations(func(r db.WalletRegistration) bool {
		return r.Platform == "google" && r.ObjectID == objectID
	}), nil
}

func (m *MemoryStore) deleteRegistrations(match func(db.WalletRegistration) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, r := range m.registrations {
		if match(r) {
			delete(m.registrations, id)
			n++
		}
	}
	return n
}

func (m *MemoryStore) ListRegistrationsBySerial(ctx context.Context, serial string) ([]db.WalletRegistration, error) {
	return m.listRegistrations(func(r db.WalletRegistration) bool { return r.Serial == serial }), nil
}

func (m *MemoryStore) ListRegistrationsByDevice(ctx context.Context, arg db.ListRegistrationsByDeviceParams) ([]db.WalletRegistration, error) {
	return m.listRegistrations(func(r db.WalletRegistration) bool {
		return r.Platform == "apple" && r.DeviceID == arg.DeviceID && r.PassTypeID == arg.PassTypeID
	}), nil
}

func (m *MemoryStore) listRegistrations(match func(db.WalletRegistration) bool) []db.WalletRegistration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []db.WalletRegistration
	for _, r := range m.registrations {
		if match(r) {
			items = append(items, r)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (m *MemoryStore) ListUpdatedSerials(ctx context.Context, arg db.ListUpdatedSerialsParams) ([]db.ListUpdatedSerialsRow, error) {
	regs, _ := m.ListRegistrationsByDevice(ctx, db.ListRegistrationsByDeviceParams{
		DeviceID:   arg.DeviceID,
		PassTypeID: arg.PassTypeID,
	})

	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []db.ListUpdatedSerialsRow
	for _, r := range regs {
		c, ok := m.cards[r.Serial]
		if !ok {
			continue
		}
		if arg.UpdatedAt.Valid && !c.UpdatedAt.Time.After(arg.UpdatedAt.Time) {
			continue
		}
		items = append(items, db.ListUpdatedSerialsRow{ID: c.ID, UpdatedAt: c.UpdatedAt})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.Time.Before(items[j].UpdatedAt.Time) })
	return items, nil
}

// --- push subscriptions ---

func (m *MemoryStore) UpsertPushSubscription(ctx context.Context, arg db.UpsertPushSubscriptionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[arg.Endpoint]
	if !ok {
		sub = db.PushSubscription{Endpoint: arg.Endpoint, CreatedAt: m.ts()}
	}
	sub.P256dh = arg.P256dh
	sub.Auth = arg.Auth
	sub.OwnerID = arg.OwnerID
	sub.CustomerID = arg.CustomerID
	m.subscriptions[arg.Endpoint] = sub
	return nil
}

func (m *MemoryStore) DeletePushSubscription(ctx context.Context, endpoint string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subscriptions[endpoint]; !ok {
		return 0, nil
	}
	delete(m.subscriptions, endpoint)
	return 1, nil
}

func (m *MemoryStore) ListPushSubscriptionsByCustomer(ctx context.Context, customerID pgtype.Text) ([]db.PushSubscription, error) {
	return m.listSubscriptions(func(s db.PushSubscription) bool { return s.CustomerID == customerID }), nil
}

func (m *MemoryStore) ListPushSubscriptionsByOwner(ctx context.Context, ownerID pgtype.Text) ([]db.PushSubscription, error) {
	return m.listSubscriptions(func(s db.PushSubscription) bool { return s.OwnerID == ownerID }), nil
}

func (m *MemoryStore) listSubscriptions(match func(db.PushSubscription) bool) []db.PushSubscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []db.PushSubscription
	for _, s := range m.subscriptions {
		if match(s) {
			items = append(items, s)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Time.Equal(items[j].CreatedAt.Time) {
			return items[i].Endpoint < items[j].Endpoint
		}
		return items[i].CreatedAt.Time.Before(items[j].CreatedAt.Time)
	})
	return items
}
