package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/repository"
	"github.com/azizikri/loyalty-wallet/internal/wallet"
)

// mockStore overrides single store operations; everything else goes to the
// embedded store.
type mockStore struct {
	repository.Store
	execTxFn func(ctx context.Context, fn func(repository.Querier) error) error
}

func (m *mockStore) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	if m.execTxFn != nil {
		return m.execTxFn(ctx, fn)
	}
	return m.Store.ExecTx(ctx, fn)
}

type mockAPNs struct {
	mu       sync.Mutex
	notifyFn func(ctx context.Context, passTypeID, pushToken string) error
	tokens   []string
}

func (m *mockAPNs) Notify(ctx context.Context, passTypeID, pushToken string) error {
	m.mu.Lock()
	m.tokens = append(m.tokens, pushToken)
	m.mu.Unlock()
	if m.notifyFn != nil {
		return m.notifyFn(ctx, passTypeID, pushToken)
	}
	return nil
}

type mockGoogle struct {
	mu      sync.Mutex
	patchFn func(ctx context.Context, objectID string, p wallet.PassData) error
	patched map[string]int
}

func (m *mockGoogle) Configured() bool { return true }

func (m *mockGoogle) ObjectID(serial string) string { return "issuer." + serial }

func (m *mockGoogle) SaveURL(ctx context.Context, p wallet.PassData) (string, error) {
	return "https://pay.google.com/gp/v/save/token-for-" + p.Serial, nil
}

func (m *mockGoogle) PatchBalance(ctx context.Context, objectID string, p wallet.PassData) error {
	m.mu.Lock()
	if m.patched == nil {
		m.patched = make(map[string]int)
	}
	m.patched[objectID] = p.Balance()
	m.mu.Unlock()
	if m.patchFn != nil {
		return m.patchFn(ctx, objectID, p)
	}
	return nil
}

type recordingListener struct {
	mu     sync.Mutex
	events []domain.BalanceEvent
}

func (l *recordingListener) OnBalanceChanged(ctx context.Context, ev domain.BalanceEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *recordingListener) Events() []domain.BalanceEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.BalanceEvent(nil), l.events...)
}

type walletNotifierFunc func(ctx context.Context, customer domain.Customer) domain.ChannelReport

func (f walletNotifierFunc) Dispatch(ctx context.Context, customer domain.Customer) domain.ChannelReport {
	return f(ctx, customer)
}

type fixture struct {
	store     *repository.MemoryStore
	directory *DirectoryService
	cards     *CardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemory()
	directory := NewDirectoryService(store, zerolog.Nop())
	return &fixture{
		store:     store,
		directory: directory,
		cards:     NewCardService(store, directory, nil, nil, zerolog.Nop()),
	}
}

// enroll creates a customer holding points, with a card when withCard is set.
func (f *fixture) enroll(t *testing.T, points int, withCard bool) domain.Customer {
	t.Helper()
	ctx := context.Background()
	ledger := NewLedgerService(f.store, zerolog.Nop())

	c, err := ledger.Enroll(ctx, EnrollParams{OwnerID: "owner-1", FullName: "Ana Lima"})
	require.NoError(t, err)
	if withCard {
		_, _, err := f.cards.IssueCard(ctx, c.ID)
		require.NoError(t, err)
	}
	if points > 0 {
		remaining := points
		for remaining > 0 {
			step := min(remaining, MaxDelta)
			_, err := ledger.Earn(ctx, c.ID, step)
			require.NoError(t, err)
			remaining -= step
		}
	}
	c, err = ledger.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	return c
}
