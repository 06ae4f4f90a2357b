package usecase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/azizikri/loyalty-wallet/db/gen"
	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/wallet"
)

type stubRenderer struct {
	rendered []wallet.PassData
}

func (r *stubRenderer) Configured() bool   { return true }
func (r *stubRenderer) PassTypeID() string { return "pass.com.example.loyalty" }

func (r *stubRenderer) Render(ctx context.Context, p wallet.PassData) ([]byte, error) {
	r.rendered = append(r.rendered, p)
	return []byte("pkpass"), nil
}

func TestIssueCard_Idempotent(t *testing.T) {
	f := newFixture(t)
	c := f.enroll(t, 0, false)
	ctx := context.Background()

	first, created, err := f.cards.IssueCard(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, first.AuthToken, 32)

	second, created, err := f.cards.IssueCard(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.AuthToken, second.AuthToken)

	got, err := f.store.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.CardID.String)
}

func TestIssueCard_UnknownCustomer(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.cards.IssueCard(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRenderApple_NotConfigured(t *testing.T) {
	f := newFixture(t)
	c := f.enroll(t, 0, true)

	_, _, err := f.cards.RenderApple(context.Background(), c.CardID)
	assert.ErrorIs(t, err, domain.ErrWalletConfigMissing)
	assert.Equal(t, domain.CodeWalletConfigMissing, domain.Code(err))
}

func TestRenderApple_UsesCurrentBalanceAndTemplate(t *testing.T) {
	f := newFixture(t)
	f.store.PutTemplate(db.CardTemplate{ID: "tpl-1", OwnerID: "owner-1", Name: "Coffee Club", PointsLabel: "Beans"})
	ledger := NewLedgerService(f.store, zerolog.Nop())
	ctx := context.Background()

	c, err := ledger.Enroll(ctx, EnrollParams{OwnerID: "owner-1", FullName: "Ana", TemplateID: "tpl-1"})
	require.NoError(t, err)
	card, _, err := f.cards.IssueCard(ctx, c.ID)
	require.NoError(t, err)

	renderer := &stubRenderer{}
	cards := NewCardService(f.store, f.directory, renderer, nil, zerolog.Nop())

	_, err = ledger.Earn(ctx, c.ID, 25)
	require.NoError(t, err)
	data, p, err := cards.RenderApple(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("pkpass"), data)
	assert.Equal(t, 25, p.Balance())
	assert.Equal(t, "Beans", p.Template.PointsLabel)

	_, err = ledger.Earn(ctx, c.ID, 5)
	require.NoError(t, err)
	_, p, err = cards.RenderApple(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, p.Balance())
	assert.Len(t, renderer.rendered, 2)

	_, _, err = cards.RenderApple(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGoogleSaveURL_RecordsRegistration(t *testing.T) {
	f := newFixture(t)
	c := f.enroll(t, 0, true)
	ctx := context.Background()
	cards := NewCardService(f.store, f.directory, nil, &mockGoogle{}, zerolog.Nop())

	url, err := cards.GoogleSaveURL(ctx, c.CardID)
	require.NoError(t, err)
	assert.Contains(t, url, c.CardID)

	_, err = cards.GoogleSaveURL(ctx, c.CardID)
	require.NoError(t, err)

	regs, err := f.directory.ListRegistrationsBySerial(ctx, c.CardID)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, domain.PlatformGoogle, regs[0].Platform)
	assert.Equal(t, "issuer."+c.CardID, regs[0].ObjectID)

	_, err = f.cards.GoogleSaveURL(ctx, c.CardID)
	assert.ErrorIs(t, err, domain.ErrWalletConfigMissing)
}
