package usecase

import (
	"context"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/wallet"
)

// BalanceListener is told about every committed balance change, in commit
// order per customer.
type BalanceListener interface {
	OnBalanceChanged(ctx context.Context, ev domain.BalanceEvent)
}

// WalletNotifier propagates a customer's post-commit balance to every wallet
// holding their card.
type WalletNotifier interface {
	Dispatch(ctx context.Context, customer domain.Customer) domain.ChannelReport
}

type PushNotifier interface {
	SendToCustomer(ctx context.Context, customerID string, payload domain.PushPayload) domain.ChannelReport
	SendToOwner(ctx context.Context, ownerID string, payload domain.PushPayload) domain.ChannelReport
}

type PassRenderer interface {
	Configured() bool
	PassTypeID() string
	Render(ctx context.Context, p wallet.PassData) ([]byte, error)
}

type APNsNotifier interface {
	Notify(ctx context.Context, passTypeID, pushToken string) error
}

type GoogleWallet interface {
	Configured() bool
	ObjectID(serial string) string
	SaveURL(ctx context.Context, p wallet.PassData) (string, error)
	PatchBalance(ctx context.Context, objectID string, p wallet.PassData) error
}
