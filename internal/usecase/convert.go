package usecase

import (
	"context"
	"errors"

	db "github.com/azizikri/loyalty-wallet/db/gen"
	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/repository"
	"github.com/jackc/pgx/v5"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func toCustomer(c db.Customer) domain.Customer {
	return domain.Customer{
		ID:         c.ID,
		OwnerID:    c.OwnerID,
		FullName:   c.FullName,
		Phone:      c.Phone.String,
		Email:      c.Email.String,
		Points:     int(c.Points),
		MemberID:   c.MemberID,
		CardID:     c.CardID.String,
		TemplateID: c.TemplateID.String,
		CreatedAt:  c.CreatedAt.Time,
		UpdatedAt:  c.UpdatedAt.Time,
	}
}

func toEntry(e db.LedgerEntry) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:               e.ID,
		CustomerID:       e.CustomerID,
		Delta:            int(e.Delta),
		Reason:           domain.Reason(e.Reason),
		ResultingBalance: int(e.ResultingBalance),
		Note:             e.Note,
		CreatedAt:        e.CreatedAt.Time,
	}
}

func toCard(c db.Card) domain.Card {
	return domain.Card{
		ID:         c.ID,
		CustomerID: c.CustomerID,
		TemplateID: c.TemplateID.String,
		AuthToken:  c.AuthToken,
		CreatedAt:  c.CreatedAt.Time,
		UpdatedAt:  c.UpdatedAt.Time,
	}
}

func toRegistration(r db.WalletRegistration) domain.WalletRegistration {
	return domain.WalletRegistration{
		ID:         r.ID,
		Platform:   domain.Platform(r.Platform),
		Serial:     r.Serial,
		PassTypeID: r.PassTypeID,
		DeviceID:   r.DeviceID,
		PushToken:  r.PushToken,
		ObjectID:   r.ObjectID,
		CreatedAt:  r.CreatedAt.Time,
	}
}

func toSubscription(s db.PushSubscription) domain.PushSubscription {
	return domain.PushSubscription{
		Endpoint:   s.Endpoint,
		P256dh:     s.P256dh,
		Auth:       s.Auth,
		OwnerID:    s.OwnerID.String,
		CustomerID: s.CustomerID.String,
		CreatedAt:  s.CreatedAt.Time,
	}
}

// loadTemplate resolves the template a card renders with, falling back to
// the default one when none is assigned or it no longer exists.
func loadTemplate(ctx context.Context, store repository.Store, ids ...string) (domain.CardTemplate, error) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		t, err := store.GetCardTemplate(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return domain.CardTemplate{}, err
		}
		return domain.CardTemplate{
			ID:              t.ID,
			OwnerID:         t.OwnerID,
			Name:            t.Name,
			BackgroundColor: t.BackgroundColor,
			ForegroundColor: t.ForegroundColor,
			LabelColor:      t.LabelColor,
			LogoText:        t.LogoText,
			BarcodeFormat:   t.BarcodeFormat,
			PointsLabel:     t.PointsLabel,
			NameLabel:       t.NameLabel,
			MemberLabel:     t.MemberLabel,
			Description:     t.Description,
			ImageDir:        t.ImageDir,
		}, nil
	}
	return domain.DefaultTemplate(), nil
}
