package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	db "github.com/azizikri/loyalty-wallet/db/gen"
	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/repository"
	"github.com/azizikri/loyalty-wallet/internal/wallet"
)

// CardService issues cards and renders them for the wallet platforms. Passes
// are rendered from the stored balance on every request.
type CardService struct {
	store     repository.Store
	directory *DirectoryService
	renderer  PassRenderer
	google    GoogleWallet
	logger    zerolog.Logger
}

func NewCardService(store repository.Store, directory *DirectoryService, renderer PassRenderer, google GoogleWallet, logger zerolog.Logger) *CardService {
	return &CardService{
		store:     store,
		directory: directory,
		renderer:  renderer,
		google:    google,
		logger:    logger.With().Str("component", "cards").Logger(),
	}
}

// IssueCard returns the customer's card, creating it on first use.
func (s *CardService) IssueCard(ctx context.Context, customerID string) (domain.Card, bool, error) {
	var (
		card    db.Card
		created bool
	)
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		customer, err := q.GetCustomerForUpdate(ctx, customerID)
		if err != nil {
			return notFound(err)
		}

		card, err = q.GetCardByCustomer(ctx, customerID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		card, err = q.CreateCard(ctx, db.CreateCardParams{
			ID:         uuid.NewString(),
			CustomerID: customerID,
			TemplateID: customer.TemplateID,
			AuthToken:  newAuthToken(),
		})
		if err != nil {
			return err
		}
		created = true
		return q.SetCustomerCard(ctx, db.SetCustomerCardParams{ID: customerID, CardID: repository.Text(card.ID)})
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost a race with a concurrent issue for the same customer.
			existing, getErr := s.store.GetCardByCustomer(ctx, customerID)
			if getErr == nil {
				return toCard(existing), false, nil
			}
		}
		return domain.Card{}, false, err
	}

	if created {
		s.logger.Info().Str("customer_id", customerID).Str("card_id", card.ID).Msg("card issued")
	}
	return toCard(card), created, nil
}

// newAuthToken returns a 32 character random token, above the 16 character
// minimum PassKit accepts.
func newAuthToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PassData loads the current state of a card for rendering.
func (s *CardService) PassData(ctx context.Context, cardID string) (wallet.PassData, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return wallet.PassData{}, notFound(err)
	}
	customer, err := s.store.GetCustomer(ctx, card.CustomerID)
	if err != nil {
		return wallet.PassData{}, notFound(err)
	}
	tmpl, err := loadTemplate(ctx, s.store, customer.TemplateID.String, card.TemplateID.String)
	if err != nil {
		return wallet.PassData{}, err
	}
	return wallet.NewPassData(toCard(card), toCustomer(customer), tmpl), nil
}

// RenderApple builds the .pkpass for cardID.
func (s *CardService) RenderApple(ctx context.Context, cardID string) ([]byte, wallet.PassData, error) {
	if s.renderer == nil || !s.renderer.Configured() {
		return nil, wallet.PassData{}, domain.ErrWalletConfigMissing
	}
	p, err := s.PassData(ctx, cardID)
	if err != nil {
		return nil, wallet.PassData{}, err
	}
	data, err := s.renderer.Render(ctx, p)
	if err != nil {
		return nil, wallet.PassData{}, fmt.Errorf("render pass %s: %w", cardID, err)
	}
	return data, p, nil
}

func (s *CardService) PassTypeID() string {
	if s.renderer == nil {
		return ""
	}
	return s.renderer.PassTypeID()
}

// GoogleSaveURL returns the save link and records the object so later
// balance changes patch it.
func (s *CardService) GoogleSaveURL(ctx context.Context, cardID string) (string, error) {
	if s.google == nil || !s.google.Configured() {
		return "", domain.ErrWalletConfigMissing
	}
	p, err := s.PassData(ctx, cardID)
	if err != nil {
		return "", err
	}
	saveURL, err := s.google.SaveURL(ctx, p)
	if err != nil {
		return "", fmt.Errorf("google save url %s: %w", cardID, err)
	}
	if _, err := s.directory.RegisterGoogleObject(ctx, p.Serial, s.google.ObjectID(p.Serial)); err != nil {
		return "", fmt.Errorf("record google object: %w", err)
	}
	return saveURL, nil
}
