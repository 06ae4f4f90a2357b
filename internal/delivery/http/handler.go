package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/realtime"
	"github.com/azizikri/loyalty-wallet/internal/usecase"
)

// PushService is the browser push side used by the push routes.
type PushService interface {
	Configured() bool
	PublicKey() string
	SendToOwner(ctx context.Context, ownerID string, payload domain.PushPayload) domain.ChannelReport
}

type Services struct {
	Ledger      *usecase.LedgerService
	Cards       *usecase.CardService
	Directory   *usecase.DirectoryService
	Push        PushService
	Broadcaster *realtime.Broadcaster
}

type Handler struct {
	ledger      *usecase.LedgerService
	cards       *usecase.CardService
	directory   *usecase.DirectoryService
	push        PushService
	broadcaster *realtime.Broadcaster
	logger      zerolog.Logger
}

func NewHandler(s Services, logger zerolog.Logger) *Handler {
	return &Handler{
		ledger:      s.Ledger,
		cards:       s.Cards,
		directory:   s.Directory,
		push:        s.Push,
		broadcaster: s.Broadcaster,
		logger:      logger.With().Str("component", "http").Logger(),
	}
}

type MutationResponse struct {
	Customer         domain.Customer      `json:"customer"`
	Balance          int                  `json:"balance"`
	Entry            domain.LedgerEntry   `json:"entry"`
	WalletUpdate     domain.ChannelReport `json:"walletUpdate"`
	PushNotification domain.ChannelReport `json:"pushNotification"`
}

type CardResponse struct {
	Card    domain.Card `json:"card"`
	Created bool        `json:"created"`
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/customers", h.Enroll)
		r.Get("/owners/{ownerID}/customers", h.ListCustomers)
		r.Route("/customers/{id}", func(r chi.Router) {
			r.Get("/", h.GetCustomer)
			r.Get("/transactions", h.Transactions)
			r.Post("/points/earn", h.Earn)
			r.Post("/points/redeem", h.Redeem)
			r.Post("/points/adjust", h.Adjust)
			r.Post("/card", h.IssueCard)
		})

		r.Get("/cards/{cardID}/apple", h.ApplePass)
		r.Get("/cards/{cardID}/google", h.GoogleSaveURL)

		r.Route("/push", func(r chi.Router) {
			r.Get("/public-key", h.PushPublicKey)
			r.Post("/subscribe", h.PushSubscribe)
			r.Post("/unsubscribe", h.PushUnsubscribe)
			r.Post("/broadcast", h.PushBroadcast)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/admin", h.AdminEvents)
			r.Get("/owner/{ownerID}", h.OwnerEvents)
			r.Get("/customer/{customerID}", h.CustomerEvents)
		})
	})

	r.Route("/wallet/v1", h.passKitRoutes)
}

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := Decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	customer, err := h.ledger.Enroll(r.Context(), usecase.EnrollParams{
		OwnerID:    req.OwnerID,
		FullName:   req.FullName,
		Phone:      req.Phone,
		Email:      req.Email,
		TemplateID: req.TemplateID,
	})
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, customer)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.ledger.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, customer)
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.ledger.ListByOwner(r.Context(), chi.URLParam(r, "ownerID"), queryLimit(r))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if customers == nil {
		customers = []domain.Customer{}
	}
	WriteJSON(w, http.StatusOK, customers)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.History(r.Context(), chi.URLParam(r, "id"), queryLimit(r))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) Earn(w http.ResponseWriter, r *http.Request) {
	var req EarnRequest
	if err := Decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	res, err := h.ledger.Earn(r.Context(), chi.URLParam(r, "id"), req.Delta)
	h.writeMutation(w, res, err)
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := Decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	res, err := h.ledger.Redeem(r.Context(), chi.URLParam(r, "id"), req.Amount)
	h.writeMutation(w, res, err)
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := Decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	res, err := h.ledger.Adjust(r.Context(), chi.URLParam(r, "id"), req.Delta, req.Note)
	h.writeMutation(w, res, err)
}

func (h *Handler) writeMutation(w http.ResponseWriter, res *usecase.MutationResult, err error) {
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, MutationResponse{
		Customer:         res.Customer,
		Balance:          res.Customer.Points,
		Entry:            res.Entry,
		WalletUpdate:     res.WalletUpdate,
		PushNotification: res.PushNotification,
	})
}

func (h *Handler) IssueCard(w http.ResponseWriter, r *http.Request) {
	card, created, err := h.cards.IssueCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, CardResponse{Card: card, Created: created})
}

func (h *Handler) ApplePass(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	data, pass, err := h.cards.RenderApple(r.Context(), cardID)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writePass(w, cardID, data, pass.UpdatedAt)
}

func (h *Handler) GoogleSaveURL(w http.ResponseWriter, r *http.Request) {
	saveURL, err := h.cards.GoogleSaveURL(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"saveUrl": saveURL})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
