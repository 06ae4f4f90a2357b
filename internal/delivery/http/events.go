package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/realtime"
)

type OwnerSnapshot struct {
	OwnerID   string            `json:"ownerId"`
	Customers []domain.Customer `json:"customers"`
}

// AdminSnapshot counts the open streams per role.
type AdminSnapshot struct {
	Streams map[string]int `json:"streams"`
}

func (h *Handler) AdminEvents(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, realtime.AdminKey(), func(ctx context.Context) (any, error) {
		return AdminSnapshot{Streams: h.broadcaster.Stats()}, nil
	})
}

func (h *Handler) OwnerEvents(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	h.stream(w, r, realtime.OwnerKey(ownerID), func(ctx context.Context) (any, error) {
		customers, err := h.ledger.ListByOwner(ctx, ownerID, 0)
		if err != nil {
			return nil, err
		}
		if customers == nil {
			customers = []domain.Customer{}
		}
		return OwnerSnapshot{OwnerID: ownerID, Customers: customers}, nil
	})
}

func (h *Handler) CustomerEvents(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	h.stream(w, r, realtime.CustomerKey(customerID), func(ctx context.Context) (any, error) {
		return h.ledger.GetCustomer(ctx, customerID)
	})
}

// stream serves an event stream. Errors raised before the stream started
// (snapshot failure, no flush support) are reported as regular responses.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, key realtime.Key, snapshot realtime.Snapshot) {
	if _, ok := w.(http.Flusher); !ok {
		WriteError(w, h.logger, realtime.ErrStreamingUnsupported)
		return
	}

	sw := &statusWriter{ResponseWriter: w}
	err := h.broadcaster.Serve(r.Context(), sw, key, snapshot)
	switch {
	case err == nil:
	case sw.status == 0:
		WriteError(w, h.logger, err)
	default:
		h.logger.Debug().Err(err).Str("key", key.String()).Msg("event stream ended")
	}
}
