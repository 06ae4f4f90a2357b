package http

import (
	"fmt"
	"net/http"

	"github.com/azizikri/loyalty-wallet/internal/domain"
)

func (h *Handler) PushPublicKey(w http.ResponseWriter, r *http.Request) {
	if h.push == nil || !h.push.Configured() {
		WriteError(w, h.logger, fmt.Errorf("web push: %w", domain.ErrWalletConfigMissing))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"publicKey": h.push.PublicKey()})
}

func (h *Handler) PushSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := Decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	err := h.directory.Subscribe(r.Context(), domain.PushSubscription{
		Endpoint:   req.Endpoint,
		P256dh:     req.Keys.P256dh,
		Auth:       req.Keys.Auth,
		OwnerID:    req.OwnerID,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) PushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req UnsubscribeRequest
	if err := Decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := h.directory.Unsubscribe(r.Context(), req.Endpoint); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PushBroadcast sends a message to every subscription of an owner and
// returns the delivery report.
func (h *Handler) PushBroadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := Decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	report := domain.SkippedReport()
	if h.push != nil {
		report = h.push.SendToOwner(r.Context(), req.OwnerID, domain.PushPayload{
			Title:   req.Title,
			Body:    req.Body,
			URL:     req.URL,
			IconURL: req.IconURL,
		})
	}
	WriteJSON(w, http.StatusOK, report)
}
