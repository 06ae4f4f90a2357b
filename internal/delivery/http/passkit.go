package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/azizikri/loyalty-wallet/internal/domain"
	"github.com/azizikri/loyalty-wallet/internal/wallet/apple"
)

const authScheme = "ApplePass "

// passKitRoutes serves the web service Apple Wallet calls for registered
// passes.
func (h *Handler) passKitRoutes(r chi.Router) {
	r.Route("/devices/{deviceID}/registrations/{passTypeID}", func(r chi.Router) {
		r.Get("/", h.UpdatedPasses)
		r.Post("/{serial}", h.RegisterDevice)
		r.Delete("/{serial}", h.UnregisterDevice)
	})
	r.Get("/passes/{passTypeID}/{serial}", h.LatestPass)
	r.Post("/log", h.DeviceLog)
}

// passToken extracts the token from an "ApplePass <token>" header.
func passToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, authScheme) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, authScheme))
}

func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest
	if err := Decode(r, &req); err != nil {
		WriteError(w, h.logger, err)
		return
	}

	created, err := h.directory.RegisterDevice(r.Context(),
		chi.URLParam(r, "deviceID"),
		chi.URLParam(r, "passTypeID"),
		chi.URLParam(r, "serial"),
		req.PushToken,
		passToken(r),
	)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}

	if created {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	err := h.directory.UnregisterDevice(r.Context(),
		chi.URLParam(r, "deviceID"),
		chi.URLParam(r, "passTypeID"),
		chi.URLParam(r, "serial"),
		passToken(r),
	)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type UpdatedPassesResponse struct {
	SerialNumbers []string `json:"serialNumbers"`
	LastUpdated   string   `json:"lastUpdated"`
}

// UpdatedPasses lists serials changed since the passesUpdatedSince tag. The
// tag is the lastUpdated value of a previous response; an unparsable tag is
// treated as absent.
func (h *Handler) UpdatedPasses(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if tag := r.URL.Query().Get("passesUpdatedSince"); tag != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, tag); err == nil {
			since = parsed
		}
	}

	serials, last, err := h.directory.UpdatedSerials(r.Context(),
		chi.URLParam(r, "deviceID"),
		chi.URLParam(r, "passTypeID"),
		since,
	)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if len(serials) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	WriteJSON(w, http.StatusOK, UpdatedPassesResponse{
		SerialNumbers: serials,
		LastUpdated:   last.UTC().Format(time.RFC3339Nano),
	})
}

// LatestPass returns the current .pkpass for an authenticated device, or 304
// when it has not changed since If-Modified-Since.
func (h *Handler) LatestPass(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	if _, err := h.directory.AuthorizeCard(r.Context(), serial, passToken(r)); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if configured := h.cards.PassTypeID(); configured != "" && configured != chi.URLParam(r, "passTypeID") {
		WriteError(w, h.logger, domain.ErrNotFound)
		return
	}

	pass, err := h.cards.PassData(r.Context(), serial)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if since, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil {
		if !pass.UpdatedAt.Truncate(time.Second).After(since) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	data, pass, err := h.cards.RenderApple(r.Context(), serial)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	writePass(w, serial, data, pass.UpdatedAt)
}

type DeviceLogRequest struct {
	Logs []string `json:"logs"`
}

func (h *Handler) DeviceLog(w http.ResponseWriter, r *http.Request) {
	var req DeviceLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, line := range req.Logs {
		h.logger.Warn().Str("source", "passkit").Msg(line)
	}
	w.WriteHeader(http.StatusOK)
}

func writePass(w http.ResponseWriter, serial string, data []byte, updatedAt time.Time) {
	h := w.Header()
	h.Set("Content-Type", apple.ContentType)
	h.Set("Content-Disposition", `attachment; filename="`+serial+`.pkpass"`)
	h.Set("Last-Modified", updatedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
