package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/types"
)

// SettingsRes is the response type for GET /api/settings.
type SettingsRes struct {
	Settings  types.Settings  `json:"settings"`
	Overrides types.Overrides `json:"overrides"`
	Effective types.Settings  `json:"effective"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := s.controller.Settings(ctx)
	if err != nil {
		writeControllerError(ctx, w, "failed to get settings", err)
		return
	}
	overrides, err := s.controller.Overrides(ctx)
	if err != nil {
		writeControllerError(ctx, w, "failed to get overrides", err)
		return
	}
	writeJSON(w, SettingsRes{
		Settings:  settings,
		Overrides: overrides,
		Effective: settings.WithOverrides(overrides),
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// start from the stored settings so partial bodies only change what they name
	settings, err := s.controller.Settings(ctx)
	if err != nil {
		writeControllerError(ctx, w, "failed to get settings", err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode settings", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.controller.SetSettings(ctx, settings, s.now()); err != nil {
		writeControllerError(ctx, w, "failed to save settings", err)
		return
	}
	writeJSON(w, settings)
}

func (s *Server) handleGetOverrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overrides, err := s.controller.Overrides(ctx)
	if err != nil {
		writeControllerError(ctx, w, "failed to get overrides", err)
		return
	}
	writeJSON(w, overrides)
}

// handleUpdateOverrides replaces the overrides. Fields sent as null or left
// out fall back to the stored settings.
func (s *Server) handleUpdateOverrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var overrides types.Overrides
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode overrides", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.controller.SetOverrides(ctx, overrides, s.now()); err != nil {
		writeControllerError(ctx, w, "failed to save overrides", err)
		return
	}
	writeJSON(w, overrides)
}
