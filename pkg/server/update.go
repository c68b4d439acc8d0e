package server

import (
	"log/slog"
	"net/http"

	"github.com/bitosome/real-electricity-price/pkg/log"
)

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	window, err := s.controller.Refresh(ctx, s.now())
	if err != nil {
		writeControllerError(ctx, w, "failed to refresh prices", err)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "manual refresh done", slog.Bool("tomorrow", window.Tomorrow.DataAvailable))
	writeJSON(w, window)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := s.controller.Analyze(ctx, s.now())
	if err != nil {
		writeControllerError(ctx, w, "failed to recalculate cheap periods", err)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "manual recalculation done", slog.Int("ranges", len(res.CheapRanges)))
	writeJSON(w, res)
}
