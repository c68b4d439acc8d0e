package server

import (
	"net/http"
	"time"

	"github.com/bitosome/real-electricity-price/pkg/types"
)

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	window, ok := s.controller.Window()
	if !ok {
		writeJSONError(w, "prices not loaded yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, window)
}

// CurrentRes is the response type for GET /api/current.
type CurrentRes struct {
	types.CurrentPrice
	CheapNow    bool              `json:"cheapNow"`
	ActiveRange *types.CheapRange `json:"activeRange"`
	NextRange   *types.CheapRange `json:"nextRange"`
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	if at := r.URL.Query().Get("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			writeJSONError(w, "invalid at, expected RFC3339", http.StatusBadRequest)
			return
		}
		now = t
	}

	resp := CurrentRes{CurrentPrice: s.controller.Current(now)}
	if res, ok := s.controller.Analysis(); ok {
		if cr, ok := res.ActiveRange(now); ok {
			resp.CheapNow = true
			resp.ActiveRange = &cr
		}
		if cr, ok := res.NextRange(now); ok {
			resp.NextRange = &cr
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleCheap(w http.ResponseWriter, r *http.Request) {
	res, ok := s.controller.Analysis()
	if !ok {
		writeJSONError(w, "no analysis yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, res)
}
