package engine

import (
	"encoding/json"
	"net/http"

	"snipebot-go/internal/filter"
	"snipebot-go/internal/history"
)

// RegisterHandlers mounts the read-only dashboard endpoints next to the
// metrics handler.
func (e *Engine) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/positions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, e.manager.Snapshot())
	})
	mux.HandleFunc("/capital", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, e.book.Snapshot())
	})
	mux.HandleFunc("/trades", func(w http.ResponseWriter, _ *http.Request) {
		// The durable record outlives the process; fall back to the
		// in-memory tail when persistence is off.
		if e.recorder != nil {
			if recent, err := e.recorder.ReadRecent(200); err == nil {
				writeJSON(w, recent)
				return
			}
		}
		e.mu.Lock()
		recent := make([]history.Closed, 0, len(e.recent))
		for i := len(e.recent) - 1; i >= 0; i-- {
			recent = append(recent, e.recent[i])
		}
		e.mu.Unlock()
		writeJSON(w, recent)
	})
	mux.HandleFunc("/rules", func(w http.ResponseWriter, _ *http.Request) {
		e.mu.Lock()
		drops := append([]filter.Drop(nil), e.drops...)
		e.mu.Unlock()
		writeJSON(w, map[string]any{
			"filter":    e.cfg.Filter,
			"exits":     e.cfg.Exits,
			"rotation":  e.cfg.Rotation,
			"last_scan": drops,
		})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
