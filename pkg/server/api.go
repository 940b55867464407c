package server

import (
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/kylerisse/hostboard/pkg/widget"
)

// StateAPIResponse is the body of /api/state.
type StateAPIResponse struct {
	State      widget.State `json:"state"`
	IntervalMS int64        `json:"interval_ms"`
	Endpoint   string       `json:"endpoint,omitempty"`
	Clients    int          `json:"clients"`
	Stats      widget.Stats `json:"stats"`
}

type indexView struct {
	Endpoint string
	Interval time.Duration
	Rows     template.HTML
}

// indexHandler renders the dashboard page with the current rows already in
// hostTableBody so the table is filled before the websocket connects.
func (s *Server) indexHandler(tmpl *template.Template) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		view := indexView{
			Endpoint: s.endpoint,
			Interval: s.widget.Interval(),
			// Markup comes from the renderer, which escapes every field.
			Rows: template.HTML(s.hub.Markup()),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, view); err != nil {
			s.logger.Errorf("Failed to render index page: %v", err)
		}
	})
}

// handleFragment returns the current contents of hostTableBody.
func (s *Server) handleFragment(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, s.hub.Markup())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := StateAPIResponse{
		State:      s.widget.State(),
		IntervalMS: s.widget.Interval().Milliseconds(),
		Endpoint:   s.endpoint,
		Clients:    s.hub.Clients(),
		Stats:      s.widget.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
