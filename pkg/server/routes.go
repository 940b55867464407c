package server

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

//go:embed templates/*
var templateFiles embed.FS

// routes registers all HTTP routes and wraps them in the middleware stack.
func (s *Server) routes() (http.Handler, error) {
	mux := http.NewServeMux()

	index, err := template.ParseFS(templateFiles, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse index template: %w", err)
	}

	content, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create sub filesystem: %w", err)
	}

	mux.Handle("/{$}", s.indexHandler(index))
	mux.HandleFunc("/fragment", s.handleFragment)
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/metrics", s.handlePrometheus)

	// Everything else is a static asset.
	mux.Handle("/", http.FileServer(http.FS(content)))

	var handler http.Handler = mux
	handler = securityHeadersMiddleware(handler)
	handler = noCacheMiddleware(handler)
	if s.limiter != nil {
		handler = newRateLimitMiddleware(s.limiter)(handler)
	}
	handler = requireGET(handler)
	return handler, nil
}
