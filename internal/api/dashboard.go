package api

import "net/http"

// pagePaths are the routes the page switches between client-side.
var pagePaths = []string{"/", "/dashboard", "/commands", "/quotes", "/help"}

// dashboardHandler serves the embedded dashboard page.
func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(dashboardHTML))
}
