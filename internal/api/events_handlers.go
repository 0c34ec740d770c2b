package api

import "net/http"

// The event stream is plain SSE and never goes through huma: the protocol
// is line-oriented text with per-event flushes, not a JSON document.

func (s *Server) registerEventRoutes() {
	s.router.Get(eventsPath, s.handleEvents)
}

// handleEvents upgrades the request to an SSE stream. EventSource cannot set
// an Authorization header, so the route also accepts access_token in the
// query string.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	r = s.withQueryToken(r)
	if !s.rawRequireOwner(w, r) {
		return
	}
	s.stream.ServeHTTP(w, r)
}
