package http

import (
	"net/http"
)

// RouterConfig collects the handlers and middleware of the API. Session is
// wrapped around routes that require a login, OptionalSession around public
// routes that render differently for owners, and RateLimit around login and
// registration.
type RouterConfig struct {
	Auth    *AuthHandler
	Users   *UserHandler
	Events  *EventHandler
	Changes *ChangeHandler

	Session         func(http.Handler) http.Handler
	OptionalSession func(http.Handler) http.Handler
	RateLimit       func(http.Handler) http.Handler
	Middleware      []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	protected := wrap(cfg.Session)
	optional := wrap(cfg.OptionalSession)
	limited := wrap(cfg.RateLimit)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.Auth != nil {
		mux.Handle("POST /sessions", limited(http.HandlerFunc(cfg.Auth.CreateSession)))
		mux.Handle("DELETE /sessions/current", protected(http.HandlerFunc(cfg.Auth.DeleteCurrentSession)))
	}

	if cfg.Users != nil {
		mux.Handle("POST /users", limited(http.HandlerFunc(cfg.Users.Register)))
		mux.Handle("GET /users/me", protected(http.HandlerFunc(cfg.Users.Me)))
	}

	if cfg.Events != nil {
		mux.Handle("GET /events", optional(http.HandlerFunc(cfg.Events.Nearby)))
		mux.Handle("POST /events", protected(http.HandlerFunc(cfg.Events.Create)))
		mux.Handle("GET /events/{id}", optional(http.HandlerFunc(cfg.Events.Get)))
		mux.Handle("DELETE /events/{id}", protected(http.HandlerFunc(cfg.Events.Delete)))
		mux.Handle("GET /events/{id}/calendar.ics", http.HandlerFunc(cfg.Events.Calendar))
		mux.Handle("GET /events/{id}/export.xlsx", protected(http.HandlerFunc(cfg.Events.Workbook)))
		mux.Handle("GET /users/me/events", protected(http.HandlerFunc(cfg.Events.Mine)))
	}

	if cfg.Changes != nil {
		mux.Handle("POST /events/{id}/changes", protected(http.HandlerFunc(cfg.Changes.Propose)))
		mux.Handle("GET /changes/{id}", protected(http.HandlerFunc(cfg.Changes.Get)))
		mux.Handle("POST /changes/{id}/confirm", protected(http.HandlerFunc(cfg.Changes.Confirm)))
		mux.Handle("POST /changes/{id}/discard", protected(http.HandlerFunc(cfg.Changes.Discard)))
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

func wrap(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
