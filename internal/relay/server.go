package relay

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	smw "git.home.luguber.info/inful/previewer/internal/server/middleware"
	"git.home.luguber.info/inful/previewer/internal/server/responses"
)

// Router mounts the websocket, event stream and health endpoints.
func Router(h *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(smw.Chain(slog.Default(), ferrors.NewHTTPErrorAdapter(slog.Default())))
	r.Get("/health", responses.Health("log-relay"))
	r.Handle("/socket", h.WebSocketHandler())
	r.Get("/logs/{channel}", h.SSEHandler())
	return r
}
