package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// staticQuote is served when the whole provider chain is down, so the
// endpoint always returns something displayable.
const staticQuote = "The world is beautiful. - Anonymous"

// HandleQuote handles GET /api/quote: a single fresh quote as plain
// text. Never fails; a static quote covers provider outages.
func (api *API) HandleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	user, ok := api.authenticate(r)
	if !ok {
		api.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	quote, err := api.quotes.Generate(r.Context(), user.Settings.AISettings)
	if err != nil {
		api.logger.Warn("quote generation failed, serving static quote", zap.Error(err))
		quote = staticQuote
	}
	w.Write([]byte(quote))
}
