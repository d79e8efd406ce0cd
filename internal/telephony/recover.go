package telephony

import (
	"net/http"
	"runtime/debug"
)

// Recover turns a panic in a webhook handler into the apology markup, so the
// caller hears the apology and the call is hung up instead of the provider's
// own error message.
func (h *Handler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			h.logger.Error("voice webhook panicked",
				"path", r.URL.Path,
				"panic", rvr,
				"stack", string(debug.Stack()),
			)
			h.metrics.ObserveTurn(outcomeEngineError)
			h.writeMarkup(w, http.StatusInternalServerError, h.markup.Error())
		}()
		next.ServeHTTP(w, r)
	})
}
