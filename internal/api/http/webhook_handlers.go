package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	appWebhook "github.com/dealdesk/dealdesk/internal/application/webhook"
)

// defaultMaxWebhookBody fits DocuSign Connect payloads that embed the signed
// PDF.
const defaultMaxWebhookBody = 25 << 20

// signatureWebhook authenticates, parses and applies one provider callback.
// Anything past authentication answers 200 so providers do not retry; fatal
// outcomes reach operators through alerts instead.
func (s *Server) signatureWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	if name == "" {
		name = s.providers.Default()
	}
	log := s.logger.With().Str("provider", name).Logger()

	limit := s.opts.MaxWebhookBody
	if limit <= 0 {
		limit = defaultMaxWebhookBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			// A retry would be just as large.
			log.Warn().Int64("limit", tooLarge.Limit).Msg("ignoring oversized webhook")
			respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	if err := s.webhookAuth.Verify(r.Context(), name, r.Header, body); err != nil {
		if errors.Is(err, appWebhook.ErrUnauthorized) {
			log.Warn().Str("remoteAddr", r.RemoteAddr).Msg("rejected unauthenticated webhook")
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid signature")
			return
		}
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
		return
	}

	provider, err := s.providers.Get(name)
	if err != nil {
		log.Warn().Err(err).Msg("webhook for unknown provider")
		respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
		return
	}

	ev, err := provider.ParseWebhook(r.Header, body)
	if err != nil {
		log.Warn().Err(err).Msg("unparseable webhook payload")
		ev.Provider = provider.Name()
	}
	out := s.signingSvc.HandleEvent(r.Context(), ev)
	log.Debug().
		Str("envelopeId", ev.EnvelopeID).
		Str("outcome", string(out.Kind)).
		Str("reason", out.Reason).
		Msg("webhook processed")

	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}
