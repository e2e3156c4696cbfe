package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dealdesk/dealdesk/internal/domain/alert"
)

// streamKeepAlive is the idle interval between SSE comments.
const streamKeepAlive = 25 * time.Second

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter alert.Filter
	if v := q.Get("status"); v != "" {
		st := alert.Status(strings.ToUpper(v))
		filter.Status = &st
	}
	if v := q.Get("kind"); v != "" {
		k := alert.Kind(strings.ToUpper(v))
		filter.Kind = &k
	}
	if v := q.Get("group"); v != "" {
		filter.TargetGroup = &v
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "since must be RFC3339")
			return
		}
		filter.Since = &t
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	alerts, err := s.alertSvc.List(r.Context(), filter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "alertId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid alertId")
		return
	}
	a, err := s.alertSvc.Acknowledge(r.Context(), id, actorFromRequest(r.Context()))
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// alertStream pushes alerts for the operator's groups. Operators without a
// group receive only untargeted alerts; ?groups= narrows further.
func (s *Server) alertStream(w http.ResponseWriter, r *http.Request) {
	o := authOperatorFromContext(r.Context())
	if o == nil {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	groups := o.Groups
	if requested := splitCSV(r.URL.Query().Get("groups")); len(requested) > 0 {
		groups = intersect(groups, requested)
	}
	client := s.alertSvc.Subscribe(o.Username, append(groups, "role:"+string(o.Role)))
	defer s.alertSvc.Unsubscribe(client.ClientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case msg, ok := <-client.MessageChan:
			if !ok || msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("event: " + msg.Event + "\nid: " + msg.ID + "\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func intersect(have, want []string) []string {
	out := []string{}
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}
