package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
)

func (s *Server) queryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter audit.QueryFilter
	if v := q.Get("entityType"); v != "" {
		et := audit.EntityType(strings.ToUpper(v))
		filter.EntityType = &et
	}
	if v := q.Get("action"); v != "" {
		a := audit.Action(strings.ToUpper(v))
		filter.Action = &a
	}
	if v := q.Get("riskLevel"); v != "" {
		rl := audit.RiskLevel(strings.ToUpper(v))
		filter.RiskLevel = &rl
	}
	for key, dst := range map[string]**string{"entityId": &filter.EntityID, "actor": &filter.Actor, "traceId": &filter.TraceID} {
		if v := q.Get(key); v != "" {
			*dst = &v
		}
	}
	filter.Tags = splitCSV(q.Get("tags"))
	for key, dst := range map[string]**time.Time{"startTime": &filter.StartTime, "endTime": &filter.EndTime} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				respondError(w, http.StatusBadRequest, "INVALID_PARAM", key+" must be RFC3339")
				return
			}
			*dst = &t
		}
	}
	page := appAudit.Page{Cursor: q.Get("cursor")}
	if v := q.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "limit must be an integer")
			return
		}
		page.Limit = l
	}

	res, err := s.auditSvc.Query(r.Context(), filter, page, middleware.GetReqID(r.Context()))
	if errors.Is(err, appAudit.ErrInvalidCursor) {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "audit query failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "auditId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid auditId")
		return
	}
	log, err := s.auditSvc.GetByID(r.Context(), id, middleware.GetReqID(r.Context()))
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, log)
}

func (s *Server) verifyAudit(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "auditId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid auditId")
		return
	}
	res, err := s.auditSvc.VerifyIntegrity(r.Context(), id, middleware.GetReqID(r.Context()))
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) entityHistory(w http.ResponseWriter, r *http.Request) {
	logs, err := s.auditSvc.History(r.Context(), audit.EntityType(strings.ToUpper(chi.URLParam(r, "entityType"))), chi.URLParam(r, "entityId"), middleware.GetReqID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}
