package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"

	appDeal "github.com/dealdesk/dealdesk/internal/application/deal"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
)

type dealCreateRequest struct {
	Title     string              `json:"title"`
	BrandName string              `json:"brandName,omitempty"`
	Value     decimal.NullDecimal `json:"value"`
	Currency  string              `json:"currency,omitempty"`
}

type stageRequest struct {
	Stage string `json:"stage"`
}

type transitionResponse struct {
	*appDeal.Result
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) createDeal(w http.ResponseWriter, r *http.Request) {
	var req dealCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	d, err := s.dealSvc.Create(r.Context(), appDeal.CreateInput{
		Title:     req.Title,
		BrandName: req.BrandName,
		Value:     req.Value,
		Currency:  req.Currency,
	}, actorFromRequest(r.Context()))
	if err != nil {
		respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) listDeals(w http.ResponseWriter, r *http.Request) {
	var stage *deal.Stage
	if v := r.URL.Query().Get("stage"); v != "" {
		st, err := deal.ParseStage(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
			return
		}
		stage = &st
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	deals, err := s.dealSvc.List(r.Context(), stage, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deals": deals})
}

func (s *Server) getDeal(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "dealId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dealId")
		return
	}
	d, err := s.dealSvc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) transitionDeal(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "dealId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dealId")
		return
	}
	var req stageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	stage, err := deal.ParseStage(req.Stage)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.dealSvc.Transition(r.Context(), id, stage, actorFromRequest(r.Context()))
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, transitionResponse{Result: res, Outcome: string(res.Outcome.Kind), Reason: res.Outcome.Reason})
}

func (s *Server) reissueInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "dealId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dealId")
		return
	}
	res, err := s.dealSvc.ReissueInvoice(r.Context(), id, actorFromRequest(r.Context()))
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, transitionResponse{Result: res, Outcome: string(res.Outcome.Kind), Reason: res.Outcome.Reason})
}

func (s *Server) getDealInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "dealId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dealId")
		return
	}
	inv, err := s.invoiceSvc.GetActiveByDeal(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}
