package httpapi

import "net/http"

type voidRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "invoiceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid invoiceId")
		return
	}
	inv, err := s.invoiceSvc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (s *Server) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "invoiceId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid invoiceId")
		return
	}
	var req voidRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "reason is required")
		return
	}
	inv, err := s.invoiceSvc.Void(r.Context(), id, actorFromRequest(r.Context()), req.Reason)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}
