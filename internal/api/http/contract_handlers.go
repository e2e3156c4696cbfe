package httpapi

import (
	"net/http"

	appSigning "github.com/dealdesk/dealdesk/internal/application/signing"
	"github.com/dealdesk/dealdesk/internal/domain/contract"
)

type contractCreateRequest struct {
	Title  string  `json:"title"`
	PdfURL *string `json:"pdfUrl,omitempty"`
}

type signatureRequestCreate struct {
	Provider    string `json:"provider,omitempty"`
	EnvelopeID  string `json:"envelopeId"`
	SignerEmail string `json:"signerEmail,omitempty"`
	SignerRole  string `json:"signerRole"`
}

type signRequest struct {
	Role string `json:"role"`
}

func (s *Server) createContract(w http.ResponseWriter, r *http.Request) {
	dealID, err := parseUUIDParam(r, "dealId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dealId")
		return
	}
	var req contractCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	c, err := s.signingSvc.CreateContract(r.Context(), dealID, req.Title, req.PdfURL, actorFromRequest(r.Context()))
	if err != nil {
		respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) listContracts(w http.ResponseWriter, r *http.Request) {
	dealID, err := parseUUIDParam(r, "dealId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid dealId")
		return
	}
	contracts, err := s.signingSvc.ListContracts(r.Context(), dealID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"contracts": contracts})
}

func (s *Server) getContract(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "contractId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid contractId")
		return
	}
	view, err := s.signingSvc.GetContract(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) registerSignatureRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "contractId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid contractId")
		return
	}
	var req signatureRequestCreate
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	sr, err := s.signingSvc.RegisterRequest(r.Context(), id, appSigning.RequestInput{
		Provider:    req.Provider,
		EnvelopeID:  req.EnvelopeID,
		SignerEmail: req.SignerEmail,
		SignerRole:  req.SignerRole,
	}, actorFromRequest(r.Context()))
	if err != nil {
		respondServiceError(w, err, http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusCreated, sr)
}

func (s *Server) signContract(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "contractId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid contractId")
		return
	}
	var req signRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	role, err := contract.ParseSignerRole(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	c, out, err := s.signingSvc.RecordOperatorSignature(r.Context(), id, role, actorFromRequest(r.Context()))
	if err != nil {
		respondServiceError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"contract": c,
		"outcome":  out.Kind,
		"reason":   out.Reason,
	})
}
