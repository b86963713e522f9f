package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"riskguard/internal/application/dto"
	"riskguard/internal/domain/fraud"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var e *fraud.Error
	if errors.As(err, &e) {
		writeError(w, fraud.HTTPStatus(err), e.Code, e.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "", "internal error")
}
