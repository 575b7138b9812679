package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/r3e-network/lottery-core/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeServiceError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("internal server error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    se.Code,
		"message": se.Message,
		"details": se.Details,
	})
}
