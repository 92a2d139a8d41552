// Package httpapi exposes the command surface of both process owners as
// JSON HTTP endpoints. Business-rule violations map onto status codes:
// validation 400, unknown ids 404, invalid transitions and duplicates 409.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"Distributed-Order-Saga/pkg/order"
	"Distributed-Order-Saga/pkg/payment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// badRequestError rejects a request before it reaches a service, e.g. an
// unparseable body.
type badRequestError struct {
	reason string
}

func (e *badRequestError) Error() string {
	return "invalid request: " + e.reason
}

func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	status := http.StatusInternalServerError
	var ve *order.ValidationError
	var br *badRequestError
	switch {
	case errors.As(err, &ve), errors.As(err, &br):
		status = http.StatusBadRequest
	case errors.Is(err, order.ErrNotFound), errors.Is(err, payment.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, order.ErrConflict), errors.Is(err, payment.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// healthCheckHandler responds to health check requests.
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
