package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"Distributed-Order-Saga/pkg/payment"
)

// NewPaymentRouter builds the payment worker's HTTP surface.
func NewPaymentRouter(svc *payment.Service, log *logrus.Entry) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/payments", processPaymentHandler(svc, log)).Methods("POST")
	r.HandleFunc("/api/payments", listPaymentsHandler(svc, log)).Methods("GET")
	r.HandleFunc("/api/payments/order/{orderId}", getPaymentByOrderHandler(svc, log)).Methods("GET")
	r.HandleFunc("/api/payments/customer/{customerId}", listPaymentsByCustomerHandler(svc, log)).Methods("GET")
	r.HandleFunc("/api/payments/{paymentId}", getPaymentHandler(svc, log)).Methods("GET")
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

func processPaymentHandler(svc *payment.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payment.ProcessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.WithError(err).Error("Invalid payment payload")
			writeError(w, log, &badRequestError{reason: "malformed JSON body"})
			return
		}

		p, err := svc.Process(r.Context(), req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func getPaymentHandler(svc *payment.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Get(r.Context(), mux.Vars(r)["paymentId"])
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func getPaymentByOrderHandler(svc *payment.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.GetByOrderID(r.Context(), mux.Vars(r)["orderId"])
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func listPaymentsHandler(svc *payment.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payments, err := svc.ListAll(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		if payments == nil {
			payments = []*payment.Payment{}
		}
		writeJSON(w, http.StatusOK, payments)
	}
}

func listPaymentsByCustomerHandler(svc *payment.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payments, err := svc.ListByCustomer(r.Context(), mux.Vars(r)["customerId"])
		if err != nil {
			writeError(w, log, err)
			return
		}
		if payments == nil {
			payments = []*payment.Payment{}
		}
		writeJSON(w, http.StatusOK, payments)
	}
}
