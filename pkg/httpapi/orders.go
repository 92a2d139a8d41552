package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"Distributed-Order-Saga/pkg/order"
)

// CreateOrderRequest is the POST /api/orders payload.
type CreateOrderRequest struct {
	CustomerID string           `json:"customerId"`
	Items      []order.ItemSpec `json:"items"`
}

// NewOrderRouter builds the order service's HTTP surface.
func NewOrderRouter(svc *order.Service, log *logrus.Entry) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/orders", createOrderHandler(svc, log)).Methods("POST")
	r.HandleFunc("/api/orders", listOrdersHandler(svc, log)).Methods("GET")
	// Registered before the {orderId} route so "customer" is not read as an id.
	r.HandleFunc("/api/orders/customer/{customerId}", listOrdersByCustomerHandler(svc, log)).Methods("GET")
	r.HandleFunc("/api/orders/{orderId}", getOrderHandler(svc, log)).Methods("GET")
	r.HandleFunc("/api/orders/{orderId}/cancel", cancelOrderHandler(svc, log)).Methods("PATCH")
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

func createOrderHandler(svc *order.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.WithError(err).Error("Invalid order payload")
			writeError(w, log, &badRequestError{reason: "malformed JSON body"})
			return
		}

		o, err := svc.Create(r.Context(), req.CustomerID, req.Items)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, o)
	}
}

func getOrderHandler(svc *order.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := svc.Get(r.Context(), mux.Vars(r)["orderId"])
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func listOrdersHandler(svc *order.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := svc.ListAll(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		if orders == nil {
			orders = []*order.Order{}
		}
		writeJSON(w, http.StatusOK, orders)
	}
}

func listOrdersByCustomerHandler(svc *order.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := svc.ListByCustomer(r.Context(), mux.Vars(r)["customerId"])
		if err != nil {
			writeError(w, log, err)
			return
		}
		if orders == nil {
			orders = []*order.Order{}
		}
		writeJSON(w, http.StatusOK, orders)
	}
}

func cancelOrderHandler(svc *order.Service, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := svc.Cancel(r.Context(), mux.Vars(r)["orderId"])
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}
