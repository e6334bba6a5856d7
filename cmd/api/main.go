// Command api serves the POS core to the kiosk, cashier and crew screens.
// Authentication lives in the calling layer; the acting username and role
// arrive as headers and are passed through as opaque labels.
package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/idris/go-pos-store/internal/config"
	"github.com/idris/go-pos-store/internal/database"
	"github.com/idris/go-pos-store/internal/models"
	"github.com/idris/go-pos-store/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/categories", handleListCategories(db))
	r.Get("/products", handleListProducts(db))
	r.Patch("/products/{id}/availability", handleSetAvailability(db))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handlePlaceOrder(db))
		r.Get("/", handleListOrders(db))
		r.Get("/{id}", handleGetOrder(db))
		r.Get("/code/{code}", handleLookupByCode(db))
		r.Put("/{id}/items", handleEditOrder(db))
		r.Post("/{id}/pickup", handlePickUpOrder(db))
		r.Post("/{id}/complete", handleCompleteOrder(db))
		r.Post("/{id}/cancel", handleCancelOrder(db))
		r.Delete("/{id}", handleDeleteOrder(db))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func handleListCategories(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := store.ListCategories(r.Context(), db)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, categories)
	}
}

func handleListProducts(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		if pageSize < 1 || pageSize > 100 {
			pageSize = 50
		}

		result, err := store.ListProducts(r.Context(), db, page, pageSize)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

func handleSetAvailability(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if err := store.SetAvailability(r.Context(), db, id, req.Enabled); err != nil {
			respondStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePlaceOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Cart []struct {
				ProductID int64 `json:"product_id"`
				Quantity  int   `json:"quantity"`
			} `json:"cart"`
			Total         float64 `json:"total"`
			CustomerLabel string  `json:"customer_label"`
			DecreaseStock bool    `json:"decrease_stock"`
			ExistingCode  string  `json:"existing_code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		cart := make([]models.CartLine, 0, len(req.Cart))
		for _, line := range req.Cart {
			cart = append(cart, models.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
		}

		orderID, err := store.PlaceOrder(r.Context(), db, store.PlaceOrderRequest{
			Cart:          cart,
			Total:         decimal.NewFromFloat(req.Total),
			CustomerLabel: req.CustomerLabel,
			CashierLabel:  actingCashier(r),
			DecreaseStock: req.DecreaseStock,
			ExistingCode:  req.ExistingCode,
		})
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, map[string]int64{"order_id": orderID})
	}
}

func handleListOrders(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.OrderFilter{
			Status: models.Status(r.URL.Query().Get("status")),
		}
		if from := r.URL.Query().Get("from"); from != "" {
			t, err := time.Parse(time.RFC3339, from)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid 'from' timestamp")
				return
			}
			filter.From = t
		}
		if to := r.URL.Query().Get("to"); to != "" {
			t, err := time.Parse(time.RFC3339, to)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid 'to' timestamp")
				return
			}
			filter.To = t
		}
		if limit, _ := strconv.Atoi(r.URL.Query().Get("limit")); limit > 0 {
			filter.Limit = limit
		}

		orders, err := store.ListOrders(r.Context(), db, filter)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, orders)
	}
}

func handleGetOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		order, err := store.GetOrder(r.Context(), db, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, order)
	}
}

func handleLookupByCode(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := store.LookupByCode(r.Context(), db, chi.URLParam(r, "code"))
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, order)
	}
}

func handleEditOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		var req struct {
			Cart []struct {
				ProductID int64 `json:"product_id"`
				Quantity  int   `json:"quantity"`
			} `json:"cart"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		cart := make([]models.CartLine, 0, len(req.Cart))
		for _, line := range req.Cart {
			cart = append(cart, models.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
		}

		if err := store.EditLoadedOrder(r.Context(), db, id, cart); err != nil {
			respondStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePickUpOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		if err := store.PickUpOrder(r.Context(), db, id, actingCashier(r)); err != nil {
			respondStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCompleteOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		if err := store.CompleteOrder(r.Context(), db, id); err != nil {
			respondStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCancelOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		if err := store.CancelOrder(r.Context(), db, id); err != nil {
			respondStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteOrder(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		if err := store.DeleteOrder(r.Context(), db, id); err != nil {
			respondStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// actingCashier reads the pass-through identity header. Empty for kiosk
// self-service traffic, which is exactly what makes PlaceOrder start the
// order Unpaid.
func actingCashier(r *http.Request) string {
	if r.Header.Get("X-Acting-Role") == "User" {
		return ""
	}
	return r.Header.Get("X-Acting-User")
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrCategoryNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrInvalidState),
		errors.Is(err, database.ErrDuplicateOrderCode),
		errors.Is(err, database.ErrAmbiguousProduct):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrEmptyCart),
		errors.Is(err, database.ErrTotalMismatch):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
