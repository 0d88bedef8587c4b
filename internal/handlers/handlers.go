// Package handlers exposes the auction core over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/ichiragkumar/auction/internal/models"
	"github.com/ichiragkumar/auction/internal/service"
	"github.com/ichiragkumar/auction/internal/store"
)

// Handler contains the HTTP request handlers.
type Handler struct {
	bidding  *service.BiddingService
	auctions *service.AuctionService
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(bidding *service.BiddingService, auctions *service.AuctionService, logger *slog.Logger) *Handler {
	return &Handler{bidding: bidding, auctions: auctions, logger: logger}
}

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auctions", h.CreateAuction).Methods("POST")
	api.HandleFunc("/auctions", h.ListAuctions).Methods("GET")
	api.HandleFunc("/auctions/{id}", h.GetAuction).Methods("GET")
	api.HandleFunc("/auctions/{id}/cancel", h.CancelAuction).Methods("POST")
	api.HandleFunc("/auctions/{id}/join", h.JoinAuction).Methods("POST")
	api.HandleFunc("/auctions/{id}/bids", h.PlaceBid).Methods("POST")
	api.HandleFunc("/auctions/{id}/bids", h.GetBids).Methods("GET")
	api.HandleFunc("/auctions/{id}/leaderboard", h.GetLeaderboard).Methods("GET")

	router.Use(h.loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "api-gateway",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

type createAuctionRequest struct {
	ProductName   string          `json:"product_name"`
	ReservePrice  decimal.Decimal `json:"reserve_price"`
	DurationHours int             `json:"duration_hours"`
	MerchantID    string          `json:"merchant_id"`
	InviteeIDs    []string        `json:"invitee_ids"`
}

// CreateAuction creates and activates a new auction.
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DurationHours <= 0 {
		req.DurationHours = 24
	}

	auction, err := h.auctions.CreateAuction(r.Context(), req.ProductName, req.ReservePrice,
		time.Duration(req.DurationHours)*time.Hour, req.MerchantID, req.InviteeIDs)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAuction) {
			respondError(w, http.StatusBadRequest, "Invalid auction parameters")
			return
		}
		h.logger.Error("create auction failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create auction")
		return
	}

	respondJSON(w, http.StatusCreated, auction)
}

// ListAuctions returns running auctions, newest first.
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	auctions, err := h.auctions.ListAuctions(r.Context(), page, limit)
	if err != nil {
		h.logger.Error("list auctions failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list auctions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"auctions": auctions})
}

// GetAuction returns one auction.
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]

	auction, err := h.auctions.GetAuction(r.Context(), auctionID)
	if err != nil {
		respondStoreError(w, h.logger, err, "Failed to get auction")
		return
	}

	respondJSON(w, http.StatusOK, auction)
}

// CancelAuction cancels a non-terminal auction.
func (h *Handler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]

	if err := h.auctions.CancelAuction(r.Context(), auctionID); err != nil {
		if errors.Is(err, service.ErrAuctionFinished) {
			respondError(w, http.StatusConflict, "Auction already finished")
			return
		}
		respondStoreError(w, h.logger, err, "Failed to cancel auction")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type joinAuctionRequest struct {
	UserID string `json:"user_id"`
}

// JoinAuction subscribes a user to an auction.
func (h *Handler) JoinAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]

	var req joinAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	if err := h.auctions.JoinAuction(r.Context(), auctionID, req.UserID); err != nil {
		if errors.Is(err, service.ErrAuctionFinished) {
			respondError(w, http.StatusConflict, "Auction already finished")
			return
		}
		respondStoreError(w, h.logger, err, "Failed to join auction")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

type placeBidRequest struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type placeBidResponse struct {
	Success     bool                       `json:"success"`
	Message     string                     `json:"message"`
	Bid         *models.Bid                `json:"bid,omitempty"`
	Leaderboard []*models.LeaderboardEntry `json:"leaderboard,omitempty"`
}

// PlaceBid handles bid placement requests.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BidderID == "" {
		respondError(w, http.StatusBadRequest, "Bidder ID is required")
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "Bid amount must be positive")
		return
	}

	result, err := h.bidding.PlaceBid(r.Context(), auctionID, req.BidderID, req.Amount)
	if err != nil {
		respondStoreError(w, h.logger, err, "Failed to place bid")
		return
	}

	if !result.Accepted {
		respondJSON(w, http.StatusOK, placeBidResponse{
			Success: false,
			Message: rejectMessage(result.Reason),
		})
		return
	}

	respondJSON(w, http.StatusCreated, placeBidResponse{
		Success:     true,
		Message:     "Bid placed successfully!",
		Bid:         result.Bid,
		Leaderboard: result.Leaderboard,
	})
}

// GetBids returns the auction's bid log, highest amount first.
func (h *Handler) GetBids(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]

	bids, err := h.bidding.GetBids(r.Context(), auctionID)
	if err != nil {
		respondStoreError(w, h.logger, err, "Failed to get bids")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"bids": bids})
}

// GetLeaderboard returns the ordered leaderboard, optionally limited.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.bidding.GetLeaderboard(r.Context(), auctionID, limit)
	if err != nil {
		respondStoreError(w, h.logger, err, "Failed to get leaderboard")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func rejectMessage(reason service.RejectReason) string {
	switch reason {
	case service.RejectAuctionNotActive:
		return "Auction is not active"
	case service.RejectBelowReserve:
		return "Bid amount is less than the reserve price"
	default:
		return "Bid rejected"
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

func respondStoreError(w http.ResponseWriter, logger *slog.Logger, err error, message string) {
	if errors.Is(err, store.ErrAuctionNotFound) {
		respondError(w, http.StatusNotFound, "Auction not found")
		return
	}
	logger.Error(message, "error", err)
	respondError(w, http.StatusInternalServerError, message)
}

// loggingMiddleware logs all HTTP requests.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Info("request",
			"method", r.Method,
			"path", r.RequestURI,
			"duration", time.Since(start).String())
	})
}

// corsMiddleware adds CORS headers (for development).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
