// Package api exposes the exchange over REST and WebSocket. Order requests
// are accepted here, handed to the pipeline, and processed asynchronously;
// depth and market metadata are served directly from the book.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/junhoyeo/dexmatch/pkg/book"
	"github.com/junhoyeo/dexmatch/pkg/market"
	"github.com/junhoyeo/dexmatch/pkg/order"
	"github.com/junhoyeo/dexmatch/pkg/pipeline"
	"github.com/junhoyeo/dexmatch/pkg/util"
)

// Server handles REST API and WebSocket connections
type Server struct {
	book     *book.OrderBook
	pipe     *pipeline.Pipeline
	markets  *market.Registry
	router   *mux.Router
	hub      *Hub
	clock    util.Clock
	log      *zap.Logger
	registry *prometheus.Registry

	httpSrv *http.Server
}

// NewServer creates a new API server
func NewServer(b *book.OrderBook, pipe *pipeline.Pipeline, markets *market.Registry, clock util.Clock, promReg *prometheus.Registry, log *zap.Logger) *Server {
	s := &Server{
		book:     b,
		pipe:     pipe,
		markets:  markets,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		clock:    clock,
		log:      log,
		registry: promReg,
	}
	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub. It implements feed.Publisher so trade
// events can fan out to connected clients.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{ticker}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{ticker}/orderbook", s.handleGetOrderbook).Methods("GET")

	// Order submission
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.httpSrv = &http.Server{Addr: addr, Handler: c.Handler(s.router)}

	s.log.Info("api server starting", zap.String("addr", addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	tickers := s.markets.Tickers()
	response := make([]MarketInfo, 0, len(tickers))
	for _, ticker := range tickers {
		info, err := s.markets.Get(ticker)
		if err != nil {
			continue
		}
		response = append(response, marketInfo(ticker, info))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	info, err := s.markets.Get(ticker)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	respondJSON(w, marketInfo(ticker, info))
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	if _, err := s.markets.Get(ticker); err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}

	asks, bids, err := s.book.Depth(r.Context(), ticker)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "depth unavailable", err.Error())
		return
	}

	respondJSON(w, OrderbookSnapshot{
		Ticker:    ticker,
		Asks:      levels(asks),
		Bids:      levels(bids),
		Timestamp: s.clock.Now().Unix(),
	})
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req order.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	switch req.Action {
	case order.ActionNewLimitOrder, order.ActionNewMarketOrder:
	default:
		respondError(w, http.StatusBadRequest, "unsupported action", string(req.Action))
		return
	}

	if err := s.pipe.Enqueue(r.Context(), &req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, pipeline.ErrShuttingDown) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, "order rejected", err.Error())
		return
	}

	orderID := ""
	if req.Maker != nil {
		orderID = req.Maker.ID
	} else if req.Taker != nil {
		orderID = req.Taker.ID
	}

	s.log.Info("order queued",
		zap.String("action", string(req.Action)),
		zap.String("order_id", orderID),
	)
	respondJSON(w, SubmitResponse{Status: "queued", OrderID: orderID})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req order.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Action != order.ActionCancelLimitOrder {
		respondError(w, http.StatusBadRequest, "unsupported action", string(req.Action))
		return
	}

	if err := s.pipe.Enqueue(r.Context(), &req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, pipeline.ErrShuttingDown) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, "cancel rejected", err.Error())
		return
	}

	s.log.Info("cancel queued", zap.String("order_id", req.Maker.ID))
	respondJSON(w, SubmitResponse{Status: "queued", OrderID: req.Maker.ID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func marketInfo(ticker string, info market.Info) MarketInfo {
	return MarketInfo{
		Ticker:        ticker,
		BaseToken:     info.BaseToken.Hex(),
		BaseDecimals:  info.BaseDecimals,
		QuoteToken:    info.QuoteToken.Hex(),
		QuoteDecimals: info.QuoteDecimals,
	}
}

func levels(in []book.DepthLevel) []Level {
	out := make([]Level, len(in))
	for i, l := range in {
		out[i] = Level{
			OrderID:   l.OrderID,
			Price:     l.Price,
			Remaining: l.Remaining,
			Timestamp: l.Timestamp,
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
