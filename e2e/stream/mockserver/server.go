// Package mockserver provides a mock market data server for testing.
// It implements both the websocket streaming protocol and the REST API
// endpoints the client speaks.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/quantfold/tickstream/mocks"
)

// wsClient is one websocket connection with its subscription state.
type wsClient struct {
	id   string
	conn *websocket.Conn

	mu      sync.Mutex
	symbols map[string]bool
}

func (c *wsClient) subscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols[symbol] = true
}

func (c *wsClient) unsubscribe(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.symbols, symbol)
}

func (c *wsClient) subscribed(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.symbols[symbol]
}

func (c *wsClient) subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.symbols))
	for symbol := range c.symbols {
		out = append(out, symbol)
	}

	return out
}

// writeJSON serializes writes; gorilla connections allow one writer at a time.
func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteJSON(v)
}

// ServerConfig holds configuration for the mock server.
type ServerConfig struct {
	// Token is the API token the server accepts. Empty accepts anything.
	Token string
	// Symbols seeds the price table for streaming and REST quotes.
	Symbols []string
	// InitialPrice is the starting price for every seeded symbol.
	InitialPrice float64
	// StreamInterval is the interval between generated trade messages when
	// streaming is started.
	StreamInterval time.Duration
	// Seed drives the data generator; fixed seeds give reproducible runs.
	Seed int64
}

// MockFinnhubServer provides a mock market data server for testing.
// It supports the websocket trade stream and the candle, quote and symbol
// directory REST endpoints.
type MockFinnhubServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener

	upgrader websocket.Upgrader

	token         string
	currentPrices map[string]float64
	generator     *mocks.DataGenerator
	seed          int64

	clients map[string]*wsClient

	streamInterval time.Duration
	stopStreaming  chan struct{}
	streamOnce     sync.Once
	stopOnce       sync.Once
}

// NewMockFinnhubServer creates a new mock server.
func NewMockFinnhubServer(config ServerConfig) *MockFinnhubServer {
	if config.StreamInterval == 0 {
		config.StreamInterval = 50 * time.Millisecond
	}

	if config.InitialPrice == 0 {
		config.InitialPrice = 100.0
	}

	if config.Seed == 0 {
		config.Seed = 42
	}

	server := &MockFinnhubServer{
		mu: sync.RWMutex{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		httpServer:     nil,
		listener:       nil,
		token:          config.Token,
		currentPrices:  make(map[string]float64),
		generator:      mocks.NewDataGenerator(config.Seed),
		seed:           config.Seed,
		clients:        make(map[string]*wsClient),
		streamInterval: config.StreamInterval,
		stopStreaming:  make(chan struct{}),
		streamOnce:     sync.Once{},
		stopOnce:       sync.Once{},
	}

	for _, symbol := range config.Symbols {
		server.currentPrices[symbol] = config.InitialPrice
	}

	return server
}

// Start starts the mock server on the given address.
// If address is empty or ":0", a random available port is used.
func (s *MockFinnhubServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener

	router := mux.NewRouter()

	// REST API endpoints
	router.HandleFunc("/api/v1/stock/candle", s.handleCandle).Methods("GET")
	router.HandleFunc("/api/v1/quote", s.handleQuote).Methods("GET")
	router.HandleFunc("/api/v1/stock/symbol", s.handleSymbols).Methods("GET")

	// Websocket endpoint: the streaming protocol lives at the root path.
	router.HandleFunc("/", s.handleWebSocket)

	s.httpServer = &http.Server{ //nolint:exhaustruct // zero values are fine for a test server
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("mock server error: %v\n", err)
		}
	}()

	return nil
}

// Stop stops the mock server and drops every connection.
func (s *MockFinnhubServer) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopStreaming)
	})

	s.DropConnections()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// Address returns the address the server is listening on.
func (s *MockFinnhubServer) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the REST base URL for the server.
func (s *MockFinnhubServer) BaseURL() string {
	return "http://" + s.Address() + "/api/v1"
}

// WebSocketURL returns the websocket URL for the server.
func (s *MockFinnhubServer) WebSocketURL() string {
	return "ws://" + s.Address()
}

// SetPrice sets the current price for a symbol.
func (s *MockFinnhubServer) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPrices[symbol] = price
}

// GetPrice returns the current price for a symbol.
func (s *MockFinnhubServer) GetPrice(symbol string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.currentPrices[symbol]
}

// ConnectionCount returns the number of live websocket connections.
func (s *MockFinnhubServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.clients)
}

// SubscribedSymbols returns the union of symbols subscribed across all
// connections.
func (s *MockFinnhubServer) SubscribedSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)

	for _, client := range s.clients {
		for _, symbol := range client.subscriptions() {
			seen[symbol] = true
		}
	}

	out := make([]string, 0, len(seen))
	for symbol := range seen {
		out = append(out, symbol)
	}

	return out
}

// EmitTrade sends one trade message to every connection subscribed to the
// symbol and updates the server's price table.
func (s *MockFinnhubServer) EmitTrade(symbol string, price, volume float64) {
	s.SetPrice(symbol, price)

	message := map[string]any{
		"type": "trade",
		"data": []map[string]any{
			{
				"s": symbol,
				"p": price,
				"v": volume,
				"t": time.Now().UnixMilli(),
			},
		},
	}

	s.broadcast(symbol, message)
}

// SendPing sends a ping message to every connection.
func (s *MockFinnhubServer) SendPing() {
	s.broadcast("", map[string]any{"type": "ping"})
}

// InjectError sends a server error message to every connection.
func (s *MockFinnhubServer) InjectError(msg string) {
	s.broadcast("", map[string]any{"type": "error", "msg": msg})
}

// DropConnections abruptly closes every websocket connection without a
// close handshake, simulating network loss.
func (s *MockFinnhubServer) DropConnections() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[string]*wsClient)
	s.mu.Unlock()

	for _, client := range clients {
		_ = client.conn.Close()
	}
}

// broadcast sends message to every connection; a non-empty symbol restricts
// delivery to its subscribers.
func (s *MockFinnhubServer) broadcast(symbol string, message any) {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))

	for _, client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	for _, client := range clients {
		if symbol != "" && !client.subscribed(symbol) {
			continue
		}

		_ = client.writeJSON(message)
	}
}

// StartStreaming begins emitting generated trades for the seeded symbols at
// the configured interval until the server stops.
func (s *MockFinnhubServer) StartStreaming() {
	s.streamOnce.Do(func() {
		go s.streamTrades()
	})
}

func (s *MockFinnhubServer) streamTrades() {
	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopStreaming:
			return
		case <-ticker.C:
			s.mu.RLock()
			prices := make(map[string]float64, len(s.currentPrices))

			for symbol, price := range s.currentPrices {
				prices[symbol] = price
			}
			s.mu.RUnlock()

			for symbol, price := range prices {
				config := mocks.DefaultConfig()
				config.Symbol = symbol
				config.InitialPrice = price
				config.Count = 1

				ticks := s.generator.GenerateTicks(config)
				if len(ticks) == 0 {
					continue
				}

				s.EmitTrade(symbol, ticks[0].Price, ticks[0].Volume)
			}
		}
	}
}

// controlMessage is the wire shape of subscribe/unsubscribe requests.
type controlMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// handleWebSocket upgrades the connection and runs its control message loop.
func (s *MockFinnhubServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{
		id:      uuid.New().String(),
		conn:    conn,
		mu:      sync.Mutex{},
		symbols: make(map[string]bool),
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, client.id)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	// Reject bad credentials over the open socket the way the provider
	// does, so clients exercise their fatal error path.
	if s.token != "" && r.URL.Query().Get("token") != s.token {
		_ = client.writeJSON(map[string]any{"type": "error", "msg": "Invalid API key"})

		return
	}

	for {
		var msg controlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "subscribe":
			client.subscribe(msg.Symbol)
			_ = client.writeJSON(map[string]any{"type": "subscribe-ack", "symbol": msg.Symbol})
		case "unsubscribe":
			client.unsubscribe(msg.Symbol)
			_ = client.writeJSON(map[string]any{"type": "unsubscribe-ack", "symbol": msg.Symbol})
		default:
			// Unknown control messages are ignored.
		}
	}
}

// REST API Handlers

// checkToken validates the token query parameter on REST requests.
func (s *MockFinnhubServer) checkToken(w http.ResponseWriter, r *http.Request) bool {
	if s.token != "" && r.URL.Query().Get("token") != s.token {
		http.Error(w, `{"error": "Invalid API key"}`, http.StatusUnauthorized)

		return false
	}

	return true
}

// handleCandle handles GET /api/v1/stock/candle.
func (s *MockFinnhubServer) handleCandle(w http.ResponseWriter, r *http.Request) {
	if !s.checkToken(w, r) {
		return
	}

	query := r.URL.Query()
	symbol := query.Get("symbol")
	resolution := query.Get("resolution")
	fromStr := query.Get("from")
	toStr := query.Get("to")

	if symbol == "" || resolution == "" || fromStr == "" || toStr == "" {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)

		return
	}

	from, err := strconv.ParseInt(fromStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid from parameter", http.StatusBadRequest)

		return
	}

	to, err := strconv.ParseInt(toStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid to parameter", http.StatusBadRequest)

		return
	}

	interval := resolutionDuration(resolution)
	if interval == 0 {
		http.Error(w, "Invalid resolution", http.StatusBadRequest)

		return
	}

	numPoints := int(time.Duration(to-from) * time.Second / interval)
	if numPoints <= 0 {
		s.writeJSON(w, map[string]any{"s": "no_data"})

		return
	}

	if numPoints > 500 {
		numPoints = 500
	}

	s.mu.RLock()
	initialPrice := s.currentPrices[symbol]
	s.mu.RUnlock()

	if initialPrice == 0 {
		initialPrice = 100.0
	}

	config := mocks.DefaultConfig()
	config.Symbol = symbol
	config.StartTime = time.Unix(from, 0)
	config.Interval = interval
	config.Count = numPoints
	config.InitialPrice = initialPrice

	candles := s.generator.GenerateCandles(config)

	opens := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	times := make([]int64, len(candles))

	for i, candle := range candles {
		opens[i] = candle.Open
		highs[i] = candle.High
		lows[i] = candle.Low
		closes[i] = candle.Close
		volumes[i] = candle.Volume
		times[i] = candle.Timestamp.Unix()
	}

	s.writeJSON(w, map[string]any{
		"s": "ok",
		"o": opens,
		"h": highs,
		"l": lows,
		"c": closes,
		"v": volumes,
		"t": times,
	})
}

// handleQuote handles GET /api/v1/quote.
func (s *MockFinnhubServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	if !s.checkToken(w, r) {
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "Missing symbol parameter", http.StatusBadRequest)

		return
	}

	s.mu.RLock()
	price, ok := s.currentPrices[symbol]
	s.mu.RUnlock()

	if !ok {
		price = 0
	}

	s.writeJSON(w, map[string]any{
		"c":  price,
		"h":  price * 1.01,
		"l":  price * 0.99,
		"o":  price,
		"pc": price,
		"t":  time.Now().Unix(),
	})
}

// handleSymbols handles GET /api/v1/stock/symbol.
func (s *MockFinnhubServer) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if !s.checkToken(w, r) {
		return
	}

	if r.URL.Query().Get("exchange") == "" {
		http.Error(w, "Missing exchange parameter", http.StatusBadRequest)

		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]map[string]any, 0, len(s.currentPrices))
	for symbol := range s.currentPrices {
		symbols = append(symbols, map[string]any{
			"symbol":        symbol,
			"displaySymbol": symbol,
			"description":   symbol,
			"type":          "Common Stock",
			"currency":      "USD",
		})
	}

	s.writeJSON(w, symbols)
}

func (s *MockFinnhubServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// resolutionDuration maps a provider resolution string to a duration.
func resolutionDuration(resolution string) time.Duration {
	switch resolution {
	case "1":
		return time.Minute
	case "5":
		return 5 * time.Minute
	case "15":
		return 15 * time.Minute
	case "30":
		return 30 * time.Minute
	case "60":
		return time.Hour
	case "D":
		return 24 * time.Hour
	case "W":
		return 7 * 24 * time.Hour
	case "M":
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}
