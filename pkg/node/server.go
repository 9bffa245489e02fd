package node

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/authrail/authrail-go/pkg/engine"
	"github.com/authrail/authrail-go/pkg/events"
	"github.com/authrail/authrail-go/pkg/journal"
	"github.com/authrail/authrail-go/pkg/metrics"
	"github.com/authrail/authrail-go/pkg/persistence"
)

/*
Server handles HTTP requests for authorization submission and queries.

Submission Flow:
  POST /v1/authorization/transfer:
    - Request: { from, to, value, valid_after, valid_before, nonce, signature }
    - Wire fields are parsed strictly (decimal amounts, 0x hex bytes)
    - Engine checks replay state, validity window and signature, then commits
      the nonce mark and balance movement as one atomic unit
    - Response: { status: "applied" } or { code, message } with a mapped status

  POST /v1/authorization/receive:
    - Request: same fields + caller_signature
    - The submitting caller's identity is recovered from caller_signature over
      the same receive digest, then the engine requires caller == to
    - Payee-gated settlement: nobody but the named recipient can redeem

  POST /v1/authorization/cancel:
    - Request: { authorizer, nonce, signature }
    - Burns an unused nonce so it can never be spent; no balances move

Query Flow:
  GET /v1/authorization/state?authorizer=0x..&nonce=0x..:
    - Returns the used flag for one (authorizer, nonce) pair

  GET /v1/domain:
    - Returns the signing domain fields and precomputed separator,
      everything a wallet needs to produce compatible signatures

  GET /v1/types:
    - Returns the three canonical type strings and their hashes

  GET /v1/balance/{account}:
    - Returns the committed ledger balance

  GET /v1/events?limit=N:
    - Returns the most recent post-commit events from the in-memory ring

  GET /v1/journal/root:
    - Returns the current Merkle checkpoint over the event journal

Error Mapping:
  authorization_already_used  -> 409
  authorization_not_yet_valid -> 422
  authorization_expired       -> 422
  invalid_signature           -> 401
  caller_not_payee            -> 403
  insufficient_balance        -> 402
  invalid_request / invalid_authorization / negative_value -> 400
  rate_limited                -> 429
  anything else               -> 500
  Codes are stable; clients match on code, never on message text.

Middleware:
  - Every request carries a UUID request id (X-Request-Id), echoed in logs
  - Structured request logging via zap
  - Optional per-client-IP token bucket rate limiting
*/

// Server handles HTTP requests for the authorization service
type Server struct {
	engine     *engine.Engine
	store      persistence.IAuthorizationStore
	recent     *events.MemorySink
	journal    *journal.Journal
	logger     *zap.Logger
	metrics    *metrics.Metrics
	limiter    *clientLimiter
	httpServer *http.Server
}

// Options carries the optional server wiring. Zero values disable the
// corresponding feature.
type Options struct {
	Recent    *events.MemorySink // /v1/events source
	Journal   *journal.Journal   // /v1/journal/root source
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	RateLimit float64 // requests/second per client IP, 0 disables limiting
	RateBurst int
}

// NewServer creates a new server instance
func NewServer(eng *engine.Engine, store persistence.IAuthorizationStore, listenAddress string, opts Options) *Server {
	s := &Server{
		engine:  eng,
		store:   store,
		recent:  opts.Recent,
		journal: opts.Journal,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.RateLimit > 0 {
		s.limiter = newClientLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}

	mux := http.NewServeMux()

	// Submission endpoints
	mux.HandleFunc("POST /v1/authorization/transfer", s.handleTransfer)
	mux.HandleFunc("POST /v1/authorization/receive", s.handleReceive)
	mux.HandleFunc("POST /v1/authorization/cancel", s.handleCancel)

	// Query endpoints
	mux.HandleFunc("GET /v1/authorization/state", s.handleState)
	mux.HandleFunc("GET /v1/domain", s.handleDomain)
	mux.HandleFunc("GET /v1/types", s.handleTypes)
	mux.HandleFunc("GET /v1/balance/{account}", s.handleBalance)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/journal/root", s.handleJournalRoot)

	// Operational endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    listenAddress,
		Handler: s.withRequestID(s.withLogging(s.withRateLimit(mux))),
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
