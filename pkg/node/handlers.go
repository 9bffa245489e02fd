package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authrail/authrail-go/pkg/eip712"
	"github.com/authrail/authrail-go/pkg/engine"
	"github.com/authrail/authrail-go/pkg/journal"
	"github.com/authrail/authrail-go/pkg/ledger"
	"github.com/authrail/authrail-go/pkg/signature"
	"github.com/authrail/authrail-go/pkg/types"
)

// handleTransfer handles the /v1/authorization/transfer endpoint
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req types.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	auth, sig, err := req.Authorization()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.engine.TransferWithAuthorization(r.Context(), auth, sig); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.SubmitResponse{Status: "applied"})
}

// handleReceive handles the /v1/authorization/receive endpoint
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req types.ReceiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	auth, sig, callerSig, err := req.Authorization()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// The submitting caller proves its identity by signing the same receive
	// digest. The engine then enforces caller == to.
	caller, err := signature.RecoverSigner(s.engine.Domain().ReceiveDigest(auth), callerSig)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid_signature", fmt.Sprintf("caller_signature: %v", err))
		return
	}

	if err := s.engine.ReceiveWithAuthorization(r.Context(), caller, auth, sig); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.SubmitResponse{Status: "applied"})
}

// handleCancel handles the /v1/authorization/cancel endpoint
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req types.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("failed to parse request: %v", err))
		return
	}

	cancel, sig, err := req.Cancellation()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.engine.CancelAuthorization(r.Context(), cancel, sig); err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.SubmitResponse{Status: "applied"})
}

// handleState handles the /v1/authorization/state endpoint
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	authorizerParam := r.URL.Query().Get("authorizer")
	if !common.IsHexAddress(authorizerParam) {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("authorizer: %q is not a valid address", authorizerParam))
		return
	}
	nonce, err := types.ParseNonce(r.URL.Query().Get("nonce"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	authorizer := common.HexToAddress(authorizerParam)

	used, err := s.engine.AuthorizationState(authorizer, nonce)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.StateResponse{
		Authorizer: authorizer.Hex(),
		Nonce:      nonce.Hex(),
		Used:       used,
	})
}

// handleDomain handles the /v1/domain endpoint
func (s *Server) handleDomain(w http.ResponseWriter, r *http.Request) {
	domain := s.engine.Domain()
	s.writeJSON(w, http.StatusOK, types.DomainResponse{
		Name:              domain.Name(),
		Version:           domain.Version(),
		ChainID:           domain.ChainID().String(),
		VerifyingContract: domain.VerifyingContract().Hex(),
		Separator:         domain.Separator().Hex(),
	})
}

// handleTypes handles the /v1/types endpoint
func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, types.TypesResponse{
		TransferType:     eip712.TransferWithAuthorizationType,
		TransferTypeHash: eip712.TransferTypeHash.Hex(),
		ReceiveType:      eip712.ReceiveWithAuthorizationType,
		ReceiveTypeHash:  eip712.ReceiveTypeHash.Hex(),
		CancelType:       eip712.CancelAuthorizationType,
		CancelTypeHash:   eip712.CancelTypeHash.Hex(),
	})
}

// handleBalance handles the /v1/balance/{account} endpoint
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountParam := r.PathValue("account")
	if !common.IsHexAddress(accountParam) {
		s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("account: %q is not a valid address", accountParam))
		return
	}
	account := common.HexToAddress(accountParam)

	balance, err := s.engine.BalanceOf(account)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.BalanceResponse{
		Account: account.Hex(),
		Balance: balance.String(),
	})
}

// handleEvents handles the /v1/events endpoint
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.recent == nil {
		s.writeError(w, http.StatusNotFound, "not_enabled", "event recording is not enabled")
		return
	}

	limit := 0
	if param := r.URL.Query().Get("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("limit: %q is not a positive integer", param))
			return
		}
		limit = parsed
	}

	records := s.recent.Recent(limit)
	out := make([]types.EventRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, types.NewEventRecord(rec.Sequence, rec.ObservedAt.Unix(), rec.Event))
	}

	s.writeJSON(w, http.StatusOK, types.EventsResponse{Events: out, Total: s.recent.Total()})
}

// handleJournalRoot handles the /v1/journal/root endpoint
func (s *Server) handleJournalRoot(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, "not_enabled", "journal is not enabled")
		return
	}

	root, err := s.journal.Root()
	if err != nil {
		if errors.Is(err, journal.ErrEmpty) {
			s.writeJSON(w, http.StatusOK, types.JournalRootResponse{Root: common.Hash{}.Hex(), Leaves: 0})
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, types.JournalRootResponse{Root: root.Hex(), Leaves: s.journal.Size()})
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(); err != nil {
		s.logger.Sugar().Warnw("Health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// statusFor maps engine and ledger failures onto HTTP statuses. The body's
// code field is authoritative for clients; the status is advisory.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrAuthorizationAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, engine.ErrAuthorizationNotYetValid), errors.Is(err, engine.ErrAuthorizationExpired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrCallerNotPayee):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, engine.ErrInvalidAuthorization), errors.Is(err, ledger.ErrNegativeValue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	s.writeError(w, statusFor(err), engine.Code(err), err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, types.ErrorResponse{Code: code, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Sugar().Errorw("Failed to encode response", "error", err)
	}
}
