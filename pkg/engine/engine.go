// Package engine implements the authorization state machine: EIP-712 digest
// validation, replay protection per (authorizer, nonce), and atomic balance
// movement.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/authrail/authrail-go/pkg/eip712"
	"github.com/authrail/authrail-go/pkg/events"
	"github.com/authrail/authrail-go/pkg/ledger"
	"github.com/authrail/authrail-go/pkg/persistence"
	"github.com/authrail/authrail-go/pkg/signature"
	"github.com/authrail/authrail-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Operation labels used in metrics and logs.
const (
	opTransfer = "transfer"
	opReceive  = "receive"
	opCancel   = "cancel"
)

// Ledger applies balance movements inside a store transaction.
type Ledger interface {
	Transfer(txn persistence.AuthorizationTxn, from, to common.Address, value *big.Int) error
}

// ledgerFunc adapts a plain function to the Ledger interface.
type ledgerFunc func(txn persistence.AuthorizationTxn, from, to common.Address, value *big.Int) error

func (f ledgerFunc) Transfer(txn persistence.AuthorizationTxn, from, to common.Address, value *big.Int) error {
	return f(txn, from, to, value)
}

// Recorder observes operation outcomes for monitoring.
type Recorder interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}

// Engine validates signed authorizations and applies them to the store.
//
// Every state-changing operation holds a per-signer lock across its
// check-then-commit sequence, so two submissions racing on the same
// (authorizer, nonce) serialize and exactly one consumes the nonce. The
// engine assumes it is the sole writer of its store.
type Engine struct {
	store   persistence.IAuthorizationStore
	domain  *eip712.Domain
	ledger  Ledger
	sink    events.Sink
	logger  *zap.Logger
	metrics Recorder
	now     func() time.Time
	locks   signerLocks
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEvents sets the sink receiving post-commit notifications.
func WithEvents(sink events.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithLedger replaces the balance rules applied inside the atomic unit.
func WithLedger(l Ledger) Option {
	return func(e *Engine) {
		if l != nil {
			e.ledger = l
		}
	}
}

// WithClock injects the time source used for validity windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics sets the operation recorder.
func WithMetrics(recorder Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

// New creates an engine bound to one store and one EIP-712 domain.
func New(store persistence.IAuthorizationStore, domain *eip712.Domain, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		domain:  domain,
		ledger:  ledgerFunc(ledger.Transfer),
		sink:    events.NewMultiSink(),
		logger:  zap.NewNop(),
		metrics: nopRecorder{},
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// TransferWithAuthorization validates auth against the transfer type hash
// and, on success, atomically consumes the nonce and moves value from
// auth.From to auth.To. Any party may submit; authority comes entirely from
// the signature.
func (e *Engine) TransferWithAuthorization(ctx context.Context, auth *types.Authorization, sig []byte) error {
	start := time.Now()
	err := e.consumeTransfer(ctx, auth, sig, e.domain.TransferDigest, nil)
	e.observe(opTransfer, err, time.Since(start))
	return err
}

// ReceiveWithAuthorization is TransferWithAuthorization restricted to the
// payee: caller must equal auth.To. The caller's identity is established by
// the transport before this method runs.
func (e *Engine) ReceiveWithAuthorization(ctx context.Context, caller common.Address, auth *types.Authorization, sig []byte) error {
	start := time.Now()
	err := e.consumeTransfer(ctx, auth, sig, e.domain.ReceiveDigest, &caller)
	e.observe(opReceive, err, time.Since(start))
	return err
}

// CancelAuthorization consumes an unused nonce so no transfer or receive can
// ever use it. Only the authorizer's own signature over the cancel type hash
// is accepted. No balances move.
func (e *Engine) CancelAuthorization(ctx context.Context, cancel *types.Cancellation, sig []byte) error {
	start := time.Now()
	err := e.cancelAuthorization(ctx, cancel, sig)
	e.observe(opCancel, err, time.Since(start))
	return err
}

// AuthorizationState reports whether (authorizer, nonce) has been consumed.
func (e *Engine) AuthorizationState(authorizer common.Address, nonce common.Hash) (bool, error) {
	return e.store.AuthorizationUsed(authorizer, nonce)
}

// BalanceOf returns the committed ledger balance for an account.
func (e *Engine) BalanceOf(account common.Address) (*big.Int, error) {
	return e.store.Balance(account)
}

// Domain returns the EIP-712 domain this engine validates against.
func (e *Engine) Domain() *eip712.Domain {
	return e.domain
}

// DomainSeparator returns the precomputed EIP-712 domain separator.
func (e *Engine) DomainSeparator() common.Hash {
	return e.domain.Separator()
}

// consumeTransfer runs the shared transfer/receive flow. digestFor selects
// the operation's type-specific digest; caller, when non-nil, must match the
// payee. Validation order is fixed: replay, window, caller, signature,
// atomic commit.
func (e *Engine) consumeTransfer(ctx context.Context, auth *types.Authorization, sig []byte, digestFor func(*types.Authorization) common.Hash, caller *common.Address) error {
	if err := validateAuthorization(auth); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := e.locks.lock(auth.From)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	used, err := e.store.AuthorizationUsed(auth.From, auth.Nonce)
	if err != nil {
		return fmt.Errorf("failed to read authorization state: %w", err)
	}
	if used {
		return fmt.Errorf("authorizer %s nonce %s: %w", auth.From.Hex(), auth.Nonce.Hex(), ErrAuthorizationAlreadyUsed)
	}

	now := big.NewInt(e.now().Unix())
	if now.Cmp(auth.ValidAfter) < 0 {
		return fmt.Errorf("not valid until %s, now %s: %w", auth.ValidAfter, now, ErrAuthorizationNotYetValid)
	}
	if now.Cmp(auth.ValidBefore) >= 0 {
		return fmt.Errorf("expired at %s, now %s: %w", auth.ValidBefore, now, ErrAuthorizationExpired)
	}

	if caller != nil && *caller != auth.To {
		return fmt.Errorf("caller %s, payee %s: %w", caller.Hex(), auth.To.Hex(), ErrCallerNotPayee)
	}

	recovered, err := signature.RecoverSigner(digestFor(auth), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if recovered != auth.From {
		return fmt.Errorf("recovered %s, expected %s: %w", recovered.Hex(), auth.From.Hex(), ErrInvalidSignature)
	}

	err = e.store.Atomically(func(txn persistence.AuthorizationTxn) error {
		if err := txn.MarkAuthorizationUsed(auth.From, auth.Nonce); err != nil {
			return fmt.Errorf("failed to mark authorization used: %w", err)
		}
		return e.ledger.Transfer(txn, auth.From, auth.To, auth.Value)
	})
	if err != nil {
		e.logger.Sugar().Debugw("Authorization rolled back",
			"authorizer", auth.From.Hex(),
			"nonce", auth.Nonce.Hex(),
			"error", err)
		return err
	}

	// Post-commit, still under the signer lock so event order matches
	// commit order
	e.sink.Publish(types.NewAuthorizationUsedEvent(auth.From, auth.Nonce))
	e.sink.Publish(types.NewTransferEvent(auth.From, auth.To, auth.Value))

	return nil
}

func (e *Engine) cancelAuthorization(ctx context.Context, cancel *types.Cancellation, sig []byte) error {
	if cancel == nil {
		return fmt.Errorf("nil cancellation: %w", ErrInvalidAuthorization)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := e.locks.lock(cancel.Authorizer)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	used, err := e.store.AuthorizationUsed(cancel.Authorizer, cancel.Nonce)
	if err != nil {
		return fmt.Errorf("failed to read authorization state: %w", err)
	}
	if used {
		return fmt.Errorf("authorizer %s nonce %s: %w", cancel.Authorizer.Hex(), cancel.Nonce.Hex(), ErrAuthorizationAlreadyUsed)
	}

	recovered, err := signature.RecoverSigner(e.domain.CancelDigest(cancel), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if recovered != cancel.Authorizer {
		return fmt.Errorf("recovered %s, expected %s: %w", recovered.Hex(), cancel.Authorizer.Hex(), ErrInvalidSignature)
	}

	err = e.store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return txn.MarkAuthorizationUsed(cancel.Authorizer, cancel.Nonce)
	})
	if err != nil {
		return fmt.Errorf("failed to mark authorization used: %w", err)
	}

	e.sink.Publish(types.NewAuthorizationCanceledEvent(cancel.Authorizer, cancel.Nonce))

	return nil
}

// observe records one operation outcome.
func (e *Engine) observe(operation string, err error, duration time.Duration) {
	e.metrics.ObserveOperation(operation, Code(err), duration)
}

// validateAuthorization rejects structurally incomplete input before any
// state is read.
func validateAuthorization(auth *types.Authorization) error {
	if auth == nil {
		return fmt.Errorf("nil authorization: %w", ErrInvalidAuthorization)
	}
	if auth.Value == nil || auth.ValidAfter == nil || auth.ValidBefore == nil {
		return fmt.Errorf("authorization with nil numeric field: %w", ErrInvalidAuthorization)
	}
	return nil
}
