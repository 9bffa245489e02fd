package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Wire messages for the HTTP API. Numeric fields travel as decimal strings
// and byte fields as 0x-prefixed hex so that 256-bit values survive JSON
// intact.

// TransferRequest submits a transfer-with-authorization.
type TransferRequest struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"valid_after"`
	ValidBefore string `json:"valid_before"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
}

// ReceiveRequest submits a receive-with-authorization. CallerSignature is
// the submitting payee's signature over the same receive digest; the node
// recovers the caller identity from it.
type ReceiveRequest struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ValidAfter      string `json:"valid_after"`
	ValidBefore     string `json:"valid_before"`
	Nonce           string `json:"nonce"`
	Signature       string `json:"signature"`
	CallerSignature string `json:"caller_signature"`
}

// CancelRequest submits a cancel-authorization.
type CancelRequest struct {
	Authorizer string `json:"authorizer"`
	Nonce      string `json:"nonce"`
	Signature  string `json:"signature"`
}

// SubmitResponse acknowledges a committed operation.
type SubmitResponse struct {
	Status string `json:"status"`
}

// StateResponse reports the used flag for one (authorizer, nonce) pair.
type StateResponse struct {
	Authorizer string `json:"authorizer"`
	Nonce      string `json:"nonce"`
	Used       bool   `json:"used"`
}

// DomainResponse describes the immutable signing domain.
type DomainResponse struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chain_id"`
	VerifyingContract string `json:"verifying_contract"`
	Separator         string `json:"separator"`
}

// TypesResponse lists the authorization type strings and their hashes.
type TypesResponse struct {
	TransferType     string `json:"transfer_type"`
	TransferTypeHash string `json:"transfer_type_hash"`
	ReceiveType      string `json:"receive_type"`
	ReceiveTypeHash  string `json:"receive_type_hash"`
	CancelType       string `json:"cancel_type"`
	CancelTypeHash   string `json:"cancel_type_hash"`
}

// BalanceResponse reports one account balance.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// EventRecord is one recorded notification.
type EventRecord struct {
	Sequence   uint64 `json:"sequence"`
	Kind       string `json:"kind"`
	Authorizer string `json:"authorizer,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Value      string `json:"value,omitempty"`
	ObservedAt int64  `json:"observed_at"`
}

// EventsResponse pages the most recent event records, oldest first. Total
// counts every event ever published, including ones the ring has dropped.
type EventsResponse struct {
	Events []EventRecord `json:"events"`
	Total  uint64        `json:"total"`
}

// JournalRootResponse carries the current journal checkpoint.
type JournalRootResponse struct {
	Root   string `json:"root"`
	Leaves int    `json:"leaves"`
}

// ErrorResponse is the JSON error body. Code is stable across releases and
// maps one-to-one onto the engine's failure kinds.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Authorization parses the signed fields of a transfer request. The
// signature is returned separately so callers can hand both to the engine.
func (r *TransferRequest) Authorization() (*Authorization, []byte, error) {
	auth, err := parseAuthorizationFields(r.From, r.To, r.Value, r.ValidAfter, r.ValidBefore, r.Nonce)
	if err != nil {
		return nil, nil, err
	}
	sig, err := parseSignature(r.Signature, "signature")
	if err != nil {
		return nil, nil, err
	}
	return auth, sig, nil
}

// Authorization parses the signed fields of a receive request and both
// signatures (authorizer's, then the caller's).
func (r *ReceiveRequest) Authorization() (*Authorization, []byte, []byte, error) {
	auth, err := parseAuthorizationFields(r.From, r.To, r.Value, r.ValidAfter, r.ValidBefore, r.Nonce)
	if err != nil {
		return nil, nil, nil, err
	}
	sig, err := parseSignature(r.Signature, "signature")
	if err != nil {
		return nil, nil, nil, err
	}
	callerSig, err := parseSignature(r.CallerSignature, "caller_signature")
	if err != nil {
		return nil, nil, nil, err
	}
	return auth, sig, callerSig, nil
}

// Cancellation parses the signed fields of a cancel request.
func (r *CancelRequest) Cancellation() (*Cancellation, []byte, error) {
	authorizer, err := parseAddress(r.Authorizer, "authorizer")
	if err != nil {
		return nil, nil, err
	}
	nonce, err := ParseNonce(r.Nonce)
	if err != nil {
		return nil, nil, err
	}
	sig, err := parseSignature(r.Signature, "signature")
	if err != nil {
		return nil, nil, err
	}
	return &Cancellation{Authorizer: authorizer, Nonce: nonce}, sig, nil
}

// NewTransferRequest renders an authorization and its signature into wire
// form.
func NewTransferRequest(auth *Authorization, sig []byte) *TransferRequest {
	return &TransferRequest{
		From:        auth.From.Hex(),
		To:          auth.To.Hex(),
		Value:       auth.Value.String(),
		ValidAfter:  auth.ValidAfter.String(),
		ValidBefore: auth.ValidBefore.String(),
		Nonce:       auth.Nonce.Hex(),
		Signature:   hexutil.Encode(sig),
	}
}

// NewReceiveRequest renders a receive authorization with both signatures
// into wire form.
func NewReceiveRequest(auth *Authorization, sig, callerSig []byte) *ReceiveRequest {
	return &ReceiveRequest{
		From:            auth.From.Hex(),
		To:              auth.To.Hex(),
		Value:           auth.Value.String(),
		ValidAfter:      auth.ValidAfter.String(),
		ValidBefore:     auth.ValidBefore.String(),
		Nonce:           auth.Nonce.Hex(),
		Signature:       hexutil.Encode(sig),
		CallerSignature: hexutil.Encode(callerSig),
	}
}

// NewCancelRequest renders a cancellation and its signature into wire form.
func NewCancelRequest(cancel *Cancellation, sig []byte) *CancelRequest {
	return &CancelRequest{
		Authorizer: cancel.Authorizer.Hex(),
		Nonce:      cancel.Nonce.Hex(),
		Signature:  hexutil.Encode(sig),
	}
}

// NewEventRecord renders an event for the API.
func NewEventRecord(seq uint64, observedAt int64, ev Event) EventRecord {
	rec := EventRecord{
		Sequence:   seq,
		Kind:       string(ev.Kind),
		ObservedAt: observedAt,
	}
	switch ev.Kind {
	case EventTransfer:
		rec.From = ev.From.Hex()
		rec.To = ev.To.Hex()
		rec.Value = ev.Value.String()
	default:
		rec.Authorizer = ev.Authorizer.Hex()
		rec.Nonce = ev.Nonce.Hex()
	}
	return rec
}

func parseAuthorizationFields(from, to, value, validAfter, validBefore, nonce string) (*Authorization, error) {
	fromAddr, err := parseAddress(from, "from")
	if err != nil {
		return nil, err
	}
	toAddr, err := parseAddress(to, "to")
	if err != nil {
		return nil, err
	}
	v, err := parseAmount(value, "value")
	if err != nil {
		return nil, err
	}
	after, err := parseAmount(validAfter, "valid_after")
	if err != nil {
		return nil, err
	}
	before, err := parseAmount(validBefore, "valid_before")
	if err != nil {
		return nil, err
	}
	n, err := ParseNonce(nonce)
	if err != nil {
		return nil, err
	}
	return &Authorization{
		From:        fromAddr,
		To:          toAddr,
		Value:       v,
		ValidAfter:  after,
		ValidBefore: before,
		Nonce:       n,
	}, nil
}

func parseAddress(s, field string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not a valid address", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not a decimal integer", field, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s: must not be negative", field)
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%s: exceeds 256 bits", field)
	}
	return v, nil
}

// ParseNonce decodes a 0x-prefixed 32-byte nonce.
func ParseNonce(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("nonce: expected %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func parseSignature(s, field string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%s: missing", field)
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return b, nil
}
