package engine

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authrail/authrail-go/pkg/eip712"
	"github.com/authrail/authrail-go/pkg/ledger"
	"github.com/authrail/authrail-go/pkg/persistence"
	"github.com/authrail/authrail-go/pkg/persistence/memory"
	"github.com/authrail/authrail-go/pkg/signature"
	"github.com/authrail/authrail-go/pkg/types"
)

var (
	testNow      = time.Unix(1700000000, 0)
	testContract = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

const (
	seedBalance   = 10000000
	transferValue = 7000000
)

type testSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func newTestSigner(t *testing.T) testSigner {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return testSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

type captureSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (c *captureSink) Publish(event types.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) all() []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Event{}, c.events...)
}

func testDomain() *eip712.Domain {
	return eip712.NewDomain("AuthRail Token", "1", big.NewInt(8453), testContract)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.MemoryStore, *captureSink) {
	t.Helper()

	store := memory.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	sink := &captureSink{}
	base := []Option{
		WithEvents(sink),
		WithClock(func() time.Time { return testNow }),
	}
	eng := New(store, testDomain(), append(base, opts...)...)

	return eng, store, sink
}

func randomNonce(t *testing.T) common.Hash {
	t.Helper()

	var nonce common.Hash
	_, err := rand.Read(nonce[:])
	require.NoError(t, err)

	return nonce
}

func openAuth(t *testing.T, from testSigner, to common.Address, value int64) *types.Authorization {
	t.Helper()

	return &types.Authorization{
		From:        from.address,
		To:          to,
		Value:       big.NewInt(value),
		ValidAfter:  big.NewInt(testNow.Unix() - 600),
		ValidBefore: big.NewInt(testNow.Unix() + 600),
		Nonce:       randomNonce(t),
	}
}

func signTransfer(t *testing.T, s testSigner, auth *types.Authorization) []byte {
	t.Helper()

	sig, err := signature.Sign(testDomain().TransferDigest(auth), s.key)
	require.NoError(t, err)

	return sig
}

func signReceive(t *testing.T, s testSigner, auth *types.Authorization) []byte {
	t.Helper()

	sig, err := signature.Sign(testDomain().ReceiveDigest(auth), s.key)
	require.NoError(t, err)

	return sig
}

func signCancel(t *testing.T, s testSigner, cancel *types.Cancellation) []byte {
	t.Helper()

	sig, err := signature.Sign(testDomain().CancelDigest(cancel), s.key)
	require.NoError(t, err)

	return sig
}

func fund(t *testing.T, store persistence.IAuthorizationStore, account common.Address, amount int64) {
	t.Helper()

	err := store.Atomically(func(txn persistence.AuthorizationTxn) error {
		return ledger.Mint(txn, account, big.NewInt(amount))
	})
	require.NoError(t, err)
}

func balanceOf(t *testing.T, eng *Engine, account common.Address) *big.Int {
	t.Helper()

	balance, err := eng.BalanceOf(account)
	require.NoError(t, err)

	return balance
}

func TestEngine_TransferWithAuthorization(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, seedBalance)

	auth := openAuth(t, alice, bob.address, transferValue)
	sig := signTransfer(t, alice, auth)

	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.NoError(t, err)

	assert.Equal(t, int64(seedBalance-transferValue), balanceOf(t, eng, alice.address).Int64())
	assert.Equal(t, int64(transferValue), balanceOf(t, eng, bob.address).Int64())

	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestEngine_TransferWithAuthorization_ReplayRejected(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, seedBalance)

	auth := openAuth(t, alice, bob.address, 100)
	sig := signTransfer(t, alice, auth)

	require.NoError(t, eng.TransferWithAuthorization(context.Background(), auth, sig))

	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.ErrorIs(t, err, ErrAuthorizationAlreadyUsed)

	// Value moved exactly once
	assert.Equal(t, int64(seedBalance-100), balanceOf(t, eng, alice.address).Int64())
	assert.Equal(t, int64(100), balanceOf(t, eng, bob.address).Int64())
}

func TestEngine_TransferWithAuthorization_DistinctNonces(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	first := openAuth(t, alice, bob.address, 300)
	second := openAuth(t, alice, bob.address, 300)
	require.NotEqual(t, first.Nonce, second.Nonce)

	require.NoError(t, eng.TransferWithAuthorization(context.Background(), first, signTransfer(t, alice, first)))
	require.NoError(t, eng.TransferWithAuthorization(context.Background(), second, signTransfer(t, alice, second)))

	assert.Equal(t, int64(400), balanceOf(t, eng, alice.address).Int64())
	assert.Equal(t, int64(600), balanceOf(t, eng, bob.address).Int64())
}

func TestEngine_TransferWithAuthorization_NotYetValid(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	auth.ValidAfter = big.NewInt(testNow.Unix() + 60)
	sig := signTransfer(t, alice, auth)

	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.ErrorIs(t, err, ErrAuthorizationNotYetValid)

	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.False(t, used, "rejected authorization must stay unused")
	assert.Equal(t, int64(1000), balanceOf(t, eng, alice.address).Int64())
}

func TestEngine_TransferWithAuthorization_Expired(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	auth.ValidBefore = big.NewInt(testNow.Unix() - 1)
	sig := signTransfer(t, alice, auth)

	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.ErrorIs(t, err, ErrAuthorizationExpired)

	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.False(t, used)
}

func TestEngine_TransferWithAuthorization_WindowBoundaries(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	// validAfter is inclusive: an authorization becoming valid exactly now
	// is accepted.
	atLowerBound := openAuth(t, alice, bob.address, 10)
	atLowerBound.ValidAfter = big.NewInt(testNow.Unix())
	require.NoError(t, eng.TransferWithAuthorization(context.Background(), atLowerBound, signTransfer(t, alice, atLowerBound)))

	// validBefore is exclusive: an authorization expiring exactly now is
	// rejected.
	atUpperBound := openAuth(t, alice, bob.address, 10)
	atUpperBound.ValidBefore = big.NewInt(testNow.Unix())
	err := eng.TransferWithAuthorization(context.Background(), atUpperBound, signTransfer(t, alice, atUpperBound))
	require.ErrorIs(t, err, ErrAuthorizationExpired)
}

func TestEngine_TransferWithAuthorization_WrongSigner(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	mallory := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	sig := signTransfer(t, mallory, auth)

	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.ErrorIs(t, err, ErrInvalidSignature)

	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.False(t, used)
	assert.Equal(t, int64(1000), balanceOf(t, eng, alice.address).Int64())
}

func TestEngine_TransferWithAuthorization_TamperedSignature(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	sig := signTransfer(t, alice, auth)
	sig[10] ^= 0xff

	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestEngine_TransferWithAuthorization_TamperedFields(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	sig := signTransfer(t, alice, auth)

	// A relayer inflating the signed amount changes the digest, so the
	// recovered signer no longer matches.
	auth.Value = big.NewInt(999)

	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, int64(1000), balanceOf(t, eng, alice.address).Int64())
}

func TestEngine_CrossTypeSignaturesRejected(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)

	// A transfer signature must not authorize a receive, and vice versa:
	// the two operations hash under distinct type hashes.
	transferSig := signTransfer(t, alice, auth)
	err := eng.ReceiveWithAuthorization(context.Background(), bob.address, auth, transferSig)
	require.ErrorIs(t, err, ErrInvalidSignature)

	receiveSig := signReceive(t, alice, auth)
	err = eng.TransferWithAuthorization(context.Background(), auth, receiveSig)
	require.ErrorIs(t, err, ErrInvalidSignature)

	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.False(t, used)
}

func TestEngine_TransferWithAuthorization_InsufficientBalance(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 100)

	auth := openAuth(t, alice, bob.address, 101)
	sig := signTransfer(t, alice, auth)

	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// The whole unit rolled back: nonce unused, balances untouched.
	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.False(t, used)
	assert.Equal(t, int64(100), balanceOf(t, eng, alice.address).Int64())
	assert.Equal(t, int64(0), balanceOf(t, eng, bob.address).Int64())

	// The same signed message becomes spendable once the account is topped
	// up.
	fund(t, store, alice.address, 1)
	require.NoError(t, eng.TransferWithAuthorization(context.Background(), auth, sig))
	assert.Equal(t, int64(0), balanceOf(t, eng, alice.address).Int64())
	assert.Equal(t, int64(101), balanceOf(t, eng, bob.address).Int64())
}

func TestEngine_TransferWithAuthorization_ZeroValue(t *testing.T) {
	eng, _, sink := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)

	// Zero-value transfers need no funds and still burn the nonce.
	auth := openAuth(t, alice, bob.address, 0)
	sig := signTransfer(t, alice, auth)

	require.NoError(t, eng.TransferWithAuthorization(context.Background(), auth, sig))

	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.True(t, used)

	published := sink.all()
	require.Len(t, published, 2)
	assert.Equal(t, types.EventAuthorizationUsed, published[0].Kind)
	assert.Equal(t, types.EventTransfer, published[1].Kind)
}

func TestEngine_TransferWithAuthorization_SelfTransfer(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	fund(t, store, alice.address, 500)

	auth := openAuth(t, alice, alice.address, 200)
	sig := signTransfer(t, alice, auth)

	require.NoError(t, eng.TransferWithAuthorization(context.Background(), auth, sig))

	assert.Equal(t, int64(500), balanceOf(t, eng, alice.address).Int64())

	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestEngine_TransferWithAuthorization_InvalidInput(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)

	err := eng.TransferWithAuthorization(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrInvalidAuthorization)

	auth := openAuth(t, alice, bob.address, 100)
	auth.Value = nil
	err = eng.TransferWithAuthorization(context.Background(), auth, nil)
	require.ErrorIs(t, err, ErrInvalidAuthorization)

	auth = openAuth(t, alice, bob.address, 100)
	auth.ValidBefore = nil
	err = eng.TransferWithAuthorization(context.Background(), auth, nil)
	require.ErrorIs(t, err, ErrInvalidAuthorization)
}

func TestEngine_TransferWithAuthorization_ContextCanceled(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	sig := signTransfer(t, alice, auth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := eng.TransferWithAuthorization(ctx, auth, sig)
	require.ErrorIs(t, err, context.Canceled)

	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.False(t, used)
}

func TestEngine_ReceiveWithAuthorization(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, seedBalance)

	auth := openAuth(t, alice, bob.address, transferValue)
	sig := signReceive(t, alice, auth)

	err := eng.ReceiveWithAuthorization(context.Background(), bob.address, auth, sig)
	require.NoError(t, err)

	assert.Equal(t, int64(seedBalance-transferValue), balanceOf(t, eng, alice.address).Int64())
	assert.Equal(t, int64(transferValue), balanceOf(t, eng, bob.address).Int64())
}

func TestEngine_ReceiveWithAuthorization_CallerNotPayee(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	mallory := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	sig := signReceive(t, alice, auth)

	err := eng.ReceiveWithAuthorization(context.Background(), mallory.address, auth, sig)
	require.ErrorIs(t, err, ErrCallerNotPayee)

	// The payee can still redeem it.
	require.NoError(t, eng.ReceiveWithAuthorization(context.Background(), bob.address, auth, sig))
	assert.Equal(t, int64(100), balanceOf(t, eng, bob.address).Int64())
}

func TestEngine_CancelAuthorization(t *testing.T) {
	eng, store, sink := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	transferSig := signTransfer(t, alice, auth)

	cancel := &types.Cancellation{Authorizer: alice.address, Nonce: auth.Nonce}
	require.NoError(t, eng.CancelAuthorization(context.Background(), cancel, signCancel(t, alice, cancel)))

	used, err := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, err)
	assert.True(t, used)

	// The canceled nonce can never be spent, and no balances moved.
	err = eng.TransferWithAuthorization(context.Background(), auth, transferSig)
	require.ErrorIs(t, err, ErrAuthorizationAlreadyUsed)
	assert.Equal(t, int64(1000), balanceOf(t, eng, alice.address).Int64())
	assert.Equal(t, int64(0), balanceOf(t, eng, bob.address).Int64())

	published := sink.all()
	require.Len(t, published, 1)
	assert.Equal(t, types.EventAuthorizationCanceled, published[0].Kind)
	assert.Equal(t, alice.address, published[0].Authorizer)
	assert.Equal(t, auth.Nonce, published[0].Nonce)
}

func TestEngine_CancelAuthorization_AfterUse(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	require.NoError(t, eng.TransferWithAuthorization(context.Background(), auth, signTransfer(t, alice, auth)))

	cancel := &types.Cancellation{Authorizer: alice.address, Nonce: auth.Nonce}
	err := eng.CancelAuthorization(context.Background(), cancel, signCancel(t, alice, cancel))
	require.ErrorIs(t, err, ErrAuthorizationAlreadyUsed)
}

func TestEngine_CancelAuthorization_WrongSigner(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	alice := newTestSigner(t)
	mallory := newTestSigner(t)

	cancel := &types.Cancellation{Authorizer: alice.address, Nonce: randomNonce(t)}
	sig := signCancel(t, mallory, cancel)

	err := eng.CancelAuthorization(context.Background(), cancel, sig)
	require.ErrorIs(t, err, ErrInvalidSignature)

	used, err := eng.AuthorizationState(alice.address, cancel.Nonce)
	require.NoError(t, err)
	assert.False(t, used, "a third party must not be able to burn someone else's nonce")
}

func TestEngine_CancelAuthorization_NilInput(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	err := eng.CancelAuthorization(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrInvalidAuthorization)
}

func TestEngine_EventOrder(t *testing.T) {
	eng, store, sink := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 250)
	require.NoError(t, eng.TransferWithAuthorization(context.Background(), auth, signTransfer(t, alice, auth)))

	published := sink.all()
	require.Len(t, published, 2)

	assert.Equal(t, types.EventAuthorizationUsed, published[0].Kind)
	assert.Equal(t, alice.address, published[0].Authorizer)
	assert.Equal(t, auth.Nonce, published[0].Nonce)

	assert.Equal(t, types.EventTransfer, published[1].Kind)
	assert.Equal(t, alice.address, published[1].From)
	assert.Equal(t, bob.address, published[1].To)
	assert.Equal(t, int64(250), published[1].Value.Int64())
}

func TestEngine_NoEventsOnRejection(t *testing.T) {
	eng, _, sink := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)

	auth := openAuth(t, alice, bob.address, 100)
	sig := signTransfer(t, alice, auth)

	// Unfunded account: the atomic unit fails and nothing is published.
	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Empty(t, sink.all())
}

func TestEngine_FailingLedgerRollsBack(t *testing.T) {
	errLedger := errors.New("ledger refused")

	eng, store, sink := newTestEngine(t, WithLedger(ledgerFunc(
		func(txn persistence.AuthorizationTxn, from, to common.Address, value *big.Int) error {
			// Stage a write before failing to prove staged state is
			// discarded with the nonce mark.
			if err := txn.SetBalance(to, big.NewInt(999)); err != nil {
				return err
			}
			return errLedger
		})))
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	err := eng.TransferWithAuthorization(context.Background(), auth, signTransfer(t, alice, auth))
	require.ErrorIs(t, err, errLedger)

	used, stateErr := eng.AuthorizationState(alice.address, auth.Nonce)
	require.NoError(t, stateErr)
	assert.False(t, used)
	assert.Equal(t, int64(0), balanceOf(t, eng, bob.address).Int64())
	assert.Empty(t, sink.all())
}

func TestEngine_ValidationOrder(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	mallory := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	garbage := make([]byte, signature.Length)

	// Replay is checked before the window: a consumed nonce reports
	// already-used even when the window has also lapsed.
	spent := openAuth(t, alice, bob.address, 10)
	require.NoError(t, eng.TransferWithAuthorization(context.Background(), spent, signTransfer(t, alice, spent)))
	replay := *spent
	replay.ValidBefore = big.NewInt(testNow.Unix() - 1)
	err := eng.TransferWithAuthorization(context.Background(), &replay, garbage)
	require.ErrorIs(t, err, ErrAuthorizationAlreadyUsed)

	// The window is checked before the signature: an expired message with a
	// garbage signature reports expired.
	expired := openAuth(t, alice, bob.address, 10)
	expired.ValidBefore = big.NewInt(testNow.Unix() - 1)
	err = eng.TransferWithAuthorization(context.Background(), expired, garbage)
	require.ErrorIs(t, err, ErrAuthorizationExpired)

	// The receive caller check precedes the signature check.
	receive := openAuth(t, alice, bob.address, 10)
	err = eng.ReceiveWithAuthorization(context.Background(), mallory.address, receive, garbage)
	require.ErrorIs(t, err, ErrCallerNotPayee)
}

func TestEngine_ConcurrentSameAuthorization(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	sig := signTransfer(t, alice, auth)

	const submitters = 8
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = eng.TransferWithAuthorization(context.Background(), auth, sig)
		}(i)
	}
	wg.Wait()

	var succeeded, replayed int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAuthorizationAlreadyUsed):
			replayed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one submission may consume the nonce")
	assert.Equal(t, submitters-1, replayed)
	assert.Equal(t, int64(900), balanceOf(t, eng, alice.address).Int64())
	assert.Equal(t, int64(100), balanceOf(t, eng, bob.address).Int64())
}

func TestEngine_ConcurrentDistinctSigners(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	sinkAccount := newTestSigner(t)

	const signers = 12
	senders := make([]testSigner, signers)
	auths := make([]*types.Authorization, signers)
	sigs := make([][]byte, signers)
	for i := range senders {
		senders[i] = newTestSigner(t)
		fund(t, store, senders[i].address, 1000)
		auths[i] = openAuth(t, senders[i], sinkAccount.address, 1000)
		sigs[i] = signTransfer(t, senders[i], auths[i])
	}

	var wg sync.WaitGroup
	errs := make([]error, signers)
	for i := 0; i < signers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = eng.TransferWithAuthorization(context.Background(), auths[i], sigs[i])
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "signer %d", i)
	}
	assert.Equal(t, int64(signers*1000), balanceOf(t, eng, sinkAccount.address).Int64())
}

func TestEngine_DomainIsolation(t *testing.T) {
	eng, store, _ := newTestEngine(t)
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)

	// Signed under a different chain id, so the digest differs and the
	// recovered signer does not match.
	foreign := eip712.NewDomain("AuthRail Token", "1", big.NewInt(1), testContract)
	sig, err := signature.Sign(foreign.TransferDigest(auth), alice.key)
	require.NoError(t, err)

	err = eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestEngine_DomainSeparator(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	assert.Equal(t, testDomain().Separator(), eng.DomainSeparator())
	assert.Equal(t, "AuthRail Token", eng.Domain().Name())
	assert.Equal(t, "1", eng.Domain().Version())
}

func TestEngine_BalanceOf_DefaultsToZero(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	stranger := newTestSigner(t)

	assert.Equal(t, int64(0), balanceOf(t, eng, stranger.address).Int64())
}

func TestEngine_MetricsObserved(t *testing.T) {
	recorder := &captureRecorder{}
	eng, store, _ := newTestEngine(t, WithMetrics(recorder))
	alice := newTestSigner(t)
	bob := newTestSigner(t)
	fund(t, store, alice.address, 1000)

	auth := openAuth(t, alice, bob.address, 100)
	sig := signTransfer(t, alice, auth)

	require.NoError(t, eng.TransferWithAuthorization(context.Background(), auth, sig))
	err := eng.TransferWithAuthorization(context.Background(), auth, sig)
	require.Error(t, err)

	observed := recorder.all()
	require.Len(t, observed, 2)
	assert.Equal(t, "transfer", observed[0].operation)
	assert.Equal(t, "success", observed[0].outcome)
	assert.Equal(t, "transfer", observed[1].operation)
	assert.Equal(t, "authorization_already_used", observed[1].outcome)
}

type observation struct {
	operation string
	outcome   string
	duration  time.Duration
}

type captureRecorder struct {
	mu           sync.Mutex
	observations []observation
}

func (c *captureRecorder) ObserveOperation(operation, outcome string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observations = append(c.observations, observation{operation, outcome, duration})
}

func (c *captureRecorder) all() []observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]observation{}, c.observations...)
}
