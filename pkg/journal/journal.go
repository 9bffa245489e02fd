// Package journal maintains an append-only record of committed events and
// derives Merkle checkpoint roots over them. Roots and inclusion proofs let
// an external auditor verify that a reported event really committed, without
// trusting the node's event feed.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/authrail/authrail-go/pkg/events"
	"github.com/authrail/authrail-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	merkletree "github.com/wealdtech/go-merkletree/v2"
	"github.com/wealdtech/go-merkletree/v2/keccak256"
)

// leafSize is the fixed width of one encoded leaf:
// index (8) || kind (1) || authorizer (20) || nonce (32) || from (20) ||
// to (20) || value (32).
const leafSize = 8 + 1 + 20 + 32 + 20 + 20 + 32

// ErrEmpty is returned when a root or proof is requested before any event
// has been journaled.
var ErrEmpty = errors.New("journal is empty")

// Journal collects committed events as Merkle leaves. The checkpoint tree is
// rebuilt lazily after appends. Trees use keccak256 for Solidity
// compatibility.
type Journal struct {
	mu     sync.Mutex
	leaves [][]byte
	tree   *merkletree.MerkleTree
}

var _ events.Sink = (*Journal)(nil)

// New creates an empty journal.
func New() *Journal {
	return &Journal{}
}

// Publish appends one committed event. Implements events.Sink.
func (j *Journal) Publish(event types.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.leaves = append(j.leaves, encodeLeaf(uint64(len(j.leaves)), event))
	j.tree = nil // Checkpoint is stale
}

// Size returns the number of journaled events.
func (j *Journal) Size() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return len(j.leaves)
}

// Root returns the Merkle checkpoint root over every journaled event.
func (j *Journal) Root() (common.Hash, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.rebuild(); err != nil {
		return common.Hash{}, err
	}

	return common.BytesToHash(j.tree.Root()), nil
}

// Proof returns the leaf encoding and inclusion proof for one event index.
// The proof verifies against the root current at the time of the call; later
// appends produce new roots under which old proofs no longer hold.
func (j *Journal) Proof(index int) ([]byte, *merkletree.Proof, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if index < 0 || index >= len(j.leaves) {
		return nil, nil, fmt.Errorf("leaf index %d out of bounds (journal has %d leaves)", index, len(j.leaves))
	}

	if err := j.rebuild(); err != nil {
		return nil, nil, err
	}

	leaf := j.leaves[index]
	proof, err := j.tree.GenerateProof(leaf, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate proof for leaf %d: %w", index, err)
	}

	return leaf, proof, nil
}

// rebuild constructs the cached checkpoint tree. Callers hold the lock.
func (j *Journal) rebuild() error {
	if j.tree != nil {
		return nil
	}
	if len(j.leaves) == 0 {
		return ErrEmpty
	}

	tree, err := merkletree.NewTree(
		merkletree.WithData(j.leaves),
		merkletree.WithHashType(keccak256.New()),
	)
	if err != nil {
		return fmt.Errorf("failed to build checkpoint tree: %w", err)
	}

	j.tree = tree
	return nil
}

// Verify checks an inclusion proof against a checkpoint root.
func Verify(leaf []byte, proof *merkletree.Proof, root common.Hash) (bool, error) {
	return merkletree.VerifyProofUsing(leaf, false, proof, [][]byte{root.Bytes()}, keccak256.New())
}

// encodeLeaf packs one event into a fixed-width leaf. The append index is
// part of the encoding so identical events at different positions produce
// distinct leaves.
func encodeLeaf(index uint64, event types.Event) []byte {
	leaf := make([]byte, 0, leafSize)

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], index)
	leaf = append(leaf, seq[:]...)
	leaf = append(leaf, kindByte(event.Kind))
	leaf = append(leaf, event.Authorizer.Bytes()...)
	leaf = append(leaf, event.Nonce.Bytes()...)
	leaf = append(leaf, event.From.Bytes()...)
	leaf = append(leaf, event.To.Bytes()...)

	var value [32]byte
	if event.Value != nil {
		event.Value.FillBytes(value[:])
	}
	leaf = append(leaf, value[:]...)

	return leaf
}

// kindByte maps event kinds to stable single-byte tags.
func kindByte(kind types.EventKind) byte {
	switch kind {
	case types.EventAuthorizationUsed:
		return 0x01
	case types.EventTransfer:
		return 0x02
	case types.EventAuthorizationCanceled:
		return 0x03
	default:
		return 0x00
	}
}
