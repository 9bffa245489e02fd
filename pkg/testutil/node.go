package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authrail/authrail-go/pkg/engine"
	"github.com/authrail/authrail-go/pkg/events"
	"github.com/authrail/authrail-go/pkg/journal"
	"github.com/authrail/authrail-go/pkg/logger"
	"github.com/authrail/authrail-go/pkg/node"
	"github.com/authrail/authrail-go/pkg/persistence/memory"
)

// TestNode is a fully wired in-process node for integration tests: memory
// store, engine publishing to a recent-events ring and a journal, and the
// HTTP API served on an ephemeral port.
type TestNode struct {
	URL     string
	Engine  *engine.Engine
	Store   *memory.MemoryStore
	Recent  *events.MemorySink
	Journal *journal.Journal

	server *httptest.Server
}

// StartNode wires a node against a fresh in-memory store and serves its
// handler on an httptest server. Everything shuts down when the test ends.
func StartNode(t *testing.T) *TestNode {
	t.Helper()

	testLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	store := NewStore(t)
	recent := events.NewMemorySink(64)
	jour := journal.New()

	eng := engine.New(store, Domain(),
		engine.WithLogger(testLogger),
		engine.WithEvents(events.NewMultiSink(recent, jour)),
	)

	srv := node.NewServer(eng, store, ":0", node.Options{
		Recent:  recent,
		Journal: jour,
		Logger:  testLogger,
	})

	httpServer := httptest.NewServer(srv.GetHandler())
	t.Cleanup(httpServer.Close)

	return &TestNode{
		URL:     httpServer.URL,
		Engine:  eng,
		Store:   store,
		Recent:  recent,
		Journal: jour,
		server:  httpServer,
	}
}

// Fund mints amount into account on the node's store.
func (n *TestNode) Fund(t *testing.T, account common.Address, amount int64) {
	t.Helper()
	Fund(t, n.Store, account, amount)
}
