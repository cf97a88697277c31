package apply_test

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"msb/core/apply"
	"msb/core/balance"
	"msb/core/codec"
	"msb/core/keys"
	"msb/core/messages"
	"msb/core/types"
	"msb/crypto"
	"msb/storage"
)

type fakeHost struct {
	seq     []byte
	writers map[types.WriterKey]bool
	removed []types.WriterKey
	addErr  error
	// panics makes the next SequenceState calls panic.
	panics int
}

func (h *fakeHost) AddWriter(key types.WriterKey, indexer bool) error {
	if h.addErr != nil {
		return h.addErr
	}
	h.writers[key] = indexer
	return nil
}

func (h *fakeHost) RemoveWriter(key types.WriterKey) error {
	delete(h.writers, key)
	h.removed = append(h.removed, key)
	return nil
}

func (h *fakeHost) SequenceState() ([]byte, error) {
	if h.panics > 0 {
		h.panics--
		panic("sequence state unavailable")
	}
	return h.seq, nil
}

type network struct {
	t         *testing.T
	params    apply.Params
	engine    *apply.Engine
	view      *storage.View
	host      *fakeHost
	bootstrap types.WriterKey
	admin     *crypto.KeyPair
	adminKey  types.WriterKey
	next      uint64
}

func newNetwork(t *testing.T, opts ...func(*apply.Params)) *network {
	t.Helper()
	bootstrap := randomWriterKey(t)
	params := apply.DefaultParams(bootstrap)
	for _, opt := range opts {
		opt(&params)
	}
	engine, err := apply.NewEngine(params, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	seq := append(make([]byte, 8), bootstrap[:]...)
	return &network{
		t:         t,
		params:    params,
		engine:    engine,
		view:      storage.NewView(storage.NewMemDB(), 0),
		host:      &fakeHost{seq: seq, writers: map[types.WriterKey]bool{bootstrap: true}},
		bootstrap: bootstrap,
		admin:     newKeyPair(t),
		adminKey:  bootstrap,
	}
}

func newKeyPair(t *testing.T) *crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	return kp
}

func randomWriterKey(t *testing.T) types.WriterKey {
	t.Helper()
	var key types.WriterKey
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	return key
}

func (n *network) txv() []byte {
	return codec.ValidityToken(n.host.seq)
}

func (n *network) director(kp *crypto.KeyPair) *messages.Director {
	return messages.NewDirector(kp, n.params.AddressPrefix)
}

func (n *network) entry(writer types.WriterKey, op *types.Operation) apply.Entry {
	n.t.Helper()
	raw, err := codec.EncodeOperation(op)
	require.NoError(n.t, err)
	return n.rawEntry(writer, raw)
}

func (n *network) rawEntry(writer types.WriterKey, raw []byte) apply.Entry {
	n.next++
	return apply.Entry{Value: raw, Writer: writer, Index: n.next}
}

func (n *network) apply(entries ...apply.Entry) []apply.Receipt {
	n.t.Helper()
	receipts, err := n.engine.Apply(context.Background(), entries, n.view, n.host)
	require.NoError(n.t, err)
	require.Len(n.t, receipts, len(entries))
	return receipts
}

func (n *network) submit(writer types.WriterKey, op *types.Operation) apply.Receipt {
	n.t.Helper()
	return n.apply(n.entry(writer, op))[0]
}

func (n *network) genesis() {
	n.t.Helper()
	op, err := n.director(n.admin).AddAdmin(n.txv(), n.bootstrap[:])
	require.NoError(n.t, err)
	requireAccepted(n.t, n.submit(n.bootstrap, op))
}

func (n *network) whitelist(address string) {
	n.t.Helper()
	op, err := n.director(n.admin).AppendWhitelist(n.txv(), address)
	require.NoError(n.t, err)
	requireAccepted(n.t, n.submit(n.adminKey, op))
}

func (n *network) fund(address, amount string) {
	n.t.Helper()
	op, err := n.director(n.admin).BalanceInitialization(n.txv(), address, balance.MustParse(amount))
	require.NoError(n.t, err)
	requireAccepted(n.t, n.submit(n.adminKey, op))
}

// joinWriter whitelists and funds kp, then promotes it under a fresh writer
// key through the admin.
func (n *network) joinWriter(kp *crypto.KeyPair) types.WriterKey {
	n.t.Helper()
	n.whitelist(kp.Address())
	n.fund(kp.Address(), "10")
	key := randomWriterKey(n.t)
	requireAccepted(n.t, n.submit(n.adminKey, n.addWriterOp(kp, key, n.admin)))
	return key
}

func (n *network) addWriterOp(kp *crypto.KeyPair, key types.WriterKey, validator *crypto.KeyPair) *types.Operation {
	n.t.Helper()
	op, err := n.director(kp).AddWriter(n.txv(), key[:])
	require.NoError(n.t, err)
	require.NoError(n.t, messages.CompleteWithValidator(op, validator))
	return op
}

func (n *network) addIndexer(address string) {
	n.t.Helper()
	op, err := n.director(n.admin).AddIndexer(n.txv(), address)
	require.NoError(n.t, err)
	requireAccepted(n.t, n.submit(n.adminKey, op))
}

func (n *network) transfer(from *crypto.KeyPair, to string, amount string, validator *crypto.KeyPair) *types.Operation {
	n.t.Helper()
	op, err := n.director(from).Transfer(n.txv(), to, balance.MustParse(amount))
	require.NoError(n.t, err)
	if validator != nil {
		require.NoError(n.t, messages.CompleteWithValidator(op, validator))
	}
	return op
}

func (n *network) get(key []byte) []byte {
	n.t.Helper()
	raw, err := n.view.Get(key)
	require.NoError(n.t, err)
	return raw
}

func (n *network) node(address string) *types.NodeEntry {
	n.t.Helper()
	raw := n.get(keys.Node(address))
	if raw == nil {
		return nil
	}
	entry, err := codec.DecodeNodeEntry(raw)
	require.NoError(n.t, err)
	return entry
}

func (n *network) balanceOf(address string) balance.Balance {
	n.t.Helper()
	if entry := n.node(address); entry != nil {
		return entry.Balance
	}
	return balance.Zero
}

func (n *network) adminEntry() *types.AdminEntry {
	n.t.Helper()
	raw := n.get(keys.Admin())
	if raw == nil {
		return nil
	}
	admin, err := codec.DecodeAdminEntry(raw)
	require.NoError(n.t, err)
	return admin
}

func (n *network) indexers() []string {
	n.t.Helper()
	raw := n.get(keys.Indexers())
	if raw == nil {
		return nil
	}
	list, err := codec.DecodeIndexers(raw)
	require.NoError(n.t, err)
	return list
}

func (n *network) whitelisted(address string) bool {
	return n.get(keys.Whitelist(address)) != nil
}

func requireAccepted(t *testing.T, r apply.Receipt) {
	t.Helper()
	if !r.Accepted() {
		t.Fatalf("expected %s to be accepted, got %s: %v", r.Operation, r.Status, r.Reason)
	}
}

func requireRejected(t *testing.T, r apply.Receipt, reason apply.RejectReason) {
	t.Helper()
	require.Equal(t, apply.ReceiptStatusRejected, r.Status)
	require.NotNil(t, r.Reason)
	require.Equal(t, reason, r.Reason.Reason)
}

func requireBalance(t *testing.T, want string, got balance.Balance) {
	t.Helper()
	if !got.Equal(balance.MustParse(want)) {
		t.Fatalf("balance = %s, want %s", got, want)
	}
}
