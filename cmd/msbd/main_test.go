package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"msb/config"
	"msb/core/apply"
	"msb/core/codec"
	"msb/core/messages"
	"msb/core/state"
	"msb/core/types"
	"msb/crypto"
	"msb/oplog"
	"msb/storage"
)

func openState(t *testing.T) *state.State {
	t.Helper()
	return openStateWith(t, oplog.Options{})
}

func openStateWith(t *testing.T, opts oplog.Options) *state.State {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Logger = logger
	opLog, err := oplog.New(storage.NewMemDB(), opts)
	require.NoError(t, err)
	engine, err := apply.NewEngine(apply.DefaultParams(opLog.Bootstrap()), logger)
	require.NoError(t, err)
	st, err := state.New(opLog, storage.NewView(storage.NewMemDB(), 0), engine, logger)
	require.NoError(t, err)
	require.NoError(t, st.Open(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestHealthzReportsLedgerRole(t *testing.T) {
	st := openState(t)
	rec := httptest.NewRecorder()
	opsRouter(st, "node-1").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status ledgerStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	local := st.LocalKey()
	require.Equal(t, ledgerStatus{
		Instance: "node-1",
		Writer:   hex.EncodeToString(local[:]),
		Writable: true,
		Indexer:  true,
	}, status)
}

func TestMetricsRouteServed(t *testing.T) {
	rec := httptest.NewRecorder()
	opsRouter(openState(t), "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	opsRouter(openState(t), "").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIngestAppendsHexLines(t *testing.T) {
	st := openState(t)
	admin, err := crypto.GenerateKeyPair(crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	txv, err := st.TxValidity()
	require.NoError(t, err)
	local := st.LocalKey()
	op, err := messages.NewDirector(admin, crypto.DefaultAddressPrefix).AddAdmin(txv, local[:])
	require.NoError(t, err)
	raw, err := codec.EncodeOperation(op)
	require.NoError(t, err)

	input := strings.Join([]string{"", "not-hex", hex.EncodeToString(raw), "  "}, "\n")
	ingest(context.Background(), strings.NewReader(input), st, ingestLimiter(config.Ingest{}), slog.New(slog.NewTextHandler(io.Discard, nil)))

	entry, err := st.AdminEntry()
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, admin.Address(), entry.Address)
	require.Equal(t, uint64(1), st.SignedLength())
}

func TestIngestLimiter(t *testing.T) {
	require.Equal(t, rate.Inf, ingestLimiter(config.Ingest{}).Limit())
	limited := ingestLimiter(config.Ingest{RatePerSecond: 2, Burst: 3})
	require.Equal(t, rate.Limit(2), limited.Limit())
	require.Equal(t, 3, limited.Burst())
}

func TestEnsureGenesisAppendsAdminOnce(t *testing.T) {
	st := openState(t)
	identity, err := crypto.GenerateKeyPair(crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, ensureGenesis(context.Background(), st, identity, logger))
	entry, err := st.AdminEntry()
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, identity.Address(), entry.Address)
	local := st.LocalKey()
	require.Equal(t, local[:], entry.WriterKey[:])
	require.Equal(t, uint64(1), st.SignedLength())

	other, err := crypto.GenerateKeyPair(crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	require.NoError(t, ensureGenesis(context.Background(), st, other, logger))
	entry, err = st.AdminEntry()
	require.NoError(t, err)
	require.Equal(t, identity.Address(), entry.Address)
	require.Equal(t, uint64(1), st.SignedLength())
}

func TestEnsureGenesisSkipsJoiningNode(t *testing.T) {
	var bootstrap types.WriterKey
	bootstrap[0] = 0x42
	st := openStateWith(t, oplog.Options{Bootstrap: bootstrap})
	identity, err := crypto.GenerateKeyPair(crypto.DefaultAddressPrefix)
	require.NoError(t, err)

	require.NoError(t, ensureGenesis(context.Background(), st, identity, slog.New(slog.NewTextHandler(io.Discard, nil))))
	entry, err := st.AdminEntry()
	require.NoError(t, err)
	require.Nil(t, entry)
}
