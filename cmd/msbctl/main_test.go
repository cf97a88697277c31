package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"msb/cmd/internal/passphrase"
	"msb/core/codec"
	"msb/core/types"
	"msb/crypto"
	"msb/observability/logging"
)

const testPassphrase = "msbctl test passphrase"

func runCommand(t *testing.T, command string, args ...string) string {
	t.Helper()
	t.Setenv(passphrase.DefaultEnv, testPassphrase)
	var out bytes.Buffer
	require.NoError(t, run(command, args, &out))
	return strings.TrimSpace(out.String())
}

func TestKeygenMasksSeedUnlessRevealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requester.key")
	out := runCommand(t, keygenCommand, "-out", path)
	require.Contains(t, out, logging.RedactedValue)

	key, err := crypto.LoadKeyFile(path, testPassphrase, crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	require.Contains(t, out, key.Address())

	var buf bytes.Buffer
	if err := run(keygenCommand, []string{"-out", path}, &buf); err == nil {
		t.Fatalf("expected keygen to refuse overwriting %s", path)
	}

	revealed := runCommand(t, keygenCommand, "-reveal")
	require.NotContains(t, revealed, logging.RedactedValue)
}

func TestKeyCommandsRejectWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requester.key")
	runCommand(t, keygenCommand, "-out", path)
	require.Equal(t, mustLoad(t, path).Address(), runCommand(t, addressCommand, "-key", path))

	t.Setenv(passphrase.DefaultEnv, "some other passphrase")
	var out bytes.Buffer
	err := run(addressCommand, []string{"-key", path}, &out)
	require.ErrorIs(t, err, crypto.ErrWrongPassphrase)
}

func mustLoad(t *testing.T, path string) *crypto.KeyPair {
	t.Helper()
	key, err := crypto.LoadKeyFile(path, testPassphrase, crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	return key
}

func TestAddressRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKeyPair(crypto.DefaultAddressPrefix)
	require.NoError(t, err)

	pubHex := runCommand(t, addressCommand, key.Address())
	require.Equal(t, key.Address(), runCommand(t, addressCommand, pubHex))
}

func TestTxValiditySortsIndexers(t *testing.T) {
	a := strings.Repeat("01", types.WriterKeySize)
	b := strings.Repeat("02", types.WriterKeySize)
	first := runCommand(t, txvCommand, "-epoch", "3", "-indexers", a+","+b)
	second := runCommand(t, txvCommand, "-epoch", "3", "-indexers", b+","+a)
	require.Equal(t, first, second)
	require.Len(t, first, 64)

	other := runCommand(t, txvCommand, "-epoch", "4", "-indexers", a+","+b)
	require.NotEqual(t, first, other)
}

func TestOperationAssemblyAndCoSign(t *testing.T) {
	dir := t.TempDir()
	requesterPath := filepath.Join(dir, "requester.key")
	validatorPath := filepath.Join(dir, "validator.key")
	runCommand(t, keygenCommand, "-out", requesterPath)
	runCommand(t, keygenCommand, "-out", validatorPath)

	recipient, err := crypto.GenerateKeyPair(crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	txv := strings.Repeat("ab", 32)

	encoded := runCommand(t, opCommand,
		"-type", "TRANSFER",
		"-key", requesterPath,
		"-txv", txv,
		"-recipient", recipient.Address(),
		"-amount", "1.5")
	decoded := runCommand(t, decodeCommand, encoded)
	require.Contains(t, decoded, "TRANSFER")
	require.NotContains(t, decoded, "validator:")

	cosigned := runCommand(t, cosignCommand, "-key", validatorPath, encoded)
	op, err := parseOperation(cosigned)
	require.NoError(t, err)
	payload, ok := op.Payload.(*types.TransferPayload)
	require.True(t, ok)
	require.True(t, payload.Validator.Complete())

	validator, err := crypto.LoadKeyFile(validatorPath, testPassphrase, crypto.DefaultAddressPrefix)
	require.NoError(t, err)
	hash, err := codec.ValidatorHash(payload.TxHash, validator.PublicKey(), payload.Validator.Nonce)
	require.NoError(t, err)
	require.True(t, crypto.Verify(validator.PublicKey(), hash[:], payload.Validator.Signature))
}

func TestCoSignRejectsAdminOperations(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "admin.key")
	runCommand(t, keygenCommand, "-out", keyPath)

	encoded := runCommand(t, opCommand,
		"-type", "DISABLE_INITIALIZATION",
		"-key", keyPath,
		"-txv", strings.Repeat("cd", 32))

	var out bytes.Buffer
	if err := run(cosignCommand, []string{"-key", keyPath, encoded}, &out); err == nil {
		t.Fatalf("expected cosign of an admin operation to fail")
	}
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run("frobnicate", nil, &out))
}
