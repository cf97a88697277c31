package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GenerateKeyPair(DefaultAddressPrefix)
	require.NoError(t, err)

	addr := key.Address()
	require.Len(t, addr, 63)
	require.Equal(t, AddressLength(DefaultAddressPrefix), len(addr))
	require.True(t, IsAddressValid(addr, DefaultAddressPrefix))

	pub, err := AddressToBuffer(addr, DefaultAddressPrefix)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), pub)
}

func TestAddressRejectsMalformedInput(t *testing.T) {
	key, err := GenerateKeyPair(DefaultAddressPrefix)
	require.NoError(t, err)
	addr := key.Address()

	flipped := []byte(addr)
	last := len(flipped) - 1
	if flipped[last] == 'q' {
		flipped[last] = 'p'
	} else {
		flipped[last] = 'q'
	}

	cases := map[string]string{
		"empty":          "",
		"upper case":     strings.ToUpper(addr),
		"truncated":      addr[:len(addr)-1],
		"bad checksum":   string(flipped),
		"foreign prefix": "btc1" + addr[len(DefaultAddressPrefix)+1:],
		"bad character":  addr[:10] + "b" + addr[11:],
	}
	for name, candidate := range cases {
		if IsAddressValid(candidate, DefaultAddressPrefix) {
			t.Fatalf("%s: %q accepted", name, candidate)
		}
		if _, err := AddressToBuffer(candidate, DefaultAddressPrefix); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("%s: expected ErrInvalidAddress, got %v", name, err)
		}
	}
}

func TestBufferToAddressRejectsWrongSize(t *testing.T) {
	_, err := BufferToAddress(make([]byte, 31), DefaultAddressPrefix)
	require.ErrorIs(t, err, ErrInvalidAddress)
	_, err = BufferToAddress(make([]byte, 32), "")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSignAndVerify(t *testing.T) {
	key, err := GenerateKeyPair(DefaultAddressPrefix)
	require.NoError(t, err)
	hash := Hash([]byte("message"))

	sig := key.Sign(hash[:])
	require.Len(t, sig, SignatureSize)
	require.True(t, Verify(key.PublicKey(), hash[:], sig))

	other := Hash([]byte("other"))
	require.False(t, Verify(key.PublicKey(), other[:], sig))
	require.False(t, Verify(key.PublicKey()[:16], hash[:], sig))
	require.False(t, Verify(key.PublicKey(), hash[:], sig[:10]))
}

func TestKeyPairFromSeedIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, SeedSize)
	a, err := KeyPairFromSeed(seed, DefaultAddressPrefix)
	require.NoError(t, err)
	b, err := KeyPairFromSeed(seed, DefaultAddressPrefix)
	require.NoError(t, err)
	require.Equal(t, a.Address(), b.Address())
	require.Equal(t, seed, a.Seed())

	_, err = KeyPairFromSeed(seed[:5], DefaultAddressPrefix)
	require.Error(t, err)
}

func TestNewNonce(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)
	require.Len(t, a, NonceSize)
	require.NotEqual(t, a, b)
}

const testPassphrase = "correct horse battery staple"

func lightKeyFiles(t *testing.T) {
	t.Helper()
	n, p := keyFileScryptN, keyFileScryptP
	keyFileScryptN, keyFileScryptP = keystore.LightScryptN, keystore.LightScryptP
	t.Cleanup(func() { keyFileScryptN, keyFileScryptP = n, p })
}

func TestKeyFileRoundTrip(t *testing.T) {
	lightKeyFiles(t)
	path := filepath.Join(t.TempDir(), "keys", "node.key")
	key, err := LoadOrCreateKeyFile(path, testPassphrase, DefaultAddressPrefix)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("key file permissions = %o, want 600", perm)
	}

	again, err := LoadOrCreateKeyFile(path, testPassphrase, DefaultAddressPrefix)
	require.NoError(t, err)
	require.Equal(t, key.Address(), again.Address())
}

func TestKeyFileDoesNotStoreSeedInClear(t *testing.T) {
	lightKeyFiles(t)
	path := filepath.Join(t.TempDir(), "node.key")
	key, err := GenerateKeyPair(DefaultAddressPrefix)
	require.NoError(t, err)
	require.NoError(t, SaveKeyFile(path, key, testPassphrase))

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(blob), hex.EncodeToString(key.Seed()))
	require.Contains(t, string(blob), `"kdf": "scrypt"`)
}

func TestLoadKeyFileRejectsWrongPassphrase(t *testing.T) {
	lightKeyFiles(t)
	path := filepath.Join(t.TempDir(), "node.key")
	key, err := GenerateKeyPair(DefaultAddressPrefix)
	require.NoError(t, err)
	require.NoError(t, SaveKeyFile(path, key, testPassphrase))

	_, err = LoadKeyFile(path, "not the passphrase", DefaultAddressPrefix)
	if !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("LoadKeyFile error = %v, want %v", err, ErrWrongPassphrase)
	}
	_, err = LoadOrCreateKeyFile(path, "not the passphrase", DefaultAddressPrefix)
	require.ErrorIs(t, err, ErrWrongPassphrase)

	loaded, err := LoadKeyFile(path, testPassphrase, DefaultAddressPrefix)
	require.NoError(t, err)
	require.Equal(t, key.Seed(), loaded.Seed())
}

func TestKeyFileRequiresPassphrase(t *testing.T) {
	lightKeyFiles(t)
	path := filepath.Join(t.TempDir(), "node.key")
	key, err := GenerateKeyPair(DefaultAddressPrefix)
	require.NoError(t, err)
	require.ErrorIs(t, SaveKeyFile(path, key, " "), ErrEmptyPassphrase)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("key file written without a passphrase: %v", err)
	}

	require.NoError(t, SaveKeyFile(path, key, testPassphrase))
	_, err = LoadKeyFile(path, "", DefaultAddressPrefix)
	require.ErrorIs(t, err, ErrEmptyPassphrase)
}

func TestLoadKeyFileRejectsMismatchedPublicKey(t *testing.T) {
	lightKeyFiles(t)
	path := filepath.Join(t.TempDir(), "node.key")
	key, err := GenerateKeyPair(DefaultAddressPrefix)
	require.NoError(t, err)
	other, err := GenerateKeyPair(DefaultAddressPrefix)
	require.NoError(t, err)
	require.NoError(t, SaveKeyFile(path, key, testPassphrase))

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(blob), hex.EncodeToString(key.PublicKey()), hex.EncodeToString(other.PublicKey()), 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	_, err = LoadKeyFile(path, testPassphrase, DefaultAddressPrefix)
	require.Error(t, err)
}
