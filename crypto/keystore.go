package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

const keyFileVersion = 3

var (
	// ErrEmptyPassphrase is returned when a key file would be written or read
	// without a passphrase.
	ErrEmptyPassphrase = errors.New("crypto: key file passphrase cannot be empty")
	// ErrWrongPassphrase is returned when the passphrase does not decrypt the
	// key file.
	ErrWrongPassphrase = errors.New("crypto: could not decrypt key file with given passphrase")
)

// Scrypt cost of newly written key files.
var (
	keyFileScryptN = keystore.StandardScryptN
	keyFileScryptP = keystore.StandardScryptP
)

type keyFile struct {
	Address   string              `json:"address"`
	PublicKey string              `json:"publicKey"`
	Crypto    keystore.CryptoJSON `json:"crypto"`
	Version   int                 `json:"version"`
}

// SaveKeyFile encrypts the seed of key with passphrase and writes it to path
// with 0600 permissions. If the parent directory does not exist it is created
// with 0700 permissions.
func SaveKeyFile(path string, key *KeyPair, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil key pair")
	}
	if path == "" {
		return errors.New("crypto: empty key file path")
	}
	if strings.TrimSpace(passphrase) == "" {
		return ErrEmptyPassphrase
	}
	sealed, err := keystore.EncryptDataV3(key.Seed(), []byte(passphrase), keyFileScryptN, keyFileScryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt seed: %w", err)
	}
	blob, err := json.MarshalIndent(keyFile{
		Address:   key.Address(),
		PublicKey: hex.EncodeToString(key.PublicKey()),
		Crypto:    sealed,
		Version:   keyFileVersion,
	}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "keyfile-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadKeyFile decrypts a key pair written by SaveKeyFile and re-derives the
// address under prefix.
func LoadKeyFile(path, passphrase, prefix string) (*KeyPair, error) {
	if path == "" {
		return nil, errors.New("crypto: empty key file path")
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrEmptyPassphrase
	}
	var stored keyFile
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("crypto: decode key file: %w", err)
	}
	if stored.Version != keyFileVersion {
		return nil, fmt.Errorf("crypto: unsupported key file version %d", stored.Version)
	}
	seed, err := keystore.DecryptDataV3(stored.Crypto, passphrase)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("crypto: decrypt seed: %w", err)
	}
	key, err := KeyPairFromSeed(seed, prefix)
	if err != nil {
		return nil, err
	}
	if stored.PublicKey != "" && stored.PublicKey != hex.EncodeToString(key.PublicKey()) {
		return nil, errors.New("crypto: key file public key does not match seed")
	}
	return key, nil
}

// LoadOrCreateKeyFile loads the key at path, generating and saving a new one
// under passphrase when the file does not exist.
func LoadOrCreateKeyFile(path, passphrase, prefix string) (*KeyPair, error) {
	key, err := LoadKeyFile(path, passphrase, prefix)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	key, err = GenerateKeyPair(prefix)
	if err != nil {
		return nil, err
	}
	if err := SaveKeyFile(path, key, passphrase); err != nil {
		return nil, err
	}
	return key, nil
}
