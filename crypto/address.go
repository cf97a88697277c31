package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

const (
	// DefaultAddressPrefix is the human-readable part of network addresses.
	DefaultAddressPrefix = "trac"
	// PublicKeySize is the length of the public key an address encodes.
	PublicKeySize = 32

	// 32 bytes regrouped into 5-bit words plus the 6-word checksum.
	addressDataWords   = 52
	addressChecksumLen = 6
	bech32Alphabet     = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

// ErrInvalidAddress reports a malformed, mis-prefixed or wrongly sized address.
var ErrInvalidAddress = errors.New("crypto: invalid address")

// AddressLength returns the fixed length of an address for prefix. For the
// default prefix it is 63 characters.
func AddressLength(prefix string) int {
	return len(prefix) + 1 + addressDataWords + addressChecksumLen
}

// BufferToAddress encodes a 32-byte public key as a checksummed address.
func BufferToAddress(pub []byte, prefix string) (string, error) {
	if len(pub) != PublicKeySize {
		return "", fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidAddress, PublicKeySize, len(pub))
	}
	if prefix == "" {
		return "", fmt.Errorf("%w: empty prefix", ErrInvalidAddress)
	}
	conv, err := bech32.ConvertBits(pub, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("error converting bits: %w", err)
	}
	encoded, err := bech32.Encode(prefix, conv)
	if err != nil {
		return "", err
	}
	return encoded, nil
}

// AddressToBuffer decodes an address into its 32-byte public key after
// checking it against prefix.
func AddressToBuffer(addr, prefix string) ([]byte, error) {
	if err := checkShape(addr, prefix); err != nil {
		return nil, err
	}
	hrp, decoded, err := bech32.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if hrp != prefix {
		return nil, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAddress, hrp)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(conv) != PublicKeySize {
		return nil, fmt.Errorf("%w: payload is %d bytes", ErrInvalidAddress, len(conv))
	}
	return conv, nil
}

// IsAddressValid reports whether addr is a well-formed address for prefix.
func IsAddressValid(addr, prefix string) bool {
	_, err := AddressToBuffer(addr, prefix)
	return err == nil
}

// checkShape rejects anything the bech32 decoder would otherwise tolerate:
// upper case input, foreign characters and the wrong total length.
func checkShape(addr, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("%w: empty prefix", ErrInvalidAddress)
	}
	if len(addr) != AddressLength(prefix) {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidAddress, len(addr), AddressLength(prefix))
	}
	if !strings.HasPrefix(addr, prefix+"1") {
		return fmt.Errorf("%w: missing %q prefix", ErrInvalidAddress, prefix)
	}
	for _, r := range addr[len(prefix)+1:] {
		if !strings.ContainsRune(bech32Alphabet, r) {
			return fmt.Errorf("%w: character %q outside the address alphabet", ErrInvalidAddress, r)
		}
	}
	return nil
}
