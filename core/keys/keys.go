// Package keys defines the layout of the ledger view's keyspace.
package keys

import (
	"encoding/hex"
	"fmt"

	"msb/core/types"
)

var (
	adminKey           = []byte("admin")
	indexersKey        = []byte("indexers")
	writersLengthKey   = []byte("writers/length")
	activeWritersKey   = []byte("writers/active")
	licensesLengthKey  = []byte("licenses/length")
	initDisabledKey    = []byte("init/disabled")
	whitelistPrefix    = []byte("whitelist/")
	writerKeyPrefix    = []byte("wkreg/")
	writersIndexFormat = "writers/index/%d"
	deploymentPrefix   = []byte("deployment/")
)

// Admin is the singleton admin entry.
func Admin() []byte { return adminKey }

// Indexers holds the ordered indexer address list.
func Indexers() []byte { return indexersKey }

// WritersLength counts granted writer keys.
func WritersLength() []byte { return writersLengthKey }

// ActiveWriters counts addresses currently holding the writer role.
func ActiveWriters() []byte { return activeWritersKey }

// WritersIndex is the n-th granted writer key.
func WritersIndex(n uint64) []byte { return []byte(fmt.Sprintf(writersIndexFormat, n)) }

// LicensesLength is the last issued license number.
func LicensesLength() []byte { return licensesLengthKey }

// InitializationDisabled is present once balance initialization is closed.
func InitializationDisabled() []byte { return initDisabledKey }

// Node is the node entry of address.
func Node(address string) []byte { return []byte(address) }

// Whitelist marks address as eligible to become a writer.
func Whitelist(address string) []byte { return concat(whitelistPrefix, []byte(address)) }

// WhitelistPrefix is the prefix of every whitelist entry.
func WhitelistPrefix() []byte { return whitelistPrefix }

// WriterKeyOwner maps a writer key to the address it was granted to.
func WriterKeyOwner(key types.WriterKey) []byte {
	return concat(writerKeyPrefix, []byte(hex.EncodeToString(key[:])))
}

// Applied is the replay marker and committed record of a message hash.
func Applied(txHash []byte) []byte { return []byte(hex.EncodeToString(txHash)) }

// Deployment is the registration record of a sub-network bootstrap.
func Deployment(bootstrap []byte) []byte {
	return concat(deploymentPrefix, []byte(hex.EncodeToString(bootstrap)))
}

func concat(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}
