package types

import "fmt"

// OperationType tags each operation record appended to the log.
type OperationType uint32

const (
	OperationAddAdmin              OperationType = 1
	OperationDisableInitialization OperationType = 2
	OperationBalanceInitialization OperationType = 3
	OperationAppendWhitelist       OperationType = 4
	OperationAddWriter             OperationType = 5
	OperationRemoveWriter          OperationType = 6
	OperationAdminRecovery         OperationType = 7
	OperationAddIndexer            OperationType = 8
	OperationRemoveIndexer         OperationType = 9
	OperationBanValidator          OperationType = 10
	OperationBootstrapDeployment   OperationType = 11
	OperationTx                    OperationType = 12
	OperationTransfer              OperationType = 13
)

var operationNames = map[OperationType]string{
	OperationAddAdmin:              "ADD_ADMIN",
	OperationDisableInitialization: "DISABLE_INITIALIZATION",
	OperationBalanceInitialization: "BALANCE_INITIALIZATION",
	OperationAppendWhitelist:       "APPEND_WHITELIST",
	OperationAddWriter:             "ADD_WRITER",
	OperationRemoveWriter:          "REMOVE_WRITER",
	OperationAdminRecovery:         "ADMIN_RECOVERY",
	OperationAddIndexer:            "ADD_INDEXER",
	OperationRemoveIndexer:         "REMOVE_INDEXER",
	OperationBanValidator:          "BAN_VALIDATOR",
	OperationBootstrapDeployment:   "BOOTSTRAP_DEPLOYMENT",
	OperationTx:                    "TX",
	OperationTransfer:              "TRANSFER",
}

func (t OperationType) String() string {
	if name, ok := operationNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
}

func (t OperationType) Valid() bool {
	_, ok := operationNames[t]
	return ok
}

// ParseOperationType maps a name such as "ADD_WRITER" to its tag.
func ParseOperationType(name string) (OperationType, error) {
	for t, n := range operationNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown operation type %q", name)
}

// AdminOnly reports whether only the admin, appending through its recorded
// writer key, may submit t.
func (t OperationType) AdminOnly() bool {
	switch t {
	case OperationAppendWhitelist, OperationAddIndexer, OperationRemoveIndexer,
		OperationBanValidator, OperationBalanceInitialization, OperationDisableInitialization:
		return true
	}
	return false
}

// RequiresValidator reports whether t must be co-signed by an active writer
// other than the requester.
func (t OperationType) RequiresValidator() bool {
	switch t {
	case OperationAddWriter, OperationRemoveWriter, OperationAdminRecovery,
		OperationBootstrapDeployment, OperationTx, OperationTransfer:
		return true
	}
	return false
}

// Operation is one record of the log: the requester and a type-specific
// payload.
type Operation struct {
	Type    OperationType
	Address string
	Payload Payload
}

// Payload is implemented by every operation variant.
type Payload interface {
	RequesterIntent() *Intent
}

// CoSigned is implemented by payloads carrying a validator co-signature.
type CoSigned interface {
	Payload
	ValidatorCoSignature() *ValidatorSignature
}

// Intent holds the fields every signed operation carries: the message hash,
// the transaction validity token, the requester nonce and signature.
type Intent struct {
	TxHash     []byte
	TxValidity []byte
	Nonce      []byte
	Signature  []byte
}

// ValidatorSignature is the co-signature of the writer that submits a
// requester's operation to the log.
type ValidatorSignature struct {
	Address   string
	Nonce     []byte
	Signature []byte
}

// Complete reports whether all validator fields are present.
func (v *ValidatorSignature) Complete() bool {
	return v != nil && v.Address != "" && len(v.Nonce) > 0 && len(v.Signature) > 0
}

// AdminKeyPayload carries ADD_ADMIN: the admin's writer key.
type AdminKeyPayload struct {
	Intent
	WriterKey []byte
}

func (p *AdminKeyPayload) RequesterIntent() *Intent { return &p.Intent }

// AdminControlPayload carries admin-only role and initialization operations.
// Target is empty for DISABLE_INITIALIZATION and Amount is only set for
// BALANCE_INITIALIZATION.
type AdminControlPayload struct {
	Intent
	Target string
	Amount []byte
}

func (p *AdminControlPayload) RequesterIntent() *Intent { return &p.Intent }

// RoleAccessPayload carries ADD_WRITER, REMOVE_WRITER and ADMIN_RECOVERY.
type RoleAccessPayload struct {
	Intent
	WriterKey []byte
	Validator *ValidatorSignature
}

func (p *RoleAccessPayload) RequesterIntent() *Intent { return &p.Intent }

func (p *RoleAccessPayload) ValidatorCoSignature() *ValidatorSignature { return p.Validator }

// DeploymentPayload registers a sub-network bootstrap key.
type DeploymentPayload struct {
	Intent
	Bootstrap []byte
	Channel   []byte
	Validator *ValidatorSignature
}

func (p *DeploymentPayload) RequesterIntent() *Intent { return &p.Intent }

func (p *DeploymentPayload) ValidatorCoSignature() *ValidatorSignature { return p.Validator }

// TransactionPayload settles a sub-network transaction on this network.
type TransactionPayload struct {
	Intent
	InvokerWriterKey []byte
	ContentHash      []byte
	Bootstrap        []byte
	NetworkBootstrap []byte
	Validator        *ValidatorSignature
}

func (p *TransactionPayload) RequesterIntent() *Intent { return &p.Intent }

func (p *TransactionPayload) ValidatorCoSignature() *ValidatorSignature { return p.Validator }

// TransferPayload moves Amount from the requester to Recipient.
type TransferPayload struct {
	Intent
	Recipient string
	Amount    []byte
	Validator *ValidatorSignature
}

func (p *TransferPayload) RequesterIntent() *Intent { return &p.Intent }

func (p *TransferPayload) ValidatorCoSignature() *ValidatorSignature { return p.Validator }
