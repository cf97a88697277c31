package apply

import (
	"fmt"

	"msb/core/types"
)

// RejectReason is the human-readable cause logged when an operation is not
// applied.
type RejectReason string

// Common validation stages.
const (
	ReasonSchema               RejectReason = "Contract schema validation failed."
	ReasonRequesterAddress     RejectReason = "Requester address is invalid."
	ReasonRequesterPublicKey   RejectReason = "Error while decoding requester public key."
	ReasonInvalidAdminEntry    RejectReason = "Invalid admin entry."
	ReasonDecodeAdminEntry     RejectReason = "Failed to decode admin entry."
	ReasonAdminOnly            RejectReason = "Node is not allowed to perform this operation. (ADMIN ONLY)"
	ReasonAdminMismatch        RejectReason = "System admin and node public keys do not match."
	ReasonIncomplete           RejectReason = "Operation is not complete."
	ReasonSameNonce            RejectReason = "Nonces should not be the same."
	ReasonSameAddress          RejectReason = "Addresses should be different."
	ReasonSameSignature        RejectReason = "Signatures should be different."
	ReasonValidatorAddress     RejectReason = "Validator address is invalid."
	ReasonValidatorPublicKey   RejectReason = "Error while decoding validator public key."
	ReasonTargetAddress        RejectReason = "Target address is invalid."
	ReasonRecipientAddress     RejectReason = "Recipient address is invalid."
	ReasonHashMismatch         RejectReason = "Message hash does not match the tx_hash."
	ReasonSignature            RejectReason = "Failed to verify message signature."
	ReasonValidatorSignature   RejectReason = "Failed to verify validator message signature."
	ReasonValidatorMissing     RejectReason = "Incoming validator entry is null."
	ReasonValidatorDecode      RejectReason = "Failed to decode validator entry."
	ReasonValidatorInactive    RejectReason = "Operation validator is not active"
	ReasonValidatorIsRequester RejectReason = "Validator cannot be the same as requester."
	ReasonSequenceState        RejectReason = "Indexer sequence state is invalid."
	ReasonNotExecuted          RejectReason = "Transaction was not executed."
	ReasonAlreadyApplied       RejectReason = "Operation has already been applied."
	ReasonUnknownOperation     RejectReason = "Unknown operation type."
	ReasonInternal             RejectReason = "Internal error while applying operation."
)

// Balance and fee adjustments.
const (
	ReasonInvalidRequesterBalance RejectReason = "Invalid requester balance."
	ReasonInsufficientBalance     RejectReason = "Insufficient requester balance."
	ReasonApplyFee                RejectReason = "Failed to apply fee to node."
	ReasonUpdateBalance           RejectReason = "Failed to update node balance."
	ReasonInvalidValidatorBalance RejectReason = "Invalid validator balance."
	ReasonUpdateValidatorBalance  RejectReason = "Failed to update validator balance."
	ReasonInvalidAmount           RejectReason = "Invalid amount."
)

// Business rules.
const (
	ReasonAdminExists            RejectReason = "Admin entry already exists."
	ReasonNotBootstrap           RejectReason = "Only the bootstrap writer can create the admin entry."
	ReasonAdminKeyNotBootstrap   RejectReason = "Admin writer key must be the bootstrap key."
	ReasonWriterKeyExists        RejectReason = "Writer key already exists."
	ReasonSameWriterKey          RejectReason = "New writer key must differ from the current one."
	ReasonOldKeyNotIndexer       RejectReason = "Old writer key is not in indexer list."
	ReasonNewKeyIndexer          RejectReason = "New writer key is already in indexer list."
	ReasonAlreadyWhitelisted     RejectReason = "Node is already whitelisted."
	ReasonNotWhitelisted         RejectReason = "Node is not whitelisted."
	ReasonNodeEntryMissing       RejectReason = "Node entry does not exist."
	ReasonAlreadyWriter          RejectReason = "Node is already a writer."
	ReasonNotWriter              RejectReason = "Node is not a writer."
	ReasonWriterKeyMismatch      RejectReason = "Writer key does not match the node entry."
	ReasonWriterLimit            RejectReason = "Writer limit reached."
	ReasonAdminCannotBeRemoved   RejectReason = "Admin cannot be removed."
	ReasonLastIndexer            RejectReason = "Cannot remove the last indexer."
	ReasonAlreadyIndexer         RejectReason = "Node is already an indexer."
	ReasonNotIndexer             RejectReason = "Node is not an indexer."
	ReasonIndexerLimit           RejectReason = "Indexer limit reached."
	ReasonCannotBanIndexer       RejectReason = "Cannot ban an indexer."
	ReasonInitializationDisabled RejectReason = "Initialization is already disabled."
	ReasonBalanceInitDisabled    RejectReason = "Balance initialization is disabled."
	ReasonDeployNetworkBootstrap RejectReason = "Cannot deploy the network bootstrap."
	ReasonAlreadyDeployed        RejectReason = "Bootstrap is already deployed."
	ReasonWrongNetwork           RejectReason = "Transaction targets a different network."
	ReasonNotDeployed            RejectReason = "Bootstrap is not deployed."
)

// RejectionError reports why an operation was not applied.
type RejectionError struct {
	Operation types.OperationType
	Reason    RejectReason
	// Err is the underlying storage or codec failure, when there is one.
	Err error
}

func reject(op types.OperationType, reason RejectReason) *RejectionError {
	return &RejectionError{Operation: op, Reason: reason}
}

func (e *RejectionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("apply: %s rejected: %s: %v", e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("apply: %s rejected: %s", e.Operation, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReceiptStatus is the outcome of one log entry.
type ReceiptStatus string

const (
	ReceiptStatusAccepted   ReceiptStatus = "accepted"
	ReceiptStatusIdempotent ReceiptStatus = "idempotent"
	ReceiptStatusRejected   ReceiptStatus = "rejected"
)

// Receipt summarises how one entry was processed.
type Receipt struct {
	Index     uint64
	Operation types.OperationType
	TxHash    []byte
	Status    ReceiptStatus
	Reason    *RejectionError
}

func (r Receipt) Accepted() bool {
	return r.Status == ReceiptStatusAccepted
}
