package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"msb/cmd/internal/passphrase"
	"msb/core/balance"
	"msb/core/codec"
	"msb/core/messages"
	"msb/core/types"
	"msb/crypto"
	"msb/observability/logging"
	"msb/oplog"
)

const (
	keygenCommand  = "keygen"
	addressCommand = "address"
	txvCommand     = "txv"
	opCommand      = "op"
	cosignCommand  = "cosign"
	decodeCommand  = "decode"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string, out io.Writer) error {
	switch command {
	case keygenCommand:
		return runKeygen(args, out)
	case addressCommand:
		return runAddress(args, out)
	case txvCommand:
		return runTxValidity(args, out)
	case opCommand:
		return runOperation(args, out)
	case cosignCommand:
		return runCoSign(args, out)
	case decodeCommand:
		return runDecode(args, out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", command)
	}
}

func keyPassphrase() (string, error) {
	return passphrase.NewSource(passphrase.DefaultEnv, "Enter key file passphrase: ").Get()
}

func loadKey(path, prefix string) (*crypto.KeyPair, error) {
	pass, err := keyPassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadKeyFile(path, pass, prefix)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: msbctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen   generate an ed25519 key file")
	fmt.Fprintln(w, "  address  convert between public keys and addresses")
	fmt.Fprintln(w, "  txv      compute the validity token of a sequence state")
	fmt.Fprintln(w, "  op       assemble and sign an operation, printed as hex")
	fmt.Fprintln(w, "  cosign   add a validator co-signature to a hex operation")
	fmt.Fprintln(w, "  decode   print the fields of a hex operation")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Key files are encrypted; the passphrase is read from %s or prompted for.\n", passphrase.DefaultEnv)
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	outPath := fs.String("out", "", "Write the key to this file")
	prefix := fs.String("prefix", crypto.DefaultAddressPrefix, "Address prefix")
	reveal := fs.Bool("reveal", false, "Print the private seed")
	force := fs.Bool("force", false, "Overwrite an existing key file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *outPath != "" && !*force {
		if _, err := os.Stat(*outPath); err == nil {
			return fmt.Errorf("key file %s already exists (use -force to overwrite)", *outPath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	key, err := crypto.GenerateKeyPair(*prefix)
	if err != nil {
		return err
	}
	if *outPath != "" {
		pass, err := keyPassphrase()
		if err != nil {
			return err
		}
		if err := crypto.SaveKeyFile(*outPath, key, pass); err != nil {
			return fmt.Errorf("failed to write key file: %w", err)
		}
	}

	seed := logging.RedactedValue
	if *reveal {
		seed = hex.EncodeToString(key.Seed())
	}
	fmt.Fprintf(out, "address:    %s\n", key.Address())
	fmt.Fprintf(out, "public key: %s\n", hex.EncodeToString(key.PublicKey()))
	fmt.Fprintf(out, "seed:       %s\n", seed)
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(addressCommand, flag.ContinueOnError)
	prefix := fs.String("prefix", crypto.DefaultAddressPrefix, "Address prefix")
	keyPath := fs.String("key", "", "Read the public key from a key file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *keyPath != "" {
		key, err := loadKey(*keyPath, *prefix)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, key.Address())
		return nil
	}
	if fs.NArg() != 1 {
		return errors.New("address takes one public key or address argument")
	}
	arg := strings.TrimSpace(fs.Arg(0))
	if strings.HasPrefix(arg, *prefix+"1") {
		pub, err := crypto.AddressToBuffer(arg, *prefix)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hex.EncodeToString(pub))
		return nil
	}
	pub, err := hex.DecodeString(arg)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	addr, err := crypto.BufferToAddress(pub, *prefix)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr)
	return nil
}

func runTxValidity(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(txvCommand, flag.ContinueOnError)
	epoch := fs.Uint64("epoch", 0, "Indexer epoch")
	indexers := fs.String("indexers", "", "Comma-separated hex indexer writer keys")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var keys []types.WriterKey
	for _, raw := range strings.Split(*indexers, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, err := parseWriterKey(raw)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}
	fmt.Fprintln(out, hex.EncodeToString(codec.ValidityToken(oplog.EncodeSequenceState(*epoch, keys))))
	return nil
}

func runOperation(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(opCommand, flag.ContinueOnError)
	typeName := fs.String("type", "", "Operation type, e.g. TRANSFER")
	keyPath := fs.String("key", "", "Requester key file")
	prefix := fs.String("prefix", crypto.DefaultAddressPrefix, "Address prefix")
	txv := fs.String("txv", "", "Hex validity token")
	writerKey := fs.String("writer-key", "", "Hex writer key")
	target := fs.String("target", "", "Target address")
	amount := fs.String("amount", "", "Amount in token units")
	bootstrap := fs.String("bootstrap", "", "Hex sub-network bootstrap")
	channel := fs.String("channel", "", "Hex channel")
	invoker := fs.String("invoker", "", "Hex invoker writer key")
	content := fs.String("content", "", "Hex content hash")
	networkBootstrap := fs.String("network-bootstrap", "", "Hex network bootstrap")
	recipient := fs.String("recipient", "", "Recipient address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opType, err := types.ParseOperationType(*typeName)
	if err != nil {
		return err
	}
	if *keyPath == "" {
		return errors.New("-key is required")
	}
	wallet, err := loadKey(*keyPath, *prefix)
	if err != nil {
		return err
	}

	b := messages.NewBuilder(wallet, *prefix).WithType(opType).
		WithTarget(*target).
		WithRecipient(*recipient)
	hexFields := []struct {
		name  string
		value string
		set   func([]byte) *messages.Builder
	}{
		{"txv", *txv, b.WithTxValidity},
		{"writer-key", *writerKey, b.WithWriterKey},
		{"bootstrap", *bootstrap, b.WithBootstrap},
		{"channel", *channel, b.WithChannel},
		{"invoker", *invoker, b.WithInvokerWriterKey},
		{"content", *content, b.WithContentHash},
		{"network-bootstrap", *networkBootstrap, b.WithNetworkBootstrap},
	}
	for _, field := range hexFields {
		if field.value == "" {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSpace(field.value))
		if err != nil {
			return fmt.Errorf("-%s: %w", field.name, err)
		}
		field.set(raw)
	}
	if *amount != "" {
		parsed, err := balance.Parse(*amount)
		if err != nil {
			return fmt.Errorf("-amount: %w", err)
		}
		b.WithAmount(parsed)
	}

	op, err := b.Build()
	if err != nil {
		return err
	}
	return printOperation(out, op)
}

func runCoSign(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cosignCommand, flag.ContinueOnError)
	keyPath := fs.String("key", "", "Validator key file")
	prefix := fs.String("prefix", crypto.DefaultAddressPrefix, "Address prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *keyPath == "" || fs.NArg() != 1 {
		return errors.New("cosign takes -key and one hex operation")
	}
	validator, err := loadKey(*keyPath, *prefix)
	if err != nil {
		return err
	}
	op, err := parseOperation(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := messages.CompleteWithValidator(op, validator); err != nil {
		return err
	}
	return printOperation(out, op)
}

func runDecode(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(decodeCommand, flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("decode takes one hex operation")
	}
	op, err := parseOperation(fs.Arg(0))
	if err != nil {
		return err
	}
	intent := op.Payload.RequesterIntent()
	fmt.Fprintf(out, "type:      %s\n", op.Type)
	fmt.Fprintf(out, "address:   %s\n", op.Address)
	fmt.Fprintf(out, "tx:        %s\n", hex.EncodeToString(intent.TxHash))
	fmt.Fprintf(out, "txv:       %s\n", hex.EncodeToString(intent.TxValidity))
	if cosigned, ok := op.Payload.(types.CoSigned); ok {
		if v := cosigned.ValidatorCoSignature(); v != nil {
			fmt.Fprintf(out, "validator: %s\n", v.Address)
		}
	}
	return nil
}

func parseOperation(raw string) (*types.Operation, error) {
	record, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("operation: %w", err)
	}
	op := codec.DecodeOperation(record)
	if op == nil || op.Payload == nil {
		return nil, errors.New("operation: not a decodable operation")
	}
	return op, nil
}

func parseWriterKey(raw string) (types.WriterKey, error) {
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return types.WriterKey{}, fmt.Errorf("writer key %q: %w", raw, err)
	}
	key, ok := types.WriterKeyFromBytes(decoded)
	if !ok {
		return types.WriterKey{}, fmt.Errorf("writer key %q must be %d bytes", raw, types.WriterKeySize)
	}
	return key, nil
}

func printOperation(out io.Writer, op *types.Operation) error {
	encoded, err := codec.EncodeOperation(op)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hex.EncodeToString(encoded))
	return nil
}
