package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"xlend/cmd/internal/passphrase"
	"xlend/crypto"
	"xlend/rpc"
)

const (
	defaultNode    = "http://127.0.0.1:8080"
	defaultPassEnv = "XLEND_KEY_PASS"
	requestTimeout = 30 * time.Second
)

// command is one xlendctl subcommand. Commands with signed set need a
// keystore; the rest only read.
type command struct {
	summary string
	signed  bool
	flags   func(fs *flag.FlagSet) func(ctx context.Context, c *rpc.Client) (any, error)
}

var commands = map[string]command{
	"deposit": {summary: "move native funds into escrow", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		amount := fs.Uint64("amount", 0, "amount to deposit")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Deposit(ctx, *amount) }
	}},
	"withdraw": {summary: "move escrow back to the native balance", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		amount := fs.Uint64("amount", 0, "amount to withdraw")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Withdraw(ctx, *amount) }
	}},
	"place-order": {summary: "offer escrow to borrowers at a rate", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		amount := fs.Uint64("amount", 0, "amount to lend")
		rate := fs.Uint64("rate", 0, "interest rate in basis points")
		return func(ctx context.Context, c *rpc.Client) (any, error) {
			id, err := c.PlaceOrder(ctx, *amount, *rate)
			return rpc.IDResult{ID: rpc.Quantity(id)}, err
		}
	}},
	"cancel-order": {summary: "withdraw an order's remaining balance", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		id := fs.Uint64("id", 0, "order id")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return ok(c.CancelOrder(ctx, *id)) }
	}},
	"close-order": {summary: "remove a fully lent order", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		id := fs.Uint64("id", 0, "order id")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return ok(c.CloseOrder(ctx, *id)) }
	}},
	"attest": {summary: "sign a collateral claim as a witness", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		claim := claimFlags(fs)
		return func(ctx context.Context, c *rpc.Client) (any, error) {
			status, err := c.Attest(ctx, claim())
			return rpc.StatusResult{Status: status}, err
		}
	}},
	"clear-attestation": {summary: "purge a finished attestation record", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		chain, lock := lockFlags(fs)
		return func(ctx context.Context, c *rpc.Client) (any, error) {
			return ok(c.ClearAttestation(ctx, uint32(*chain), *lock))
		}
	}},
	"borrow": {summary: "draw a loan against attested collateral", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		chain, lock := lockFlags(fs)
		return func(ctx context.Context, c *rpc.Client) (any, error) {
			id, err := c.Borrow(ctx, uint32(*chain), *lock)
			return rpc.IDResult{ID: rpc.Quantity(id)}, err
		}
	}},
	"repay": {summary: "repay a loan and release its collateral", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		id := fs.Uint64("id", 0, "receipt id")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Repay(ctx, *id) }
	}},
	"liquidate": {summary: "claim collateral of an overdue loan", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		id := fs.Uint64("id", 0, "receipt id")
		receiver := fs.String("receiver", "", "0x address receiving the collateral")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return ok(c.Liquidate(ctx, *id, *receiver)) }
	}},
	"set-fee": {summary: "set the relay fee for a chain (admin)", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		chain := fs.Uint("chain", 0, "foreign chain id")
		fee := fs.Uint64("fee", 0, "relay fee")
		return func(ctx context.Context, c *rpc.Client) (any, error) {
			return ok(c.SetRelayFee(ctx, uint32(*chain), *fee))
		}
	}},
	"set-config": {summary: "replace protocol parameters from a JSON file (admin)", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		file := fs.String("file", "", "JSON file holding the parameters")
		return func(ctx context.Context, c *rpc.Client) (any, error) {
			raw, err := os.ReadFile(*file)
			if err != nil {
				return nil, err
			}
			var cfg rpc.Config
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", *file, err)
			}
			return ok(c.SetConfig(ctx, cfg))
		}
	}},
	"add-witness": {summary: "add a witness (admin)", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		witness := fs.String("witness", "", "witness address")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.AddWitness(ctx, *witness) }
	}},
	"remove-witness": {summary: "remove a witness (admin)", signed: true, flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		witness := fs.String("witness", "", "witness address")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.RemoveWitness(ctx, *witness) }
	}},
	"order": {summary: "show an order", flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		id := fs.Uint64("id", 0, "order id")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Order(ctx, *id) }
	}},
	"receipt": {summary: "show an open loan", flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		id := fs.Uint64("id", 0, "receipt id")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Receipt(ctx, *id) }
	}},
	"quote": {summary: "show what repaying a loan costs now", flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		id := fs.Uint64("id", 0, "receipt id")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Quote(ctx, *id) }
	}},
	"attestation": {summary: "show an attestation record", flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		chain, lock := lockFlags(fs)
		return func(ctx context.Context, c *rpc.Client) (any, error) {
			return c.Attestation(ctx, uint32(*chain), *lock)
		}
	}},
	"witnesses": {summary: "list witnesses", flags: func(*flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Witnesses(ctx) }
	}},
	"config": {summary: "show protocol parameters", flags: func(*flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Config(ctx) }
	}},
	"relay-fee": {summary: "show the relay fee for a chain", flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		chain := fs.Uint("chain", 0, "foreign chain id")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.RelayFee(ctx, uint32(*chain)) }
	}},
	"account": {summary: "show native and escrow balances", flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		addr := fs.String("addr", "", "account address")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Account(ctx, *addr) }
	}},
	"events": {summary: "page through the event log", flags: func(fs *flag.FlagSet) func(context.Context, *rpc.Client) (any, error) {
		after := fs.Uint64("after", 0, "return events after this sequence")
		limit := fs.Int("limit", 0, "maximum events to return")
		return func(ctx context.Context, c *rpc.Client) (any, error) { return c.Events(ctx, *after, *limit) }
	}},
}

func ok(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return rpc.OKResult{OK: true}, nil
}

func lockFlags(fs *flag.FlagSet) (*uint, *uint64) {
	return fs.Uint("chain", 0, "foreign chain id"), fs.Uint64("lock", 0, "lock id on the foreign chain")
}

func claimFlags(fs *flag.FlagSet) func() rpc.Claim {
	chain, lock := lockFlags(fs)
	source := fs.String("source", "", "0x address of the lock contract")
	token := fs.String("token", "", "0x address of the locked token")
	frozen := fs.Uint64("frozen", 0, "collateral amount locked")
	borrower := fs.String("borrower", "", "borrower address")
	order := fs.Uint64("order", 0, "order id to draw from")
	amount := fs.Uint64("amount", 0, "principal requested")
	return func() rpc.Claim {
		return rpc.Claim{
			ChainID:  uint32(*chain),
			LockID:   rpc.Quantity(*lock),
			Source:   *source,
			Token:    *token,
			Frozen:   rpc.Quantity(*frozen),
			Borrower: *borrower,
			OrderID:  rpc.Quantity(*order),
			Amount:   rpc.Quantity(*amount),
		}
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errors.New("missing command")
	}
	name, rest := args[0], args[1:]
	switch name {
	case "keygen":
		return runKeygen(rest, stdout)
	case "address":
		return runAddress(rest, stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	}
	cmd, found := commands[name]
	if !found {
		usage(stderr)
		return fmt.Errorf("unknown command %q", name)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	node := fs.String("node", envOr("XLEND_NODE", defaultNode), "node RPC base URL")
	keystore := fs.String("keystore", "", "keystore signing the request")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	exec := cmd.flags(fs)
	if err := fs.Parse(rest); err != nil {
		return err
	}

	var key *crypto.PrivateKey
	if cmd.signed {
		if strings.TrimSpace(*keystore) == "" {
			return fmt.Errorf("%s requires -keystore", name)
		}
		var err error
		if key, err = loadKey(*keystore, *passEnv); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result, err := exec(ctx, rpc.NewClient(*node, key))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// loadKey opens a keystore, trying an empty passphrase before asking for one
// so the node's generated admin keystore works without a prompt.
func loadKey(path, passEnv string) (*crypto.PrivateKey, error) {
	if key, err := crypto.LoadFromKeystore(path, ""); err == nil {
		return key, nil
	}
	pass, err := passphrase.NewSource(passEnv, "signing").Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("open keystore %s: %w", path, err)
	}
	return key, nil
}

func runKeygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "xlend.keystore", "output keystore path")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("keystore file %s already exists (use -force to overwrite)", *out)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv, "new").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return nil
}

func runAddress(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	keystore := fs.String("keystore", "", "keystore to read")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := loadKey(*keystore, *passEnv)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: xlendctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-18s %s\n", "keygen", "create a new keystore")
	fmt.Fprintf(w, "  %-18s %s\n", "address", "print a keystore's address")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].summary)
	}
}
