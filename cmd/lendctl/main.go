package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lendcore/cmd/internal/passphrase"
	"lendcore/core"
	"lendcore/core/state"
	"lendcore/crypto"
	"lendcore/integrations/exports"
	"lendcore/native/lending"
	"lendcore/native/oracle"
	"lendcore/native/token"
	"lendcore/storage"
)

const (
	defaultPassEnv  = "LEND_KEYSTORE_PASS"
	defaultKeystore = "signer.keystore"
	defaultRPC      = "http://127.0.0.1:8645"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(os.Args[2:], os.Stdout)
	case "address":
		err = runAddress(os.Args[2:], os.Stdout)
	case "derive":
		err = runDerive(os.Args[2:], os.Stdout)
	case "sign":
		err = runSign(os.Args[2:], os.Stdout)
	case "submit":
		err = runSubmit(os.Args[2:], os.Stdout)
	case "export":
		err = runExport(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: lendctl <command> [flags]

Commands:
  keygen    generate a signer key into an encrypted keystore
  address   print the address of a keystore
  derive    derive market, reserve, obligation, feed or mint addresses
  sign      sign a batch of instructions and print the envelope
  submit    sign a batch and submit it to a node
  export    snapshot reserves from a stopped node's data directory`)
}

type keystoreOpts struct {
	path     string
	passEnv  string
	passFile string
}

func keystoreFlags(fs *flag.FlagSet) *keystoreOpts {
	opts := &keystoreOpts{}
	fs.StringVar(&opts.path, "keystore", defaultKeystore, "Path to the signer keystore")
	fs.StringVar(&opts.passEnv, "pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	fs.StringVar(&opts.passFile, "pass-file", "", "File containing the keystore passphrase")
	return opts
}

func (o *keystoreOpts) source(extra ...passphrase.Option) *passphrase.Source {
	return passphrase.NewSource(o.passEnv, append([]passphrase.Option{passphrase.WithFile(o.passFile)}, extra...)...)
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	ks := keystoreFlags(fs)
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(ks.path); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists; pass -force to overwrite", ks.path)
	}
	pass, err := ks.source(passphrase.WithConfirm()).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(ks.path, key, pass); err != nil {
		return err
	}
	fmt.Fprintln(out, key.PubKey().Address().String())
	return nil
}

func (o *keystoreOpts) load() (*crypto.PrivateKey, error) {
	pass, err := o.source().Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(o.path, pass)
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	ks := keystoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := ks.load()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, key.PubKey().Address().String())
	return nil
}

func runDerive(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	kind := fs.String("kind", "", "market, reserve, obligation, feed or mint")
	initializer := fs.String("initializer", "", "Market initializer address")
	market := fs.String("market", "", "Market address")
	owner := fs.String("owner", "", "Obligation owner address")
	key := fs.Uint64("key", 0, "Reserve or obligation key")
	symbol := fs.String("symbol", "", "Feed or mint symbol")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := deriveAddress(*kind, *initializer, *market, *owner, *key, *symbol)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr.String())
	return nil
}

func requireAddress(name, value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("-%s: %w", name, err)
	}
	if addr.IsZero() {
		return crypto.Address{}, fmt.Errorf("-%s is required", name)
	}
	return addr, nil
}

func deriveAddress(kind, initializer, market, owner string, key uint64, symbol string) (crypto.Address, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case "market":
		creator, err := requireAddress("initializer", initializer)
		if err != nil {
			return crypto.Address{}, err
		}
		return lending.MarketAddress(creator), nil
	case "reserve":
		m, err := requireAddress("market", market)
		if err != nil {
			return crypto.Address{}, err
		}
		return lending.ReserveAddress(m, key), nil
	case "obligation":
		m, err := requireAddress("market", market)
		if err != nil {
			return crypto.Address{}, err
		}
		o, err := requireAddress("owner", owner)
		if err != nil {
			return crypto.Address{}, err
		}
		return lending.ObligationAddress(m, o, key), nil
	case "feed", "mint":
		if strings.TrimSpace(symbol) == "" {
			return crypto.Address{}, fmt.Errorf("-symbol is required")
		}
		if kind == "feed" {
			return oracle.FeedAddress(symbol), nil
		}
		return token.MintAddress(symbol), nil
	default:
		return crypto.Address{}, fmt.Errorf("unknown kind %q", kind)
	}
}

// readInstructions accepts a JSON array of {"op": ..., "params": {...}}.
func readInstructions(path string) ([]core.Instruction, error) {
	var raw []byte
	var err error
	if path == "" || path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var instructions []core.Instruction
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&instructions); err != nil {
		return nil, fmt.Errorf("decode instructions: %w", err)
	}
	if len(instructions) == 0 {
		return nil, fmt.Errorf("no instructions in %s", path)
	}
	for i, ins := range instructions {
		if !core.KnownOp(ins.Op) {
			return nil, fmt.Errorf("instructions[%d]: unknown op %q", i, ins.Op)
		}
	}
	return instructions, nil
}

func signEnvelope(key *crypto.PrivateKey, nonce uint64, instructions []core.Instruction) (*core.Envelope, error) {
	env := &core.Envelope{Nonce: nonce, Instructions: instructions}
	if err := env.Sign(key); err != nil {
		return nil, err
	}
	return env, nil
}

func runSign(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	ks := keystoreFlags(fs)
	nonce := fs.Uint64("nonce", 0, "Batch nonce (last committed nonce plus one)")
	file := fs.String("instructions", "-", "JSON file with the instruction list, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *nonce == 0 {
		return fmt.Errorf("-nonce is required")
	}
	instructions, err := readInstructions(*file)
	if err != nil {
		return err
	}
	key, err := ks.load()
	if err != nil {
		return err
	}
	env, err := signEnvelope(key, *nonce, instructions)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

type rpcClient struct {
	base   string
	bearer string
	http   *http.Client
}

func (c *rpcClient) do(method, path string, body []byte, out interface{}) error {
	req, err := http.NewRequest(method, strings.TrimRight(c.base, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

func (c *rpcClient) nextNonce(addr crypto.Address) (uint64, error) {
	var view struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.do(http.MethodGet, "/v1/nonces/"+addr.String(), nil, &view); err != nil {
		return 0, err
	}
	return view.Nonce + 1, nil
}

func runSubmit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	ks := keystoreFlags(fs)
	rpcURL := fs.String("rpc", defaultRPC, "Node RPC base URL")
	bearer := fs.String("token", os.Getenv("LEND_RPC_TOKEN"), "Bearer token for the submit route")
	nonce := fs.Uint64("nonce", 0, "Batch nonce; 0 fetches the next nonce from the node")
	file := fs.String("instructions", "-", "JSON file with the instruction list, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	instructions, err := readInstructions(*file)
	if err != nil {
		return err
	}
	key, err := ks.load()
	if err != nil {
		return err
	}
	client := &rpcClient{base: *rpcURL, bearer: strings.TrimSpace(*bearer), http: &http.Client{Timeout: 15 * time.Second}}
	n := *nonce
	if n == 0 {
		if n, err = client.nextNonce(key.PubKey().Address()); err != nil {
			return err
		}
	}
	env, err := signEnvelope(key, n, instructions)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var receipt core.Receipt
	if err := client.do(http.MethodPost, "/v1/tx", body, &receipt); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(receipt)
}

// stateSource reads reserves straight from a state database.
type stateSource struct {
	mgr  *state.Manager
	slot uint64
}

func (s stateSource) Slot() uint64 { return s.slot }

func (s stateSource) Reserves() ([]*lending.Reserve, error) {
	var out []*lending.Reserve
	err := s.mgr.View(func(tx *state.Tx) error {
		addrs, err := tx.ReserveAddresses()
		if err != nil {
			return err
		}
		for _, addr := range addrs {
			reserve, err := tx.GetReserve(addr)
			if err != nil {
				return err
			}
			if reserve != nil {
				out = append(out, reserve)
			}
		}
		return nil
	})
	return out, err
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dataDir := fs.String("datadir", "./lend-data", "Node data directory")
	dir := fs.String("out", "./exports", "Output directory")
	slot := fs.Uint64("slot", 0, "Slot recorded in the snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := storage.OpenLevelDBReadOnly(filepath.Join(*dataDir, "state"))
	if err != nil {
		return err
	}
	defer db.Close()
	snap, err := exports.WriteSnapshot(stateSource{mgr: state.NewManager(db), slot: *slot}, *dir, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d reserves\n%s\n%s\nsha256 %s\n", snap.Rows, snap.ParquetPath, snap.CSVPath, snap.Checksum)
	return nil
}
