package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"runclub/cmd/internal/passphrase"
	"runclub/crypto"
	"runclub/sdk/client"
)

const (
	keyPassEnv     = "RUNCLUB_KEY_PASS"
	oracleTokenEnv = "RUNCLUB_ORACLE_TOKEN"
	requestTimeout = 15 * time.Second
)

var apiEndpoint = defaultEndpoint()

// passSource is replaced in tests.
var passSource interface{ Get() (string, error) } = passphrase.NewSource(keyPassEnv, "signer")

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "club":
		return runClubCommand(args[1:], stdout, stderr)
	case "km":
		return runKmCommand(args[1:], stdout, stderr)
	case "token":
		return runTokenCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: runclub-cli [--url URL] <command> [flags]

Commands:
  keygen   --out PATH                     create a signer keystore
  address  --key PATH                     print the keystore address
  club     create|get|list|members|activate|deposit|remove|join|kick|redeem|reward|redemption|events|mine
  km       add|balance|total
  token    balance|transfer|mint|burn

Mutating commands take --key PATH; the passphrase is read from RUNCLUB_KEY_PASS
or prompted. km add reads the oracle token from RUNCLUB_ORACLE_TOKEN.`)
}

func defaultEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RUNCLUB_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--url" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --url")
			}
			apiEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--url=") {
			apiEndpoint = strings.TrimPrefix(arg, "--url=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "keystore file to create")
	light := fs.Bool("light", false, "use light scrypt parameters (tests and development only)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		return printError(stderr, "--out is required")
	}
	if _, err := os.Stat(*out); err == nil {
		return printError(stderr, fmt.Sprintf("%s already exists", *out))
	}
	pass, err := passSource.Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(*out, key, pass, *light); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyPath := fs.String("key", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	addr := key.PubKey().Address()
	fmt.Fprintf(stdout, "%s\n%s\n", addr.String(), addr.Hex())
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	pass, err := passSource.Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

// newClient builds an SDK client, signing with the keystore at keyPath when set.
func newClient(keyPath string, opts ...client.Option) (*client.Client, error) {
	if strings.TrimSpace(keyPath) != "" {
		key, err := loadKey(keyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithSigner(key))
	}
	return client.New(apiEndpoint, opts...)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func parseAmount(raw, name string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("--%s must be a non-negative integer", name)
	}
	return v, nil
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return printError(stderr, err.Error())
	}
	return 0
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}
