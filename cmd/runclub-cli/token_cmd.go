package main

import (
	"fmt"
	"io"
	"strings"
)

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	fs := newFlagSet("token "+args[0], stderr)
	keyPath := fs.String("key", "", "signer keystore")
	addr := fs.String("address", "", "account address")
	to := fs.String("to", "", "recipient address")
	amount := fs.String("amount", "", "amount in base units")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	ctx, cancel := commandContext()
	defer cancel()

	if args[0] == "balance" {
		if strings.TrimSpace(*addr) == "" {
			return printError(stderr, "--address is required")
		}
		c, err := newClient("")
		if err != nil {
			return printError(stderr, err.Error())
		}
		balance, err := c.Balance(ctx, *addr)
		if err != nil {
			return printError(stderr, err.Error())
		}
		return printJSON(stdout, stderr, map[string]any{"address": *addr, "balance": balance.String()})
	}

	value, err := parseAmount(*amount, "amount")
	if err != nil {
		return printError(stderr, err.Error())
	}
	c, err := newClient(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	switch args[0] {
	case "transfer":
		err = c.Transfer(ctx, *to, value)
	case "mint":
		err = c.Mint(ctx, *to, value)
	case "burn":
		err = c.Burn(ctx, value)
	default:
		fmt.Fprintf(stderr, "Unknown token subcommand: %s\n", args[0])
		return 1
	}
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, map[string]any{"status": "ok", "amount": value.String()})
}
