package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"runclub/sdk/client"
)

func runClubCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "create":
		return runClubCreate(args[1:], stdout, stderr)
	case "get":
		return runClubGet(args[1:], stdout, stderr)
	case "list":
		return runClubList(args[1:], stdout, stderr)
	case "members":
		return runClubMembers(args[1:], stdout, stderr)
	case "activate", "deposit", "remove", "join", "kick", "redeem":
		return runClubMutation(args[0], args[1:], stdout, stderr)
	case "reward", "redemption":
		return runClubPreview(args[0], args[1:], stdout, stderr)
	case "events":
		return runClubEvents(args[1:], stdout, stderr)
	case "mine":
		return runClubMine(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown club subcommand: %s\n", args[0])
		return 1
	}
}

func runClubCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("club create", stderr)
	keyPath := fs.String("key", "", "organizer keystore")
	name := fs.String("name", "", "club name")
	rate := fs.String("usdc-per-km", "", "reward rate in base units per km")
	rule := fs.String("rule", "equal", "withdrawal rule: equal or unlimited")
	days := fs.Uint("days", 30, "competition length in days")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*rate) == "" {
		return printError(stderr, "--usdc-per-km is required")
	}
	perKm, err := parseAmount(*rate, "usdc-per-km")
	if err != nil {
		return printError(stderr, err.Error())
	}
	if *days > uint(^uint32(0)) {
		return printError(stderr, "--days out of range")
	}
	c, err := newClient(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	id, err := c.CreateClub(ctx, *name, perKm, *rule, uint32(*days))
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, map[string]any{"clubId": id})
}

func runClubGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("club get", stderr)
	id := fs.Uint64("club", 0, "club id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	c, err := newClient("")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	club, err := c.Club(ctx, *id)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, club)
}

func runClubList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("club list", stderr)
	active := fs.Bool("active", false, "only active clubs")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	c, err := newClient("")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	clubs, err := c.Clubs(ctx, *active)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, clubs)
}

func runClubMembers(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("club members", stderr)
	id := fs.Uint64("club", 0, "club id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	c, err := newClient("")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	members, err := c.Members(ctx, *id)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, members)
}

// runClubMutation handles the signed single-club commands.
func runClubMutation(cmd string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("club "+cmd, stderr)
	keyPath := fs.String("key", "", "signer keystore")
	id := fs.Uint64("club", 0, "club id")
	amount := fs.String("amount", "", "deposit amount in base units")
	member := fs.String("member", "", "member address to remove")
	destination := fs.String("to", "", "payout destination (defaults to the signer)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	c, err := newClient(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()

	switch cmd {
	case "activate":
		err = c.ActivateClub(ctx, *id)
	case "deposit":
		value, perr := parseAmount(*amount, "amount")
		if perr != nil {
			return printError(stderr, perr.Error())
		}
		err = c.Deposit(ctx, *id, value)
	case "remove":
		err = c.RemoveClub(ctx, *id)
	case "join":
		err = c.JoinClub(ctx, *id)
	case "kick":
		if strings.TrimSpace(*member) == "" {
			return printError(stderr, "--member is required")
		}
		err = c.RemoveMember(ctx, *id, *member)
	case "redeem":
		reward, rerr := c.Redeem(ctx, *id, *destination)
		if rerr != nil {
			return printError(stderr, rerr.Error())
		}
		return printJSON(stdout, stderr, map[string]any{"clubId": *id, "reward": reward.String()})
	}
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, map[string]any{"clubId": *id, "status": "ok"})
}

func runClubPreview(cmd string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("club "+cmd, stderr)
	id := fs.Uint64("club", 0, "club id")
	user := fs.String("user", "", "member address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*user) == "" {
		return printError(stderr, "--user is required")
	}
	c, err := newClient("")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	if cmd == "reward" {
		reward, err := c.Reward(ctx, *id, *user)
		if err != nil {
			return printError(stderr, err.Error())
		}
		return printJSON(stdout, stderr, map[string]any{"clubId": *id, "user": *user, "reward": reward.String()})
	}
	info, err := c.RedemptionInfo(ctx, *id, *user)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, info)
}

func runClubEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("club events", stderr)
	id := fs.Uint64("club", 0, "club id")
	after := fs.Uint64("after", 0, "return events after this sequence")
	limit := fs.Int("limit", 0, "page size")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	c, err := newClient("")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	evts, err := c.ClubEvents(ctx, *id, *after, *limit)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, evts)
}

func runClubMine(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("club mine", stderr)
	member := fs.String("member", "", "member address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*member) == "" {
		return printError(stderr, "--member is required")
	}
	c, err := newClient("")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := commandContext()
	defer cancel()
	ids, err := c.MemberClubs(ctx, *member)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return printJSON(stdout, stderr, ids)
}

func runKmCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	fs := newFlagSet("km "+args[0], stderr)
	id := fs.Uint64("club", 0, "club id")
	user := fs.String("user", "", "member address")
	amount := fs.String("amount", "", "km tokens to credit")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	ctx, cancel := commandContext()
	defer cancel()

	switch args[0] {
	case "add":
		token := strings.TrimSpace(os.Getenv(oracleTokenEnv))
		if token == "" {
			return printError(stderr, oracleTokenEnv+" is required")
		}
		value, err := parseAmount(*amount, "amount")
		if err != nil {
			return printError(stderr, err.Error())
		}
		c, err := newClient("", client.WithOracleToken(token))
		if err != nil {
			return printError(stderr, err.Error())
		}
		balance, err := c.AddKm(ctx, *id, *user, value)
		if err != nil {
			return printError(stderr, err.Error())
		}
		return printJSON(stdout, stderr, map[string]any{"clubId": *id, "user": *user, "balance": balance.String()})
	case "balance":
		c, err := newClient("")
		if err != nil {
			return printError(stderr, err.Error())
		}
		balance, err := c.KmBalance(ctx, *id, *user)
		if err != nil {
			return printError(stderr, err.Error())
		}
		return printJSON(stdout, stderr, map[string]any{"clubId": *id, "user": *user, "balance": balance.String()})
	case "total":
		c, err := newClient("")
		if err != nil {
			return printError(stderr, err.Error())
		}
		total, err := c.TotalKm(ctx, *id)
		if err != nil {
			return printError(stderr, err.Error())
		}
		return printJSON(stdout, stderr, map[string]any{"clubId": *id, "total": total.String()})
	default:
		fmt.Fprintf(stderr, "Unknown km subcommand: %s\n", args[0])
		return 1
	}
}
