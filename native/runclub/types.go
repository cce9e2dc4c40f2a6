package runclub

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
)

// ModuleName identifies the module for pause guards and metrics.
const ModuleName = "runclub"

const secondsPerDay = 24 * 60 * 60

// WithdrawalRule selects how a club's pool is split at period end.
type WithdrawalRule uint8

const (
	// WithdrawalRuleEqual splits the pool evenly between members holding KM tokens.
	WithdrawalRuleEqual WithdrawalRule = iota
	// WithdrawalRuleUnlimited splits the pool in proportion to KM balances.
	WithdrawalRuleUnlimited
)

// Valid reports whether the rule is one of the defined variants.
func (r WithdrawalRule) Valid() bool {
	switch r {
	case WithdrawalRuleEqual, WithdrawalRuleUnlimited:
		return true
	default:
		return false
	}
}

func (r WithdrawalRule) String() string {
	switch r {
	case WithdrawalRuleEqual:
		return "equal"
	case WithdrawalRuleUnlimited:
		return "unlimited"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// ParseWithdrawalRule accepts the case-insensitive rule names "equal" and
// "unlimited" ("proportional" is accepted as an alias of the latter).
func ParseWithdrawalRule(raw string) (WithdrawalRule, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "equal":
		return WithdrawalRuleEqual, nil
	case "unlimited", "proportional":
		return WithdrawalRuleUnlimited, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidWithdrawalRule, raw)
	}
}

// Club is a running club with a pooled deposit and a fixed competition period.
type Club struct {
	ID                uint64
	Name              string
	Organizer         [20]byte
	Members           [][20]byte
	USDCDeposited     *big.Int
	USDCPerKm         *big.Int
	WithdrawalRule    WithdrawalRule
	MonthEndTimestamp uint64
	IsActive          bool
}

// Clone returns a deep copy of the club.
func (c *Club) Clone() *Club {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Members = append([][20]byte(nil), c.Members...)
	clone.USDCDeposited = newBigInt(c.USDCDeposited)
	clone.USDCPerKm = newBigInt(c.USDCPerKm)
	return &clone
}

// HasMember reports whether addr is in the member set.
func (c *Club) HasMember(addr [20]byte) bool {
	if c == nil {
		return false
	}
	for _, member := range c.Members {
		if bytes.Equal(member[:], addr[:]) {
			return true
		}
	}
	return false
}

// PeriodEnded reports whether now is at or past the club deadline.
func (c *Club) PeriodEnded(now uint64) bool {
	return c != nil && now >= c.MonthEndTimestamp
}

// RedemptionInfo previews a member's redemption.
type RedemptionInfo struct {
	KmBalance       *big.Int
	ProjectedReward *big.Int
	PeriodEnded     bool
}
