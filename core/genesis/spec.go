package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"runclub/crypto"
	"runclub/native/runclub"
)

// Spec is the one-time bootstrap document applied to an empty store.
type Spec struct {
	TokenAdmin string            `yaml:"tokenAdmin"`
	Alloc      map[string]string `yaml:"alloc"` // addr -> amount in base units
	Clubs      []ClubSpec        `yaml:"clubs"`

	admin [20]byte
	alloc []allocation
}

// ClubSpec seeds a club at genesis.
type ClubSpec struct {
	Name           string   `yaml:"name"`
	Organizer      string   `yaml:"organizer"`
	USDCPerKm      string   `yaml:"usdcPerKm"`
	WithdrawalRule string   `yaml:"withdrawalRule"`
	DurationDays   uint32   `yaml:"durationDays"`
	Deposit        string   `yaml:"deposit,omitempty"`
	Members        []string `yaml:"members,omitempty"`

	organizer [20]byte
	rate      *big.Int
	rule      runclub.WithdrawalRule
	deposit   *big.Int
	members   [][20]byte
}

type allocation struct {
	addr   [20]byte
	amount *big.Int
}

// LoadSpec reads and validates the YAML document at path.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes a YAML document. Unknown fields are rejected.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// Admin returns the parsed token admin address.
func (s *Spec) Admin() [20]byte { return s.admin }

func (s *Spec) validate() error {
	if strings.TrimSpace(s.TokenAdmin) == "" {
		return fmt.Errorf("tokenAdmin must be provided")
	}
	admin, err := crypto.ParseAddress(s.TokenAdmin)
	if err != nil {
		return fmt.Errorf("tokenAdmin: %w", err)
	}
	s.admin = admin

	s.alloc = s.alloc[:0]
	seen := make(map[[20]byte]struct{}, len(s.Alloc))
	for rawAddr, rawAmount := range s.Alloc {
		addr, err := crypto.ParseAddress(rawAddr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", rawAddr, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("alloc %q: duplicate account", rawAddr)
		}
		seen[addr] = struct{}{}
		amount, err := parseAmount(rawAmount)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", rawAddr, err)
		}
		s.alloc = append(s.alloc, allocation{addr: addr, amount: amount})
	}
	sortAllocations(s.alloc)

	for i := range s.Clubs {
		if err := s.Clubs[i].validate(); err != nil {
			return fmt.Errorf("clubs[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *ClubSpec) validate() error {
	organizer, err := crypto.ParseAddress(c.Organizer)
	if err != nil {
		return fmt.Errorf("organizer: %w", err)
	}
	c.organizer = organizer
	rate, err := parseAmount(c.USDCPerKm)
	if err != nil || rate.Sign() == 0 {
		return fmt.Errorf("usdcPerKm must be a positive integer")
	}
	c.rate = rate
	rule, err := runclub.ParseWithdrawalRule(c.WithdrawalRule)
	if err != nil {
		return err
	}
	c.rule = rule
	if c.DurationDays == 0 {
		return fmt.Errorf("durationDays must be greater than zero")
	}
	c.deposit = big.NewInt(0)
	if strings.TrimSpace(c.Deposit) != "" {
		if c.deposit, err = parseAmount(c.Deposit); err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
	}
	c.members = c.members[:0]
	for _, raw := range c.Members {
		member, err := crypto.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("member %q: %w", raw, err)
		}
		c.members = append(c.members, member)
	}
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return amount, nil
}
