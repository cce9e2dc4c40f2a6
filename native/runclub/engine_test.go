package runclub

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"runclub/core/events"
)

type mockState struct {
	counter    uint64
	hasCounter bool
	clubs      map[uint64]*Club
	km         map[string]*big.Int
	failPut    error
}

func newMockState() *mockState {
	return &mockState{
		clubs: make(map[uint64]*Club),
		km:    make(map[string]*big.Int),
	}
}

func kmKey(id uint64, user [20]byte) string {
	return string(append(user[:], byte(id>>56), byte(id>>48), byte(id>>40), byte(id>>32), byte(id>>24), byte(id>>16), byte(id>>8), byte(id)))
}

func (m *mockState) RunClubCounter() (uint64, bool, error) { return m.counter, m.hasCounter, nil }

func (m *mockState) RunClubSetCounter(id uint64) error {
	m.counter = id
	m.hasCounter = true
	return nil
}

func (m *mockState) RunClubGet(id uint64) (*Club, bool, error) {
	club, ok := m.clubs[id]
	if !ok {
		return nil, false, nil
	}
	return club.Clone(), true, nil
}

func (m *mockState) RunClubPut(club *Club) error {
	if m.failPut != nil {
		return m.failPut
	}
	m.clubs[club.ID] = club.Clone()
	return nil
}

func (m *mockState) RunClubDelete(id uint64) error {
	delete(m.clubs, id)
	return nil
}

func (m *mockState) RunClubKmBalance(id uint64, user [20]byte) (*big.Int, error) {
	if v, ok := m.km[kmKey(id, user)]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) RunClubSetKmBalance(id uint64, user [20]byte, amount *big.Int) error {
	m.km[kmKey(id, user)] = new(big.Int).Set(amount)
	return nil
}

// signers authorizes every address it contains.
type signers map[[20]byte]bool

func (s signers) RequireAuth(addr [20]byte) error {
	if s[addr] {
		return nil
	}
	return ErrAuthorizationRequired
}

func addr(fill byte) [20]byte {
	var out [20]byte
	copy(out[:], bytes.Repeat([]byte{fill}, 20))
	return out
}

var (
	organizer = addr(0x0A)
	alice     = addr(0x01)
	bob       = addr(0x02)
	carol     = addr(0x03)
	sink      = addr(0xEE)
)

type fixture struct {
	state  *mockState
	engine *Engine
	clock  uint64
	events *events.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{state: newMockState(), clock: 1_000, events: &events.Buffer{}}
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetEmitter(f.events)
	f.engine.SetAuthorizer(signers{organizer: true, alice: true, bob: true, carol: true})
	f.engine.SetNowFunc(func() uint64 { return f.clock })
	if err := f.engine.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return f
}

// club creates a club, enrols members and funds it with pool.
func (f *fixture) club(t *testing.T, rule WithdrawalRule, pool int64, members ...[20]byte) uint64 {
	t.Helper()
	id, err := f.engine.CreateClub(organizer, "Sunrise Striders", big.NewInt(5), rule, 30)
	if err != nil {
		t.Fatalf("create club: %v", err)
	}
	for _, m := range members {
		if err := f.engine.AddMember(id, m); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	if pool > 0 {
		if err := f.engine.DepositFunds(id, organizer, big.NewInt(pool)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	return id
}

func (f *fixture) credit(t *testing.T, id uint64, user [20]byte, km int64) {
	t.Helper()
	if err := f.engine.AddKmTokens(id, user, big.NewInt(km)); err != nil {
		t.Fatalf("add km: %v", err)
	}
}

func (f *fixture) endPeriod(t *testing.T, id uint64) {
	t.Helper()
	club, err := f.engine.Club(id)
	if err != nil {
		t.Fatalf("load club: %v", err)
	}
	f.clock = club.MonthEndTimestamp
}

func TestInitializeRejectsReseed(t *testing.T) {
	f := newFixture(t)
	f.club(t, WithdrawalRuleEqual, 0)
	if err := f.engine.Initialize(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if f.state.counter != 1 {
		t.Fatalf("counter reset to %d", f.state.counter)
	}
}

func TestCreateClubRoundTrip(t *testing.T) {
	f := newFixture(t)
	id, err := f.engine.CreateClub(organizer, "Trail Blazers", big.NewInt(7), WithdrawalRuleUnlimited, 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}
	club, err := f.engine.Club(id)
	if err != nil {
		t.Fatalf("get club: %v", err)
	}
	if club.Name != "Trail Blazers" || club.Organizer != organizer {
		t.Fatalf("unexpected identity fields: %+v", club)
	}
	if club.USDCPerKm.Cmp(big.NewInt(7)) != 0 || club.WithdrawalRule != WithdrawalRuleUnlimited {
		t.Fatalf("unexpected economics: %+v", club)
	}
	if club.MonthEndTimestamp != 1_000+3*86_400 {
		t.Fatalf("unexpected deadline %d", club.MonthEndTimestamp)
	}
	if club.IsActive || club.USDCDeposited.Sign() != 0 || len(club.Members) != 0 {
		t.Fatalf("new club should be empty and inactive: %+v", club)
	}
	got := f.events.Events()
	if len(got) != 1 || got[0].EventType() != EventTypeClubCreated {
		t.Fatalf("expected creation event, got %+v", got)
	}

	second, err := f.engine.CreateClub(organizer, "Night Owls", big.NewInt(1), WithdrawalRuleEqual, 1)
	if err != nil || second != 2 {
		t.Fatalf("expected sequential id 2, got %d (%v)", second, err)
	}
}

func TestCreateClubValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		rate *big.Int
		days uint32
		rule WithdrawalRule
		want error
	}{
		{"zero rate", big.NewInt(0), 10, WithdrawalRuleEqual, ErrInvalidRate},
		{"negative rate", big.NewInt(-3), 10, WithdrawalRuleEqual, ErrInvalidRate},
		{"nil rate", nil, 10, WithdrawalRuleEqual, ErrInvalidRate},
		{"zero duration", big.NewInt(1), 0, WithdrawalRuleEqual, ErrInvalidDuration},
		{"unknown rule", big.NewInt(1), 10, WithdrawalRule(9), ErrInvalidWithdrawalRule},
		{"rate overflow", new(big.Int).Lsh(big.NewInt(1), 127), 10, WithdrawalRuleEqual, ErrAmountOverflow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.engine.CreateClub(organizer, "x", tc.rate, tc.rule, tc.days); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if f.state.counter != 0 {
				t.Fatalf("counter advanced on failure: %d", f.state.counter)
			}
		})
	}
}

func TestCreateClubRequiresOrganizerSignature(t *testing.T) {
	f := newFixture(t)
	stranger := addr(0x77)
	if _, err := f.engine.CreateClub(stranger, "x", big.NewInt(1), WithdrawalRuleEqual, 1); !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("expected authorization failure, got %v", err)
	}

	unauthorized := NewEngine()
	unauthorized.SetState(newMockState())
	if _, err := unauthorized.CreateClub(organizer, "x", big.NewInt(1), WithdrawalRuleEqual, 1); !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("engine without authorizer must reject, got %v", err)
	}
}

func TestEngineWithoutStateFails(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Club(1); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
}

func TestActivate(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleEqual, 0)

	if err := f.engine.Activate(id, alice); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := f.engine.Activate(99, organizer); !errors.Is(err, ErrClubNotFound) {
		t.Fatalf("expected ErrClubNotFound, got %v", err)
	}
	if err := f.engine.Activate(id, organizer); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := f.engine.Activate(id, organizer); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	active, err := f.engine.ActiveClubs()
	if err != nil || len(active) != 1 || active[0] != id {
		t.Fatalf("unexpected active clubs %v (%v)", active, err)
	}
}

func TestDepositActivatesClub(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleEqual, 0)

	if err := f.engine.DepositFunds(id, organizer, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := f.engine.DepositFunds(id, alice, big.NewInt(10)); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := f.engine.DepositFunds(id, organizer, big.NewInt(40)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.DepositFunds(id, organizer, big.NewInt(60)); err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	club, _ := f.engine.Club(id)
	if !club.IsActive {
		t.Fatalf("deposit should activate the club")
	}
	if club.USDCDeposited.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected pool 100, got %s", club.USDCDeposited)
	}
	if err := f.engine.Activate(id, organizer); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("deposit-activated club should reject activation, got %v", err)
	}
}

func TestDepositOverflow(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleEqual, 0)
	if err := f.engine.DepositFunds(id, organizer, new(big.Int).Set(maxInt128)); err != nil {
		t.Fatalf("deposit max: %v", err)
	}
	if err := f.engine.DepositFunds(id, organizer, big.NewInt(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestRemoveClub(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleEqual, 50, alice)

	// Organizer check happens before the balance check.
	if err := f.engine.RemoveClub(id, alice); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for non-organizer, got %v", err)
	}
	if err := f.engine.RemoveClub(id, organizer); !errors.Is(err, ErrFundsRemaining) {
		t.Fatalf("expected ErrFundsRemaining, got %v", err)
	}

	empty := f.club(t, WithdrawalRuleEqual, 0, alice)
	if err := f.engine.Activate(empty, organizer); err != nil {
		t.Fatalf("activate: %v", err)
	}
	f.credit(t, empty, alice, 4)
	if err := f.engine.RemoveClub(empty, organizer); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := f.engine.ClubExists(empty); ok {
		t.Fatalf("club should be gone")
	}
	if _, err := f.engine.Club(empty); !errors.Is(err, ErrClubNotFound) {
		t.Fatalf("expected ErrClubNotFound, got %v", err)
	}
	// KM balances are not cascade-deleted.
	if bal, _ := f.engine.KmBalance(empty, alice); bal.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("orphaned balance should remain, got %s", bal)
	}
	// Ids are never reused.
	next := f.club(t, WithdrawalRuleEqual, 0)
	if next != empty+1 {
		t.Fatalf("expected id %d, got %d", empty+1, next)
	}
}

func TestMembership(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleEqual, 0)

	if err := f.engine.AddMember(99, alice); !errors.Is(err, ErrClubNotFound) {
		t.Fatalf("expected ErrClubNotFound, got %v", err)
	}
	if err := f.engine.AddMember(id, addr(0x55)); !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("member must sign own enrolment, got %v", err)
	}
	if err := f.engine.AddMember(id, alice); err != nil {
		t.Fatalf("add alice: %v", err)
	}
	if err := f.engine.AddMember(id, bob); err != nil {
		t.Fatalf("add bob: %v", err)
	}
	if err := f.engine.AddMember(id, alice); !errors.Is(err, ErrDuplicateMember) {
		t.Fatalf("expected ErrDuplicateMember, got %v", err)
	}
	members, _ := f.engine.Members(id)
	if len(members) != 2 {
		t.Fatalf("duplicate add must leave set unchanged, got %d members", len(members))
	}

	if err := f.engine.RemoveMember(id, alice, bob); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := f.engine.RemoveMember(id, organizer, carol); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
	if err := f.engine.RemoveMember(id, organizer, alice); err != nil {
		t.Fatalf("remove alice: %v", err)
	}
	members, _ = f.engine.Members(id)
	if len(members) != 1 || members[0] != bob {
		t.Fatalf("unexpected members after removal: %v", members)
	}
	if has, _ := f.engine.HasMembers(id); !has {
		t.Fatalf("club still has bob")
	}
	clubs, _ := f.engine.MemberClubs(bob)
	if len(clubs) != 1 || clubs[0] != id {
		t.Fatalf("unexpected member clubs %v", clubs)
	}
	if clubs, _ := f.engine.MemberClubs(alice); len(clubs) != 0 {
		t.Fatalf("alice should have no clubs, got %v", clubs)
	}
}

func TestAddKmTokens(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleEqual, 0, alice)

	if err := f.engine.AddKmTokens(99, alice, big.NewInt(1)); !errors.Is(err, ErrClubNotFound) {
		t.Fatalf("expected ErrClubNotFound, got %v", err)
	}
	if err := f.engine.AddKmTokens(id, alice, big.NewInt(1)); !errors.Is(err, ErrClubInactive) {
		t.Fatalf("expected ErrClubInactive, got %v", err)
	}
	if err := f.engine.Activate(id, organizer); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := f.engine.AddKmTokens(id, bob, big.NewInt(1)); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if err := f.engine.AddKmTokens(id, alice, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative accrual, got %v", err)
	}
	f.credit(t, id, alice, 3)
	f.credit(t, id, alice, 4)
	f.credit(t, id, alice, 0)
	if bal, _ := f.engine.KmBalance(id, alice); bal.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected balance 7, got %s", bal)
	}
	if bal, _ := f.engine.KmBalance(id, bob); bal.Sign() != 0 {
		t.Fatalf("absent balance should read zero, got %s", bal)
	}
}

func TestTotalKmCountsCurrentMembersOnly(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleUnlimited, 100, alice, bob)
	f.credit(t, id, alice, 6)
	f.credit(t, id, bob, 4)
	total, err := f.engine.TotalKmBalance(id)
	if err != nil || total.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected total 10, got %v (%v)", total, err)
	}
	if err := f.engine.RemoveMember(id, organizer, bob); err != nil {
		t.Fatalf("remove: %v", err)
	}
	total, _ = f.engine.TotalKmBalance(id)
	if total.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("removed member must not count, got %s", total)
	}
}

func TestQueriesOnMissingClub(t *testing.T) {
	f := newFixture(t)
	for name, probe := range map[string]func() (bool, error){
		"active":    func() (bool, error) { return f.engine.IsClubActive(42) },
		"valid":     func() (bool, error) { return f.engine.IsClubPeriodValid(42) },
		"organizer": func() (bool, error) { return f.engine.IsClubOrganizer(42, organizer) },
		"members":   func() (bool, error) { return f.engine.HasMembers(42) },
		"exists":    func() (bool, error) { return f.engine.ClubExists(42) },
	} {
		if ok, err := probe(); err != nil || ok {
			t.Fatalf("%s: expected false without error, got %v (%v)", name, ok, err)
		}
	}
	if _, err := f.engine.IsPeriodEnded(42); !errors.Is(err, ErrClubNotFound) {
		t.Fatalf("expected ErrClubNotFound, got %v", err)
	}
}

func TestPeriodValidityBoundaries(t *testing.T) {
	f := newFixture(t)
	id := f.club(t, WithdrawalRuleEqual, 0)
	club, _ := f.engine.Club(id)

	f.clock = club.MonthEndTimestamp - 1
	if ended, _ := f.engine.IsPeriodEnded(id); ended {
		t.Fatalf("period should still run one second before the deadline")
	}
	f.clock = club.MonthEndTimestamp
	ended, _ := f.engine.IsPeriodEnded(id)
	valid, _ := f.engine.IsClubPeriodValid(id)
	if !ended || !valid {
		t.Fatalf("deadline second is both ended and valid: ended=%v valid=%v", ended, valid)
	}
	f.clock++
	if valid, _ := f.engine.IsClubPeriodValid(id); valid {
		t.Fatalf("period should be invalid after the deadline")
	}
	if ok, _ := f.engine.IsClubOrganizer(id, organizer); !ok {
		t.Fatalf("organizer probe failed")
	}
}

func TestParseWithdrawalRule(t *testing.T) {
	for raw, want := range map[string]WithdrawalRule{
		"equal":        WithdrawalRuleEqual,
		" Unlimited ":  WithdrawalRuleUnlimited,
		"proportional": WithdrawalRuleUnlimited,
	} {
		got, err := ParseWithdrawalRule(raw)
		if err != nil || got != want {
			t.Fatalf("parse %q: got %v (%v)", raw, got, err)
		}
	}
	if _, err := ParseWithdrawalRule("winner-takes-all"); !errors.Is(err, ErrInvalidWithdrawalRule) {
		t.Fatalf("expected ErrInvalidWithdrawalRule, got %v", err)
	}
}

func TestVaultAddressIsDeterministic(t *testing.T) {
	if VaultAddress(1) != VaultAddress(1) {
		t.Fatalf("vault address must be stable")
	}
	if VaultAddress(1) == VaultAddress(2) {
		t.Fatalf("vaults must differ per club")
	}
}
