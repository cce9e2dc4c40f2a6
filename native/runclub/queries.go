package runclub

import "fmt"

// Club returns a copy of the stored club.
func (e *Engine) Club(clubID uint64) (*Club, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return nil, err
	}
	return club.Clone(), nil
}

// Members returns the club's member addresses.
func (e *Engine) Members(clubID uint64) ([][20]byte, error) {
	club, err := e.Club(clubID)
	if err != nil {
		return nil, err
	}
	return club.Members, nil
}

// ClubExists reports whether a record is stored under clubID.
func (e *Engine) ClubExists(clubID uint64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	_, ok, err := e.state.RunClubGet(clubID)
	if err != nil {
		return false, fmt.Errorf("load club %d: %w", clubID, err)
	}
	return ok, nil
}

// IsClubActive reports whether the club exists and is active.
func (e *Engine) IsClubActive(clubID uint64) (bool, error) {
	return e.probe(clubID, func(c *Club) bool { return c.IsActive })
}

// IsClubPeriodValid reports whether the club exists and its period is still
// running (now <= deadline).
func (e *Engine) IsClubPeriodValid(clubID uint64) (bool, error) {
	now := e.now()
	return e.probe(clubID, func(c *Club) bool { return now <= c.MonthEndTimestamp })
}

// IsClubOrganizer reports whether user organizes the club.
func (e *Engine) IsClubOrganizer(clubID uint64, user [20]byte) (bool, error) {
	return e.probe(clubID, func(c *Club) bool { return c.Organizer == user })
}

// HasMembers reports whether the club has at least one member.
func (e *Engine) HasMembers(clubID uint64) (bool, error) {
	return e.probe(clubID, func(c *Club) bool { return len(c.Members) > 0 })
}

func (e *Engine) probe(clubID uint64, check func(*Club) bool) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	club, ok, err := e.state.RunClubGet(clubID)
	if err != nil {
		return false, fmt.Errorf("load club %d: %w", clubID, err)
	}
	if !ok || club == nil {
		return false, nil
	}
	return check(club), nil
}

// ActiveClubs lists the ids of active clubs in ascending order. Removed ids
// are skipped.
func (e *Engine) ActiveClubs() ([]uint64, error) {
	return e.scan(func(c *Club) bool { return c.IsActive })
}

// MemberClubs lists the ids of clubs whose member set contains addr.
func (e *Engine) MemberClubs(addr [20]byte) ([]uint64, error) {
	return e.scan(func(c *Club) bool { return c.HasMember(addr) })
}

// Clubs returns every stored club in id order.
func (e *Engine) Clubs() ([]*Club, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	counter, _, err := e.state.RunClubCounter()
	if err != nil {
		return nil, fmt.Errorf("load club counter: %w", err)
	}
	out := make([]*Club, 0)
	for id := uint64(1); id <= counter; id++ {
		club, ok, err := e.state.RunClubGet(id)
		if err != nil {
			return nil, fmt.Errorf("load club %d: %w", id, err)
		}
		if ok && club != nil {
			out = append(out, club)
		}
	}
	return out, nil
}

func (e *Engine) scan(match func(*Club) bool) ([]uint64, error) {
	clubs, err := e.Clubs()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0)
	for _, club := range clubs {
		if match(club) {
			ids = append(ids, club.ID)
		}
	}
	return ids, nil
}
