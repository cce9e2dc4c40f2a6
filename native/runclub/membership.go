package runclub

// AddMember enrols member in the club. The member authorizes their own
// enrolment; the organizer does not approve it.
func (e *Engine) AddMember(clubID uint64, member [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(member); err != nil {
		return err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return err
	}
	if club.HasMember(member) {
		return ErrDuplicateMember
	}
	club.Members = append(club.Members, member)
	if err := e.storeClub(club); err != nil {
		return err
	}
	e.emit(MemberAddedEvent(clubID, member))
	return nil
}

// RemoveMember drops member from the club. Any KM balance the member accrued
// stays in state but no longer counts towards club totals.
func (e *Engine) RemoveMember(clubID uint64, organizer [20]byte, member [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireAuth(organizer); err != nil {
		return err
	}
	club, err := e.loadClub(clubID)
	if err != nil {
		return err
	}
	if club.Organizer != organizer {
		return ErrNotAuthorized
	}
	remaining := make([][20]byte, 0, len(club.Members))
	found := false
	for _, existing := range club.Members {
		if existing == member {
			found = true
			continue
		}
		remaining = append(remaining, existing)
	}
	if !found {
		return ErrMemberNotFound
	}
	club.Members = remaining
	if err := e.storeClub(club); err != nil {
		return err
	}
	e.emit(MemberRemovedEvent(clubID, organizer, member))
	return nil
}
