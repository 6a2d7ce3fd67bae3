package room

// NextActive returns the first index after from, scanning circularly, whose
// packed flag is false. The scan wraps round to from itself last. It returns
// from unchanged when every entry is packed.
func NextActive(packed []bool, from int) int {
	n := len(packed)
	if n == 0 {
		return from
	}
	for step := 1; step <= n; step++ {
		i := ((from+step)%n + n) % n
		if !packed[i] {
			return i
		}
	}
	return from
}

func (r *Room) packedFlags() []bool {
	flags := make([]bool, len(r.Participants))
	for i, p := range r.Participants {
		flags[i] = p.Packed
	}
	return flags
}

// advanceTurn moves CurrentTurn to the next active participant.
func (r *Room) advanceTurn() {
	r.CurrentTurn = NextActive(r.packedFlags(), r.CurrentTurn)
}

func (r *Room) activeCount() int {
	n := 0
	for _, p := range r.Participants {
		if !p.Packed {
			n++
		}
	}
	return n
}

func (r *Room) firstActive() int {
	for i, p := range r.Participants {
		if !p.Packed {
			return i
		}
	}
	return -1
}

// normalizeTurn re-establishes the turn invariant after the participant
// list changed shape: the index is in range and points at an active player.
// If nobody is active any more the round cannot be settled, so everyone is
// unpacked and play continues with the pool intact.
func (r *Room) normalizeTurn() {
	n := len(r.Participants)
	if n == 0 {
		r.CurrentTurn = 0
		return
	}
	if r.CurrentTurn < 0 || r.CurrentTurn >= n {
		r.CurrentTurn = 0
	}
	if r.activeCount() == 0 {
		for _, p := range r.Participants {
			p.Packed = false
		}
		return
	}
	if r.Participants[r.CurrentTurn].Packed {
		r.CurrentTurn = NextActive(r.packedFlags(), r.CurrentTurn)
	}
}
