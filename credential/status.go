package credential

// Status of a phase record
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFail      Status = "fail"

	// StatusSuccess is the acknowledgement outcome for a verified proof
	StatusSuccess Status = "success"
)

// Lifecycle is the table of forward edges a record kind may take; a status
// missing from the table is terminal
type Lifecycle map[Status][]Status

var (
	// PhaseLifecycle is followed by records gated on ledger confirmation
	PhaseLifecycle = Lifecycle{
		StatusCreated: {StatusPending},
		StatusPending: {StatusConfirmed, StatusFail},
	}

	// AckLifecycle is followed by received proofs
	AckLifecycle = Lifecycle{
		StatusCreated: {StatusSuccess, StatusFail},
	}
)

// LifecycleOf returns the lifecycle followed by records of the given kind
func LifecycleOf(kind Kind) Lifecycle {
	if kind == KindReceivedProof {
		return AckLifecycle
	}
	return PhaseLifecycle
}

// Valid returns true if the status is part of the lifecycle
func (l Lifecycle) Valid(s Status) bool {
	s = s.normalize()
	for from, edges := range l {
		if from == s {
			return true
		}
		for _, to := range edges {
			if to == s {
				return true
			}
		}
	}
	return false
}

// CanTransition returns true if from may be replaced by to; rewriting the
// same status is always permitted
func (l Lifecycle) CanTransition(from, to Status) bool {
	from = from.normalize()
	to = to.normalize()
	if !l.Valid(from) || !l.Valid(to) {
		return false
	}
	if from == to {
		return true
	}

	for _, candidate := range l[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transition is possible from the status
func (s Status) IsTerminal() bool {
	switch s.normalize() {
	case StatusCreated, StatusPending:
		return false
	}
	return true
}

// Valid returns true if the status is known
func (s Status) Valid() bool {
	switch s.normalize() {
	case StatusCreated, StatusPending, StatusConfirmed, StatusFail, StatusSuccess:
		return true
	}
	return false
}

// an unset status is treated as created
func (s Status) normalize() Status {
	if s == "" {
		return StatusCreated
	}
	return s
}
