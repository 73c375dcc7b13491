package chat

import "github.com/okian/finsight/internal/domain/model"

// ApplyTurn returns s with t appended. The input session is not modified.
// A user turn moves the session to Retrieving; an assistant turn ends the
// cycle at AwaitingInput; system turns leave the state alone.
func ApplyTurn(s model.Session, t model.Turn) model.Session {
	next := s
	next.Turns = make([]model.Turn, len(s.Turns), len(s.Turns)+1)
	copy(next.Turns, s.Turns)
	next.Turns = append(next.Turns, t)
	if t.At.After(next.UpdatedAt) {
		next.UpdatedAt = t.At
	}

	switch t.Role {
	case model.RoleUser:
		next.State = model.StateRetrieving
	case model.RoleAssistant:
		next.State = model.StateAwaitingInput
	}
	return next
}

// WithState returns s moved to state.
func WithState(s model.Session, state model.SessionState) model.Session {
	next := s
	next.Turns = append([]model.Turn(nil), s.Turns...)
	next.State = state
	return next
}
