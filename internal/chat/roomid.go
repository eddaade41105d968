package chat

import "strings"

// roomIDSep joins the parts of a derived room id. Identifiers
// containing the separator would collide; ValidateParticipantID rejects
// them at the bootstrap boundary so the derivation itself stays total.
const roomIDSep = "_"

// DeriveRoomID computes the stable identifier of the room shared by two
// participants, optionally scoped to a context id. The participant ids
// are sorted lexicographically before joining, so both sides of a
// conversation resolve to the same room regardless of argument order.
// Rooms with different context ids between the same pair are distinct.
//
// Pure and total: no I/O, no errors.
func DeriveRoomID(idA, idB, contextID string) string {
	lo, hi := idA, idB
	if hi < lo {
		lo, hi = hi, lo
	}
	id := lo + roomIDSep + hi
	if contextID != "" {
		id += roomIDSep + contextID
	}
	return id
}

// ValidateParticipantID reports whether an identifier is usable in a
// room id: non-empty and free of the separator character.
func ValidateParticipantID(id string) bool {
	return id != "" && !strings.Contains(id, roomIDSep)
}
