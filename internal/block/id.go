package block

import "github.com/google/uuid"

// newID generates a UUIDv7. V7 ids are time-ordered, which keeps block ids
// roughly insertion-ordered on disk. Falls back to a random v4 if the clock
// source fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
