package coordinator

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRoomID returns a fresh 64-bit random room identifier in hex. Collisions
// across independently created rooms are negligible at this size.
func NewRoomID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
