package ingress

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// DeriveUUID deterministically derives a player UUID from a username when the
// client's LoginHello omits one (spec.md §4.2 "Login": "derive
// deterministically from username by a stable hash"). Two independent
// xxhash digests (the username, and the username with a fixed domain
// separator appended) are concatenated into the 16 UUID bytes so the two
// halves are not trivially correlated, then RFC 4122 version/variant bits
// are set to mark the result as a derived, non-random identifier.
func DeriveUUID(username string) uuid.UUID {
	h1 := xxhash.Sum64String(username)
	h2 := xxhash.Sum64String(username + "\x00offline-uuid")

	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], h1)
	binary.BigEndian.PutUint64(b[8:16], h2)

	b[6] = (b[6] & 0x0f) | 0x30 // version 3 (name-based, by convention here)
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant

	id, _ := uuid.FromBytes(b[:])
	return id
}
