package job

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID generates a job identifier using ULID.
// ULIDs sort lexicographically by creation time, which keeps job history
// ordering cheap in both the database and log output.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
