package shared

import (
	"fmt"
	"math/rand"
	"time"
)

// GenerateNumber builds a human-readable document number for
// non-amendment documents: prefix, a slice of the unix-milli timestamp
// and a short random suffix. Amendment numbers are derived from the
// root number instead (see docflow.AmendedNumber).
func GenerateNumber(prefix string) string {
	ts := time.Now().UnixMilli() % 100000000
	return fmt.Sprintf("%s-%08d-%03d", prefix, ts, rand.Intn(1000))
}
