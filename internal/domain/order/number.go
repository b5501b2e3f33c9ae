package order

import (
	"crypto/rand"
	"fmt"
	"time"
)

// numberAlphabet excludes characters that are easy to misread over the
// phone (I, L, O, U and their lowercase forms).
const (
	numberAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	numberSuffix   = 8
	numberPrefix   = "PN"
)

// NewNumber generates a candidate order number like PN-20260829-7F3K9QRT.
// Uniqueness is enforced by the store; callers retry with a fresh
// candidate on collision.
func NewNumber(now time.Time) string {
	buf := make([]byte, numberSuffix)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in no state to serve.
		panic(fmt.Sprintf("order number entropy: %v", err))
	}
	for i, b := range buf {
		buf[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", numberPrefix, now.Format("20060102"), buf)
}
