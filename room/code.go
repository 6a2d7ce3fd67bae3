package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	CodeLength = 4
	codeDigits = "0123456789"
	codeSpace  = 10000
)

// RandomCode returns a 4-digit room code. Collisions are the caller's problem.
func RandomCode() string {
	max := big.NewInt(int64(len(codeDigits)))
	buf := make([]byte, CodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			buf[i] = codeDigits[0]
			continue
		}
		buf[i] = codeDigits[n.Int64()]
	}
	return string(buf)
}

func formatCode(n int) string {
	return fmt.Sprintf("%0*d", CodeLength, n)
}

// ValidCode reports whether s looks like a room code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
