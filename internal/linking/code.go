package linking

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// CodeLength is the number of characters in a link code. Each character carries
// 5 bits, so a code has 30 bits of entropy.
const CodeLength = 6

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUV"

// GenerateCode creates a random base-32 link code
func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// NormalizeCode cleans up a code typed by a user
func NormalizeCode(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

// ValidCode reports whether code could have been produced by GenerateCode
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
