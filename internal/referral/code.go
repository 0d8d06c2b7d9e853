package referral

import (
	"crypto/rand"
	"math/big"
)

// CodeLength is the fixed length of referral codes stored on users.
const CodeLength = 8

const codeCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode creates a random alphanumeric code of the given length using
// a cryptographically secure source. Uniqueness is probabilistic; callers
// rely on the unique index on users.referral_code and retry on collision.
func GenerateCode(length int) string {
	result := make([]byte, length)
	for i := range result {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		result[i] = codeCharset[n.Int64()]
	}
	return string(result)
}
