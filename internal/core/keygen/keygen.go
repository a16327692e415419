// Package keygen produces the random printable strings used for match keys,
// player credentials, access keys and session cookies.
package keygen

import (
	"crypto/rand"
	"math/big"
)

const (
	urlSafeAlphabet = "-.0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	fullAlphabet    = urlSafeAlphabet + "/"
)

// String returns a random string of length n. URL-safe strings never contain
// '/', '&' or '#'.
func String(n int, urlSafe bool) string {
	alphabet := fullAlphabet
	if urlSafe {
		alphabet = urlSafeAlphabet
	}

	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken.
			panic("keygen: reading random bytes: " + err.Error())
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}
