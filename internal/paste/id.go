package paste

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength   = 8
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// newID returns a random alphanumeric identifier
func newID() (string, error) {
	n := big.NewInt(int64(len(idAlphabet)))
	b := make([]byte, idLength)
	for i := range b {
		r, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		b[i] = idAlphabet[r.Int64()]
	}
	return string(b), nil
}

func validSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}
