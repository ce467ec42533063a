package identity

import (
	"crypto/rand"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
)

// cryptoRandom reads the platform CSPRNG and hex-encodes the result.
type cryptoRandom struct{}

// CryptoRandom returns the default RandomSource.
func CryptoRandom() RandomSource { return cryptoRandom{} }

func (cryptoRandom) Token(size int) (string, error) {
	if size <= 0 {
		return "", nil
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random source")
	}

	return hex.EncodeToString(buf), nil
}

var _ RandomSource = cryptoRandom{}
