package order

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

const (
	numberPrefix   = "HN-"
	numberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	numberAttempts = 5
)

// RandomCode returns n characters drawn from A-Z0-9.
func RandomCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(numberAlphabet)))
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err) // crypto/rand does not fail on supported platforms
		}
		b[i] = numberAlphabet[v.Int64()]
	}
	return string(b)
}

// NewNumber formats HN-YYYYMMDD-XXXXXX.
func NewNumber(now time.Time) string {
	return numberPrefix + now.Format("20060102") + "-" + RandomCode(6)
}

func uniqueNumber(ctx context.Context, tx Tx, now time.Time) (string, error) {
	for i := 0; i < numberAttempts; i++ {
		n := NewNumber(now)
		exists, err := tx.OrderNumberExists(ctx, n)
		if err != nil {
			return "", err
		}
		if !exists {
			return n, nil
		}
	}
	return "", errors.New("could not generate a unique order number")
}
