// Package otp issues the one-time passwords sent to users during login.
package otp

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	lowest  = 1000
	highest = 9999
)

// Generate returns a random one-time password. The value is drawn uniformly
// from [1000, 9999], so it is always exactly four digits.
func Generate() string {
	n, err := rand.Int(rand.Reader, big.NewInt(highest-lowest+1))
	if err != nil {
		// crypto/rand reads never fail on supported platforms
		panic(err)
	}
	return strconv.FormatInt(lowest+n.Int64(), 10)
}
