package auth

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strconv"
)

// One-time codes are drawn from [CodeMin, CodeMax]; 0000-0999 are never issued.
const (
	CodeMin = 1000
	CodeMax = 9999
)

// GenerateCode returns a uniformly random 4-digit code.
func GenerateCode() (string, error) {
	return generateCode(rand.Reader)
}

func generateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(CodeMax-CodeMin+1))
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return strconv.FormatInt(n.Int64()+CodeMin, 10), nil
}
