package dope

import (
	"crypto/rand"
	"fmt"
)

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("dope: reading random bytes: %w", err)
	}
	return buf, nil
}
