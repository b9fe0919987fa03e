package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// NewProcessID builds a unique identifier based on hostname, pid, and random suffix.
func NewProcessID(role string) string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = role
	}
	return fmt.Sprintf("%s:%s:%d:%s", role, hostname, os.Getpid(), randomHex(6))
}

func newVisitorID() string {
	return uuid.NewString()
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(i + 1)
		}
	}
	return hex.EncodeToString(b)
}
