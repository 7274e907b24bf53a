package tool

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

func GenerateRandomUUID() string {
	return uuid.New().String()
}

// GenerateTaskID returns a short id for an upload task, easier to read in logs than a full UUID.
func GenerateTaskID() string {
	return strings.ReplaceAll(GenerateRandomUUID(), "-", "")[:12]
}

// GenerateCSRFToken returns a 64 hex char token for the X-CSRFToken header.
func GenerateCSRFToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return strings.ReplaceAll(GenerateRandomUUID(), "-", "") // fallback
	}
	return hex.EncodeToString(b)
}
