package models

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/productshot/tool"
)

// CSRFTokenTTL is how long an issued token stays valid without use.
var CSRFTokenTTL = 2 * time.Hour

var (
	csrfMu     sync.RWMutex
	csrfTokens = ttlworker.NewCache[string, bool](CSRFTokenTTL)
)

// IssueCSRFToken creates and remembers a new token.
func IssueCSRFToken() string {
	token := tool.GenerateCSRFToken()
	csrfMu.Lock()
	defer csrfMu.Unlock()
	csrfTokens.Set(token, true)
	return token
}

// IsValidCSRFToken reports whether token was issued and has not expired.
func IsValidCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	csrfMu.RLock()
	defer csrfMu.RUnlock()
	return csrfTokens.Get(token)
}

// RevokeCSRFToken forgets a token.
func RevokeCSRFToken(token string) {
	csrfMu.Lock()
	defer csrfMu.Unlock()
	csrfTokens.Delete(token)
}
