package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// GenerateBidCardNumber produces the short human-readable bid card code.
func GenerateBidCardNumber() string {
	return "BC-" + strings.ToUpper(uuid.NewString()[:8])
}

// RateLimitKey creates a unique key for rate limiting message sends.
func RateLimitKey(senderType string, senderID uint, path string) string {
	return fmt.Sprintf("rl:%s:%d:%s", senderType, senderID, path)
}
