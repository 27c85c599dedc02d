package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// ActivationLockKey guards mutations of the active-model configuration.
func ActivationLockKey() string {
	return "lock:activation"
}

func DiagnosisKey(id uuid.UUID) string {
	return fmt.Sprintf("diagnosis:%s", id)
}
