package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"visitorinsights/internal/displayforce"
)

// FallbackID builds a deterministic identifier for an event that carries no
// id of its own. It hashes the timestamp, device, sex and age, so the same
// detection fetched twice maps to the same id.
func FallbackID(v displayforce.Visitor) string {
	parts := []string{
		v.RawTimestamp(),
		v.DeviceID(),
		v.StoreName.String(),
		v.Gender(),
		strings.TrimSpace(v.Age.String()),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "anon-" + hex.EncodeToString(hash[:16])
}
