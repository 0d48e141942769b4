package schedule

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ETag fingerprints a schedule list for conditional GETs. The value is
// quoted, ready for the ETag header.
func ETag(schedules []Schedule) (string, error) {
	body, err := json.Marshal(schedules)
	if err != nil {
		return "", fmt.Errorf("encoding schedules: %w", err)
	}
	sum := md5.Sum(body) //nolint:gosec // see import
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}
