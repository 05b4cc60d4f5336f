package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

// Fingerprint hashes the raw cells of rows in order. Any edit to an in-range
// row, or a row entering or leaving the range, changes it.
func Fingerprint(rows []*domain.ScheduleRow) string {
	h := sha256.New()
	for _, r := range rows {
		h.Write([]byte(r.ID.Sheet))
		h.Write([]byte{0x1f})
		h.Write([]byte(strings.Join(r.Cells, "\x1f")))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
