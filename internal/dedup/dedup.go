// Package dedup drops operations that repeat an earlier one.
package dedup

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/logging"
)

// Dedup keeps the first operation of every DedupKey, in row order, and
// returns the survivors together with the number of dropped duplicates.
// This covers a row naming an asset group and an all-groups row resolving
// to the same group.
func Dedup(ops []*domain.Operation, log *logrus.Entry) ([]*domain.Operation, int) {
	log = logging.OrNop(log).WithField("component", "dedup")

	sorted := make([]*domain.Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Row.Less(sorted[j].Row)
	})

	seen := make(map[domain.DedupKey]domain.RowID, len(sorted))
	out := make([]*domain.Operation, 0, len(sorted))
	dropped := 0
	for _, op := range sorted {
		key := op.Key()
		if first, ok := seen[key]; ok {
			dropped++
			log.WithFields(logrus.Fields{
				"row":         op.Row.String(),
				"first_row":   first.String(),
				"asset_group": op.AssetGroup,
				"member":      op.Member,
				"action":      op.Action,
			}).Warn("Duplicate operation skipped")
			continue
		}
		seen[key] = op.Row
		out = append(out, op)
	}
	return out, dropped
}
