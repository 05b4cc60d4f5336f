// Package conflict escalates verdicts of different rows that add and remove
// the same member of the same asset group in the same hour.
//
// Buckets are built from what the schedule asks for, not from what the live
// catalog allows: against any state one side of such a pair fails its
// existence check, so a verdict that reached group resolution takes part
// even when it is already ERROR.
package conflict

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/logging"
)

// Message is set on every escalated verdict
const Message = "ADD and REMOVE scheduled for same hour (across rows)"

type bucket struct {
	adds     map[domain.RowID]bool
	removes  map[domain.RowID]bool
	verdicts map[domain.OpID]*domain.Verdict
}

func newBucket() *bucket {
	return &bucket{
		adds:     make(map[domain.RowID]bool),
		removes:  make(map[domain.RowID]bool),
		verdicts: make(map[domain.OpID]*domain.Verdict),
	}
}

// conflicting reports whether the rows adding differ from the rows removing.
// A row that does both in the same hour is a self-conflict and handled earlier.
func (b *bucket) conflicting() bool {
	if len(b.adds) == 0 || len(b.removes) == 0 {
		return false
	}
	for id := range b.adds {
		if !b.removes[id] {
			return true
		}
	}
	for id := range b.removes {
		if !b.adds[id] {
			return true
		}
	}
	return false
}

// Detect groups targeted verdicts by ConflictKey and escalates every
// participant of a conflicting group to ERROR. Verdicts are relabelled in
// place, by OpID; earlier errors stay in the message after the conflict.
// It returns the number of conflicting groups.
func Detect(verdicts []*domain.Verdict, log *logrus.Entry) int {
	log = logging.OrNop(log).WithField("component", "conflict")

	buckets := make(map[domain.ConflictKey]*bucket)
	var order []domain.ConflictKey
	for _, v := range verdicts {
		if !v.Status.Executable() && !v.Targeted() {
			continue
		}
		for _, a := range []domain.Action{domain.ActionAdd, domain.ActionRemove} {
			for _, slot := range v.Slots(a) {
				key := domain.ConflictKey{
					Campaign:   v.Campaign,
					AssetGroup: v.AssetGroup,
					MemberType: v.MemberType,
					Member:     v.Member,
					Date:       slot.Date,
					Hour:       slot.Hour,
				}
				b, ok := buckets[key]
				if !ok {
					b = newBucket()
					buckets[key] = b
					order = append(order, key)
				}
				if a == domain.ActionAdd {
					b.adds[v.Row] = true
				} else {
					b.removes[v.Row] = true
				}
				b.verdicts[v.ID] = v
			}
		}
	}

	escalate := make(map[domain.OpID]*domain.Verdict)
	conflicts := 0
	for _, key := range order {
		b := buckets[key]
		if !b.conflicting() {
			continue
		}
		conflicts++
		log.WithFields(logrus.Fields{
			"campaign":    key.Campaign,
			"asset_group": key.AssetGroup,
			"member":      key.Member,
			"date":        key.Date,
			"hour":        key.Hour,
			"verdicts":    len(b.verdicts),
		}).Warn("ADD/REMOVE conflict across rows")
		for id, v := range b.verdicts {
			escalate[id] = v
		}
	}

	ids := make([]domain.OpID, 0, len(escalate))
	for id := range escalate {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		v := escalate[id]
		if v.Status == domain.StatusError && v.Message != "" && !strings.HasPrefix(v.Message, Message) {
			v.Message = Message + "; " + v.Message
		} else {
			v.Message = Message
		}
		v.Status = domain.StatusError
	}
	return conflicts
}

// Executable filters operations whose verdict is still OK or WARNING
func Executable(ops []*domain.Operation, verdicts []*domain.Verdict) []*domain.Operation {
	status := make(map[domain.OpID]domain.Status, len(verdicts))
	for _, v := range verdicts {
		status[v.ID] = v.Status
	}
	var out []*domain.Operation
	for _, op := range ops {
		if status[op.VerdictID].Executable() {
			out = append(out, op)
		}
	}
	return out
}
