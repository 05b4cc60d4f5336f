// Package verify re-reads the platform after execution to confirm that
// every successful write is visible.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/logging"
	"github.com/hochfrequenz/asset-scheduler/internal/retry"
	"github.com/hochfrequenz/asset-scheduler/internal/validator"
)

// Messages
const (
	VerifiedSuffix = " [Verified ✓]"
	MsgFailed      = "Post-verify FAILED"
)

var errNotVisible = errors.New("change not visible yet")

// Policy returns the verification policy: 500ms before the first read, then
// up to four more reads 1s apart
func Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		Backoff:      retry.Constant(time.Second),
	}
}

// Verifier confirms executed operations. Reads go through the loader, so
// transient platform errors are retried there before a poll counts as failed.
type Verifier struct {
	loader *catalog.Loader
	snap   *catalog.Snapshot
	policy retry.Policy
	log    *logrus.Entry
}

// New returns a verifier resolving groups through snap
func New(loader *catalog.Loader, snap *catalog.Snapshot, policy retry.Policy, log *logrus.Entry) *Verifier {
	return &Verifier{
		loader: loader,
		snap:   snap,
		policy: policy,
		log:    logging.OrNop(log).WithField("component", "verify"),
	}
}

// Verify returns the outcomes with SUCCESS either confirmed or turned into
// ERROR. Other outcomes pass through unchanged.
func (v *Verifier) Verify(ctx context.Context, outcomes []*domain.Outcome) []*domain.Outcome {
	out := make([]*domain.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status != domain.StatusSuccess {
			out = append(out, o)
			continue
		}
		out = append(out, v.verifyOne(ctx, o))
	}
	return out
}

func (v *Verifier) verifyOne(ctx context.Context, o *domain.Outcome) *domain.Outcome {
	res := *o
	log := v.log.WithFields(logrus.Fields{
		"campaign":    o.Campaign,
		"asset_group": o.AssetGroup,
		"member":      o.Member,
		"action":      o.Action,
	})

	group, ok := v.snap.GroupByName(o.Campaign, o.AssetGroup)
	if !ok {
		res.Status = domain.StatusError
		res.Message = fmt.Sprintf("Post-verify: asset group not found (%s / %s)", o.Campaign, o.AssetGroup)
		log.Error("Asset group not found for verification")
		return &res
	}

	attempts, err := v.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		present, err := v.present(ctx, group.Resource, o)
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("Verification read failed")
			return err
		}
		if present != (o.Action == domain.ActionAdd) {
			return errNotVisible
		}
		return nil
	})
	if err != nil {
		res.Status = domain.StatusError
		res.Message = MsgFailed
		log.WithField("attempts", attempts).Error("Post-verify failed")
		return &res
	}
	res.Message = o.Message + VerifiedSuffix
	log.WithField("attempts", attempts).Debug("Verified")
	return &res
}

// present reads the group's current links and looks for the member
func (v *Verifier) present(ctx context.Context, groupResource string, o *domain.Outcome) (bool, error) {
	if o.Kind == domain.KindText {
		links, err := v.loader.ReloadLinks(ctx, groupResource, []string{o.FieldType})
		if err != nil {
			return false, err
		}
		for _, l := range links {
			if l.FieldType == o.FieldType && strings.TrimSpace(l.Text) == strings.TrimSpace(o.Member) {
				return true, nil
			}
		}
		return false, nil
	}

	links, err := v.loader.ReloadLinks(ctx, groupResource, validator.ImageFieldTypes())
	if err != nil {
		return false, err
	}
	for _, l := range links {
		if l.AssetID == o.Member {
			return true, nil
		}
	}
	return false, nil
}
