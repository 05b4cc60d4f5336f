// Package executor applies link and unlink operations to the campaign
// platform, one at a time, with pacing between writes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/logging"
	"github.com/hochfrequenz/asset-scheduler/internal/retry"
)

// DryRunMessage is reported for operations skipped in dry-run mode
const DryRunMessage = "Dry run (not executed)"

var (
	// platform-side rejection caused by a concurrent write
	racePattern = regexp.MustCompile(`Another task is also trying to change|CONCURRENT_MODIFICATION`)
	// call failures worth retrying
	transientPattern = regexp.MustCompile(`RESOURCE_EXHAUSTED|INTERNAL|DEADLINE_EXCEEDED`)
)

// Retryable classifies mutation errors: result errors retry on races, call
// errors on transient service failures
func Retryable(err error) bool {
	var mErr *catalog.MutationError
	if errors.As(err, &mErr) {
		return racePattern.MatchString(mErr.Message)
	}
	return transientPattern.MatchString(err.Error())
}

// MutationPolicy returns the retry policy for writes: 3 attempts, 1s doubling
func MutationPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Backoff:     retry.Exponential(time.Second),
		Retryable:   Retryable,
	}
}

// OutcomeCallback is called after every executed operation
type OutcomeCallback func(o *domain.Outcome)

// Config tunes an Executor
type Config struct {
	DryRun bool
	// Pacing is waited between two operations, plus a random Jitter.
	Pacing time.Duration
	Jitter time.Duration
	Retry  retry.Policy
	// Stamp formats the outcome timestamp.
	Stamp func() string
	// Sleep waits between operations; nil uses retry.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig paces writes at 750ms plus up to 250ms
func DefaultConfig() Config {
	return Config{
		Pacing: 750 * time.Millisecond,
		Jitter: 250 * time.Millisecond,
		Retry:  MutationPolicy(),
	}
}

// Executor runs operations against a platform
type Executor struct {
	platform catalog.Platform
	cfg      Config
	log      *logrus.Entry
	rnd      *rand.Rand

	// text -> asset resource, filled once per run
	textAssets map[string]string

	OnOutcome OutcomeCallback
}

// New returns an executor
func New(p catalog.Platform, cfg Config, log *logrus.Entry) *Executor {
	if cfg.Stamp == nil {
		cfg.Stamp = func() string { return time.Now().Format("2006-01-02 15:04:05") }
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Sleep
	}
	return &Executor{
		platform:   p,
		cfg:        cfg,
		log:        logging.OrNop(log).WithField("component", "executor"),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		textAssets: make(map[string]string),
	}
}

// Execute runs every operation in order and returns one outcome per
// operation. It never stops early on a failed operation; a cancelled
// context fails the remaining ones.
func (e *Executor) Execute(ctx context.Context, ops []*domain.Operation) []*domain.Outcome {
	outcomes := make([]*domain.Outcome, 0, len(ops))
	for i, op := range ops {
		if i > 0 && !e.cfg.DryRun {
			if err := e.cfg.Sleep(ctx, e.cfg.Pacing+retry.Jitter(e.rnd, e.cfg.Jitter)); err != nil {
				e.log.WithError(err).Warn("Execution interrupted")
			}
		}
		o := e.ExecuteOne(ctx, op)
		outcomes = append(outcomes, o)
		if e.OnOutcome != nil {
			e.OnOutcome(o)
		}
	}
	return outcomes
}

// ExecuteOne runs a single operation
func (e *Executor) ExecuteOne(ctx context.Context, op *domain.Operation) *domain.Outcome {
	o := &domain.Outcome{Operation: *op, Timestamp: e.cfg.Stamp()}
	log := e.log.WithFields(logrus.Fields{
		"row":         op.Row.String(),
		"campaign":    op.Campaign,
		"asset_group": op.AssetGroup,
		"action":      op.Action,
		"member":      op.Member,
	})

	if e.cfg.DryRun {
		o.Status = domain.StatusSuccess
		o.Message = DryRunMessage
		log.Info("Dry run, skipped")
		return o
	}
	if err := ctx.Err(); err != nil {
		return fail(o, err)
	}

	m, err := e.mutation(ctx, op)
	if err != nil {
		log.WithError(err).Error("Operation not executable")
		return fail(o, err)
	}

	attempts, err := e.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		_, err := e.platform.Mutate(ctx, m)
		if err != nil && Retryable(err) {
			log.WithError(err).WithField("attempt", attempt).Warn("Retryable mutation failure")
		}
		return err
	})
	o.Attempts = attempts
	if err != nil {
		log.WithError(err).WithField("attempts", attempts).Error("Mutation failed")
		return fail(o, err)
	}
	o.Status = domain.StatusSuccess
	o.Message = fmt.Sprintf("Executed (attempt %d)", attempts)
	log.WithField("attempts", attempts).Info("Executed")
	return o
}

// mutation builds the platform write for an operation
func (e *Executor) mutation(ctx context.Context, op *domain.Operation) (catalog.Mutation, error) {
	switch op.Action {
	case domain.ActionAdd:
		asset := op.AssetResource
		if op.Kind == domain.KindText {
			res, err := e.textAsset(ctx, op.Member)
			if err != nil {
				return catalog.Mutation{}, err
			}
			asset = res
		}
		if asset == "" {
			return catalog.Mutation{}, &catalog.MutationError{Message: "no asset to link"}
		}
		return catalog.Mutation{
			Kind:          catalog.LinkAsset,
			GroupResource: op.GroupResource,
			AssetResource: asset,
			FieldType:     op.FieldType,
		}, nil
	case domain.ActionRemove:
		if op.LinkResource == "" {
			return catalog.Mutation{}, &catalog.MutationError{Message: "asset link not found in the asset group"}
		}
		return catalog.Mutation{Kind: catalog.UnlinkAsset, LinkResource: op.LinkResource}, nil
	}
	return catalog.Mutation{}, fmt.Errorf("unsupported action %q", op.Action)
}

// textAsset finds or creates the asset of a text, once per text per run
func (e *Executor) textAsset(ctx context.Context, text string) (string, error) {
	if res, ok := e.textAssets[text]; ok {
		return res, nil
	}

	var res string
	find := catalog.QueryPolicy()
	find.Sleep = e.cfg.Retry.Sleep
	_, err := find.Do(ctx, func(ctx context.Context, _ int) (err error) {
		res, err = e.platform.FindTextAsset(ctx, text)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("find text asset: %w", err)
	}
	if res == "" {
		_, err = e.cfg.Retry.Do(ctx, func(ctx context.Context, _ int) (err error) {
			res, err = e.platform.Mutate(ctx, catalog.Mutation{Kind: catalog.CreateTextAsset, Text: text})
			return err
		})
		if err != nil {
			return "", fmt.Errorf("create text asset: %w", err)
		}
		e.log.WithField("asset", res).Debug("Text asset created")
	}
	e.textAssets[text] = res
	return res, nil
}

// fail marks an outcome as ERROR. Platform rejections read "Error: ...",
// anything else "Exception: ...".
func fail(o *domain.Outcome, err error) *domain.Outcome {
	o.Status = domain.StatusError
	var mErr *catalog.MutationError
	if errors.As(err, &mErr) {
		o.Message = "Error: " + mErr.Message
	} else {
		o.Message = "Exception: " + err.Error()
	}
	return o
}
