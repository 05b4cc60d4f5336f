package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/logging"
	"github.com/hochfrequenz/asset-scheduler/internal/retry"
)

// DefaultChunkSize bounds the length of every IN-list sent to the platform
const DefaultChunkSize = 200

var transientQuery = regexp.MustCompile(`RESOURCE_EXHAUSTED|INTERNAL|BACKEND_ERROR|DEADLINE_EXCEEDED|temporarily|rate limit`)

// QueryPolicy returns the retry policy used for read calls
func QueryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		Backoff:     retry.Exponential(time.Second),
		Retryable:   retry.MatchMessage(transientQuery),
	}
}

// Request names what a snapshot must cover
type Request struct {
	Campaigns  []string
	FieldTypes []string
	AssetIDs   []string
}

// Loader builds snapshots from a Platform
type Loader struct {
	Platform  Platform
	ChunkSize int
	Retry     retry.Policy
	Log       *logrus.Entry
}

// NewLoader returns a loader with default chunking and query retry
func NewLoader(p Platform, log *logrus.Entry) *Loader {
	return &Loader{
		Platform:  p,
		ChunkSize: DefaultChunkSize,
		Retry:     QueryPolicy(),
		Log:       logging.OrNop(log).WithField("component", "catalog"),
	}
}

// Load queries campaigns, their asset groups, the groups' links and the
// requested asset details. Campaigns that do not exist are simply absent.
func (l *Loader) Load(ctx context.Context, req Request) (*Snapshot, error) {
	snap := newSnapshot()
	names := unique(req.Campaigns)
	if len(names) == 0 {
		return snap, nil
	}

	err := forChunks(names, l.chunkSize(), func(chunk []string) error {
		var campaigns []Campaign
		err := l.query(ctx, "lookup campaigns", func(ctx context.Context) (err error) {
			campaigns, err = l.Platform.LookupCampaigns(ctx, chunk)
			return err
		})
		for _, c := range campaigns {
			snap.campaigns[strings.TrimSpace(c.Name)] = c.ID
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(snap.campaigns))
	for _, id := range snap.campaigns {
		ids = append(ids, id)
	}
	var groupResources []string
	err = forChunks(unique(ids), l.chunkSize(), func(chunk []string) error {
		var groups []AssetGroup
		err := l.query(ctx, "list asset groups", func(ctx context.Context) (err error) {
			groups, err = l.Platform.ListAssetGroups(ctx, chunk)
			return err
		})
		for _, g := range groups {
			snap.groups[g.CampaignID] = append(snap.groups[g.CampaignID], g)
			groupResources = append(groupResources, g.Resource)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	fieldTypes := req.FieldTypes
	if !contains(fieldTypes, HeadlineField) {
		fieldTypes = append([]string{HeadlineField}, fieldTypes...)
	}
	err = forChunks(groupResources, l.chunkSize(), func(chunk []string) error {
		var links []Link
		err := l.query(ctx, "list links", func(ctx context.Context) (err error) {
			links, err = l.Platform.ListLinks(ctx, chunk, fieldTypes)
			return err
		})
		for _, link := range links {
			snap.links[link.GroupResource] = append(snap.links[link.GroupResource], link)
			if link.FieldType == HeadlineField {
				snap.headlines[link.GroupResource] = true
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	err = forChunks(unique(req.AssetIDs), l.chunkSize(), func(chunk []string) error {
		var assets []Asset
		err := l.query(ctx, "asset details", func(ctx context.Context) (err error) {
			assets, err = l.Platform.AssetDetails(ctx, chunk)
			return err
		})
		for _, a := range assets {
			snap.assets[a.ID] = a
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	c, g, n := snap.Stats()
	l.Log.WithFields(logrus.Fields{"campaigns": c, "groups": g, "links": n, "assets": len(snap.assets)}).Info("Snapshot loaded")
	return snap, nil
}

// ReloadLinks fetches the current links of one group, bypassing any snapshot
func (l *Loader) ReloadLinks(ctx context.Context, groupResource string, fieldTypes []string) ([]Link, error) {
	var links []Link
	err := l.query(ctx, "reload links", func(ctx context.Context) (err error) {
		links, err = l.Platform.ListLinks(ctx, []string{groupResource}, fieldTypes)
		return err
	})
	return links, err
}

func (l *Loader) query(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	attempts, err := l.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		err := fn(ctx)
		if err != nil && l.Retry.Retryable != nil && l.Retry.Retryable(err) {
			l.Log.WithError(err).WithField("attempt", attempt).Warnf("Transient error on %s", what)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%s (after %d attempts): %w", what, attempts, err)
	}
	return nil
}

func (l *Loader) chunkSize() int {
	if l.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return l.ChunkSize
}

// forChunks calls fn for consecutive slices of at most size items
func forChunks(items []string, size int, fn func([]string) error) error {
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		if err := fn(items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func unique(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
