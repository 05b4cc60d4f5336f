package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog"
	"github.com/hochfrequenz/asset-scheduler/internal/catalog/catalogtest"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newLoader(p catalog.Platform) *catalog.Loader {
	l := catalog.NewLoader(p, nil)
	l.Retry.Sleep = noSleep
	return l
}

func TestLoad_ExcludesPlaceholderGroups(t *testing.T) {
	fake := catalogtest.New()
	cid := fake.AddCampaign("Summer")
	real := fake.AddGroup(cid, "Shoes")
	fake.AddTexts(real, "HEADLINE", 3)
	feed := fake.AddGroup(cid, "Feed Only")

	snap, err := newLoader(fake).Load(context.Background(), catalog.Request{
		Campaigns:  []string{"Summer", "Missing"},
		FieldTypes: []string{"HEADLINE", "DESCRIPTION"},
	})
	require.NoError(t, err)

	id, ok := snap.CampaignID("Summer")
	require.True(t, ok)
	_, ok = snap.CampaignID("Missing")
	assert.False(t, ok)

	all := snap.TargetGroups(id, "")
	require.Len(t, all, 1)
	assert.Equal(t, "Shoes", all[0].Name)

	assert.Len(t, snap.TargetGroups(id, "  shoes "), 1)
	assert.Empty(t, snap.TargetGroups(id, "Feed Only"))
	assert.Equal(t, 3, snap.CountLinks(real, "HEADLINE"))

	g, ok := snap.GroupByName("Summer", "feed only")
	assert.True(t, ok, "placeholders stay resolvable by name")
	assert.Equal(t, "Feed Only", g.Name)
	assert.True(t, snap.IsPlaceholder(feed))
	assert.False(t, snap.IsPlaceholder(real))
}

func TestLoad_ChunksInLists(t *testing.T) {
	fake := catalogtest.New()
	var names []string
	for i := 0; i < 7; i++ {
		name := fmt.Sprintf("C%d", i)
		fake.AddCampaign(name)
		names = append(names, name)
	}

	l := newLoader(fake)
	l.ChunkSize = 3
	snap, err := l.Load(context.Background(), catalog.Request{Campaigns: names})
	require.NoError(t, err)

	assert.Len(t, snap.Campaigns(), 7)
	assert.Equal(t, 3, fake.Queries["campaigns"])
	assert.LessOrEqual(t, fake.MaxInList, 3)
}

func TestLoad_RetriesTransientQueries(t *testing.T) {
	fake := catalogtest.New()
	fake.AddCampaign("Summer")
	fake.QueryErrs = []error{errors.New("RESOURCE_EXHAUSTED: quota"), errors.New("backend temporarily unavailable")}

	snap, err := newLoader(fake).Load(context.Background(), catalog.Request{Campaigns: []string{"Summer"}})
	require.NoError(t, err)
	_, ok := snap.CampaignID("Summer")
	assert.True(t, ok)
	assert.Equal(t, 3, fake.Queries["campaigns"])
}

func TestLoad_FailsOnPermanentError(t *testing.T) {
	fake := catalogtest.New()
	fake.AddCampaign("Summer")
	fake.QueryErrs = []error{errors.New("PERMISSION_DENIED")}

	_, err := newLoader(fake).Load(context.Background(), catalog.Request{Campaigns: []string{"Summer"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERMISSION_DENIED")
	assert.Equal(t, 1, fake.Queries["campaigns"])
}

func TestLoad_AssetDetails(t *testing.T) {
	fake := catalogtest.New()
	fake.AddCampaign("Summer")
	fake.AddImage("123", 1200, 628)

	snap, err := newLoader(fake).Load(context.Background(), catalog.Request{
		Campaigns: []string{"Summer"},
		AssetIDs:  []string{"123", "999", "123"},
	})
	require.NoError(t, err)

	a, ok := snap.Asset("123")
	require.True(t, ok)
	assert.Equal(t, catalog.AssetTypeImage, a.Type)
	_, ok = snap.Asset("999")
	assert.False(t, ok)
}
