// Package catalogtest provides an in-memory campaign platform for tests.
package catalogtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog"
)

// Fake is an in-memory catalog.Platform. Link and unlink mutations change
// its state, so post-write reads observe them unless HideWrites is set.
type Fake struct {
	mu sync.Mutex

	campaigns []catalog.Campaign
	groups    []catalog.AssetGroup
	links     []catalog.Link
	assets    map[string]catalog.Asset
	texts     map[string]string // text -> asset resource
	seq       int

	// HideWrites keeps mutations from becoming visible to reads.
	HideWrites bool
	// QueryErrs are returned, in order, by the next read calls.
	QueryErrs []error
	// MutateErrs are returned, in order, by the next Mutate calls.
	MutateErrs []error

	Mutations []catalog.Mutation
	Queries   map[string]int
	// MaxInList records the longest IN-list seen by any read call.
	MaxInList int
}

var _ catalog.Platform = (*Fake)(nil)

// New returns an empty fake
func New() *Fake {
	return &Fake{
		assets:  make(map[string]catalog.Asset),
		texts:   make(map[string]string),
		Queries: make(map[string]int),
	}
}

// AddCampaign registers a campaign and returns its id
func (f *Fake) AddCampaign(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("%d", 1000+len(f.campaigns))
	f.campaigns = append(f.campaigns, catalog.Campaign{ID: id, Name: name})
	return id
}

// AddGroup registers an enabled asset group and returns its resource
func (f *Fake) AddGroup(campaignID, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := fmt.Sprintf("customers/1/assetGroups/%d", 2000+len(f.groups))
	f.groups = append(f.groups, catalog.AssetGroup{Resource: res, Name: name, CampaignID: campaignID, Status: "ENABLED"})
	return res
}

// AddText links a text asset to a group
func (f *Fake) AddText(groupResource, fieldType, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	asset := f.textAssetLocked(text)
	f.linkLocked(groupResource, asset, fieldType, text)
}

// AddTexts links n generated texts of a field type
func (f *Fake) AddTexts(groupResource, fieldType string, n int) {
	for i := 0; i < n; i++ {
		f.AddText(groupResource, fieldType, fmt.Sprintf("%s %d", strings.ToLower(fieldType), i+1))
	}
}

// AddImage registers an image asset in the library
func (f *Fake) AddImage(id string, width, height int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[id] = catalog.Asset{ID: id, Resource: "customers/1/assets/" + id, Type: catalog.AssetTypeImage, Width: width, Height: height}
}

// AddAsset registers an arbitrary library asset
func (f *Fake) AddAsset(a catalog.Asset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[a.ID] = a
}

// LinkImage links a registered image asset to a group
func (f *Fake) LinkImage(groupResource, id, fieldType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkLocked(groupResource, "customers/1/assets/"+id, fieldType, "")
}

// Links returns the current links of a group
func (f *Fake) Links(groupResource string) []catalog.Link {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.Link
	for _, l := range f.links {
		if l.GroupResource == groupResource {
			out = append(out, l)
		}
	}
	return out
}

// MutationCount returns how many writes were attempted
func (f *Fake) MutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Mutations)
}

func (f *Fake) textAssetLocked(text string) string {
	if res, ok := f.texts[text]; ok {
		return res
	}
	f.seq++
	res := fmt.Sprintf("customers/1/assets/%d", 9000+f.seq)
	f.texts[text] = res
	return res
}

func (f *Fake) linkLocked(groupResource, assetResource, fieldType, text string) string {
	id := assetResource[strings.LastIndex(assetResource, "/")+1:]
	res := fmt.Sprintf("customers/1/assetGroupAssets/%s~%s~%s", groupResource[strings.LastIndex(groupResource, "/")+1:], id, fieldType)
	f.links = append(f.links, catalog.Link{
		Resource:      res,
		GroupResource: groupResource,
		AssetResource: assetResource,
		AssetID:       id,
		FieldType:     fieldType,
		Text:          text,
	})
	return res
}

func (f *Fake) read(call string, inList int) error {
	f.Queries[call]++
	if inList > f.MaxInList {
		f.MaxInList = inList
	}
	if len(f.QueryErrs) > 0 {
		err := f.QueryErrs[0]
		f.QueryErrs = f.QueryErrs[1:]
		return err
	}
	return nil
}

// LookupCampaigns implements catalog.Platform
func (f *Fake) LookupCampaigns(_ context.Context, names []string) ([]catalog.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("campaigns", len(names)); err != nil {
		return nil, err
	}
	var out []catalog.Campaign
	for _, c := range f.campaigns {
		for _, n := range names {
			if c.Name == n {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// ListAssetGroups implements catalog.Platform
func (f *Fake) ListAssetGroups(_ context.Context, campaignIDs []string) ([]catalog.AssetGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("groups", len(campaignIDs)); err != nil {
		return nil, err
	}
	var out []catalog.AssetGroup
	for _, g := range f.groups {
		for _, id := range campaignIDs {
			if g.CampaignID == id && g.Status == "ENABLED" {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

// ListLinks implements catalog.Platform
func (f *Fake) ListLinks(_ context.Context, groupResources []string, fieldTypes []string) ([]catalog.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("links", len(groupResources)); err != nil {
		return nil, err
	}
	var out []catalog.Link
	for _, l := range f.links {
		if has(groupResources, l.GroupResource) && has(fieldTypes, l.FieldType) {
			out = append(out, l)
		}
	}
	return out, nil
}

// AssetDetails implements catalog.Platform
func (f *Fake) AssetDetails(_ context.Context, ids []string) ([]catalog.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("assets", len(ids)); err != nil {
		return nil, err
	}
	var out []catalog.Asset
	for _, id := range ids {
		if a, ok := f.assets[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// FindTextAsset implements catalog.Platform
func (f *Fake) FindTextAsset(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.read("findText", 1); err != nil {
		return "", err
	}
	return f.texts[text], nil
}

// Mutate implements catalog.Platform
func (f *Fake) Mutate(_ context.Context, m catalog.Mutation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Mutations = append(f.Mutations, m)
	if len(f.MutateErrs) > 0 {
		err := f.MutateErrs[0]
		f.MutateErrs = f.MutateErrs[1:]
		if err != nil {
			return "", err
		}
	}

	switch m.Kind {
	case catalog.CreateTextAsset:
		return f.textAssetLocked(m.Text), nil
	case catalog.LinkAsset:
		if f.HideWrites {
			return "pending", nil
		}
		text := ""
		for t, res := range f.texts {
			if res == m.AssetResource {
				text = t
			}
		}
		return f.linkLocked(m.GroupResource, m.AssetResource, m.FieldType, text), nil
	case catalog.UnlinkAsset:
		if f.HideWrites {
			return m.LinkResource, nil
		}
		for i, l := range f.links {
			if l.Resource == m.LinkResource {
				f.links = append(f.links[:i], f.links[i+1:]...)
				return m.LinkResource, nil
			}
		}
		return "", &catalog.MutationError{Message: "RESOURCE_NOT_FOUND: " + m.LinkResource}
	}
	return "", &catalog.MutationError{Message: "unknown mutation " + string(m.Kind)}
}

func has(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
