package catalog

import (
	"sort"
	"strings"
)

// HeadlineField is the field type whose presence marks a real asset group
const HeadlineField = "HEADLINE"

// Snapshot is the platform state a run validates against. It is built once
// per run and never mutated afterwards.
type Snapshot struct {
	campaigns map[string]string       // campaign name -> id
	groups    map[string][]AssetGroup // campaign id -> groups
	headlines map[string]bool         // group resource -> has advertiser headline
	links     map[string][]Link       // group resource -> links
	assets    map[string]Asset        // asset id -> details
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		campaigns: make(map[string]string),
		groups:    make(map[string][]AssetGroup),
		headlines: make(map[string]bool),
		links:     make(map[string][]Link),
		assets:    make(map[string]Asset),
	}
}

// NormalizeName trims and lower-cases an asset group name for matching
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CampaignID returns the id of a campaign by name
func (s *Snapshot) CampaignID(name string) (string, bool) {
	id, ok := s.campaigns[strings.TrimSpace(name)]
	return id, ok
}

// TargetGroups returns the non-placeholder asset groups of a campaign whose
// name matches groupName. An empty groupName matches every group.
func (s *Snapshot) TargetGroups(campaignID, groupName string) []AssetGroup {
	want := NormalizeName(groupName)
	var out []AssetGroup
	for _, g := range s.groups[campaignID] {
		if s.IsPlaceholder(g.Resource) {
			continue
		}
		if want != "" && NormalizeName(g.Name) != want {
			continue
		}
		out = append(out, g)
	}
	return out
}

// GroupByName resolves an asset group by campaign name and group name
func (s *Snapshot) GroupByName(campaign, group string) (AssetGroup, bool) {
	id, ok := s.CampaignID(campaign)
	if !ok {
		return AssetGroup{}, false
	}
	want := NormalizeName(group)
	for _, g := range s.groups[id] {
		if NormalizeName(g.Name) == want {
			return g, true
		}
	}
	return AssetGroup{}, false
}

// IsPlaceholder reports whether a group has no advertiser headline
func (s *Snapshot) IsPlaceholder(groupResource string) bool {
	return !s.headlines[groupResource]
}

// Links returns the links of a group with the given field type
func (s *Snapshot) Links(groupResource, fieldType string) []Link {
	var out []Link
	for _, l := range s.links[groupResource] {
		if l.FieldType == fieldType {
			out = append(out, l)
		}
	}
	return out
}

// CountLinks counts the links of a group across the given field types
func (s *Snapshot) CountLinks(groupResource string, fieldTypes ...string) int {
	n := 0
	for _, l := range s.links[groupResource] {
		for _, ft := range fieldTypes {
			if l.FieldType == ft {
				n++
				break
			}
		}
	}
	return n
}

// FindText returns the link of a text with the given field type
func (s *Snapshot) FindText(groupResource, fieldType, text string) (Link, bool) {
	text = strings.TrimSpace(text)
	for _, l := range s.links[groupResource] {
		if l.FieldType == fieldType && strings.TrimSpace(l.Text) == text {
			return l, true
		}
	}
	return Link{}, false
}

// FindAsset returns the link of an asset id under any of the field types
func (s *Snapshot) FindAsset(groupResource, assetID string, fieldTypes ...string) (Link, bool) {
	for _, l := range s.links[groupResource] {
		if l.AssetID != assetID {
			continue
		}
		for _, ft := range fieldTypes {
			if l.FieldType == ft {
				return l, true
			}
		}
	}
	return Link{}, false
}

// Asset returns the details of a library asset loaded with the snapshot
func (s *Snapshot) Asset(id string) (Asset, bool) {
	a, ok := s.assets[id]
	return a, ok
}

// Campaigns returns the resolved campaign names, sorted
func (s *Snapshot) Campaigns() []string {
	out := make([]string, 0, len(s.campaigns))
	for name := range s.campaigns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stats summarises the snapshot for logging
func (s *Snapshot) Stats() (campaigns, groups, links int) {
	for _, gs := range s.groups {
		groups += len(gs)
	}
	for _, ls := range s.links {
		links += len(ls)
	}
	return len(s.campaigns), groups, links
}
