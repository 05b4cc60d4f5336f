// Package catalog reads campaign, asset group and asset link state from the
// campaign platform and exposes it as an immutable per-run Snapshot.
package catalog

import (
	"context"
	"fmt"
)

// Campaign is a campaign as known to the platform
type Campaign struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AssetGroup is an enabled asset group of a campaign
type AssetGroup struct {
	Resource   string `json:"resource"`
	Name       string `json:"name"`
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
}

// Link is an enabled advertiser-provided asset attached to an asset group
type Link struct {
	Resource      string `json:"resource"`
	GroupResource string `json:"group_resource"`
	AssetResource string `json:"asset_resource"`
	AssetID       string `json:"asset_id"`
	FieldType     string `json:"field_type"`
	Text          string `json:"text,omitempty"`
}

// Asset describes a library asset
type Asset struct {
	ID       string `json:"id"`
	Resource string `json:"resource"`
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// AssetTypeImage is the platform type of image assets
const AssetTypeImage = "IMAGE"

// MutationKind selects what a Mutation does
type MutationKind string

const (
	CreateTextAsset MutationKind = "CREATE_TEXT_ASSET"
	LinkAsset       MutationKind = "LINK"
	UnlinkAsset     MutationKind = "UNLINK"
)

// Mutation is one write against the platform
type Mutation struct {
	Kind          MutationKind `json:"kind"`
	GroupResource string       `json:"group_resource,omitempty"`
	AssetResource string       `json:"asset_resource,omitempty"`
	FieldType     string       `json:"field_type,omitempty"`
	Text          string       `json:"text,omitempty"`
	LinkResource  string       `json:"link_resource,omitempty"`
}

// Platform is the campaign platform as consumed by the scheduler. Read calls
// return only ENABLED entities; ListLinks returns advertiser-provided links only.
type Platform interface {
	LookupCampaigns(ctx context.Context, names []string) ([]Campaign, error)
	ListAssetGroups(ctx context.Context, campaignIDs []string) ([]AssetGroup, error)
	ListLinks(ctx context.Context, groupResources []string, fieldTypes []string) ([]Link, error)
	AssetDetails(ctx context.Context, ids []string) ([]Asset, error)
	// FindTextAsset returns the resource of an existing text asset, or "" when none exists.
	FindTextAsset(ctx context.Context, text string) (string, error)
	// Mutate applies one write and returns the resource it created or touched.
	// A write rejected by the platform returns a *MutationError.
	Mutate(ctx context.Context, m Mutation) (string, error)
}

// APIError is a failed platform call (transport or service level)
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("platform api error: status=%d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("platform api error: status=%d %s: %s", e.Status, e.Code, e.Message)
}

// MutationError is a write the platform accepted but reported as failed
type MutationError struct {
	Message string
}

func (e *MutationError) Error() string {
	return e.Message
}
