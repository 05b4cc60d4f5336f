package domain

import "strings"

// Action is a scheduled operation on an asset group. ActionBoth only appears in
// previews, when a row's add and remove end in the same hour.
type Action string

const (
	ActionAdd    Action = "ADD"
	ActionRemove Action = "REMOVE"
	ActionBoth   Action = "ADD+REMOVE"
	ActionNone   Action = "N/A"
)

// Includes reports whether a includes the given single action
func (a Action) Includes(single Action) bool {
	return a == single || a == ActionBoth
}

// Status is the outcome of validating or executing one operation
type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
	StatusSuccess Status = "SUCCESS"
)

// Executable reports whether a validation status allows execution
func (s Status) Executable() bool {
	return s == StatusOK || s == StatusWarning
}

// Severity orders statuses so the worst one can be picked
func (s Status) Severity() int {
	switch s {
	case StatusError:
		return 3
	case StatusWarning:
		return 2
	case StatusOK, StatusSuccess:
		return 1
	default:
		return 0
	}
}

// Worst returns the more severe of two statuses
func Worst(a, b Status) Status {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// Kind tells text rows from image rows
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// TextType is the field type of a text asset
type TextType string

const (
	Headline     TextType = "HEADLINE"
	LongHeadline TextType = "LONG_HEADLINE"
	Description  TextType = "DESCRIPTION"
)

// TextTypes lists the accepted text field types
var TextTypes = []TextType{Headline, LongHeadline, Description}

// ParseTextType upper-cases and checks a text type cell
func ParseTextType(raw string) (TextType, bool) {
	t := TextType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range TextTypes {
		if t == known {
			return t, true
		}
	}
	return t, false
}

// ImageType is the field type of an image asset link
type ImageType string

const (
	MarketingImage             ImageType = "MARKETING_IMAGE"
	SquareMarketingImage       ImageType = "SQUARE_MARKETING_IMAGE"
	PortraitMarketingImage     ImageType = "PORTRAIT_MARKETING_IMAGE"
	TallPortraitMarketingImage ImageType = "TALL_PORTRAIT_MARKETING_IMAGE"
	UnknownImage               ImageType = "UNKNOWN"
)

// ImageTypes lists every image field type linked to asset groups
var ImageTypes = []ImageType{MarketingImage, SquareMarketingImage, PortraitMarketingImage, TallPortraitMarketingImage}

// AllGroups is the asset group label used when a row fails before group resolution
const AllGroups = "(all groups)"
