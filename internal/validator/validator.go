// Package validator checks schedule rows against the catalog snapshot and
// turns them into verdicts, one per targeted asset group, plus the
// operations that may be executed.
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/catalog"
	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/logging"
	"github.com/hochfrequenz/asset-scheduler/internal/scheduler"
)

// Messages shared with other stages
const (
	MsgNoGroups         = "No active (non-feed-only) asset group"
	MsgCampaignNotFound = "Campaign not found"
	MsgSelfConflict     = "ADD and REMOVE in the same hour, not executable"
	MsgNoPendingAction  = "No pending action"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// textFieldTypes and imageFieldTypes are what the snapshot must load
var (
	textFieldTypes  = []string{string(domain.Headline), string(domain.LongHeadline), string(domain.Description)}
	imageFieldTypes = []string{
		string(domain.MarketingImage), string(domain.SquareMarketingImage),
		string(domain.PortraitMarketingImage), string(domain.TallPortraitMarketingImage),
	}
)

// FieldTypes returns every field type the validator reads from the snapshot
func FieldTypes() []string {
	return append(append([]string{}, textFieldTypes...), imageFieldTypes...)
}

// ImageFieldTypes returns the image field types
func ImageFieldTypes() []string {
	return append([]string{}, imageFieldTypes...)
}

// Result is the outcome of validating one row for one action
type Result struct {
	Verdicts   []*domain.Verdict
	Operations []*domain.Operation
	Status     domain.Status
}

// Validator validates rows against one snapshot at one instant
type Validator struct {
	snap  *catalog.Snapshot
	rc    scheduler.RunContext
	rules Rules
	ids   *domain.IDSource
	log   *logrus.Entry
}

// New returns a validator enforcing rules. Text types missing from
// rules.Text fall back to the defaults, as does a zero MaxImages.
func New(snap *catalog.Snapshot, rc scheduler.RunContext, rules Rules, ids *domain.IDSource, log *logrus.Entry) *Validator {
	if ids == nil {
		ids = &domain.IDSource{}
	}
	if rules.MaxImages <= 0 {
		rules.MaxImages = DefaultRules().MaxImages
	}
	return &Validator{snap: snap, rc: rc, rules: rules, ids: ids, log: logging.OrNop(log).WithField("component", "validator")}
}

// Window validates an in-window action. OK and WARNING verdicts come with
// the operations to execute.
func (v *Validator) Window(ra domain.ResolvedAction) Result {
	return v.validate(ra.Row, ra.Action, true)
}

// Preview validates a row for the action closest in the future
func (v *Validator) Preview(row *domain.ScheduleRow) Result {
	return v.validate(row, scheduler.ClosestAction(v.rc, row), false)
}

// Rejected reports a row that failed before validation, e.g. an
// unparsable cell of an action due today
func (v *Validator) Rejected(row *domain.ScheduleRow, action domain.Action, problems []string) Result {
	vd := v.base(row, action, scheduler.FormatAllScheduled(row), false)
	vd.AssetGroup = groupLabel(row)
	vd.Status = domain.StatusError
	vd.Message = strings.Join(problems, "; ")
	return Result{Verdicts: []*domain.Verdict{vd}, Status: domain.StatusError}
}

// check collects the problems of one validation
type check struct {
	errors   []string
	warnings []string
}

func (c *check) errorf(format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *check) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// imageInfo carries what image checks found for the group stage
type imageInfo struct {
	fieldType     domain.ImageType
	assetResource string
}

func (v *Validator) validate(row *domain.ScheduleRow, action domain.Action, window bool) Result {
	scheduled := scheduler.FormatAllScheduled(row)
	if window {
		scheduled = scheduler.ScheduledForAction(row, action)
	}

	if action == domain.ActionNone {
		vd := v.base(row, action, scheduled, window)
		vd.AssetGroup = groupLabel(row)
		vd.Status = domain.StatusError
		vd.Message = MsgNoPendingAction
		return Result{Verdicts: []*domain.Verdict{vd}, Status: domain.StatusError}
	}

	var c check
	if !window {
		v.checkCells(row, &c)
	}
	if scheduler.SelfConflict(row) {
		c.errorf(MsgSelfConflict)
	}
	if strings.TrimSpace(row.Campaign) == "" {
		c.errorf("Missing Campaign Name")
	}

	var img imageInfo
	switch row.Kind {
	case domain.KindImage:
		img = v.checkImage(row, action, &c)
	default:
		v.checkText(row, action, &c)
	}

	campaignID, ok := v.snap.CampaignID(row.Campaign)
	if !ok && strings.TrimSpace(row.Campaign) != "" {
		c.errorf(MsgCampaignNotFound)
	}

	if len(c.errors) > 0 {
		vd := v.base(row, action, scheduled, window)
		vd.AssetGroup = groupLabel(row)
		vd.Status = domain.StatusError
		vd.Message = strings.Join(c.errors, "; ")
		return Result{Verdicts: []*domain.Verdict{vd}, Status: domain.StatusError}
	}

	groups := v.snap.TargetGroups(campaignID, row.AssetGroup)
	v.log.WithFields(logrus.Fields{"row": row.ID.String(), "groups": len(groups)}).Debug("Target groups resolved")
	if len(groups) == 0 {
		vd := v.base(row, action, scheduled, window)
		vd.AssetGroup = groupLabel(row)
		vd.Status = domain.StatusError
		vd.Message = MsgNoGroups
		return Result{Verdicts: []*domain.Verdict{vd}, Status: domain.StatusError}
	}

	res := Result{Status: domain.StatusOK}
	for _, g := range groups {
		gc := check{warnings: append([]string{}, c.warnings...)}
		var link catalog.Link
		if row.Kind == domain.KindImage {
			link = v.checkImageGroup(row, action, g, img, &gc)
		} else {
			link = v.checkTextGroup(row, action, g, &gc)
		}

		vd := v.base(row, action, scheduled, window)
		vd.AssetGroup = g.Name
		vd.GroupResource = g.Resource
		switch {
		case len(gc.errors) > 0:
			vd.Status = domain.StatusError
			vd.Message = strings.Join(gc.errors, "; ")
		case len(gc.warnings) > 0:
			vd.Status = domain.StatusWarning
			vd.Message = strings.Join(gc.warnings, "; ")
		default:
			vd.Status = domain.StatusOK
			vd.Message = "OK"
		}
		res.Verdicts = append(res.Verdicts, vd)
		res.Status = domain.Worst(res.Status, vd.Status)

		if window && vd.Status.Executable() {
			op := &domain.Operation{
				ID:            v.ids.Next(),
				VerdictID:     vd.ID,
				Row:           row.ID,
				Kind:          row.Kind,
				Campaign:      vd.Campaign,
				AssetGroup:    g.Name,
				GroupResource: g.Resource,
				MemberType:    vd.MemberType,
				FieldType:     vd.MemberType,
				Member:        vd.Member,
				Action:        action,
				Hour:          vd.Hour,
				Scheduled:     scheduled,
				LinkResource:  link.Resource,
			}
			if row.Kind == domain.KindImage {
				op.FieldType = string(img.fieldType)
				op.AssetResource = img.assetResource
			}
			res.Operations = append(res.Operations, op)
		}
	}
	return res
}

func (v *Validator) base(row *domain.ScheduleRow, action domain.Action, scheduled string, window bool) *domain.Verdict {
	vd := &domain.Verdict{
		ID:         v.ids.Next(),
		Row:        row.ID,
		Timestamp:  v.rc.Stamp(),
		Campaign:   strings.TrimSpace(row.Campaign),
		AssetGroup: strings.TrimSpace(row.AssetGroup),
		MemberType: memberType(row),
		Member:     strings.TrimSpace(row.Member),
		Scheduled:  scheduled,
		Action:     action,
		Hour:       -1,
		AddHour:    -1,
		RemoveHour: -1,
		InWindow:   window,
	}
	if row.HasAdd() {
		vd.AddDate = slotDate(row.AddDate)
		vd.AddHour = scheduler.EffectiveHour(row, domain.ActionAdd)
	}
	if row.HasRemove() {
		vd.RemoveDate = slotDate(row.RemoveDate)
		vd.RemoveHour = scheduler.EffectiveHour(row, domain.ActionRemove)
	}
	switch action {
	case domain.ActionAdd:
		vd.Hour = vd.AddHour
	case domain.ActionRemove:
		vd.Hour = vd.RemoveHour
	}
	return vd
}

// slotDate normalizes a date cell, keeping the raw text when it does not parse
func slotDate(raw string) string {
	if d, err := scheduler.ParseDate(raw); err == nil {
		return d
	}
	return strings.TrimSpace(raw)
}

func memberType(row *domain.ScheduleRow) string {
	if row.Kind == domain.KindText {
		return strings.ToUpper(strings.TrimSpace(row.MemberType))
	}
	return strings.TrimSpace(row.MemberType)
}

func groupLabel(row *domain.ScheduleRow) string {
	if g := strings.TrimSpace(row.AssetGroup); g != "" {
		return g
	}
	return domain.AllGroups
}

// checkCells reports malformed dates and hours on either side of a row
func (v *Validator) checkCells(row *domain.ScheduleRow, c *check) {
	for _, a := range []domain.Action{domain.ActionAdd, domain.ActionRemove} {
		rawDate, rawHour := row.DateFor(a)
		if rawDate == "" {
			continue
		}
		name := "Add"
		if a == domain.ActionRemove {
			name = "Remove"
		}
		if _, err := scheduler.ParseDate(rawDate); err != nil {
			c.errorf("Invalid %s Date: %v", name, err)
		}
		if _, err := scheduler.ParseHour(rawHour); err != nil {
			c.errorf("Invalid %s Hour: %v", name, err)
		}
	}
}

func (v *Validator) checkText(row *domain.ScheduleRow, action domain.Action, c *check) {
	tt, ok := domain.ParseTextType(row.MemberType)
	if !ok {
		c.errorf("Invalid Text Type: %q", string(tt))
	}
	text := strings.TrimSpace(row.Member)
	if text == "" {
		c.errorf("Missing Text")
		return
	}
	if !ok || !action.Includes(domain.ActionAdd) {
		return
	}
	limits := v.rules.text(tt)
	if n := utf8.RuneCountInString(text); n > limits.MaxLen {
		c.errorf("Too long (%d/%d chars)", n, limits.MaxLen)
	}
	if strings.Contains(text, "!") {
		switch tt {
		case domain.Headline:
			c.warnf("Exclamation mark in headline (not recommended)")
		case domain.LongHeadline:
			c.warnf("Exclamation mark in long headline (not recommended)")
		}
	}
}

func (v *Validator) checkTextGroup(row *domain.ScheduleRow, action domain.Action, g catalog.AssetGroup, c *check) catalog.Link {
	tt, _ := domain.ParseTextType(row.MemberType)
	limits := v.rules.text(tt)
	text := strings.TrimSpace(row.Member)
	current := v.snap.CountLinks(g.Resource, string(tt))
	link, exists := v.snap.FindText(g.Resource, string(tt), text)

	if action.Includes(domain.ActionAdd) {
		if current+1 > limits.Max {
			c.errorf("MAX limit exceeded (%d+1 > %d)", current, limits.Max)
		} else if current >= limits.Max-limits.Warn {
			c.warnf("Limit near (current=%d, after=%d, max=%d)", current, current+1, limits.Max)
		}
		if exists {
			c.errorf("Text asset already exists in the asset group")
		}
	}
	if action.Includes(domain.ActionRemove) {
		if !exists && action == domain.ActionRemove {
			c.errorf("Text asset not found in the asset group")
		}
		if exists && current-1 < limits.Min {
			c.warnf("Below MIN limit: %d advertiser %s left after removal (min=%d, plus any platform-generated)", current-1, tt, limits.Min)
		}
	}
	return link
}

func (v *Validator) checkImage(row *domain.ScheduleRow, action domain.Action, c *check) imageInfo {
	assetID := strings.TrimSpace(row.Member)
	rawType := strings.TrimSpace(row.MemberType)
	info := imageInfo{fieldType: NormalizeImageType(rawType)}

	if assetID == "" {
		c.errorf("Missing Asset ID")
	}
	validID := assetID != "" && digitsOnly.MatchString(assetID)
	if assetID != "" && !validID {
		c.errorf("Invalid Asset ID format (digits only)")
	}
	if info.fieldType == domain.UnknownImage {
		c.errorf("Invalid Image Type: %q", rawType)
	}
	if !validID {
		return info
	}

	asset, ok := v.snap.Asset(assetID)
	switch {
	case !ok:
		c.errorf("Asset ID not found")
		return info
	case asset.Type != catalog.AssetTypeImage:
		c.errorf("Asset type is %s, not IMAGE", asset.Type)
		return info
	}
	info.assetResource = asset.Resource

	det := DetectImageType(rawType, asset.Width, asset.Height)
	if det.Err != "" {
		c.errorf("%s", det.Err)
	}
	info.fieldType = det.FieldType
	if det.Mismatch {
		c.warnf("Image type mismatch: sheet says %q (%s) but the image is %s; actions and limits apply to %s",
			rawType, det.Expected, det.Detected, det.FieldType)
	}
	if action.Includes(domain.ActionAdd) && det.FieldType != domain.UnknownImage {
		if msg := CheckAspectRatio(asset.Width, asset.Height, det.FieldType); msg != "" {
			c.errorf("%s", msg)
		}
	}
	return info
}

func (v *Validator) checkImageGroup(row *domain.ScheduleRow, action domain.Action, g catalog.AssetGroup, img imageInfo, c *check) catalog.Link {
	assetID := strings.TrimSpace(row.Member)
	total := v.snap.CountLinks(g.Resource, imageFieldTypes...)
	link, exists := v.snap.FindAsset(g.Resource, assetID, imageFieldTypes...)

	if action.Includes(domain.ActionAdd) {
		if total+1 > v.rules.MaxImages {
			c.errorf("Image limit exceeded (%d+1 > %d)", total, v.rules.MaxImages)
		}
		if exists {
			c.errorf("Image asset already exists in the asset group")
		}
	}
	if action.Includes(domain.ActionRemove) {
		if !exists && action == domain.ActionRemove {
			c.errorf("Image asset not found in the asset group")
		}
		if exists {
			switch img.fieldType {
			case domain.SquareMarketingImage:
				if v.onlyLinkOfType(g.Resource, assetID, domain.SquareMarketingImage) {
					c.warnf("Below MIN limit: no advertiser SQUARE image left after removal (min=1, plus any platform-generated)")
				}
			case domain.MarketingImage:
				if v.onlyLinkOfType(g.Resource, assetID, domain.MarketingImage) {
					c.warnf("Below MIN limit: no advertiser HORIZONTAL image left after removal (min=1, plus any platform-generated)")
				}
			}
		}
	}
	return link
}

func (v *Validator) onlyLinkOfType(groupResource, assetID string, ft domain.ImageType) bool {
	links := v.snap.Links(groupResource, string(ft))
	return len(links) == 1 && links[0].AssetID == assetID
}
