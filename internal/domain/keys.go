package domain

// ConflictKey groups verdicts that touch the same member of the same asset group in the same slot
type ConflictKey struct {
	Campaign   string
	AssetGroup string
	MemberType string
	Member     string
	Date       string
	Hour       int
}

// DedupKey identifies an operation; two operations with equal keys are duplicates
type DedupKey struct {
	Campaign      string
	GroupResource string
	MemberType    string
	Member        string
	Action        Action
	Hour          int
}

// Key returns the dedup key of an operation
func (o *Operation) Key() DedupKey {
	return DedupKey{
		Campaign:      o.Campaign,
		GroupResource: o.GroupResource,
		MemberType:    o.MemberType,
		Member:        o.Member,
		Action:        o.Action,
		Hour:          o.Hour,
	}
}

// MergeKey matches window verdicts with verified outcomes
type MergeKey struct {
	Campaign   string
	AssetGroup string
	MemberType string
	Member     string
	Action     Action
	Hour       int
}

// MergeKey returns the merge key of a verdict
func (v *Verdict) MergeKey() MergeKey {
	return MergeKey{
		Campaign:   v.Campaign,
		AssetGroup: v.AssetGroup,
		MemberType: v.MemberType,
		Member:     v.Member,
		Action:     v.Action,
		Hour:       v.Hour,
	}
}

// MergeKey returns the merge key of an outcome
func (o *Outcome) MergeKey() MergeKey {
	return MergeKey{
		Campaign:   o.Campaign,
		AssetGroup: o.AssetGroup,
		MemberType: o.MemberType,
		Member:     o.Member,
		Action:     o.Action,
		Hour:       o.Hour,
	}
}
