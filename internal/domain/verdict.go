package domain

// Verdict is the validation outcome of one row against one asset group
type Verdict struct {
	ID            OpID
	Row           RowID
	Timestamp     string
	Campaign      string
	AssetGroup    string // display name, AllGroups before resolution
	GroupResource string // empty when the row failed before group resolution
	MemberType    string
	Member        string
	Scheduled     string // all scheduled actions (preview) or the executed window
	Action        Action
	Hour          int // effective hour of Action, -1 when unknown
	AddHour       int // effective hours of both sides, used for ActionBoth
	RemoveHour    int
	AddDate       string // yyyy-MM-dd of both sides, empty when unset
	RemoveDate    string
	Status        Status
	Message       string
	InWindow      bool
}

// Slot is a date and effective hour a verdict occupies
type Slot struct {
	Date string
	Hour int
}

// Slots returns the slots this verdict occupies for a single action
func (v *Verdict) Slots(a Action) []Slot {
	switch {
	case v.Action == ActionBoth && a == ActionAdd:
		return []Slot{{Date: v.AddDate, Hour: v.AddHour}}
	case v.Action == ActionBoth && a == ActionRemove:
		return []Slot{{Date: v.RemoveDate, Hour: v.RemoveHour}}
	case v.Action == a && v.Hour >= 0:
		date := v.AddDate
		if a == ActionRemove {
			date = v.RemoveDate
		}
		return []Slot{{Date: date, Hour: v.Hour}}
	}
	return nil
}

// Targeted reports whether the verdict names a resolved asset group. Such a
// verdict passed every row-level check; any error it carries comes from the
// live state of that group.
func (v *Verdict) Targeted() bool {
	return v.GroupResource != ""
}

// ReportRow converts the verdict to its 9-column output form
func (v *Verdict) ReportRow() ReportRow {
	return ReportRow{
		Timestamp:  v.Timestamp,
		Campaign:   v.Campaign,
		AssetGroup: v.AssetGroup,
		MemberType: v.MemberType,
		Member:     v.Member,
		Scheduled:  v.Scheduled,
		Action:     string(v.Action),
		Status:     v.Status,
		Message:    v.Message,
	}
}

// Operation is one executable link or unlink of a member in one asset group
type Operation struct {
	ID            OpID
	VerdictID     OpID
	Row           RowID
	Kind          Kind
	Campaign      string
	AssetGroup    string
	GroupResource string
	MemberType    string // sheet value, used for reporting and keys
	FieldType     string // platform field type to link with
	Member        string
	AssetResource string // image asset to link; text assets are resolved at execution
	LinkResource  string // existing link to remove
	Action        Action
	Hour          int
	Scheduled     string
}

// Outcome is the execution (and later verification) result of an operation
type Outcome struct {
	Operation
	Timestamp string
	Status    Status
	Message   string
	Attempts  int
}

// ReportRow is a row of the preview or results sheet
type ReportRow struct {
	Timestamp  string
	Campaign   string
	AssetGroup string
	MemberType string
	Member     string
	Scheduled  string
	Action     string
	Status     Status
	Message    string
}

// Values returns the cells in sheet column order
func (r ReportRow) Values() []string {
	return []string{r.Timestamp, r.Campaign, r.AssetGroup, r.MemberType, r.Member, r.Scheduled, r.Action, string(r.Status), r.Message}
}

// PreviewHeader and ResultsHeader are the header rows of the output sheets
var (
	PreviewHeader = []string{"Timestamp", "Campaign", "Asset Group", "Asset Type", "Text/Asset ID", "All Scheduled Actions", "Next Action", "Status", "Validation Message"}
	ResultsHeader = []string{"Timestamp", "Campaign", "Asset Group", "Asset Type", "Text/Asset ID", "All Scheduled Actions", "Executed Action", "Status", "Execution Message"}
)

// StatusColor returns the background color used for a status row
func StatusColor(s Status) string {
	switch s {
	case StatusOK, StatusSuccess:
		return "#d4edda"
	case StatusWarning:
		return "#fff3cd"
	case StatusError:
		return "#f8d7da"
	default:
		return "#ffffff"
	}
}
