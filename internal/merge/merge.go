// Package merge folds verified execution outcomes back into the window
// verdicts, producing the rows of the results sheet.
package merge

import "github.com/hochfrequenz/asset-scheduler/internal/domain"

// Merge returns one report row per window verdict. ERROR verdicts were never
// executed and keep their message; OK and WARNING verdicts take the status
// and message of the outcome with the same MergeKey. A verdict without a
// matching outcome keeps its validation status.
func Merge(verdicts []*domain.Verdict, outcomes []*domain.Outcome) []domain.ReportRow {
	byKey := make(map[domain.MergeKey]*domain.Outcome, len(outcomes))
	for _, o := range outcomes {
		byKey[o.MergeKey()] = o
	}

	rows := make([]domain.ReportRow, 0, len(verdicts))
	for _, v := range verdicts {
		row := v.ReportRow()
		if v.Status.Executable() {
			if o, ok := byKey[v.MergeKey()]; ok {
				row.Status = o.Status
				row.Message = o.Message
			}
		}
		rows = append(rows, row)
	}
	return rows
}
