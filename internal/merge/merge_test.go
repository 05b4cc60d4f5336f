package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
)

func verdict(group string, status domain.Status, msg string) *domain.Verdict {
	return &domain.Verdict{
		Campaign:   "Campaign A",
		AssetGroup: group,
		MemberType: "HEADLINE",
		Member:     "Shop Now",
		Action:     domain.ActionAdd,
		Hour:       10,
		Status:     status,
		Message:    msg,
	}
}

func TestMerge(t *testing.T) {
	ok := verdict("Group 1", domain.StatusWarning, "Limit near")
	failed := verdict("Group 2", domain.StatusError, "MAX limit exceeded")
	orphan := verdict("Group 3", domain.StatusOK, "OK")

	outcomes := []*domain.Outcome{
		{
			Operation: domain.Operation{Campaign: "Campaign A", AssetGroup: "Group 1", MemberType: "HEADLINE", Member: "Shop Now", Action: domain.ActionAdd, Hour: 10},
			Status:    domain.StatusSuccess,
			Message:   "Executed (attempt 1) [Verified ✓]",
		},
		{
			// same member in a group whose verdict failed; must not override it
			Operation: domain.Operation{Campaign: "Campaign A", AssetGroup: "Group 2", MemberType: "HEADLINE", Member: "Shop Now", Action: domain.ActionAdd, Hour: 10},
			Status:    domain.StatusSuccess,
			Message:   "Executed (attempt 1)",
		},
	}

	rows := Merge([]*domain.Verdict{ok, failed, orphan}, outcomes)

	require.Len(t, rows, 3)
	assert.Equal(t, domain.StatusSuccess, rows[0].Status)
	assert.Equal(t, "Executed (attempt 1) [Verified ✓]", rows[0].Message)
	assert.Equal(t, domain.StatusError, rows[1].Status)
	assert.Equal(t, "MAX limit exceeded", rows[1].Message)
	assert.Equal(t, domain.StatusOK, rows[2].Status)
}

func TestMerge_HourIsPartOfTheKey(t *testing.T) {
	v := verdict("Group 1", domain.StatusOK, "OK")
	o := &domain.Outcome{
		Operation: domain.Operation{Campaign: "Campaign A", AssetGroup: "Group 1", MemberType: "HEADLINE", Member: "Shop Now", Action: domain.ActionAdd, Hour: 11},
		Status:    domain.StatusError,
		Message:   "Post-verify FAILED",
	}
	rows := Merge([]*domain.Verdict{v}, []*domain.Outcome{o})
	assert.Equal(t, domain.StatusOK, rows[0].Status)
}
