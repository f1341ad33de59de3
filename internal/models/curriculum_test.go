package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsApprovedBucket(t *testing.T) {
	cases := map[CurriculumStatus]bool{
		CurriculumStatusApproved:        true,
		CurriculumStatusPublished:       true,
		CurriculumStatusDraft:           false,
		CurriculumStatusSubmitted:       false,
		CurriculumStatusPendingApproval: false,
		CurriculumStatusRejected:        false,
		CurriculumStatusArchived:        false,
	}
	for status, want := range cases {
		assert.Equal(t, want, IsApprovedBucket(status), status)
	}
}

func TestApprovalStatisticsDisplayedMergesPublished(t *testing.T) {
	raw := ApprovalStatistics{Total: 12, Pending: 4, Approved: 3, Rejected: 1, Published: 4}
	shown := raw.Displayed()
	assert.Equal(t, 7, shown.Approved)
	assert.Equal(t, raw.Published, shown.Published)
	assert.Equal(t, 3, raw.Approved)
}

func TestParseCurriculumStatus(t *testing.T) {
	status, ok := ParseCurriculumStatus(" Pending_Approval ")
	assert.True(t, ok)
	assert.Equal(t, CurriculumStatusPendingApproval, status)

	_, ok = ParseCurriculumStatus("unknown")
	assert.False(t, ok)
}

func TestChangeTypeKind(t *testing.T) {
	assert.Equal(t, ChangeKindAdd, ChangeTypeUnitAdd.Kind())
	assert.Equal(t, ChangeKindEdit, ChangeTypeCurriculumEdit.Kind())
	assert.Equal(t, ChangeKindDelete, ChangeTypeOutcomeDelete.Kind())
	assert.Equal(t, ChangeKindUnknown, ChangeType("bogus").Kind())
	assert.False(t, ChangeType("bogus").Valid())
}

func TestTopicString(t *testing.T) {
	topic := Topic{Table: TableCurricula, OrganizationID: "org-1"}
	assert.Equal(t, "changes:curricula:org:org-1", topic.String())
	assert.True(t, topic.Matches(ChangeEvent{Table: TableCurricula, OrganizationID: "org-1"}))
	assert.False(t, topic.Matches(ChangeEvent{Table: TableCurricula, OrganizationID: "org-2"}))
}

func TestApprovalFilterApprovedWidensAndRetainsBucket(t *testing.T) {
	filter := ApprovalFilter{Status: "approved", CollegeID: "col-1"}
	query, err := filter.Query(50)
	assert.NoError(t, err)
	assert.Equal(t, CurriculumStatus(""), query.Status)
	assert.Equal(t, "col-1", query.CollegeID)

	records := []CurriculumApprovalRequest{
		{ID: "1", Status: CurriculumStatusApproved},
		{ID: "2", Status: CurriculumStatusPublished},
		{ID: "3", Status: CurriculumStatusPendingApproval},
		{ID: "4", Status: CurriculumStatusRejected},
	}
	kept := filter.Retain(records)
	assert.Len(t, kept, 2)
	for _, record := range kept {
		assert.True(t, IsApprovedBucket(record.Status))
	}
}

func TestApprovalFilterQueryPassesOtherStatuses(t *testing.T) {
	query, err := ApprovalFilter{Status: "rejected"}.Query(10)
	assert.NoError(t, err)
	assert.Equal(t, CurriculumStatusRejected, query.Status)

	query, err = ApprovalFilter{Status: "all"}.Query(10)
	assert.NoError(t, err)
	assert.Equal(t, CurriculumStatus(""), query.Status)

	_, err = ApprovalFilter{Status: "nope"}.Query(10)
	assert.Error(t, err)

	records := []CurriculumApprovalRequest{{ID: "1", Status: CurriculumStatusDraft}}
	assert.Len(t, ApprovalFilter{}.Retain(records), 1)
}
