package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

type mutatorCall struct {
	op     string
	fields map[string]interface{}
}

type mutatorRecorder struct {
	calls []mutatorCall
	err   error
}

func (m *mutatorRecorder) record(op string, fields map[string]interface{}) error {
	m.calls = append(m.calls, mutatorCall{op: op, fields: fields})
	return m.err
}

func (m *mutatorRecorder) InsertUnit(ctx context.Context, curriculumID string, fields map[string]interface{}) (string, error) {
	return "unit-new", m.record("InsertUnit", fields)
}

func (m *mutatorRecorder) UpdateUnit(ctx context.Context, curriculumID, unitID string, fields map[string]interface{}) error {
	return m.record("UpdateUnit:"+unitID, fields)
}

func (m *mutatorRecorder) DeleteUnit(ctx context.Context, curriculumID, unitID string) error {
	return m.record("DeleteUnit:"+unitID, nil)
}

func (m *mutatorRecorder) InsertOutcome(ctx context.Context, curriculumID string, fields map[string]interface{}) (string, error) {
	return "outcome-new", m.record("InsertOutcome", fields)
}

func (m *mutatorRecorder) UpdateOutcome(ctx context.Context, curriculumID, outcomeID string, fields map[string]interface{}) error {
	return m.record("UpdateOutcome:"+outcomeID, fields)
}

func (m *mutatorRecorder) DeleteOutcome(ctx context.Context, curriculumID, outcomeID string) error {
	return m.record("DeleteOutcome:"+outcomeID, nil)
}

func (m *mutatorRecorder) UpdateCurriculum(ctx context.Context, curriculumID string, fields map[string]interface{}) error {
	return m.record("UpdateCurriculum", fields)
}

func TestDefaultChangeAppliersCoverEveryType(t *testing.T) {
	appliers := DefaultChangeAppliers()
	for _, ct := range []models.ChangeType{
		models.ChangeTypeUnitAdd, models.ChangeTypeUnitEdit, models.ChangeTypeUnitDelete,
		models.ChangeTypeOutcomeAdd, models.ChangeTypeOutcomeEdit, models.ChangeTypeOutcomeDelete,
		models.ChangeTypeCurriculumEdit,
	} {
		assert.Contains(t, appliers, ct)
	}
}

func TestChangeAppliersDispatchByType(t *testing.T) {
	appliers := DefaultChangeAppliers()
	change := &models.ChangeRequest{CurriculumID: "cur-1"}
	cases := []struct {
		changeType models.ChangeType
		payload    models.ChangePayload
		op         string
	}{
		{models.ChangeTypeUnitAdd, models.ChangePayload{Data: map[string]interface{}{"title": "Graphs"}}, "InsertUnit"},
		{models.ChangeTypeUnitDelete, models.ChangePayload{Data: map[string]interface{}{"id": "u-1"}}, "DeleteUnit:u-1"},
		{models.ChangeTypeOutcomeAdd, models.ChangePayload{Data: map[string]interface{}{"unitId": "u-1", "code": "CO3"}}, "InsertOutcome"},
		{models.ChangeTypeOutcomeEdit, models.ChangePayload{
			Before: map[string]interface{}{"id": "o-1", "code": "CO1"},
			After:  map[string]interface{}{"id": "o-1", "code": "CO1a"},
		}, "UpdateOutcome:o-1"},
		{models.ChangeTypeOutcomeDelete, models.ChangePayload{Data: map[string]interface{}{"id": "o-2"}}, "DeleteOutcome:o-2"},
		{models.ChangeTypeCurriculumEdit, models.ChangePayload{
			Before: map[string]interface{}{"credits": 3.0},
			After:  map[string]interface{}{"credits": 4.0},
		}, "UpdateCurriculum"},
	}
	for _, tc := range cases {
		mutator := &mutatorRecorder{}
		err := appliers[tc.changeType].Apply(context.Background(), mutator, change, tc.payload)
		require.NoError(t, err, tc.changeType)
		require.Len(t, mutator.calls, 1, tc.changeType)
		assert.Equal(t, tc.op, mutator.calls[0].op)
	}
}

func TestChangeAppliersRejectIncompletePayloads(t *testing.T) {
	appliers := DefaultChangeAppliers()
	change := &models.ChangeRequest{CurriculumID: "cur-1"}
	mutator := &mutatorRecorder{}

	err := appliers[models.ChangeTypeUnitDelete].Apply(context.Background(), mutator, change, models.ChangePayload{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	err = appliers[models.ChangeTypeUnitEdit].Apply(context.Background(), mutator, change, models.ChangePayload{
		Before: map[string]interface{}{"id": "u-1", "title": "Same"},
		After:  map[string]interface{}{"id": "u-1", "title": "Same"},
	})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	err = appliers[models.ChangeTypeUnitEdit].Apply(context.Background(), mutator, change, models.ChangePayload{
		After: map[string]interface{}{"title": "No id"},
	})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	assert.Empty(t, mutator.calls)
}

func TestChangedScalarsSkipsNestedValues(t *testing.T) {
	fields := changedScalars(
		map[string]interface{}{"title": "A", "meta": map[string]interface{}{"x": 1.0}},
		map[string]interface{}{"title": "B", "meta": map[string]interface{}{"x": 2.0}},
	)
	assert.Equal(t, map[string]interface{}{"title": "B"}, fields)
}
