package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

func TestRenderEditReportsOnlyChangedFields(t *testing.T) {
	view, err := RenderChange(models.ChangeRequest{
		ID:         "chg-1",
		ChangeType: models.ChangeTypeUnitEdit,
		Payload:    []byte(`{"before":{"a":1,"b":2},"after":{"a":1,"b":3}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChangeKindEdit, view.Kind)
	assert.Equal(t, []string{"b"}, ChangedFields(view))
}

func TestRenderEditFlagsNestedValues(t *testing.T) {
	view, err := RenderChange(models.ChangeRequest{
		ChangeType: models.ChangeTypeCurriculumEdit,
		Payload:    []byte(`{"before":{"meta":{"x":1},"credits":3},"after":{"meta":{"x":2},"credits":3}}`),
	})
	require.NoError(t, err)
	require.Len(t, view.Fields, 2)
	assert.Equal(t, "credits", view.Fields[0].Field)
	assert.False(t, view.Fields[0].Changed)
	assert.Equal(t, "meta", view.Fields[1].Field)
	assert.True(t, view.Fields[1].Nested)
	assert.False(t, view.Fields[1].Changed)
	assert.Empty(t, ChangedFields(view))
}

func TestRenderAddAndDeleteListEntityFields(t *testing.T) {
	view, err := RenderChange(models.ChangeRequest{
		ChangeType: models.ChangeTypeOutcomeAdd,
		Payload:    []byte(`{"data":{"code":"CO4","description":"Analyse graphs"}}`),
	})
	require.NoError(t, err)
	require.Len(t, view.Fields, 2)
	assert.Equal(t, "code", view.Fields[0].Field)
	assert.Equal(t, "CO4", view.Fields[0].Value)

	view, err = RenderChange(models.ChangeRequest{
		ChangeType: models.ChangeTypeUnitDelete,
		Payload:    []byte(`{"data":{"id":"u1","title":"Sorting"}}`),
	})
	require.NoError(t, err)
	assert.Len(t, view.Fields, 2)
	assert.Equal(t, models.ChangeKindDelete, view.Kind)
}

func TestRenderRejectsMalformedPayload(t *testing.T) {
	_, err := RenderChange(models.ChangeRequest{ChangeType: models.ChangeTypeUnitAdd, Payload: []byte(`[`)})
	assert.Error(t, err)
}
