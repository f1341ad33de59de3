package console

import (
	"fmt"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

// RenderChange renders a change payload for review. Adds show the new
// entity, deletes show the removed entity and edits show a shallow diff.
func RenderChange(change models.ChangeRequest) (models.ChangeView, error) {
	view := models.ChangeView{
		ChangeID: change.ID,
		Type:     change.ChangeType,
		Kind:     change.ChangeType.Kind(),
		Fields:   []models.FieldChange{},
	}
	payload, err := change.DecodePayload()
	if err != nil {
		return view, fmt.Errorf("decode change %s payload: %w", change.ID, err)
	}
	switch view.Kind {
	case models.ChangeKindAdd, models.ChangeKindDelete:
		view.Fields = models.ListFields(payload.Data)
	case models.ChangeKindEdit:
		view.Fields = models.DiffFields(payload.Before, payload.After)
	default:
		return view, fmt.Errorf("unsupported change type %q", change.ChangeType)
	}
	return view, nil
}

// ChangedFields returns the names of fields an edit actually changes.
func ChangedFields(view models.ChangeView) []string {
	var out []string
	for _, f := range view.Fields {
		if f.Changed {
			out = append(out, f.Field)
		}
	}
	return out
}
