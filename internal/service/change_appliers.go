package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
	"github.com/noah-isme/syllabus-approval-api/internal/repository"
	appErrors "github.com/noah-isme/syllabus-approval-api/pkg/errors"
)

// ChangeApplier applies one change type to a curriculum inside the resolving transaction.
type ChangeApplier interface {
	Apply(ctx context.Context, mutator repository.CurriculumMutator, change *models.ChangeRequest, payload models.ChangePayload) error
}

// ChangeApplierFunc allows using plain functions.
type ChangeApplierFunc func(ctx context.Context, mutator repository.CurriculumMutator, change *models.ChangeRequest, payload models.ChangePayload) error

// Apply implements ChangeApplier.
func (f ChangeApplierFunc) Apply(ctx context.Context, mutator repository.CurriculumMutator, change *models.ChangeRequest, payload models.ChangePayload) error {
	return f(ctx, mutator, change, payload)
}

// DefaultChangeAppliers returns the appliers for every supported change type.
func DefaultChangeAppliers() map[models.ChangeType]ChangeApplier {
	return map[models.ChangeType]ChangeApplier{
		models.ChangeTypeUnitAdd: ChangeApplierFunc(func(ctx context.Context, m repository.CurriculumMutator, change *models.ChangeRequest, p models.ChangePayload) error {
			if len(p.Data) == 0 {
				return appErrors.Clone(appErrors.ErrValidation, "unit_add requires data")
			}
			_, err := m.InsertUnit(ctx, change.CurriculumID, p.Data)
			return targetError(err, "unit")
		}),
		models.ChangeTypeUnitEdit: ChangeApplierFunc(func(ctx context.Context, m repository.CurriculumMutator, change *models.ChangeRequest, p models.ChangePayload) error {
			id, fields, err := editTarget(p)
			if err != nil {
				return err
			}
			return targetError(m.UpdateUnit(ctx, change.CurriculumID, id, fields), "unit")
		}),
		models.ChangeTypeUnitDelete: ChangeApplierFunc(func(ctx context.Context, m repository.CurriculumMutator, change *models.ChangeRequest, p models.ChangePayload) error {
			id := payloadID(p.Data)
			if id == "" {
				return appErrors.Clone(appErrors.ErrValidation, "unit_delete requires data.id")
			}
			return targetError(m.DeleteUnit(ctx, change.CurriculumID, id), "unit")
		}),
		models.ChangeTypeOutcomeAdd: ChangeApplierFunc(func(ctx context.Context, m repository.CurriculumMutator, change *models.ChangeRequest, p models.ChangePayload) error {
			if len(p.Data) == 0 {
				return appErrors.Clone(appErrors.ErrValidation, "outcome_add requires data")
			}
			_, err := m.InsertOutcome(ctx, change.CurriculumID, p.Data)
			return targetError(err, "outcome")
		}),
		models.ChangeTypeOutcomeEdit: ChangeApplierFunc(func(ctx context.Context, m repository.CurriculumMutator, change *models.ChangeRequest, p models.ChangePayload) error {
			id, fields, err := editTarget(p)
			if err != nil {
				return err
			}
			return targetError(m.UpdateOutcome(ctx, change.CurriculumID, id, fields), "outcome")
		}),
		models.ChangeTypeOutcomeDelete: ChangeApplierFunc(func(ctx context.Context, m repository.CurriculumMutator, change *models.ChangeRequest, p models.ChangePayload) error {
			id := payloadID(p.Data)
			if id == "" {
				return appErrors.Clone(appErrors.ErrValidation, "outcome_delete requires data.id")
			}
			return targetError(m.DeleteOutcome(ctx, change.CurriculumID, id), "outcome")
		}),
		models.ChangeTypeCurriculumEdit: ChangeApplierFunc(func(ctx context.Context, m repository.CurriculumMutator, change *models.ChangeRequest, p models.ChangePayload) error {
			fields := changedScalars(p.Before, p.After)
			if len(fields) == 0 {
				return appErrors.Clone(appErrors.ErrValidation, "curriculum_edit carries no changed fields")
			}
			return targetError(m.UpdateCurriculum(ctx, change.CurriculumID, fields), "curriculum")
		}),
	}
}

// editTarget resolves the edited entity id and the fields whose scalar value changed.
func editTarget(p models.ChangePayload) (string, map[string]interface{}, error) {
	id := payloadID(p.After)
	if id == "" {
		id = payloadID(p.Before)
	}
	if id == "" {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "edit payload requires an id")
	}
	fields := changedScalars(p.Before, p.After)
	delete(fields, "id")
	if len(fields) == 0 {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, "edit payload carries no changed fields")
	}
	return id, fields, nil
}

func changedScalars(before, after map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{})
	for _, diff := range models.DiffFields(before, after) {
		if diff.Changed {
			if _, present := after[diff.Field]; present {
				fields[diff.Field] = diff.After
			}
		}
	}
	return fields
}

func payloadID(data map[string]interface{}) string {
	if data == nil {
		return ""
	}
	if id, ok := data["id"].(string); ok {
		return id
	}
	return ""
}

func targetError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("%s targeted by the change no longer exists", entity))
	}
	if errors.Is(err, repository.ErrInvalidChange) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("cannot apply %s change", entity))
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to apply %s change", entity))
}
