package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

// CurriculumRepository reads curriculum detail aggregates.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository constructs the repository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// GetByID loads the curriculum header.
func (r *CurriculumRepository) GetByID(ctx context.Context, id string) (*models.Curriculum, error) {
	const query = `SELECT id, organization_id, course_name, course_code, credits, description, college_name,
       department_name, status, has_pending_changes, updated_at
	FROM curricula WHERE id = $1`
	var curriculum models.Curriculum
	if err := r.db.GetContext(ctx, &curriculum, query, id); err != nil {
		return nil, err
	}
	return &curriculum, nil
}

// GetDetail loads the curriculum with ordered units, outcomes and assessment mappings.
func (r *CurriculumRepository) GetDetail(ctx context.Context, id string) (*models.CurriculumDetail, error) {
	curriculum, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var units []models.Unit
	if err := r.db.SelectContext(ctx, &units, `SELECT id, curriculum_id, position, title, description, hours
	FROM curriculum_units WHERE curriculum_id = $1 ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	var outcomes []models.Outcome
	if err := r.db.SelectContext(ctx, &outcomes, `SELECT o.id, o.unit_id, o.position, o.code, o.description, o.bloom_level
	FROM unit_outcomes o JOIN curriculum_units u ON u.id = o.unit_id
	WHERE u.curriculum_id = $1 ORDER BY o.position`, id); err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}

	var mappings []models.AssessmentMapping
	if err := r.db.SelectContext(ctx, &mappings, `SELECT m.outcome_id, m.assessment_type, m.weightage
	FROM outcome_assessments m
	JOIN unit_outcomes o ON o.id = m.outcome_id
	JOIN curriculum_units u ON u.id = o.unit_id
	WHERE u.curriculum_id = $1`, id); err != nil {
		return nil, fmt.Errorf("list assessment mappings: %w", err)
	}

	return assembleDetail(*curriculum, units, outcomes, mappings), nil
}

func assembleDetail(curriculum models.Curriculum, units []models.Unit, outcomes []models.Outcome, mappings []models.AssessmentMapping) *models.CurriculumDetail {
	byOutcome := make(map[string][]models.AssessmentMapping, len(mappings))
	for _, m := range mappings {
		byOutcome[m.OutcomeID] = append(byOutcome[m.OutcomeID], m)
	}
	byUnit := make(map[string][]models.Outcome, len(units))
	for _, o := range outcomes {
		o.Mappings = byOutcome[o.ID]
		byUnit[o.UnitID] = append(byUnit[o.UnitID], o)
	}
	sort.SliceStable(units, func(i, j int) bool { return units[i].Position < units[j].Position })
	for i := range units {
		list := byUnit[units[i].ID]
		sort.SliceStable(list, func(a, b int) bool { return list[a].Position < list[b].Position })
		if list == nil {
			list = []models.Outcome{}
		}
		units[i].Outcomes = list
	}
	if units == nil {
		units = []models.Unit{}
	}
	return &models.CurriculumDetail{Curriculum: curriculum, Units: units}
}

// ErrInvalidChange marks change payloads that cannot be mapped onto curriculum rows.
var ErrInvalidChange = errors.New("invalid curriculum change")

// CurriculumMutator applies field-level changes to a published curriculum.
// Implementations are bound to the transaction that resolves the change request.
type CurriculumMutator interface {
	InsertUnit(ctx context.Context, curriculumID string, fields map[string]interface{}) (string, error)
	UpdateUnit(ctx context.Context, curriculumID, unitID string, fields map[string]interface{}) error
	DeleteUnit(ctx context.Context, curriculumID, unitID string) error
	InsertOutcome(ctx context.Context, curriculumID string, fields map[string]interface{}) (string, error)
	UpdateOutcome(ctx context.Context, curriculumID, outcomeID string, fields map[string]interface{}) error
	DeleteOutcome(ctx context.Context, curriculumID, outcomeID string) error
	UpdateCurriculum(ctx context.Context, curriculumID string, fields map[string]interface{}) error
}

// editable columns per table; payload keys may use camelCase or snake_case.
var (
	unitColumns = map[string]string{
		"title": "title", "description": "description", "hours": "hours", "position": "position",
	}
	outcomeColumns = map[string]string{
		"code": "code", "description": "description", "bloom_level": "bloom_level", "bloomLevel": "bloom_level",
		"position": "position",
	}
	curriculumColumns = map[string]string{
		"course_name": "course_name", "courseName": "course_name", "course_code": "course_code",
		"courseCode": "course_code", "credits": "credits", "description": "description",
	}
)

type txCurriculumMutator struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (m *txCurriculumMutator) InsertUnit(ctx context.Context, curriculumID string, fields map[string]interface{}) (string, error) {
	cols, vals, err := pickColumns(fields, unitColumns)
	if err != nil {
		return "", err
	}
	if _, ok := fields["position"]; !ok {
		var next int
		if err := m.tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position), 0) + 1 FROM curriculum_units WHERE curriculum_id = $1`, curriculumID); err != nil {
			return "", fmt.Errorf("next unit position: %w", err)
		}
		cols = append(cols, "position")
		vals = append(vals, next)
	}
	id := uuid.NewString()
	cols = append([]string{"id", "curriculum_id"}, cols...)
	vals = append([]interface{}{id, curriculumID}, vals...)
	if _, err := m.tx.ExecContext(ctx, insertStatement("curriculum_units", cols), vals...); err != nil {
		return "", fmt.Errorf("insert unit: %w", err)
	}
	return id, nil
}

func (m *txCurriculumMutator) UpdateUnit(ctx context.Context, curriculumID, unitID string, fields map[string]interface{}) error {
	return m.update(ctx, "curriculum_units", unitColumns, fields, "id = ? AND curriculum_id = ?", unitID, curriculumID)
}

func (m *txCurriculumMutator) DeleteUnit(ctx context.Context, curriculumID, unitID string) error {
	return m.exec(ctx, `DELETE FROM curriculum_units WHERE id = $1 AND curriculum_id = $2`, unitID, curriculumID)
}

func (m *txCurriculumMutator) InsertOutcome(ctx context.Context, curriculumID string, fields map[string]interface{}) (string, error) {
	unitID := stringField(fields, "unit_id", "unitId")
	if unitID == "" {
		return "", fmt.Errorf("%w: outcome requires unitId", ErrInvalidChange)
	}
	var owner string
	if err := m.tx.GetContext(ctx, &owner, `SELECT curriculum_id FROM curriculum_units WHERE id = $1`, unitID); err != nil {
		return "", fmt.Errorf("load outcome unit: %w", err)
	}
	if owner != curriculumID {
		return "", sql.ErrNoRows
	}
	cols, vals, err := pickColumns(fields, outcomeColumns)
	if err != nil {
		return "", err
	}
	if _, ok := fields["position"]; !ok {
		var next int
		if err := m.tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(position), 0) + 1 FROM unit_outcomes WHERE unit_id = $1`, unitID); err != nil {
			return "", fmt.Errorf("next outcome position: %w", err)
		}
		cols = append(cols, "position")
		vals = append(vals, next)
	}
	id := uuid.NewString()
	cols = append([]string{"id", "unit_id"}, cols...)
	vals = append([]interface{}{id, unitID}, vals...)
	if _, err := m.tx.ExecContext(ctx, insertStatement("unit_outcomes", cols), vals...); err != nil {
		return "", fmt.Errorf("insert outcome: %w", err)
	}
	return id, nil
}

func (m *txCurriculumMutator) UpdateOutcome(ctx context.Context, curriculumID, outcomeID string, fields map[string]interface{}) error {
	return m.update(ctx, "unit_outcomes", outcomeColumns, fields,
		"id = ? AND unit_id IN (SELECT id FROM curriculum_units WHERE curriculum_id = ?)", outcomeID, curriculumID)
}

func (m *txCurriculumMutator) DeleteOutcome(ctx context.Context, curriculumID, outcomeID string) error {
	return m.exec(ctx, `DELETE FROM unit_outcomes
	WHERE id = $1 AND unit_id IN (SELECT id FROM curriculum_units WHERE curriculum_id = $2)`, outcomeID, curriculumID)
}

func (m *txCurriculumMutator) UpdateCurriculum(ctx context.Context, curriculumID string, fields map[string]interface{}) error {
	return m.update(ctx, "curricula", curriculumColumns, fields, "id = ?", curriculumID)
}

func (m *txCurriculumMutator) update(ctx context.Context, table string, allowed map[string]string, fields map[string]interface{}, where string, args ...interface{}) error {
	cols, vals, err := pickColumns(fields, allowed)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("%w: no editable %s fields provided", ErrInvalidChange, table)
	}
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	if table == "curricula" {
		sets = append(sets, "updated_at = ?")
		vals = append(vals, m.now().UTC())
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
	return m.exec(ctx, m.tx.Rebind(query), append(vals, args...)...)
}

func (m *txCurriculumMutator) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := m.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply curriculum change: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check curriculum change rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// pickColumns maps payload keys onto whitelisted columns in a stable order.
// Nested objects are rejected because the editable columns are all scalars.
func pickColumns(fields map[string]interface{}, allowed map[string]string) ([]string, []interface{}, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	seen := make(map[string]struct{}, len(keys))
	cols := make([]string, 0, len(keys))
	vals := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		col, ok := allowed[k]
		if !ok {
			continue
		}
		if _, dup := seen[col]; dup {
			continue
		}
		switch fields[k].(type) {
		case map[string]interface{}, []interface{}:
			return nil, nil, fmt.Errorf("%w: field %s must be a scalar", ErrInvalidChange, k)
		}
		seen[col] = struct{}{}
		cols = append(cols, col)
		vals = append(vals, fields[k])
	}
	return cols, vals, nil
}

func insertStatement(table string, cols []string) string {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

func stringField(fields map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
