package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// ChangeType enumerates field-level changes against a published curriculum.
type ChangeType string

const (
	ChangeTypeUnitAdd        ChangeType = "unit_add"
	ChangeTypeUnitEdit       ChangeType = "unit_edit"
	ChangeTypeUnitDelete     ChangeType = "unit_delete"
	ChangeTypeOutcomeAdd     ChangeType = "outcome_add"
	ChangeTypeOutcomeEdit    ChangeType = "outcome_edit"
	ChangeTypeOutcomeDelete  ChangeType = "outcome_delete"
	ChangeTypeCurriculumEdit ChangeType = "curriculum_edit"
)

// ChangeKind is the operation family of a change type.
type ChangeKind string

const (
	ChangeKindAdd     ChangeKind = "add"
	ChangeKindEdit    ChangeKind = "edit"
	ChangeKindDelete  ChangeKind = "delete"
	ChangeKindUnknown ChangeKind = ""
)

// Kind derives the operation family from the type suffix.
func (t ChangeType) Kind() ChangeKind {
	switch {
	case strings.HasSuffix(string(t), "_add"):
		return ChangeKindAdd
	case strings.HasSuffix(string(t), "_edit"):
		return ChangeKindEdit
	case strings.HasSuffix(string(t), "_delete"):
		return ChangeKindDelete
	}
	return ChangeKindUnknown
}

// Valid reports whether the change type is supported.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeTypeUnitAdd, ChangeTypeUnitEdit, ChangeTypeUnitDelete,
		ChangeTypeOutcomeAdd, ChangeTypeOutcomeEdit, ChangeTypeOutcomeDelete,
		ChangeTypeCurriculumEdit:
		return true
	}
	return false
}

// ChangeStatus captures the binary pending/resolved workflow of change requests.
type ChangeStatus string

const (
	ChangeStatusPending   ChangeStatus = "pending"
	ChangeStatusApplied   ChangeStatus = "applied"
	ChangeStatusDiscarded ChangeStatus = "discarded"
)

// ChangePayload carries {data} for add/delete and {before, after} for edits.
type ChangePayload struct {
	Data   map[string]interface{} `json:"data,omitempty"`
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ChangeRequest is a proposed mutation to an already-published curriculum.
type ChangeRequest struct {
	ID             string          `db:"id" json:"id"`
	CurriculumID   string          `db:"curriculum_id" json:"curriculumId"`
	OrganizationID string          `db:"organization_id" json:"organizationId"`
	CourseName     string          `db:"course_name" json:"courseName"`
	ChangeType     ChangeType      `db:"change_type" json:"changeType"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	RequestedBy    string          `db:"requested_by" json:"requestedBy"`
	RequesterName  string          `db:"requester_name" json:"requesterName"`
	Message        string          `db:"message" json:"message"`
	RequestedAt    time.Time       `db:"requested_at" json:"requestedAt"`
	Status         ChangeStatus    `db:"status" json:"status"`
	ReviewNotes    *string         `db:"review_notes" json:"reviewNotes,omitempty"`
	ReviewedBy     *string         `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time      `db:"reviewed_at" json:"reviewedAt,omitempty"`
}

// DecodePayload parses the raw payload.
func (c *ChangeRequest) DecodePayload() (ChangePayload, error) {
	var payload ChangePayload
	if len(c.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(c.Payload, &payload); err != nil {
		return ChangePayload{}, err
	}
	return payload, nil
}

// FieldChange is one rendered field of a change review.
type FieldChange struct {
	Field   string      `json:"field"`
	Before  interface{} `json:"before,omitempty"`
	After   interface{} `json:"after,omitempty"`
	Value   interface{} `json:"value,omitempty"`
	Changed bool        `json:"changed"`
	Nested  bool        `json:"nested,omitempty"`
}

// ChangeView is the review rendering of a change payload.
type ChangeView struct {
	ChangeID string        `json:"changeId"`
	Type     ChangeType    `json:"changeType"`
	Kind     ChangeKind    `json:"kind"`
	Fields   []FieldChange `json:"fields"`
}

// IsNested reports whether a decoded JSON value is an object or array.
func IsNested(value interface{}) bool {
	switch value.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}

// DiffFields compares before and after key by key in sorted key order. A field
// is changed when its scalar values differ; nested values are flagged and
// never compared.
func DiffFields(before, after map[string]interface{}) []FieldChange {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}
	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	fields := make([]FieldChange, 0, len(ordered))
	for _, k := range ordered {
		b, a := before[k], after[k]
		nested := IsNested(b) || IsNested(a)
		fields = append(fields, FieldChange{
			Field:   k,
			Before:  b,
			After:   a,
			Nested:  nested,
			Changed: !nested && b != a,
		})
	}
	return fields
}

// ListFields renders the fields of a single entity snapshot in sorted order.
func ListFields(data map[string]interface{}) []FieldChange {
	ordered := make([]string, 0, len(data))
	for k := range data {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)
	fields := make([]FieldChange, 0, len(ordered))
	for _, k := range ordered {
		fields = append(fields, FieldChange{Field: k, Value: data[k], Nested: IsNested(data[k])})
	}
	return fields
}
