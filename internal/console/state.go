// Package console implements the reviewer console: per-reviewer sessions
// holding view state, loaded approval data and change-event listeners.
package console

import (
	"fmt"
	"strings"

	"github.com/noah-isme/syllabus-approval-api/internal/models"
)

// Tab selects the console list being reviewed.
type Tab string

const (
	TabApprovals Tab = "approvals"
	TabChanges   Tab = "changes"
)

// PageSize is the number of records shown per console page.
const PageSize = 10

// ViewState is the serializable state of one console view.
type ViewState struct {
	OrgID              string                `json:"orgId"`
	ActiveTab          Tab                   `json:"activeTab"`
	Filter             models.ApprovalFilter `json:"filter"`
	Search             string                `json:"search,omitempty"`
	Page               int                   `json:"page"`
	DetailCurriculumID string                `json:"detailCurriculumId,omitempty"`
}

// NewViewState opens the approvals tab of an organization.
func NewViewState(orgID string) ViewState {
	return ViewState{OrgID: orgID, ActiveTab: TabApprovals, Page: 1}
}

// ActionType names a view transition.
type ActionType string

const (
	ActionSelectTab   ActionType = "select_tab"
	ActionSetFilter   ActionType = "set_filter"
	ActionSetSearch   ActionType = "set_search"
	ActionSetPage     ActionType = "set_page"
	ActionOpenDetail  ActionType = "open_detail"
	ActionCloseDetail ActionType = "close_detail"
	ActionSwitchOrg   ActionType = "switch_org"
)

// Action is one reviewer interaction with the view.
type Action struct {
	Type         ActionType
	Tab          Tab
	Filter       models.ApprovalFilter
	Search       string
	Page         int
	CurriculumID string
	OrgID        string
}

// Reduce applies action to state and returns the next state. It never
// mutates its input and performs no I/O.
func Reduce(state ViewState, action Action) (ViewState, error) {
	next := state
	switch action.Type {
	case ActionSelectTab:
		if action.Tab != TabApprovals && action.Tab != TabChanges {
			return state, fmt.Errorf("unknown tab %q", action.Tab)
		}
		next.ActiveTab = action.Tab
		next.Page = 1
	case ActionSetFilter:
		if _, err := action.Filter.Query(0); err != nil {
			return state, err
		}
		next.Filter = action.Filter
		next.Page = 1
	case ActionSetSearch:
		next.Search = strings.TrimSpace(action.Search)
		next.Page = 1
	case ActionSetPage:
		if action.Page < 1 {
			return state, fmt.Errorf("page must be at least 1")
		}
		next.Page = action.Page
	case ActionOpenDetail:
		if strings.TrimSpace(action.CurriculumID) == "" {
			return state, fmt.Errorf("curriculum id is required")
		}
		next.DetailCurriculumID = action.CurriculumID
	case ActionCloseDetail:
		next.DetailCurriculumID = ""
	case ActionSwitchOrg:
		if strings.TrimSpace(action.OrgID) == "" {
			return state, fmt.Errorf("organization id is required")
		}
		next = NewViewState(action.OrgID)
		next.ActiveTab = state.ActiveTab
	default:
		return state, fmt.Errorf("unknown action %q", action.Type)
	}
	return next, nil
}

// Effects lists the loads a transition from prev to next requires.
type Effects struct {
	SwitchOrg  bool
	Approvals  bool
	Statistics bool
	Changes    bool
	Detail     bool
	DropDetail bool
}

// Diff derives the effects of moving from prev to next.
func Diff(prev, next ViewState) Effects {
	var fx Effects
	if prev.OrgID != next.OrgID {
		fx.SwitchOrg = true
		fx.Approvals = true
		fx.Statistics = true
		fx.Changes = true
		fx.DropDetail = prev.DetailCurriculumID != ""
		return fx
	}
	if prev.ActiveTab != next.ActiveTab {
		switch next.ActiveTab {
		case TabApprovals:
			fx.Approvals = true
			fx.Statistics = true
		case TabChanges:
			fx.Changes = true
		}
	}
	if prev.Filter != next.Filter {
		fx.Approvals = true
	}
	if next.DetailCurriculumID != "" && prev.DetailCurriculumID != next.DetailCurriculumID {
		fx.Detail = true
	}
	if next.DetailCurriculumID == "" && prev.DetailCurriculumID != "" {
		fx.DropDetail = true
	}
	return fx
}

// MatchesSearch reports whether an approval record matches a free-text search
// over course name, course code and college.
func MatchesSearch(record models.CurriculumApprovalRequest, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, field := range []string{record.CourseName, record.CourseCode, record.CollegeName} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// Paginate applies search and the page window to the loaded records.
func Paginate(records []models.CurriculumApprovalRequest, search string, page int) ([]models.CurriculumApprovalRequest, models.Pagination) {
	matched := make([]models.CurriculumApprovalRequest, 0, len(records))
	for _, r := range records {
		if MatchesSearch(r, search) {
			matched = append(matched, r)
		}
	}
	if page < 1 {
		page = 1
	}
	meta := models.NewPagination(page, PageSize, len(matched))
	start := (page - 1) * PageSize
	if start >= len(matched) {
		return []models.CurriculumApprovalRequest{}, meta
	}
	end := start + PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], meta
}
