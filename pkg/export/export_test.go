package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Curriculum approvals",
		Headers: []string{"Course", "Status"},
		Rows: []map[string]string{
			{"Course": "Data Structures", "Status": "published"},
			{"Course": "Thermodynamics, Intro", "Status": "pending_approval"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Course,Status\nData Structures,published\n\"Thermodynamics, Intro\",pending_approval\n", string(out))
}

func TestCSVExporterNeutralizesFormulas(t *testing.T) {
	data := Dataset{
		Title:   "Approvals org-1",
		Headers: []string{"Course", "Requested By"},
		Rows:    []map[string]string{{"Course": "=HYPERLINK(\"x\")", "Requested By": "-dean"}},
	}
	out, err := (&CSVExporter{WithTitle: true}).Render(data)
	require.NoError(t, err)
	assert.Equal(t, "Approvals org-1\nCourse,Requested By\n\"'=HYPERLINK(\"\"x\"\")\",'-dean\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 50))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 18.2))
}
