package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		Title:   "User Roster",
		Headers: []string{"Email", "Role"},
		Rows: [][]string{
			{"ada@x.com", "parent"},
			{"root@x.com", "super_admin"},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	out, err := Render(FormatCSV, sampleTable())
	require.NoError(t, err)
	assert.Equal(t, "Email,Role\nada@x.com,parent\nroot@x.com,super_admin\n", string(out))
}

func TestRenderPDF(t *testing.T) {
	out, err := Render(FormatPDF, sampleTable())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsRaggedRows(t *testing.T) {
	table := sampleTable()
	table.Rows = append(table.Rows, []string{"only-one"})
	_, err := Render(FormatCSV, table)
	assert.Error(t, err)

	_, err = Render(FormatCSV, Table{})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
