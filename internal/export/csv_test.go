package export

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCSV_LineCount(t *testing.T) {
	headers := []string{"name", "city"}
	rows := [][]string{{"Pho Saigon", "Katy"}, {"Taqueria", "Fulshear"}, {"BBQ", "Katy"}}

	out, err := GenerateCSV(headers, rows)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, len(rows)+1)
	assert.Equal(t, "name,city", lines[0])
}

func TestGenerateCSV_Quoting(t *testing.T) {
	headers := []string{"name", "notes"}
	rows := [][]string{
		{"Joe's, Grill", `He said "great"`},
		{"Multi", "line one\nline two"},
		{"Plain", "ok"},
	}

	out, err := GenerateCSV(headers, rows)
	require.NoError(t, err)

	assert.Contains(t, out, `"Joe's, Grill"`)
	assert.Contains(t, out, `"He said ""great"""`)
	assert.Contains(t, out, "\"line one\nline two\"")
	assert.Contains(t, out, "Plain,ok")

	// round trip through a standard reader
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(rows)+1)
	assert.Equal(t, headers, records[0])
	for i, row := range rows {
		assert.Equal(t, row, records[i+1])
	}
}

func TestGenerateCSV_LineBreaksAndEmptyRecords(t *testing.T) {
	rows := [][]string{{"a\r\nb"}, {""}, {"c\rd"}, {"plain"}}

	out, err := GenerateCSV([]string{"h"}, rows)
	require.NoError(t, err)
	assert.Equal(t, "h\n\"a\nb\"\n\"\"\n\"c\rd\"\nplain\n", out)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(rows)+1)
	assert.Equal(t, []string{"a\nb"}, records[1], "CRLF inside a field is written as LF")
	assert.Equal(t, []string{""}, records[2])
	assert.Equal(t, []string{"c\rd"}, records[3])
	assert.Equal(t, []string{"plain"}, records[4])
}

func TestGenerateCSV_EmptyFieldsInWideRows(t *testing.T) {
	out, err := GenerateCSV([]string{"a", "b"}, [][]string{{"", ""}, {"x", ""}})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n,\nx,\n", out)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestGenerateCSV_Empty(t *testing.T) {
	out, err := GenerateCSV([]string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", out)
}

func TestGenerateCSV_RowWidthMismatch(t *testing.T) {
	_, err := GenerateCSV([]string{"a", "b"}, [][]string{{"only-one"}})
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("name,phone\n\"A, B\",123\nC,456\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A, B", rows[0]["name"])
	assert.Equal(t, "456", rows[1]["phone"])
}
