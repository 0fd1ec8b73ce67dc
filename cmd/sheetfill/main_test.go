package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peopleCSV = "Name,Age,City\nAlice,30,\nBob,,London\n"

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStats(t *testing.T) {
	input := writeInput(t, "people.csv", peopleCSV)

	out, err := run(t, "stats", input)
	require.NoError(t, err)

	assert.Contains(t, out, "people")
	assert.Contains(t, out, "Rows: 2  Incomplete: 2  Missing: 100%  Complete: 0%")
	assert.Contains(t, out, "Age")
	assert.Contains(t, out, "City")
}

func TestRecords(t *testing.T) {
	input := writeInput(t, "people.csv", peopleCSV)

	out, err := run(t, "records", input, "--search", "LONDON")
	require.NoError(t, err)
	assert.Contains(t, out, "Bob")
	assert.NotContains(t, out, "Alice")

	out, err = run(t, "records", input, "-s", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching records")
}

func TestExport(t *testing.T) {
	input := writeInput(t, "people.csv", peopleCSV)
	outDir := t.TempDir()

	out, err := run(t, "export", input, "--mode", "missing", "--format", "csv", "--out", outDir)
	require.NoError(t, err)

	path := filepath.Join(outDir, "people_missing.csv")
	assert.Contains(t, out, "Wrote 2 rows to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, peopleCSV, string(data))
}

func TestExport_EmptySelectionWritesNothing(t *testing.T) {
	input := writeInput(t, "done.csv", "Name,Age\nAlice,30\n")
	outDir := t.TempDir()

	_, err := run(t, "export", input, "--mode", "missing", "--out", outDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXP001")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFill(t *testing.T) {
	input := writeInput(t, "people.csv", peopleCSV)
	outDir := t.TempDir()

	out, err := run(t, "fill", input,
		"--record", "1",
		"--set", "Age=25",
		"--set", "City=Paris",
		"--mode", "missing",
		"--format", "csv",
		"--out", outDir,
	)
	require.NoError(t, err)

	assert.Contains(t, out, `Filled Age = "25"`)
	assert.Contains(t, out, "Skipped: City")
	assert.Contains(t, out, "Incomplete rows: 1 of 2 (50% complete)")

	data, err := os.ReadFile(filepath.Join(outDir, "people_missing.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Name,Age,City\nAlice,30,\n", string(data))
}

func TestFill_NothingToFill(t *testing.T) {
	input := writeInput(t, "people.csv", peopleCSV)

	out, err := run(t, "fill", input, "--record", "0", "--set", "Name=Zed", "--out", t.TempDir())
	require.NoError(t, err)

	assert.Contains(t, out, "No fields filled")
	assert.Contains(t, out, "Skipped: Name")
	assert.NotContains(t, out, "Filled ")
}

func TestFill_Errors(t *testing.T) {
	input := writeInput(t, "people.csv", peopleCSV)

	_, err := run(t, "fill", input, "--record", "9", "--set", "Age=1", "--out", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REC001")

	_, err = run(t, "fill", input, "--record", "0", "--set", "Age")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want Header=Value")

	_, err = run(t, "fill", input, "--set", "Age=1")
	require.Error(t, err)
}

func TestUnsupportedInput(t *testing.T) {
	input := writeInput(t, "notes.pdf", "%PDF")

	_, err := run(t, "stats", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FILE002")
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"Age=25", " Note =a=b", "Empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Age": "25", "Note": "a=b", "Empty": ""}, got)

	_, err = parseAssignments([]string{"=x"})
	assert.Error(t, err)
}
