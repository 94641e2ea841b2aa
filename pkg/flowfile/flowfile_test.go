package flowfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowsJSON = `[
  {"id": "f1", "type": "tab", "label": "Main"},
  {"id": "n1", "type": "inject", "z": "f1", "payload": "hello", "wires": [["n2"]]},
  {"id": "n2", "type": "debug", "z": "f1", "wires": []}
]`

const flowsYAML = `
- id: f1
  type: tab
  label: Main
- id: n1
  type: inject
  z: f1
  repeat: 5
  wires:
    - [n2]
- id: n2
  type: debug
  z: f1
`

func TestParse_JSON(t *testing.T) {
	items, err := Parse([]byte(flowsJSON), FormatJSON)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.True(t, items[0].IsTab())
	assert.Equal(t, "Main", items[0].Label)
	assert.Equal(t, "f1", items[1].FlowID())
	assert.Equal(t, [][]string{{"n2"}}, items[1].Wires)
	assert.Equal(t, "hello", items[1].Config["payload"])
	assert.Empty(t, items[2].Wires)
}

func TestParse_YAML(t *testing.T) {
	items, err := Parse([]byte(flowsYAML), FormatYAML)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, []string{"f1", "n1", "n2"}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, [][]string{{"n2"}}, items[1].Wires)
	assert.Equal(t, 5, items[1].Config["repeat"])
}

func TestParse_Envelope(t *testing.T) {
	items, err := Parse([]byte(`{"rev": "abc", "flows": `+flowsJSON+`}`), FormatJSON)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `[{`},
		{"not an array", `{"id": "n1"}`},
		{"missing id", `[{"type": "debug"}]`},
		{"missing type", `[{"id": "n1"}]`},
		{"empty id", `[{"id": "", "type": "debug"}]`},
		{"wires not nested", `[{"id": "n1", "type": "debug", "wires": ["n2"]}]`},
		{"links not strings", `[{"id": "n1", "type": "link out", "links": [1]}]`},
		{"disabled not bool", `[{"id": "f1", "type": "tab", "disabled": "yes"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), FormatJSON)
			assert.ErrorIs(t, err, ErrInvalidFlowFile)
		})
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := Parse([]byte(flowsJSON), Format("toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "flows.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(flowsJSON), 0o600))

	yamlPath := filepath.Join(dir, "flows.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(flowsYAML), 0o600))

	fromJSON, err := Load(jsonPath)
	require.NoError(t, err)

	fromYAML, err := Load(yamlPath)
	require.NoError(t, err)

	assert.Len(t, fromJSON, 3)
	assert.Len(t, fromYAML, 3)

	_, err = Load(filepath.Join(dir, "flows.txt"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
