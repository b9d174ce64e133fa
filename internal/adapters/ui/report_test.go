package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

func init() {
	pterm.DisableStyling()
}

func sampleReport() *core.Report {
	return &core.Report{
		TxID:     "3f1c9a52",
		Duration: 42,
		Items: []core.ItemReport{
			{
				ID: "salt-testvm6-prefs", Function: "qvm.prefs", Name: "salt-testvm6",
				Result: true, Changed: true, Comment: "[SKIP] memory             : 400\nmaxmem             : 4000",
				Changes: map[string]core.Change{"maxmem": {Old: "8000", New: "4000"}},
			},
			{ID: "work", Function: "qvm.start", Name: "work", Result: false, Comment: "VM does not exist"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, FormatJSON, sampleReport()))

	var back core.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "3f1c9a52", back.TxID)
	assert.Len(t, back.Items, 2)

	buf.Reset()
	require.NoError(t, Encode(&buf, FormatYAML, sampleReport()))
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "3f1c9a52", doc["tx_id"])

	assert.Error(t, Encode(&buf, FormatText, nil))
}

func TestRenderReport(t *testing.T) {
	var buf bytes.Buffer
	u := NewPtermUI(&buf)

	require.NoError(t, RenderReport(u, sampleReport()))
	out := buf.String()
	assert.Contains(t, out, "          ID: salt-testvm6-prefs")
	assert.Contains(t, out, "    Function: qvm.prefs")
	assert.Contains(t, out, "      Result: False")
	assert.Contains(t, out, "     Comment: [SKIP] memory             : 400\n              maxmem             : 4000")
	assert.Contains(t, out, "              maxmem:\n                  old: 8000\n                  new: 4000")
	assert.Contains(t, out, "Summary (tx 3f1c9a52)")
}

func TestRenderDrift(t *testing.T) {
	var buf bytes.Buffer
	u := NewPtermUI(&buf)

	require.NoError(t, RenderDrift(u, []core.DriftResult{
		{ID: "work", Function: "qvm.prefs", Name: "work", Status: core.StatusDrifted, Detail: "maxmem\nmore"},
	}))
	assert.Contains(t, buf.String(), "Drifted")
	assert.Contains(t, buf.String(), "maxmem …")
	assert.NotContains(t, buf.String(), "more")
}
