package registry

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := []byte(`{
  "nnsdao": { "ic": "fqnb7-aaaaa-aaaai-aatsa-cai", "staging": "x5pps-pqaaa-aaaab-qadbq-cai" },
  "ledger": { "staging": "ryjl3-tyaaa-aaaaa-aaaba-cai" },
  "assets": "qoctq-giaaa-aaaaa-aaaea-cai"
}`)

	reg, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, reg.Entries, 3)
	assert.Equal(t, []string{"assets", "ledger", "nnsdao"}, reg.Names())

	byName := make(map[string]Entry)
	for _, e := range reg.Entries {
		byName[e.Name] = e
	}

	id, ok := byName["nnsdao"].ProductionID("ic")
	assert.True(t, ok)
	assert.Equal(t, "fqnb7-aaaaa-aaaai-aatsa-cai", id)

	_, ok = byName["ledger"].ProductionID("ic")
	assert.False(t, ok, "entry without ic id must have no production id")

	_, ok = byName["assets"].ProductionID("ic")
	assert.False(t, ok, "plain string entry must have no production id")
	assert.Equal(t, "qoctq-giaaa-aaaaa-aaaea-cai", byName["assets"].Raw)
}

func TestParse_EmptyProductionID(t *testing.T) {
	reg, err := Parse([]byte(`{"nnsdao": {"ic": ""}}`))
	require.NoError(t, err)

	_, ok := reg.Entries[0].ProductionID("ic")
	assert.False(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{"nnsdao": `},
		{name: "array root", data: `["nnsdao"]`},
		{name: "numeric value", data: `{"nnsdao": 42}`},
		{name: "nested numeric id", data: `{"nnsdao": {"ic": 42}}`},
		{name: "nested object id", data: `{"nnsdao": {"ic": {"id": "x"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRegistry)
		})
	}
}

func TestLoad(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "canister_ids.json", []byte(`{"nnsdao": {"ic": "fqnb7-aaaaa-aaaai-aatsa-cai"}}`), 0644))

	reg, err := Load(fsys, "canister_ids.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"nnsdao"}, reg.Names())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(memfs.New(), "canister_ids.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
