package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a dragon, 16:9", Normalize("  a\tdragon,\n 16:9 "))
	// Full-width characters fold to ASCII under NFKC.
	assert.Equal(t, "ABC 3s", Normalize("ＡＢＣ ３s"))
}

func TestDictionary_Apply(t *testing.T) {
	d := NewDictionary(map[string]string{
		"drache": "dragon",
		"Katze":  "cat",
		"":       "ignored",
	})
	assert.Equal(t, 2, d.Len())

	tests := []struct {
		in, want string
	}{
		{"ein Drache, 16:9", "ein dragon, 16:9"},
		{"(katze)", "(cat)"},
		{"drachenflug", "drachenflug"},
		{"  DRACHE!  und  Katze.", "dragon! und cat."},
		{"über die Brücke", "über die Brücke"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Apply(tt.in))
		})
	}
}

func TestDictionary_MultibyteWords(t *testing.T) {
	d := NewDictionary(map[string]string{"brücke": "bridge"})
	assert.Equal(t, "a bridge.", d.Apply("a Brücke."))
	assert.Equal(t, "bridge", d.Transform()("brücke"))
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, " x ", Identity(" x "))
}

func TestLoadDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.yaml")
	require.NoError(t, os.WriteFile(path, []byte("drache: dragon\nhund: dog\n"), 0o600))

	d, err := LoadDictionary(path)
	require.NoError(t, err)
	assert.Equal(t, "dragon and dog", d.Apply("drache and hund"))

	_, err = LoadDictionary(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- just\n- a list\n"), 0o600))
	_, err = LoadDictionary(bad)
	assert.Error(t, err)
}
