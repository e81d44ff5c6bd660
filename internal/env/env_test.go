package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		in      string
		k, v    string
		matched bool
	}{
		{"FOO=bar", "FOO", "bar", true},
		{"export FOO = bar ", "FOO", "bar", true},
		{`FOO="a # b"`, "FOO", "a # b", true},
		{"FOO='x'", "FOO", "x", true},
		{"FOO=bar # trailing", "FOO", "bar", true},
		{"# comment", "", "", false},
		{"=nokey", "", "", false},
		{"novalue", "", "", false},
	}
	for _, tc := range cases {
		k, v, ok := parseLine(tc.in)
		assert.Equal(t, tc.matched, ok, tc.in)
		assert.Equal(t, tc.k, k, tc.in)
		assert.Equal(t, tc.v, v, tc.in)
	}
}

func TestLoad_PreexistingWinsAndLaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, ".env")
	b := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(a, []byte("CRAFTSHOP_T_A=one\nCRAFTSHOP_T_KEEP=file\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("CRAFTSHOP_T_A=two\nCRAFTSHOP_T_B=three\n"), 0o644))
	t.Setenv("CRAFTSHOP_T_KEEP", "env")
	t.Cleanup(func() {
		_ = os.Unsetenv("CRAFTSHOP_T_A")
		_ = os.Unsetenv("CRAFTSHOP_T_B")
	})

	set := Load(a, filepath.Join(dir, "missing"), b)
	assert.ElementsMatch(t, []string{"CRAFTSHOP_T_A", "CRAFTSHOP_T_B"}, set)
	assert.Equal(t, "two", os.Getenv("CRAFTSHOP_T_A"))
	assert.Equal(t, "three", os.Getenv("CRAFTSHOP_T_B"))
	assert.Equal(t, "env", os.Getenv("CRAFTSHOP_T_KEEP"))
}
