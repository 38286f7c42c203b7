package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadString(t *testing.T, content string) File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	f, err := Load(path)
	require.NoError(t, err)
	return f
}

func TestLoadParsesBothSeparators(t *testing.T) {
	f := loadString(t, `
# comment line
key_eq = value1
key_colon : value2

quoted = "hello world"
  padded   =   spaced value
`)
	assert.Equal(t, "value1", f.Get("key_eq", ""))
	assert.Equal(t, "value2", f.Get("key_colon", ""))
	assert.Equal(t, "hello world", f.Get("quoted", ""))
	assert.Equal(t, "spaced value", f.Get("padded", ""))
}

func TestLoadIgnoresMalformedLines(t *testing.T) {
	f := loadString(t, `
no separator here
= missing key
good = yes
`)
	assert.Len(t, f, 1)
	assert.Equal(t, "yes", f.Get("good", ""))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	require.Error(t, err)
}

func TestTypedGetters(t *testing.T) {
	f := loadString(t, `
threshold = 1.5
count = 42
flag = true
broken = abc
`)
	assert.Equal(t, 1.5, f.GetFloat("threshold", 0))
	assert.Equal(t, 42, f.GetInt("count", 0))
	assert.True(t, f.GetBool("flag", false))

	assert.Equal(t, 9.9, f.GetFloat("broken", 9.9))
	assert.Equal(t, 7, f.GetInt("missing", 7))
	assert.False(t, f.GetBool("missing", false))
}

func TestSectionExtraction(t *testing.T) {
	f := loadString(t, `
statarbitrage.entry_threshold = 1.3
statarbitrage.pairs = A:B
meanreversion.window = 20
`)
	section := f.Section("statarbitrage")
	assert.Len(t, section, 2)
	assert.Equal(t, "1.3", section["entry_threshold"])
	assert.Equal(t, "A:B", section["pairs"])
	assert.Empty(t, f.Section("nothing"))
}
