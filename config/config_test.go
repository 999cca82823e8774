package config

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BasicEntries(t *testing.T) {
	src := "worker_count = 8\nenable_numa=true\nname = demo\n"
	f, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 8, f.Int("worker_count", -1))
	assert.True(t, f.Bool("enable_numa", false))
	assert.Equal(t, "demo", f.String("name", ""))
	assert.Equal(t, 3, f.Len())
}

func TestParse_SkipsLinesWithoutEquals(t *testing.T) {
	src := "this line has no equals\nkey=value\n"
	f, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, "value", f.String("key", ""))
}

func TestParse_SkipsOverlongKeyOrValue(t *testing.T) {
	longKey := strings.Repeat("k", MaxKeyLen+1)
	longVal := strings.Repeat("v", MaxValLen+1)
	src := longKey + "=ok\nok=" + longVal + "\nfine=1\n"
	f, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 1, f.Int("fine", 0))
}

func TestParse_TooManyEntries(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxEntries+1; i++ {
		b.WriteString("k")
		b.WriteString(strconv.Itoa(i))
		b.WriteString("=1\n")
	}
	f, err := Parse(strings.NewReader(b.String()))
	assert.ErrorIs(t, err, ErrTooManyEntries)
	assert.Equal(t, MaxEntries, f.Len())
}

func TestFile_DefaultsOnMissingOrMalformed(t *testing.T) {
	f, err := Parse(strings.NewReader("count=notanumber\nflag=notabool\n"))
	require.NoError(t, err)

	assert.Equal(t, 42, f.Int("count", 42))
	assert.Equal(t, true, f.Bool("flag", true))
	assert.Equal(t, "fallback", f.String("missing", "fallback"))
}
