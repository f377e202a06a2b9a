package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownKeys_MatchConfigTags(t *testing.T) {
	assert.Contains(t, knownKeys, "backup_dir")
	assert.Contains(t, knownKeys, "log_max_backups")
	assert.Contains(t, knownKeys, "max_retries")
	assert.Len(t, knownKeys, 14)
	assert.True(t, strings.Compare(knownKeys[0], knownKeys[1]) < 0, "sorted")
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	_, err := Load(writeTestConfig(t, "retention_days = 30\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "retention_days"`)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLoad_SuggestsNearbyKey(t *testing.T) {
	_, err := Load(writeTestConfig(t, "backup_dri = \"/srv/drive\"\nmax_retry = 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "backup_dir"`)
	assert.Contains(t, err.Error(), `did you mean "max_retries"`)
}

func TestLoad_NestedTableExplainsFlatLayout(t *testing.T) {
	_, err := Load(writeTestConfig(t, "[logging]\nlog_level = \"debug\"\nlog_file = true\n"))
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(err.Error(), "[logging]"))
	assert.Contains(t, err.Error(), "belong at the top level")
}

func TestEditDistance(t *testing.T) {
	for _, tt := range []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"log_file", "", 8},
		{"", "end_date", 8},
		{"end_data", "end_date", 1},
		{"strat_date", "start_date", 2},
		{"konvertiert", "konvertíert", 1},
	} {
		assert.Equal(t, tt.want, editDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestSuggestKey(t *testing.T) {
	assert.Equal(t, "log_path", suggestKey("log_pth"))
	assert.Equal(t, "converted_dir", suggestKey("convertd_dir"))
	assert.Empty(t, suggestKey("schedule"))
}
