package docs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRuleDocs(t *testing.T) {
	page, err := GetPage("package_checksum_mismatch")
	require.NoError(t, err)

	assert.True(t,
		strings.HasPrefix(page.Content, "## Description"),
		"content should be trimmed '%s'...", page.Content[0:10],
	)
	assert.Equal(t, "Package Checksum Mismatch", page.Title)
	assert.Equal(t, "error", page.Severity)
	assert.Equal(t, "package_checksum_mismatch", page.Rule)
	assert.NotEmpty(t, page.Description)
}

func TestGetPages(t *testing.T) {
	assert.Equal(t, []string{"package_checksum_mismatch", "package_unknown"}, RuleIds())

	contents := GetPagesContent()
	assert.Len(t, contents, 2)
	assert.Contains(t, contents["package_unknown"], "integrity snapshot")

	_, err := GetPage("does_not_exist")
	assert.Error(t, err)
}
