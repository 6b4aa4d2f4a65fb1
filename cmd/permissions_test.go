package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/openperm/pkg/authz"
)

const testDefinitions = `
bundles:
  - bundle: lead
    extended: {names: [leads]}
    standard: {names: [categories]}
    manage: [imports]
  - bundle: page
    standard: {names: [pages], publish: true}
`

func writeDefinitions(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "permissions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDefinitions), 0o600))
	return path
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestExpandCommand(t *testing.T) {
	out, err := executeRoot(t, "expand", "--definitions", writeDefinitions(t), "lead:leads:deleteother")
	require.NoError(t, err)

	assert.Contains(t, out, "lead:categories = 4 [view]\n")
	assert.Contains(t, out, "lead:leads = 150 [deleteother,editother,viewother,viewown]\n")
}

func TestRatioCommand(t *testing.T) {
	out, err := executeRoot(t, "ratio", "--definitions", writeDefinitions(t), "--expand", "page:pages:edit")
	require.NoError(t, err)

	assert.Contains(t, out, "page\t2/5\n")
	assert.Contains(t, out, "lead\t0/12\n")
}

func TestCheckCommand(t *testing.T) {
	out, err := executeRoot(t, "check", "--definitions", writeDefinitions(t),
		"--grant", "lead:leads=0b10", "--grant", "lead:imports=1024",
		"lead:leads:viewown", "lead:imports:manage", "lead:leads:viewother",
	)
	require.EqualError(t, err, "1 of 3 permission(s) denied")

	assert.Contains(t, out, "lead:leads:viewown\tgranted\n")
	assert.Contains(t, out, "lead:imports:manage\tgranted\n")
	assert.Contains(t, out, "lead:leads:viewother\tdenied\n")
}

func TestLoadRegistryRequiresPath(t *testing.T) {
	t.Setenv("OPENPERM_DEFINITIONS", "")

	_, err := loadRegistry(rootCmd, "")
	require.ErrorContains(t, err, "missing definitions")
}

func TestParseSelectionArgs(t *testing.T) {
	selection, err := parseSelectionArgs([]string{"lead:leads:viewown", "lead:leads:editown", "page:pages:view"})
	require.NoError(t, err)
	assert.Equal(t, authz.Selection{
		"lead": {"leads": {authz.LevelViewOwn, authz.LevelEditOwn}},
		"page": {"pages": {authz.LevelView}},
	}, selection)

	_, err = parseSelectionArgs([]string{"lead:leads"})
	require.ErrorIs(t, err, authz.ErrInvalidPermission)
}

func TestParseGrantArgs(t *testing.T) {
	grants, err := parseGrantArgs([]string{"lead:leads=6", "lead:leads=0x400", " page:pages = 0b100 "})
	require.NoError(t, err)
	assert.Equal(t, authz.Grants{
		"lead": {"leads": 6 | 1024},
		"page": {"pages": 4},
	}, grants)

	for _, arg := range []string{"lead:leads", "lead=4", ":leads=4", "lead:leads:view=4", "lead:leads=-1", "lead:leads=many"} {
		t.Run(arg, func(t *testing.T) {
			_, err := parseGrantArgs([]string{arg})
			require.Error(t, err)
		})
	}
}
