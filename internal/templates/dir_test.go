package templates

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	root := filepath.Join(t.TempDir(), "templates")
	lib := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(lib, "cisco_ios_show_clock.textfsm"), []byte("Value TIME (\\S+)\n"), 0o644))
	d, err := NewDir(root, lib)
	require.NoError(t, err)
	return d
}

func TestTemplateName(t *testing.T) {
	assert.Equal(t, "cisco_ios_show_version.textfsm", TemplateName("cisco_ios", "show version"))
	assert.Equal(t, "d_show_ip_int_br___i_up.textfsm", TemplateName("D", "show ip int br | i up"))
	assert.Equal(t, "d_show____etc.textfsm", TemplateName("d", "show ../etc"))
}

func TestPushTemplate(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	res := d.PushTemplate(ctx, "cisco_ios", "show version", "Value V (\\S+)\n")
	require.False(t, res.Failed(), "%v", res.Data)

	b, err := os.ReadFile(filepath.Join(d.Root, "cisco_ios_show_version.textfsm"))
	require.NoError(t, err)
	assert.Equal(t, "Value V (\\S+)\n", string(b))

	index, err := os.ReadFile(filepath.Join(d.Root, IndexFile))
	require.NoError(t, err)
	assert.Equal(t, "Template, Hostname, Platform, Command\n\ncisco_ios_show_version.textfsm, .*, cisco_ios, show version\n", string(index))

	// Pushing again replaces, no duplicate index row.
	res = d.PushTemplate(ctx, "cisco_ios", "show version", "Value W (\\S+)\n")
	require.False(t, res.Failed())
	list := d.ListTemplates(ctx)
	assert.Equal(t, map[string][]string{"cisco_ios": {"show version"}}, list.Data)
}

func TestPushTemplate_RequiresText(t *testing.T) {
	d := newTestDir(t)
	res := d.PushTemplate(context.Background(), "cisco_ios", "show version", "")
	assert.True(t, res.Failed())
}

func TestAddTemplate_FromLibrary(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	res := d.AddTemplate(ctx, "cisco_ios_show_clock", "cisco_ios", "show clock", "")
	require.False(t, res.Failed(), "%v", res.Data)

	b, err := os.ReadFile(filepath.Join(d.Root, "cisco_ios_show_clock.textfsm"))
	require.NoError(t, err)
	assert.Equal(t, "Value TIME (\\S+)\n", string(b))
}

func TestAddTemplate_InlineText(t *testing.T) {
	d := newTestDir(t)
	res := d.AddTemplate(context.Background(), "k", "d", "show x", "Value X (.*)\n")
	require.False(t, res.Failed())

	_, err := os.Stat(filepath.Join(d.Root, "d_show_x.textfsm"))
	assert.NoError(t, err)
}

func TestAddTemplate_Errors(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	assert.True(t, d.AddTemplate(ctx, "missing", "d", "show x", "").Failed())
	assert.True(t, d.AddTemplate(ctx, "../escape", "d", "show x", "").Failed())
	assert.True(t, d.AddTemplate(ctx, "k", "", "show x", "text").Failed())

	noLib, err := NewDir(t.TempDir(), "")
	require.NoError(t, err)
	res := noLib.AddTemplate(ctx, "k", "d", "show x", "")
	assert.True(t, res.Failed())
	assert.Contains(t, res.Data, "no template library")
}

func TestRemoveTemplate(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	require.False(t, d.PushTemplate(ctx, "d", "show x", "X").Failed())
	require.False(t, d.PushTemplate(ctx, "d", "show y", "Y").Failed())

	res := d.RemoveTemplate(ctx, "d_show_x.textfsm")
	require.False(t, res.Failed(), "%v", res.Data)

	_, err := os.Stat(filepath.Join(d.Root, "d_show_x.textfsm"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, map[string][]string{"d": {"show y"}}, d.ListTemplates(ctx).Data)

	// Extension is optional.
	require.False(t, d.RemoveTemplate(ctx, "d_show_y").Failed())
	assert.Equal(t, map[string][]string{}, d.ListTemplates(ctx).Data)
}

func TestRemoveTemplate_Errors(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	assert.True(t, d.RemoveTemplate(ctx, "").Failed())
	assert.True(t, d.RemoveTemplate(ctx, "../index").Failed())
	assert.True(t, d.RemoveTemplate(ctx, ".hidden").Failed())
	assert.True(t, d.RemoveTemplate(ctx, "nope.textfsm").Failed())
}

func TestListTemplates_Empty(t *testing.T) {
	d := newTestDir(t)
	res := d.ListTemplates(context.Background())
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, map[string][]string{}, res.Data)
}

func TestPushTemplate_RejectsValuesThatBreakTheIndex(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		command string
	}{
		{"newline in command", "cisco_ios", "show\nversion"},
		{"carriage return in command", "cisco_ios", "show version\r"},
		{"comma in driver", "cisco,ios", "show version"},
		{"newline in driver", "cisco\nios", "show version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDir(t)
			ctx := context.Background()

			res := d.PushTemplate(ctx, tt.driver, tt.command, "Value V (\\S+)\n")
			require.True(t, res.Failed())
			assert.Contains(t, res.Data, "not allowed in the index")
			_, err := os.Stat(filepath.Join(d.Root, TemplateName(tt.driver, tt.command)))
			assert.True(t, os.IsNotExist(err), "no template file is written")

			// The store stays usable for later entries.
			require.False(t, d.PushTemplate(ctx, "cisco_ios", "show clock", "Value T (\\S+)\n").Failed())
			assert.Equal(t, map[string][]string{"cisco_ios": {"show clock"}}, d.ListTemplates(ctx).Data)
		})
	}
}

func TestAddTemplate_RejectsValuesThatBreakTheIndex(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	assert.True(t, d.AddTemplate(ctx, "k", "d", "show\nx", "Value X (.*)\n").Failed())
	assert.True(t, d.AddTemplate(ctx, "k", "a,b", "show x", "Value X (.*)\n").Failed())
	assert.Equal(t, map[string][]string{}, d.ListTemplates(ctx).Data)
}

func TestPushTemplate_CommaInCommandRoundTrips(t *testing.T) {
	d := newTestDir(t)
	ctx := context.Background()

	require.False(t, d.PushTemplate(ctx, "d", "show int | i up,down", "X").Failed())
	require.False(t, d.PushTemplate(ctx, "d", "show clock", "Y").Failed())
	assert.Equal(t, map[string][]string{"d": {"show clock", "show int | i up,down"}}, d.ListTemplates(ctx).Data)
}

func TestWriteIndex_RefusesMultiLineRows(t *testing.T) {
	d := newTestDir(t)
	err := d.writeIndex([]indexRow{{Template: "t.textfsm", Hostname: ".*", Platform: "d", Command: "show\nx"}})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(d.Root, IndexFile))
	assert.True(t, os.IsNotExist(statErr), "index must not be written")
}
