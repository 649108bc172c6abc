package cli

import (
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecLines(t *testing.T) {
	t.Parallel()

	var got []string
	err := ExecLines(strings.NewReader("connect\n\n  params RC \n# comment\nquit"), func(line string) {
		got = append(got, line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"connect", "params RC", "quit"}, got)
}

func TestComplete(t *testing.T) {
	t.Parallel()

	f := Complete([]prompt.Suggest{{Text: "refresh"}, {Text: "params"}, {Text: "quit"}})
	buf := prompt.NewBuffer()
	buf.InsertText("par", false, true)
	got := f(*buf.Document())
	require.Len(t, got, 1)
	assert.Equal(t, "params", got[0].Text)

	buf = prompt.NewBuffer()
	buf.InsertText("params R", false, true)
	assert.Empty(t, f(*buf.Document()))
}
