package filetx_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.filetx.dev/core/filetx"
)

func TestCanonicalPathCases(t *testing.T) {
	var cases = []struct {
		in, out string
	}{
		{"/a.txt", "/a.txt"},
		{"/dir//b/../a.txt", "/dir/a.txt"},
		{"/dir/./a.txt", "/dir/a.txt"},
		{"/", "/"},
	}
	for _, tc := range cases {
		var out, err = filetx.CanonicalPath(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.out, out)
	}

	// Empty and relative paths are rejected as validation failures.
	var _, err = filetx.CanonicalPath("")
	require.Equal(t, filetx.KindValidation, filetx.KindOf(err))
	_, err = filetx.CanonicalPath("a.txt")
	require.Equal(t, filetx.KindValidation, filetx.KindOf(err))
}

func TestResolveIsIdempotent(t *testing.T) {
	var reg = filetx.NewRegistry()

	var r1 = reg.Resolve("/a.txt")
	var r2 = reg.Resolve("/a.txt")
	require.True(t, r1 == r2)
	require.Equal(t, "/a.txt", r1.Path())

	// A distinct path resolves a distinct Record.
	require.False(t, r1 == reg.Resolve("/b.txt"))
}

func TestPoisonIsSharedAndTerminal(t *testing.T) {
	var reg = filetx.NewRegistry()

	var r1 = reg.Resolve("/a.txt")
	var r2 = reg.Resolve("/a.txt")
	require.NoError(t, r1.Poisoned())

	reg.Poison("/a.txt", filetx.NewProgrammerError("file was deleted (/a.txt)"))

	// Both resolutions observe the poison, with its stored kind and message.
	for _, r := range []*filetx.Record{r1, r2} {
		var err = r.Poisoned()
		require.Error(t, err)
		require.Equal(t, filetx.KindProgrammer, filetx.KindOf(err))
		require.EqualError(t, err, "file was deleted (/a.txt)")
	}

	// The first poison wins. A second is ignored.
	reg.Poison("/a.txt", filetx.NewProgrammerError("something else"))
	require.EqualError(t, r1.Poisoned(), "file was deleted (/a.txt)")

	// Poisoning an unregistered path is a no-op.
	reg.Poison("/other.txt", filetx.NewProgrammerError("x"))
	require.NoError(t, reg.Resolve("/other.txt").Poisoned())
}

func TestMoveLeavesFreshRecordBehind(t *testing.T) {
	var reg = filetx.NewRegistry()
	var rec = reg.Resolve("/a.txt")

	reg.Move("/a.txt", "/b.txt")

	// The moved Record observes its new path, and resolves at it.
	require.Equal(t, "/b.txt", rec.Path())
	require.True(t, rec == reg.Resolve("/b.txt"))

	// The old path resolves a fresh, live Record rather than inheriting
	// the moved one.
	var fresh = reg.Resolve("/a.txt")
	require.False(t, rec == fresh)
	require.NoError(t, fresh.Poisoned())

	// Moving an unregistered path is a no-op.
	reg.Move("/missing.txt", "/elsewhere.txt")
	require.NoError(t, reg.Resolve("/elsewhere.txt").Poisoned())
}

func TestRecreateDisplacesPoisonedRecord(t *testing.T) {
	var reg = filetx.NewRegistry()

	var old = reg.Resolve("/a.txt")
	reg.Poison("/a.txt", filetx.NewProgrammerError("file was deleted (/a.txt)"))

	var fresh = reg.Recreate("/a.txt")
	require.False(t, old == fresh)
	require.NoError(t, fresh.Poisoned())

	// The displaced holder keeps observing its poison.
	require.Error(t, old.Poisoned())

	// Recreate of a live Record returns it unchanged.
	require.True(t, fresh == reg.Recreate("/a.txt"))
}
