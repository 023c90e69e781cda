package programerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRakurai_ProgramErr_CodeOf(t *testing.T) {
	t.Parallel()

	custom := New(CustomOffset+3, "Unauthorized", "Unauthorized signer.")

	t.Run("wrapped error keeps code", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("failed to close: %w", custom)
		code, ok := CodeOf(err)
		require.True(t, ok)
		require.Equal(t, uint32(6003), code)
		require.ErrorIs(t, err, custom)
	})

	t.Run("plain error has no code", func(t *testing.T) {
		t.Parallel()
		_, ok := CodeOf(errors.New("boom"))
		require.False(t, ok)
	})

	t.Run("message includes name and code", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "Unauthorized (6003): Unauthorized signer.", custom.Error())
	})
}

func TestRakurai_ProgramErr_Table(t *testing.T) {
	t.Parallel()

	custom := New(CustomOffset, "AccountValidationFailure", "Account failed validation.")
	table := NewTable(custom)

	got, ok := table.Lookup(6000)
	require.True(t, ok)
	require.Same(t, custom, got)

	got, ok = table.Lookup(3007)
	require.True(t, ok)
	require.Same(t, ErrAccountOwnedByWrongProgram, got)

	_, ok = table.Lookup(9999)
	require.False(t, ok)
}
