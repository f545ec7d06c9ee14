package directory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstSuccess(t *testing.T) {
	t.Parallel()

	errStop := errors.New("stop")

	t.Run("first success wins", func(t *testing.T) {
		t.Parallel()

		var tried []int

		got, err := firstSuccess([]int{1, 2, 3, 4}, func(c int) (string, error) {
			tried = append(tried, c)
			if c < 3 {
				return "", fmt.Errorf("candidate %d", c)
			}

			return fmt.Sprint(c), nil
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "3", got)
		assert.Equal(t, []int{1, 2, 3}, tried)
	})

	t.Run("exhausted joins every error", func(t *testing.T) {
		t.Parallel()

		errA, errB := errors.New("a"), errors.New("b")
		candidates := map[string]error{"a": errA, "b": errB}

		_, err := firstSuccess([]string{"a", "b"}, func(c string) (int, error) {
			return 0, candidates[c]
		}, nil)
		require.ErrorIs(t, err, errA)
		require.ErrorIs(t, err, errB)
	})

	t.Run("stop ends the iteration", func(t *testing.T) {
		t.Parallel()

		calls := 0

		_, err := firstSuccess([]int{1, 2, 3}, func(int) (int, error) {
			calls++

			return 0, errStop
		}, func(err error) bool {
			return errors.Is(err, errStop)
		})
		require.ErrorIs(t, err, errStop)
		assert.Equal(t, 1, calls)
	})

	t.Run("no candidates", func(t *testing.T) {
		t.Parallel()

		_, err := firstSuccess(nil, func(int) (int, error) {
			t.Fatal("try must not be called")

			return 0, nil
		}, nil)
		require.ErrorIs(t, err, errNoCandidates)
	})
}
