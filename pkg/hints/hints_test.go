package hints_test

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/paulschiretz/pgl-buildaux/pkg/hints"
)

func TestHint(t *testing.T) {
	var (
		errMissing   = fs.ErrNotExist
		errAnother   = errors.New("another error")
		errHinted    = hints.Wrap(errMissing)
		errHintedMsg = hints.New("no bitmaps found")
		errFormatted = hints.Newf("search directory %s: %w", "icons", errMissing)
	)

	t.Run("Wrap", func(t *testing.T) {
		if hints.Wrap(nil) != nil {
			t.Error("Wrap(nil) should return nil")
		}
		if errHinted == nil {
			t.Fatal("Wrap(err) should return a non-nil error")
		}
	})

	t.Run("New", func(t *testing.T) {
		if errHintedMsg.Error() != "no bitmaps found" {
			t.Errorf("expected error message %q, got %q", "no bitmaps found", errHintedMsg.Error())
		}
	})

	t.Run("Newf", func(t *testing.T) {
		expected := "search directory icons: " + fs.ErrNotExist.Error()
		if errFormatted.Error() != expected {
			t.Errorf("expected error message %q, got %q", expected, errFormatted.Error())
		}
		if !errors.Is(errFormatted, fs.ErrNotExist) {
			t.Error("Newf should keep %w wrapping intact")
		}
	})

	t.Run("IsHint", func(t *testing.T) {
		testCases := []struct {
			name     string
			err      error
			expected bool
		}{
			{"NilError", nil, false},
			{"StandardError", errMissing, false},
			{"HintedError", errHinted, true},
			{"HintedMsgError", errHintedMsg, true},
			{"FormattedHint", errFormatted, true},
			{"WrappedHint", fmt.Errorf("wrapper: %w", errHinted), true},
			{"WrappedStandardError", fmt.Errorf("wrapper: %w", errMissing), false},
			{"DoubleWrappedHint", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", errHinted)), true},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				if got := hints.IsHint(tc.err); got != tc.expected {
					t.Errorf("IsHint() = %v, want %v", got, tc.expected)
				}
			})
		}
	})

	t.Run("Unwrap and Is", func(t *testing.T) {
		if !errors.Is(errHinted, errMissing) {
			t.Error("errors.Is should find the underlying error in a hint")
		}
		if errors.Is(errHinted, errAnother) {
			t.Error("errors.Is should not find an unrelated error")
		}
		if unwrapped := errors.Unwrap(errHinted); unwrapped != errMissing {
			t.Errorf("errors.Unwrap should return the original error, got %v", unwrapped)
		}
	})

	t.Run("Is (Target)", func(t *testing.T) {
		if !hints.Is(errHinted, errMissing) {
			t.Error("Is(hinted, missing) should be true")
		}
		if hints.Is(errMissing, errMissing) {
			t.Error("Is(missing, missing) should be false because it is not a hint")
		}
		if hints.Is(errHinted, errAnother) {
			t.Error("Is(hinted, another) should be false")
		}
	})
}
