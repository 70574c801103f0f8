package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWithUserWritePermission(t *testing.T) {
	testCases := []struct {
		name     string
		input    os.FileMode
		expected os.FileMode
	}{
		{
			name:     "Read-only permission",
			input:    0444, // r--r--r--
			expected: 0644, // rw-r--r--
		},
		{
			name:     "Already has write permission",
			input:    0755, // rwxr-xr-x
			expected: 0755, // rwxr-xr-x (should not change)
		},
		{
			name:     "No permissions",
			input:    0000, // ---------
			expected: 0200, // -w-------
		},
		{
			name:     "Execute-only permission",
			input:    0111, // --x--x--x
			expected: 0311, // -wx--x--x
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := WithUserWritePermission(tc.input)
			if result != tc.expected {
				t.Errorf("expected permission %o, but got %o", tc.expected, result)
			}
		})
	}
}

func TestWithUserExecutePermission(t *testing.T) {
	if got := WithUserExecutePermission(0600); got != 0700 {
		t.Errorf("expected permission 700, but got %o", got)
	}
}

func TestMaskPerm(t *testing.T) {
	testCases := []struct {
		name     string
		mode     os.FileMode
		mask     os.FileMode
		expected os.FileMode
	}{
		{"Full access with default mask", 0777, 0077, 0700},
		{"Group writable file", 0664, 0077, 0600},
		{"Mask 022", 0777, 0022, 0755},
		{"Zero mask keeps perms", 0754, 0, 0754},
		{"Setuid is dropped", 0755 | os.ModeSetuid, 0, 0755},
		{"Directory type bit is dropped", 0755 | os.ModeDir, 0077, 0700},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskPerm(tc.mode, tc.mask); got != tc.expected {
				t.Errorf("expected permission %o, but got %o", tc.expected, got)
			}
		})
	}
}

func TestIsWithin(t *testing.T) {
	root := filepath.Join(string(os.PathSeparator), "tmp", "root")
	testCases := []struct {
		name     string
		path     string
		expected bool
	}{
		{"Root itself", root, true},
		{"Child", filepath.Join(root, "a", "b"), true},
		{"Parent escape", filepath.Join(root, "..", "etc"), false},
		{"Sibling with common prefix", root + "2", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsWithin(root, tc.path); got != tc.expected {
				t.Errorf("IsWithin(%q, %q) = %v, expected %v", root, tc.path, got, tc.expected)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory available: %v", err)
	}

	got, err := ExpandPath("~/icons")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if expected := filepath.Join(home, "icons"); got != expected {
		t.Errorf("expected %q, but got %q", expected, got)
	}

	got, err = ExpandPath("relative/path")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != "relative/path" {
		t.Errorf("expected path to be unchanged, but got %q", got)
	}
}

func TestInvertMap(t *testing.T) {
	inv := InvertMap(map[int]string{1: "one", 2: "two"})
	if inv["one"] != 1 || inv["two"] != 2 || len(inv) != 2 {
		t.Errorf("unexpected inverted map: %v", inv)
	}
}
