package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulschiretz/pgl-buildaux/pkg/plog"
)

func TestRun(t *testing.T) {
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.bmp"), []byte{0x01}, 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "icons.h")

	testCases := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "No Arguments", args: nil},
		{name: "Help", args: []string{"help"}},
		{name: "Subcommand Help", args: []string{"untar", "-help"}},
		{name: "Icons", args: []string{"icons", "-dir", dir, "-out", out}},
		{name: "Unknown Command", args: []string{"frobnicate"}, wantErr: true},
		{name: "Missing Required Flag", args: []string{"untar"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(context.Background(), tc.args)
			if (err != nil) != tc.wantErr {
				t.Errorf("run(%v) error = %v, wantErr %v", tc.args, err, tc.wantErr)
			}
		})
	}

	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected the icons command to write %s: %v", out, err)
	}
}
