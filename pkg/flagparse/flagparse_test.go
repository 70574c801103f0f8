package flagparse

import (
	"os"
	"reflect"
	"testing"

	"github.com/paulschiretz/pgl-buildaux/pkg/ternary"
)

func TestParsePatternList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{"Simple List", "*.c,*.h", []string{"*.c", "*.h"}},
		{"List with Spaces", " *.c , *.h ", []string{"*.c", "*.h"}},
		{"Empty String", "", nil},
		{"Quoted Item with Spaces", "'my file.c',b", []string{"my file.c", "b"}},
		{"Quoted Item with Comma", "'a,b',c", []string{"a,b", "c"}},
		{"Alternatives Stay Whole", "*.{c,h},*.txt", []string{"*.{c,h}", "*.txt"}},
		{"Nested Alternatives", "{a,{b,c}}.bmp", []string{"{a,{b,c}}.bmp"}},
		{"Unmatched Quote", "'a,b", []string{"a,b"}},
		{"Nested Quotes", "\"it's\",d", []string{"it's", "d"}},
		{"Windows Path with Backslashes", `C:\Src\*.c,D:\*.h`, []string{`C:\Src\*.c`, `D:\*.h`}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := ParsePatternList(tc.input)
			if len(tc.expected) == 0 && len(result) == 0 {
				return
			}
			if !reflect.DeepEqual(result, tc.expected) {
				t.Errorf("expected %v, but got %v", tc.expected, result)
			}
		})
	}
}

func TestParseMask(t *testing.T) {
	testCases := []struct {
		input   string
		want    os.FileMode
		wantErr bool
	}{
		{input: "077", want: 0o077},
		{input: "0o022", want: 0o022},
		{input: "0", want: 0},
		{input: "777", want: 0o777},
		{input: "1777", wantErr: true},
		{input: "89", wantErr: true},
		{input: "", wantErr: true},
		{input: "-1", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseMask(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseMask(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("expected %#o, got %#o", tc.want, got)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	for _, c := range []Command{Untar, Glob, Icons, Options, Version} {
		got, err := ParseCommand(c.String())
		if err != nil {
			t.Errorf("ParseCommand(%q) failed: %v", c, err)
		}
		if got != c {
			t.Errorf("expected %v, got %v", c, got)
		}
	}
	if _, err := ParseCommand("none"); err == nil {
		t.Error("expected 'none' to be rejected as a command")
	}
	if _, err := ParseCommand("backup"); err == nil {
		t.Error("expected an error for an unknown command")
	}
	if got := Command(42).String(); got != "unknown_command(42)" {
		t.Errorf("unexpected String for unknown command: %s", got)
	}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantCmd Command
		wantMap map[string]any
		wantErr bool
	}{
		{
			name:    "Untar Only Set Flags",
			args:    []string{"untar", "-source", "in.tar", "-target", "out"},
			wantCmd: Untar,
			wantMap: map[string]any{"source": "in.tar", "target": "out"},
		},
		{
			name:    "Untar Mask Parsed",
			args:    []string{"untar", "-source", "in.tar", "-mask", "022", "-metrics"},
			wantCmd: Untar,
			wantMap: map[string]any{"source": "in.tar", "mask": os.FileMode(0o022), "metrics": true},
		},
		{
			name:    "Untar Bad Mask",
			args:    []string{"untar", "-mask", "9"},
			wantCmd: Untar,
			wantErr: true,
		},
		{
			name:    "Glob Pattern List",
			args:    []string{"glob", "-search", "src", "-pattern", "*.{c,h},*.txt", "-recursive=false"},
			wantCmd: Glob,
			wantMap: map[string]any{"search": "src", "pattern": []string{"*.{c,h}", "*.txt"}, "recursive": false},
		},
		{
			name:    "Icons Pattern Verbatim",
			args:    []string{"icons", "-pattern", "*.png", "-quiet"},
			wantCmd: Icons,
			wantMap: map[string]any{"pattern": "*.png", "quiet": true},
		},
		{
			name:    "Options With Assignments",
			args:    []string{"options", "-default", "NO", "-log-level", "debug", "with_x=yes", "with_gl=auto"},
			wantCmd: Options,
			wantMap: map[string]any{"default": ternary.No, "log-level": "debug", ArgsKey: []string{"with_x=yes", "with_gl=auto"}},
		},
		{
			name:    "Options Bad Default",
			args:    []string{"options", "-default", "maybe"},
			wantCmd: Options,
			wantErr: true,
		},
		{
			name:    "Stray Arguments",
			args:    []string{"glob", "-search", "src", "extra"},
			wantCmd: Glob,
			wantErr: true,
		},
		{
			name:    "Version",
			args:    []string{"version"},
			wantCmd: Version,
		},
		{
			name:    "Unknown Command",
			args:    []string{"backup"},
			wantCmd: None,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, flagMap, err := Parse(tc.args)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Parse(%v) error = %v, wantErr %v", tc.args, err, tc.wantErr)
			}
			if cmd != tc.wantCmd {
				t.Errorf("expected command %v, got %v", tc.wantCmd, cmd)
			}
			if tc.wantErr || tc.wantMap == nil {
				return
			}
			if !reflect.DeepEqual(flagMap, tc.wantMap) {
				t.Errorf("expected flag map %v, got %v", tc.wantMap, flagMap)
			}
		})
	}
}
