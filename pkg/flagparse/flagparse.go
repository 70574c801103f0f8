package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulschiretz/pgl-buildaux/pkg/buildinfo"
	"github.com/paulschiretz/pgl-buildaux/pkg/ternary"
)

// ArgsKey holds the positional arguments left after flag parsing.
const ArgsKey = "args"

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	LogLevel *string
	Quiet    *bool

	// Untar
	Source       *string
	Target       *string
	Mask         *string
	List         *bool
	Metrics      *bool
	BufferSizeKB *int

	// Glob
	Base      *string
	Search    *string
	Recursive *bool

	// Shared: Glob / Icons
	Pattern *string

	// Icons
	Dir       *string
	Out       *string
	Guard     *string
	Prefix    *string
	Copyright *string

	// Options
	Cache    *string
	Save     *bool
	HelpVars *bool
	Default  *ternary.Value
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.Quiet = fs.Bool("quiet", false, "Only print warnings and errors.")
}

func registerUntarFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Source = fs.String("source", "", "Archive to extract: plain, gzip or zstd compressed tar. (Required)")
	f.Target = fs.String("target", "", "Directory to extract into; created if missing. (Required unless -list)")
	f.Mask = fs.String("mask", "077", "Octal permission bits to clear from every extracted member.")
	f.List = fs.Bool("list", false, "List the archive members instead of extracting them.")
	f.Metrics = fs.Bool("metrics", false, "Enable detailed extraction metrics.")
	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "Size of the I/O buffer in kilobytes for file copies.")
}

func registerGlobFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Base = fs.String("base", ".", "Directory that -search and the printed paths are relative to.")
	f.Search = fs.String("search", "", "Directory to search. (Required)")
	f.Pattern = fs.String("pattern", "*", "Comma-separated list of file name patterns (supports *, ?, [...] and {a,b}).")
	f.Recursive = fs.Bool("recursive", true, "Descend into subdirectories, skipping .git and .svn.")
}

func registerIconsFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Dir = fs.String("dir", ".", "Directory holding the icon files.")
	f.Out = fs.String("out", "icons.h", "Header file to write.")
	f.Pattern = fs.String("pattern", "*.bmp", "File name pattern of the icon files.")
	f.Guard = fs.String("guard", "_ICONS_H_", "Include guard macro.")
	f.Prefix = fs.String("prefix", "icon_", "Prefix for the generated array identifiers.")
	f.Copyright = fs.String("copyright", "", "Copyright holder for the license comment.")
}

func registerOptionsFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Cache = fs.String("cache", "", "JSON file holding previously resolved options.")
	f.Save = fs.Bool("save", false, "Write the resolved options back to the -cache file.")
	f.HelpVars = fs.Bool("help-vars", false, "Print help for every declared option instead of the values.")
	def := ternary.Auto
	f.Default = &def
	fs.TextVar(f.Default, "default", ternary.Auto, "Default for options without a value: 'yes', 'no' or 'auto'.")
}

type subcommand struct {
	desc     string
	register func(fs *flag.FlagSet, f *cliFlags)
}

var subcommands = map[Command]subcommand{
	Untar:   {desc: "Extract a tar archive and reset every member's permissions to its recorded mode with -mask cleared.", register: registerUntarFlags},
	Glob:    {desc: "Print the files below -search whose names match -pattern.", register: registerGlobFlags},
	Icons:   {desc: "Convert a directory of bitmap files into a C header of byte arrays.", register: registerIconsFlags},
	Options: {desc: "Resolve KEY=VALUE ternary build options over the cached values and print them.", register: registerOptionsFlags},
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and flag map.
func Parse(args []string) (Command, map[string]any, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])
	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}
	if command == Version {
		return command, nil, nil
	}

	sub, ok := subcommands[command]
	if !ok {
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	registerGlobalFlags(fs, f)
	sub.register(fs, f)

	// Custom usage for the subcommand
	fs.Usage = func() {
		printSubcommandUsage(command, sub.desc, fs)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return command, nil, err
	}
	if fs.NArg() > 0 && command != Options {
		return command, nil, fmt.Errorf("unexpected arguments for %s: %s", command, strings.Join(fs.Args(), " "))
	}

	flagMap, err := flagsToMap(fs, f)
	if err != nil {
		return command, nil, err
	}
	if fs.NArg() > 0 {
		flagMap[ArgsKey] = fs.Args()
	}
	return command, flagMap, nil
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]any, error) {
	// Create a map of the flags that were explicitly set by the user, along with their values.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "quiet", f.Quiet)

	addIfUsed(flagMap, usedFlags, "source", f.Source)
	addIfUsed(flagMap, usedFlags, "target", f.Target)
	addIfUsed(flagMap, usedFlags, "list", f.List)
	addIfUsed(flagMap, usedFlags, "metrics", f.Metrics)
	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)

	addIfUsed(flagMap, usedFlags, "base", f.Base)
	addIfUsed(flagMap, usedFlags, "search", f.Search)
	addIfUsed(flagMap, usedFlags, "recursive", f.Recursive)

	addIfUsed(flagMap, usedFlags, "dir", f.Dir)
	addIfUsed(flagMap, usedFlags, "out", f.Out)
	addIfUsed(flagMap, usedFlags, "guard", f.Guard)
	addIfUsed(flagMap, usedFlags, "prefix", f.Prefix)
	addIfUsed(flagMap, usedFlags, "copyright", f.Copyright)

	addIfUsed(flagMap, usedFlags, "cache", f.Cache)
	addIfUsed(flagMap, usedFlags, "save", f.Save)
	addIfUsed(flagMap, usedFlags, "help-vars", f.HelpVars)
	addIfUsed(flagMap, usedFlags, "default", f.Default)

	// Handle flags that require parsing/validation.
	if err := addParsedIfUsed(flagMap, usedFlags, "mask", f.Mask, ParseMask); err != nil {
		return nil, err
	}
	if f.Search != nil {
		// glob splits -pattern into a list; icons takes it verbatim.
		if err := addParsedIfUsed(flagMap, usedFlags, "pattern", f.Pattern, noErr(ParsePatternList)); err != nil {
			return nil, err
		}
	} else {
		addIfUsed(flagMap, usedFlags, "pattern", f.Pattern)
	}

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) (T, error)) error {
	if ptr == nil || !usedFlags[name] {
		return nil
	}
	v, err := parser(*ptr)
	if err != nil {
		return fmt.Errorf("invalid value for -%s: %w", name, err)
	}
	flagMap[name] = v
	return nil
}

func noErr[T any](fn func(string) T) func(string) (T, error) {
	return func(s string) (T, error) { return fn(s), nil }
}

// ParseMask parses an octal permission mask such as "077" or "0o022".
func ParseMask(s string) (os.FileMode, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0o"), "0O")
	v, err := strconv.ParseUint(trimmed, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not an octal number", s)
	}
	if v&^uint64(os.ModePerm) != 0 {
		return 0, fmt.Errorf("%q has bits outside 0777", s)
	}
	return os.FileMode(v), nil
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Helpers for configuring and preparing native builds.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  untar       Extract a tar archive with deterministic permissions\n")
	fmt.Fprintf(fs.Output(), "  glob        List files matching a pattern\n")
	fmt.Fprintf(fs.Output(), "  icons       Generate a C header from bitmap files\n")
	fmt.Fprintf(fs.Output(), "  options     Resolve yes/no/auto build options\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Helpers for configuring and preparing native builds.\n\n")
	if command == Options {
		fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags] [KEY=VALUE...]\n\n", command, execName, command)
	} else {
		fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	}
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParsePatternList parses a comma-separated list of file name patterns.
// Quotes group items that contain commas or spaces and are removed.
// Commas inside {a,b} alternatives do not split. Backslashes are literal
// so Windows paths survive.
func ParsePatternList(s string) []string {
	return parseListInternal(s)
}

// parseListInternal is the core implementation for parsing a comma-separated list. It supports
// both single (') and double (") quotes to allow items to contain commas or spaces.
func parseListInternal(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune
	var braceDepth int

	// Helper to add the current buffered item to the list after trimming whitespace.
	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	for _, r := range s {
		switch {
		case r == '\'' || r == '"':
			if quoteChar == 0 { // Start of a new quoted section.
				quoteChar = r
			} else if quoteChar == r { // End of the current quoted section.
				quoteChar = 0
			} else { // A different quote character inside an existing quoted section.
				current.WriteRune(r)
			}
		case r == '{' && quoteChar == 0:
			braceDepth++
			current.WriteRune(r)
		case r == '}' && quoteChar == 0 && braceDepth > 0:
			braceDepth--
			current.WriteRune(r)
		case r == ',' && quoteChar == 0 && braceDepth == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
