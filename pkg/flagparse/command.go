package flagparse

import (
	"fmt"

	"github.com/paulschiretz/pgl-buildaux/pkg/util"
)

// Command is the subcommand to execute.
type Command int

const (
	None Command = iota
	Untar
	Glob
	Icons
	Options
	Version
)

var commandToString = map[Command]string{
	None:    "none",
	Untar:   "untar",
	Glob:    "glob",
	Icons:   "icons",
	Options: "options",
	Version: "version",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok && command != None {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'untar', 'glob', 'icons', 'options', or 'version'", s)
}
