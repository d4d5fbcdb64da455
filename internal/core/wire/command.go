package wire

import "strings"

// Command is one control line split into an upper-cased verb and its argument.
type Command struct {
	Verb string
	Arg  string
}

// ParseCommand splits line at the first space. The argument may contain spaces.
func ParseCommand(line string) Command {
	line = strings.TrimRight(line, "\r\n")
	verb, arg, _ := strings.Cut(line, " ")
	return Command{
		Verb: strings.ToUpper(strings.TrimSpace(verb)),
		Arg:  strings.TrimSpace(arg),
	}
}

// String renders the command as it is sent on the wire, without terminator.
func (c Command) String() string {
	if c.Arg == "" {
		return c.Verb
	}
	return c.Verb + " " + c.Arg
}
