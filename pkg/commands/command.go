package commands

import (
	"strings"
	"unicode"
)

// Marker prefixes a command token, as in "/ping".
const Marker = "/"

type Command struct {
	Name    string
	RawArgs string
}

// Parse splits text at the first run of whitespace. The name is lower-cased
// and loses one leading Marker together with any "@botname" suffix. RawArgs
// is the remainder after the separator run and is never parsed further.
func Parse(text string) Command {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)

	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head = text[:i]
		rest = strings.TrimLeftFunc(text[i:], unicode.IsSpace)
	}

	name := head
	if strings.HasPrefix(name, Marker) {
		name = strings.TrimPrefix(name, Marker)
		if at := strings.IndexByte(name, '@'); at >= 0 {
			name = name[:at]
		}
	}

	return Command{
		Name:    strings.ToLower(name),
		RawArgs: rest,
	}
}
