package server

import (
	"strings"
)

// ParseConnect parses a login-screen command into (command, user).
// Handles: "connect name", "connect "two words"", "create name".
func ParseConnect(msg string) (command, user string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", ""
	}

	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, ""
	}

	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, ""
	}

	// Quoted names may contain spaces
	if rest[0] == '"' {
		if end := strings.Index(rest[1:], "\""); end >= 0 {
			return command, rest[1 : end+1]
		}
	}

	// Anything after the name (an old-style password) is ignored
	user, _, _ = strings.Cut(rest, " ")
	return command, user
}

// validName reports whether name may be used for a new character.
func validName(name string) (bool, string) {
	if len(name) < 2 {
		return false, "That name is too short."
	}
	if len(name) > 32 {
		return false, "That name is too long."
	}
	for _, ch := range name {
		if ch == '"' || ch == ';' || ch == '=' || ch == '#' || ch == ',' {
			return false, "That name contains illegal characters."
		}
	}
	return true, ""
}

// WelcomeText is the default welcome screen shown to new connections.
const WelcomeText = `
                      _                         _
 _ __ ___  _   _ ___| |__  _ __   ___  ___| |_
| '_ ` + "`" + ` _ \| | | / __| '_ \| '_ \ / _ \/ __| __|
| | | | | | |_| \__ \ | | | |_) | (_) \__ \ |_
|_| |_| |_|\__,_|___/_| |_| .__/ \___/|___/\__|
                          |_|

"connect <name>" to connect, creating the character if it is new.
"WHO" to see who is connected.
"QUIT" to disconnect.

`
