package ssh

import "strings"

func ShellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// InDir prefixes cmd with a cd into dir so relative paths and compose project
// lookup resolve against dir.
func InDir(dir, cmd string) string {
	return "cd " + ShellEscape(dir) + " && " + cmd
}
