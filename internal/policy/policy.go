// Package policy holds the allowlists that gate CLI commands and the
// operations the intent dispatcher may run.
package policy

import (
	"slices"
	"strings"

	clierr "github.com/intentfi/intentfi/internal/errors"
)

// readOperations are admitted by the "read-only" operation entry.
var readOperations = []string{"balanceof", "getpoolinformation", "quote"}

// alwaysAllowed commands describe the CLI and never touch keys or chains.
var alwaysAllowed = []string{"schema", "version"}

// CheckCommandAllowed gates CLI commands behind the --enable-commands
// allowlist. An entry naming a command group, such as "chain", admits every
// command under it.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := normalize(commandPath)
	if slices.Contains(alwaysAllowed, firstWord(path)) {
		return nil
	}
	if slices.ContainsFunc(allowlist, func(entry string) bool {
		entry = normalize(entry)
		return entry != "" && (path == entry || strings.HasPrefix(path, entry+" "))
	}) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, "command "+path+" blocked by --enable-commands policy")
}

// CheckOperationAllowed gates dispatchable operations behind the
// allowed_operations setting. An empty list allows everything, "*" does too,
// and "read-only" admits balance, pool and quote reads.
func CheckOperationAllowed(allowlist []string, operation string) error {
	if len(allowlist) == 0 {
		return nil
	}
	op := normalize(operation)
	if slices.ContainsFunc(allowlist, func(entry string) bool {
		switch entry = normalize(entry); entry {
		case "*":
			return true
		case "read-only":
			return slices.Contains(readOperations, op)
		default:
			return entry == op
		}
	}) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, "operation "+operation+" blocked by allowed_operations policy")
}

func normalize(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}

func firstWord(path string) string {
	word, _, _ := strings.Cut(path, " ")
	return word
}
