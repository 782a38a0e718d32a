package state

import "strings"

// fold is the ASCII case-fold used as the canonical form for nick and
// channel lookups (CASEMAPPING=ascii). Never use Go's default string
// equality or a language-default hash on raw nick/channel input: every
// map keyed by nick or channel name must be keyed by fold(name).
func fold(s string) string {
	return strings.ToLower(s)
}
