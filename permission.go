package guard

import (
	"strings"

	"github.com/oarkflow/guard/utils"
)

// Verb is an enumerated HTTP method on a permission.
type Verb string

const (
	VerbGet     Verb = "GET"
	VerbPost    Verb = "POST"
	VerbPut     Verb = "PUT"
	VerbPatch   Verb = "PATCH"
	VerbDelete  Verb = "DELETE"
	VerbHead    Verb = "HEAD"
	VerbOptions Verb = "OPTIONS"
	VerbAny     Verb = "*"
)

// ParseVerb normalizes an action string into a Verb. The second return is
// false for actions outside the enumeration.
func ParseVerb(s string) (Verb, bool) {
	switch v := Verb(strings.ToUpper(strings.TrimSpace(s))); v {
	case VerbGet, VerbPost, VerbPut, VerbPatch, VerbDelete, VerbHead, VerbOptions, VerbAny:
		return v, true
	default:
		return "", false
	}
}

// Permission is an immutable grant/deny statement over a URI pattern and verb.
// A permission with both Grant and Deny set is well-formed but never effective.
type Permission struct {
	Uri    string `json:"uri" yaml:"uri"`
	Verb   Verb   `json:"verb" yaml:"verb"`
	Grant  bool   `json:"grant" yaml:"grant"`
	Deny   bool   `json:"deny" yaml:"deny"`
	Scheme string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
}

// Effective reports whether the permission grants anything at all.
func (p Permission) Effective() bool { return p.Grant && !p.Deny }

// Allows reports whether the permission effectively grants verb on uri.
func (p Permission) Allows(uri string, verb Verb) bool {
	if !p.Effective() {
		return false
	}
	if p.Verb != VerbAny && verb != VerbAny && p.Verb != verb {
		return false
	}
	return utils.MatchURI(p.Uri, uri)
}

// anyAllows reports whether any permission in the set effectively grants
// verb on uri.
func anyAllows(perms []Permission, uri string, verb Verb) bool {
	for _, p := range perms {
		if p.Allows(uri, verb) {
			return true
		}
	}
	return false
}
