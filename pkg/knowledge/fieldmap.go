package knowledge

import "strings"

// Ignore marks a note field role as unused.
const Ignore = "<Ignore>"

// FieldRoles names the field holding the target word and the field holding
// its context sentence for one note type. Empty or Ignore means unused.
type FieldRoles struct {
	Word    string `mapstructure:"word"`
	Context string `mapstructure:"context"`
}

func (r FieldRoles) word() string    { return roleField(r.Word) }
func (r FieldRoles) context() string { return roleField(r.Context) }

func roleField(name string) string {
	if name == Ignore {
		return ""
	}
	return name
}

// FieldMap maps note type names to field roles.
type FieldMap map[string]FieldRoles

// Lookup returns the roles of noteType. Names match exactly first, then
// case-insensitively, since config keys come back lowercased. A note type
// that is unmapped or has both roles ignored reports false.
func (m FieldMap) Lookup(noteType string) (FieldRoles, bool) {
	r, ok := m[noteType]
	if !ok {
		for name, roles := range m {
			if strings.EqualFold(name, noteType) {
				r, ok = roles, true
				break
			}
		}
	}
	if !ok || (r.word() == "" && r.context() == "") {
		return FieldRoles{}, false
	}
	return r, true
}
