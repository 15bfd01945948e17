package action

import "strings"

// Verb is a directive verb with a registered handler.
type Verb int

const (
	VerbCondition Verb = iota + 1
	VerbUpdate
	VerbSet
	VerbDamage
	VerbHeal
	VerbAdd
	VerbRemove
	VerbClear
	VerbActivate
	VerbDeactivate
)

var verbNames = map[Verb]string{
	VerbCondition:  "Condition",
	VerbUpdate:     "Update",
	VerbSet:        "Set",
	VerbDamage:     "Damage",
	VerbHeal:       "Heal",
	VerbAdd:        "Add",
	VerbRemove:     "Remove",
	VerbClear:      "Clear",
	VerbActivate:   "Activate",
	VerbDeactivate: "Deactivate",
}

// verbByName — lowercase name → Verb.
var verbByName = func() map[string]Verb {
	m := make(map[string]Verb, len(verbNames))
	for v, name := range verbNames {
		m[strings.ToLower(name)] = v
	}
	return m
}()

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return "Unknown"
}

// ParseVerb resolves a directive verb case-insensitively.
func ParseVerb(s string) (Verb, bool) {
	v, ok := verbByName[strings.ToLower(s)]
	return v, ok
}
