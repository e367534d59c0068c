package lumen

// blockedMethods are member names that resolve to base-object internals on a
// reflection-based dispatcher. They are rejected before any serialization or
// network activity so a caller-supplied name can never reach the receiving
// side's generic dispatch.
var blockedMethods = map[string]struct{}{
	"constructor":          {},
	"prototype":            {},
	"__proto__":            {},
	"toString":             {},
	"toLocaleString":       {},
	"valueOf":              {},
	"hasOwnProperty":       {},
	"isPrototypeOf":        {},
	"propertyIsEnumerable": {},
	"__defineGetter__":     {},
	"__defineSetter__":     {},
	"__lookupGetter__":     {},
	"__lookupSetter__":     {},
}

func isBlockedMethod(name string) bool {
	_, blocked := blockedMethods[name]
	return blocked
}
