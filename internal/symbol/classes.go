package symbol

import (
	"strings"

	"github.com/ianlancetaylor/demangle"

	"github.com/zboralski/offscan/internal/memory"
)

// Classes maps C++ class names to vtable addresses using _ZTV symbols.
func (t *Table) Classes() map[string]memory.Address {
	out := make(map[string]memory.Address)
	for _, s := range t.Match(func(name string) bool {
		return strings.HasPrefix(stripUnderscore(name), "_ZTV")
	}) {
		if name := ClassName(s.Name); name != "" {
			if _, dup := out[name]; !dup {
				out[name] = s.Address
			}
		}
	}
	return out
}

// ClassName returns the class a vtable symbol belongs to:
// _ZTVN7cocos2d8LuaStackE -> cocos2d::LuaStack. It returns "" for other
// symbols.
func ClassName(vtableSym string) string {
	mangled := stripUnderscore(vtableSym)
	if !strings.HasPrefix(mangled, "_ZTV") {
		return ""
	}
	if d, err := demangle.ToString(mangled); err == nil {
		if name, ok := strings.CutPrefix(d, "vtable for "); ok {
			return name
		}
	}

	// Fall back to plain length-prefixed names when the demangler rejects
	// the symbol.
	rest := mangled[len("_ZTV"):]
	nested := strings.HasPrefix(rest, "N")
	if nested {
		rest = rest[1:]
	}
	var parts []string
	for rest != "" && rest[0] != 'E' {
		n, name := lengthPrefixed(rest)
		if n == 0 {
			break
		}
		parts = append(parts, name)
		rest = rest[n:]
		if !nested {
			break
		}
	}
	return strings.Join(parts, "::")
}

// lengthPrefixed parses "7cocos2d" into (8, "cocos2d").
func lengthPrefixed(s string) (int, string) {
	if s == "" || s[0] < '1' || s[0] > '9' {
		return 0, ""
	}
	i, n := 0, 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	if i+n > len(s) {
		return 0, ""
	}
	return i + n, s[i : i+n]
}
