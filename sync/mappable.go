package sync

import (
	"strings"

	"github.com/tidwall/sjson"
)

// Mappable is a destination for mapped field values.
type Mappable interface {
	SetField(key string, value interface{})
}

// MapFields maps member fields onto a destination using the provided mappings,
// in mapping order. Unusable mappings are skipped and missing values map to "".
func MapFields(mappings []CustomField, source Source, destination Mappable) {
	for _, m := range mappings {
		if !m.Usable() {
			continue
		}
		// handle static strings as well as dynamic paths
		// escaping the value in backticks allows us to distinguish between the two
		path := m.MemberField
		if len(path) >= 2 && path[0] == '`' && path[len(path)-1] == '`' {
			destination.SetField(m.Key, path[1:len(path)-1])
			continue
		}
		if result, exists := source.StringForPath(fieldPath(path)); exists {
			destination.SetField(m.Key, result)
		} else {
			destination.SetField(m.Key, "")
		}
	}
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
)

func gjsonEscape(key string) string {
	return pathEscaper.Replace(key)
}

// fieldPath turns a field key, optionally followed by "|@" modifiers, into a
// gjson path that matches the field name literally.
func fieldPath(key string) string {
	name, modifiers, found := strings.Cut(key, "|@")
	if !found {
		return gjsonEscape(key)
	}
	return gjsonEscape(name) + "|@" + modifiers
}

func setString(json, path, value string) (string, error) {
	return sjson.Set(json, path, value)
}
