package sync

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// memberIDKey holds a member's id in imported member documents.
const memberIDKey = "member_id"

// Source wraps a JSON document and resolves values by gjson path.
type Source struct {
	data gjson.Result
}

func NewSource(json string) Source {
	return Source{data: gjson.Parse(json)}
}

func (s Source) StringForPath(path string) (string, bool) {
	result := s.data.Get(path)
	return result.String(), result.Exists() && (result.Value() != nil)
}

func (s Source) Raw() string {
	return s.data.Raw
}

// Member is a read-only snapshot of a site member's fields.
// Field keys name a top-level field literally, so "m.plan" or "user*" only match
// a field with exactly that name. A key may be followed by gjson modifiers,
// e.g. "location|@countryName".
type Member struct {
	ID int
	Source
}

// NewMemberFromJSON builds a snapshot from a JSON object of field values.
func NewMemberFromJSON(id int, json string) (Member, error) {
	if !gjson.Valid(json) {
		return Member{}, fmt.Errorf("invalid json for member %d", id)
	}
	parsed := gjson.Parse(json)
	if !parsed.IsObject() {
		return Member{}, fmt.Errorf("member %d fields must be a json object", id)
	}
	return Member{ID: id, Source: Source{data: parsed}}, nil
}

// NewMember builds a snapshot from a flat map of field values.
func NewMember(id int, fields map[string]string) Member {
	json := "{}"
	for k, v := range fields {
		// keys are escaped so dotted CMS field names stay literal
		json, _ = setString(json, gjsonEscape(k), v)
	}
	return Member{ID: id, Source: NewSource(json)}
}

// Field returns the canonical string form of a member field.
func (m Member) Field(key string) (string, bool) {
	return m.StringForPath(fieldPath(key))
}

func (m Member) Email() string {
	s, _ := m.Field("email")
	return s
}

// Name prefers the screen name and falls back to the username.
func (m Member) Name() string {
	if s, ok := m.Field("screen_name"); ok && s != "" {
		return s
	}
	s, _ := m.Field("username")
	return s
}

// ParseMembers reads a JSON array of member objects, each carrying its id in
// member_id alongside its field values.
func ParseMembers(json string) ([]Member, error) {
	if !gjson.Valid(json) {
		return nil, errors.New("invalid json for members")
	}
	parsed := gjson.Parse(json)
	if !parsed.IsArray() {
		return nil, errors.New("members must be a json array")
	}
	var result []Member
	var err error
	parsed.ForEach(func(i, value gjson.Result) bool {
		id := value.Get(memberIDKey)
		if !value.IsObject() || id.Type != gjson.Number || id.Int() <= 0 {
			err = fmt.Errorf("member at index %d must be an object with a positive %s", i.Int(), memberIDKey)
			return false
		}
		result = append(result, Member{ID: int(id.Int()), Source: NewSource(value.Raw)})
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
