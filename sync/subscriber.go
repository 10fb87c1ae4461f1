package sync

import "fmt"

// Subscriber is the payload sent to Campaign Monitor for one member on one list.
type Subscriber struct {
	Email        string
	Name         string
	CustomFields []SubscriberField
}

// SubscriberField is a resolved custom field value. Order follows the list's mappings.
type SubscriberField struct {
	Key   string
	Value string
}

// SetField replaces the value of an existing key or appends a new one.
func (s *Subscriber) SetField(key string, value interface{}) {
	v := ""
	if value != nil {
		v = fmt.Sprint(value)
	}
	for i := range s.CustomFields {
		if s.CustomFields[i].Key == key {
			s.CustomFields[i].Value = v
			return
		}
	}
	s.CustomFields = append(s.CustomFields, SubscriberField{Key: key, Value: v})
}

// Value returns the resolved value for a remote key.
func (s Subscriber) Value(key string) (string, bool) {
	for _, f := range s.CustomFields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}
