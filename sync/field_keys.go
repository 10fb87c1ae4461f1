package sync

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
)

var CampaignMonitorKeyExpander = campaignMonitorKeyExpander{}

type campaignMonitorKeyExpander struct {
}

// ExpandCustomFieldKeys rewrites remote keys into Campaign Monitor's bracketed
// form, e.g. "shirt size" becomes "[ShirtSize]". Keys already in that form are kept.
func (ce campaignMonitorKeyExpander) ExpandCustomFieldKeys(lists []MailingList) error {
	for i := range lists {
		for j := range lists[i].CustomFields {
			key, err := ce.expandKey(lists[i].CustomFields[j].Key)
			if err != nil {
				return fmt.Errorf("invalid custom field key on list %s %w", lists[i].ListID, err)
			}
			lists[i].CustomFields[j].Key = key
		}
	}
	return nil
}

func (ce campaignMonitorKeyExpander) expandKey(key string) (string, error) {
	if key == "" {
		return key, nil
	}
	if strings.HasPrefix(key, "[") && strings.HasSuffix(key, "]") && len(key) > 2 {
		return key, nil
	}
	if strings.ContainsAny(key, "[]") {
		return key, fmt.Errorf("malformed key %q", key)
	}
	return "[" + strcase.ToCamel(key) + "]", nil
}

// FieldLabel converts a member field name such as "screen_name" into a display label.
func FieldLabel(name string) string {
	words := strings.Fields(strcase.ToDelimited(name, ' '))
	for i, w := range words {
		words[i] = strcase.ToCamel(w)
	}
	return strings.Join(words, " ")
}
