package sync

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// ListDocRow represents a single row in the mailing list documentation.
type ListDocRow struct {
	ListID      string
	ListName    string
	Trigger     string // "Always" or "<field> = <value>"
	RemoteKey   string // Campaign Monitor custom field key, empty for a list without mappings
	MemberField string // Member source path without modifiers
	Notes       string // Modifier and mapping notes
}

// ListDocumentation contains the rule documentation for a site configuration.
type ListDocumentation struct {
	SiteLabel string
	Rows      []ListDocRow
}

// GenerateListDocumentation documents every rule and mapping of a configuration.
// Rows follow rule order and, within a rule, mapping order.
func GenerateListDocumentation(lists []MailingList, sitelabel string) ListDocumentation {
	doc := ListDocumentation{
		SiteLabel: sitelabel,
		Rows:      []ListDocRow{},
	}
	for _, l := range lists {
		trigger := "Always"
		if l.TriggerField != "" {
			trigger = fmt.Sprintf("%s = %q", l.TriggerField, l.TriggerValue)
		}
		if len(l.CustomFields) == 0 {
			doc.Rows = append(doc.Rows, ListDocRow{ListID: l.ListID, ListName: l.Name, Trigger: trigger})
			continue
		}
		for _, f := range l.CustomFields {
			doc.Rows = append(doc.Rows, createListDocRow(l, trigger, f))
		}
	}
	return doc
}

func createListDocRow(list MailingList, trigger string, field CustomField) ListDocRow {
	row := ListDocRow{
		ListID:    list.ListID,
		ListName:  list.Name,
		Trigger:   trigger,
		RemoteKey: field.Key,
	}
	sourcePath, inlineTransforms := parseSourcePath(field.MemberField)
	row.MemberField = sourcePath

	notes := []string{}
	if !field.Usable() {
		notes = append(notes, "Skipped (incomplete mapping)")
	}
	for _, transform := range inlineTransforms {
		notes = append(notes, formatTransformNote(transform))
	}
	row.Notes = strings.Join(notes, " | ")
	return row
}

// parseSourcePath extracts the source path and inline transforms from a mapping value.
// e.g., "location|@countryName" -> ("location", ["@countryName"])
func parseSourcePath(value string) (string, []string) {
	if value == "" {
		return "(none)", nil
	}
	if len(value) >= 2 && value[0] == '`' && value[len(value)-1] == '`' {
		return "(static)", []string{value}
	}

	parts := strings.Split(value, "|")
	sourcePath := parts[0]
	var transforms []string
	for i := 1; i < len(parts); i++ {
		if strings.HasPrefix(parts[i], "@") {
			transforms = append(transforms, parts[i])
		}
	}
	return sourcePath, transforms
}

// formatTransformNote formats a transform into a human-readable note.
func formatTransformNote(transform string) string {
	switch {
	case strings.HasPrefix(transform, "`"):
		return fmt.Sprintf("Static value %s", transform)
	case strings.HasPrefix(transform, "@countryName"):
		return "Uses @countryName transform"
	case strings.HasPrefix(transform, "@phone:"):
		arg := strings.TrimPrefix(transform, "@phone:")
		return fmt.Sprintf("Uses @phone:%s transform", arg)
	case strings.HasPrefix(transform, "@contains:"):
		arg := strings.TrimPrefix(transform, "@contains:")
		return fmt.Sprintf("Uses @contains:%s transform", arg)
	case transform == "@lower":
		return "Converts to lowercase"
	case transform == "@upper":
		return "Converts to uppercase"
	default:
		return fmt.Sprintf("Transform: %s", transform)
	}
}

// FormatCSV formats the list documentation as CSV.
func (d ListDocumentation) FormatCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{fmt.Sprintf("# Site: %s", d.SiteLabel)}); err != nil {
		return "", err
	}
	headers := []string{"List ID", "List Name", "Trigger", "Campaign Monitor Field", "Member Field", "Mapping Notes"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}
	for _, row := range d.Rows {
		record := []string{row.ListID, row.ListName, row.Trigger, row.RemoteKey, row.MemberField, row.Notes}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
