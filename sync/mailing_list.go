package sync

import "context"

// MailingList is a site-level rule binding a remote Campaign Monitor list to an
// optional trigger condition and an ordered set of custom field mappings.
// An empty TriggerField means the list applies to every member. TriggerField
// names a member field literally and may be followed by "|@" modifiers.
type MailingList struct {
	ListID       string        `json:"listId" yaml:"listId" validate:"required"`
	Name         string        `json:"name" yaml:"name"`
	TriggerField string        `json:"triggerField,omitempty" yaml:"triggerField"`
	TriggerValue string        `json:"triggerValue,omitempty" yaml:"triggerValue"`
	CustomFields []CustomField `json:"customFields,omitempty" yaml:"customFields" validate:"dive"`
}

// CustomField maps a remote subscriber key (e.g. "[Location]") to a local member field.
type CustomField struct {
	Key         string `json:"key" yaml:"key"`
	MemberField string `json:"memberField" yaml:"memberField"`
}

// Usable reports whether both sides of the mapping are set.
func (f CustomField) Usable() bool {
	return f.Key != "" && f.MemberField != ""
}

// Store gives typed read access to a site's mailing list rules and its members.
type Store interface {
	MailingLists(ctx context.Context, siteID int) ([]MailingList, error)
	// Member returns ErrMemberNotFound when no member has the given id.
	Member(ctx context.Context, memberID int) (Member, error)
}
