package sync

// EvaluateCandidacy reports whether list applies to member.
// Lists without a trigger field always apply. Otherwise the member's value for
// the trigger field must equal the trigger value exactly; an absent field never matches.
func EvaluateCandidacy(list MailingList, member Member) bool {
	if list.TriggerField == "" {
		return true
	}
	value, exists := member.Field(list.TriggerField)
	if !exists {
		return false
	}
	return value == list.TriggerValue
}

// BuildSubscriber resolves the subscriber payload for member on list.
// The second result is false when the member has no email address, in which
// case the list must be skipped.
func BuildSubscriber(list MailingList, member Member) (Subscriber, bool) {
	result := Subscriber{
		Email:        member.Email(),
		Name:         member.Name(),
		CustomFields: make([]SubscriberField, 0, len(list.CustomFields)),
	}
	MapFields(list.CustomFields, member.Source, &result)
	return result, result.Email != ""
}

// SelectCandidateLists returns the lists that apply to member, in input order.
func SelectCandidateLists(lists []MailingList, member Member) []MailingList {
	var result []MailingList
	for _, l := range lists {
		if EvaluateCandidacy(l, member) {
			result = append(result, l)
		}
	}
	return result
}
