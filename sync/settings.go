package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// settingsFetchConcurrency bounds the custom field requests issued at once.
const settingsFetchConcurrency = 4

// FetchMailingListsWithFields returns the client's lists with their custom field
// definitions attached, in the order the API returned the lists.
func FetchMailingListsWithFields(ctx context.Context, connector Connector, clientID string) ([]APIMailingList, error) {
	lists, err := connector.MailingLists(ctx, clientID)
	if err != nil {
		return nil, err
	}

	p := pool.New().WithMaxGoroutines(settingsFetchConcurrency)
	errs := make([]error, len(lists))
	for i := range lists {
		i := i
		p.Go(func() {
			fields, err := connector.CustomFields(ctx, lists[i].ListID)
			if err != nil {
				errs[i] = err
				return
			}
			lists[i].CustomFields = fields
		})
	}
	p.Wait()

	if err := errors.Join(errs...); err != nil {
		return lists, fmt.Errorf("failed to fetch custom fields %w", err)
	}
	return lists, nil
}

// SiteSettings are the remote account settings stored per site.
type SiteSettings struct {
	SiteID   int
	APIKey   string
	ClientID string
}

// WithSiteSettings fills API settings the config leaves empty from settings
// stored for the site.
func (c Config) WithSiteSettings(settings SiteSettings) Config {
	if settings.SiteID != c.SiteID {
		return c
	}
	if c.API.Key == "" {
		c.API.Key = settings.APIKey
	}
	if c.API.ClientID == "" {
		c.API.ClientID = settings.ClientID
	}
	return c
}

// ResolveMailingLists keeps only rules whose list still exists for the client and
// drops custom field mappings whose remote key no longer exists on that list.
func ResolveMailingLists(rules []MailingList, remote []APIMailingList) []MailingList {
	byID := make(map[string]APIMailingList, len(remote))
	for _, l := range remote {
		byID[l.ListID] = l
	}
	var result []MailingList
	for _, rule := range rules {
		l, ok := byID[rule.ListID]
		if !ok {
			continue
		}
		if rule.Name == "" {
			rule.Name = l.Name
		}
		keys := make(map[string]bool, len(l.CustomFields))
		for _, f := range l.CustomFields {
			keys[f.Key] = true
		}
		fields := make([]CustomField, 0, len(rule.CustomFields))
		for _, f := range rule.CustomFields {
			if l.CustomFields == nil || keys[f.Key] {
				fields = append(fields, f)
			}
		}
		rule.CustomFields = fields
		result = append(result, rule)
	}
	return result
}
