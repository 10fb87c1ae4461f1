package sync

import "context"

// Connector is the contract for the remote mailing list service.
// Remote failures are returned as *APIError.
type Connector interface {
	AddSubscriber(ctx context.Context, listID string, subscriber Subscriber, requireConfirmation bool) error
	RemoveSubscriber(ctx context.Context, listID string, email string) error
	IsSubscribed(ctx context.Context, listID string, email string) (bool, error)
	Clients(ctx context.Context) ([]Client, error)
	MailingLists(ctx context.Context, clientID string) ([]APIMailingList, error)
	CustomFields(ctx context.Context, listID string) ([]APICustomField, error)
}

// Client is a Campaign Monitor client account.
type Client struct {
	ClientID string `json:"ClientID"`
	Name     string `json:"Name"`
}

// APIMailingList is a list as enumerated by the remote service.
type APIMailingList struct {
	ListID string `json:"ListID"`
	Name   string `json:"Name"`
	// CustomFields is only populated by FetchMailingListsWithFields.
	CustomFields []APICustomField `json:"-"`
}

// APICustomField is a custom field definition on a remote list.
type APICustomField struct {
	FieldName     string   `json:"FieldName"`
	Key           string   `json:"Key"`
	DataType      string   `json:"DataType"`
	FieldOptions  []string `json:"FieldOptions"`
	VisibleInPref bool     `json:"VisibleInPreferenceCenter"`
}
