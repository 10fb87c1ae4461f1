package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultCampaignMonitorEndpoint is used when the config leaves api.endpoint empty.
const DefaultCampaignMonitorEndpoint = "https://api.createsend.com"

// cmSubscriberNotInList is the Campaign Monitor error code for an unknown subscriber.
const cmSubscriberNotInList = 203

// CampaignMonitorConnector handles all Campaign Monitor API operations.
// It embeds *SyncContext for shared site configuration.
type CampaignMonitorConnector struct {
	*SyncContext
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewCampaignMonitorConnector(sc *SyncContext) *CampaignMonitorConnector {
	return &CampaignMonitorConnector{
		SyncContext: sc,
		breaker:     newCircuitBreaker("campaign-monitor", sc.Config.Connector.Breaker),
	}
}

// APIBuilder returns a new requests.Builder configured for the Campaign Monitor API.
func (c *CampaignMonitorConnector) APIBuilder() *requests.Builder {
	endpoint := c.Config.API.Endpoint
	if endpoint == "" {
		endpoint = DefaultCampaignMonitorEndpoint
	}
	result := requests.
		URL(endpoint).
		Client(&http.Client{Timeout: HTTPRequestTimeout}).
		BasicAuth(c.Config.API.Key, "x")
	if c.RecordRequests {
		result = result.Transport(requests.Record(nil, fmt.Sprintf("testdata/.requests/%s", c.Site)))
	}
	return result
}

// execute runs fn through the circuit breaker.
func (c *CampaignMonitorConnector) execute(fn func() error) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// remoteError prefers the decoded API error body over the transport error.
func remoteError(err error, apiErr *APIError) error {
	if err == nil {
		return nil
	}
	if apiErr.Code != 0 || apiErr.Message != "" {
		return apiErr
	}
	return err
}

// SubscriberBody renders the add subscriber request body.
func SubscriberBody(subscriber Subscriber, requireConfirmation bool) ([]byte, error) {
	body := "{}"
	var err error
	body, err = sjson.Set(body, "EmailAddress", subscriber.Email)
	if err == nil {
		body, err = sjson.Set(body, "Name", subscriber.Name)
	}
	if err == nil {
		body, err = sjson.SetRaw(body, "CustomFields", "[]")
	}
	for i, f := range subscriber.CustomFields {
		if err != nil {
			break
		}
		body, err = sjson.Set(body, fmt.Sprintf("CustomFields.%d.Key", i), f.Key)
		if err == nil {
			body, err = sjson.Set(body, fmt.Sprintf("CustomFields.%d.Value", i), f.Value)
		}
	}
	if err == nil {
		body, err = sjson.Set(body, "Resubscribe", !requireConfirmation)
	}
	if err == nil {
		body, err = sjson.Set(body, "ConsentToTrack", "Unchanged")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build subscriber body %w", err)
	}
	return []byte(body), nil
}

// AddSubscriber adds or updates a subscriber on a list.
// When requireConfirmation is false the subscriber is treated as already confirmed.
func (c *CampaignMonitorConnector) AddSubscriber(ctx context.Context, listID string, subscriber Subscriber, requireConfirmation bool) error {
	body, err := SubscriberBody(subscriber, requireConfirmation)
	if err != nil {
		return err
	}
	return c.execute(func() error {
		var apiErr APIError
		err := c.APIBuilder().
			Pathf("/api/v3.3/subscribers/%s.json", listID).
			Post().
			ContentType("application/json").
			BodyBytes(body).
			ErrorJSON(&apiErr).
			Fetch(ctx)
		return remoteError(err, &apiErr)
	})
}

// RemoveSubscriber unsubscribes email from a list.
func (c *CampaignMonitorConnector) RemoveSubscriber(ctx context.Context, listID string, email string) error {
	return c.execute(func() error {
		var apiErr APIError
		err := c.APIBuilder().
			Pathf("/api/v3.3/subscribers/%s/unsubscribe.json", listID).
			Post().
			BodyJSON(map[string]string{"EmailAddress": email}).
			ErrorJSON(&apiErr).
			Fetch(ctx)
		return remoteError(err, &apiErr)
	})
}

// IsSubscribed reports whether email is an active subscriber of a list.
func (c *CampaignMonitorConnector) IsSubscribed(ctx context.Context, listID string, email string) (bool, error) {
	var result bool
	err := c.execute(func() error {
		var body string
		var apiErr APIError
		err := c.APIBuilder().
			Pathf("/api/v3.3/subscribers/%s.json", listID).
			Param("email", email).
			ToString(&body).
			ErrorJSON(&apiErr).
			Fetch(ctx)
		if err != nil {
			if apiErr.Code == cmSubscriberNotInList {
				return nil
			}
			return remoteError(err, &apiErr)
		}
		result = gjson.Get(body, "State").String() == "Active"
		return nil
	})
	return result, err
}

// Clients returns the client accounts visible to the API key.
func (c *CampaignMonitorConnector) Clients(ctx context.Context) ([]Client, error) {
	var result []Client
	err := c.execute(func() error {
		var apiErr APIError
		err := c.APIBuilder().
			Path("/api/v3.3/clients.json").
			ToJSON(&result).
			ErrorJSON(&apiErr).
			Fetch(ctx)
		return remoteError(err, &apiErr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list clients %w", err)
	}
	return result, nil
}

// MailingLists returns the subscriber lists of a client.
func (c *CampaignMonitorConnector) MailingLists(ctx context.Context, clientID string) ([]APIMailingList, error) {
	var result []APIMailingList
	err := c.execute(func() error {
		var apiErr APIError
		err := c.APIBuilder().
			Pathf("/api/v3.3/clients/%s/lists.json", clientID).
			ToJSON(&result).
			ErrorJSON(&apiErr).
			Fetch(ctx)
		return remoteError(err, &apiErr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list mailing lists for client %s %w", clientID, err)
	}
	return result, nil
}

// CustomFields returns the custom field definitions of a list.
func (c *CampaignMonitorConnector) CustomFields(ctx context.Context, listID string) ([]APICustomField, error) {
	var result []APICustomField
	err := c.execute(func() error {
		var apiErr APIError
		err := c.APIBuilder().
			Pathf("/api/v3.3/lists/%s/customfields.json", listID).
			ToJSON(&result).
			ErrorJSON(&apiErr).
			Fetch(ctx)
		return remoteError(err, &apiErr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list custom fields for list %s %w", listID, err)
	}
	return result, nil
}

// IsBreakerOpen reports whether remote calls are currently being rejected.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
