package oempro

import (
	"context"
	"fmt"
	"net/url"
	"sort"
)

const (
	commandSubscriberSubscribe = "Subscriber.Subscribe"
	commandSubscribersGet      = "Subscribers.Get"
	commandSubscribersDelete   = "Subscribers.Delete"
)

// SubscribeRequest represents the payload for subscribing an email address.
type SubscribeRequest struct {
	ListID       int
	EmailAddress string
	// IPAddress of the subscriber. The client default is used when empty.
	IPAddress string
	// CustomFields maps custom field IDs to values.
	CustomFields map[int]string
}

func (r SubscribeRequest) values(defaultIP string) url.Values {
	params := url.Values{}
	params.Set("ListID", itoa(r.ListID))
	params.Set("EmailAddress", r.EmailAddress)
	params.Set("IPAddress", orDefault(r.IPAddress, defaultIP))

	ids := make([]int, 0, len(r.CustomFields))
	for id := range r.CustomFields {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		params.Set(fmt.Sprintf("CustomField%d", id), r.CustomFields[id])
	}
	return params
}

// Subscribe subscribes an email address to the subscriber list and returns
// the subscriber ID.
//
// API: Subscriber.Subscribe
//
// Errors:
//   - 9 Email address already exists in the list.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) (int, error) {
	var resp subscriberIDResponse
	if err := c.call(ctx, commandSubscriberSubscribe, req.values(c.subscriberIPAddress), &resp); err != nil {
		return 0, err
	}
	return int(resp.SubscriberID), nil
}

// SubscribeResult is the outcome of subscribing one address with SubscribeAll.
type SubscribeResult struct {
	EmailAddress string
	SubscriberID int
	Err          error
}

// SubscribeAll subscribes every address to the list. One Subscriber.Subscribe
// command is issued per address, sequentially; results are returned in input
// order and a failure for one address does not stop the others.
//
// The returned error is only set when the client is not logged in.
func (c *Client) SubscribeAll(ctx context.Context, listID int, emails []string) ([]SubscribeResult, error) {
	if err := c.checkLogin(); err != nil {
		return nil, err
	}

	results := make([]SubscribeResult, 0, len(emails))
	for _, email := range emails {
		id, err := c.Subscribe(ctx, SubscribeRequest{ListID: listID, EmailAddress: email})
		results = append(results, SubscribeResult{
			EmailAddress: email,
			SubscriberID: id,
			Err:          err,
		})
	}
	return results, nil
}

// GetSubscribersRequest represents the query for Subscribers.Get.
type GetSubscribersRequest struct {
	ListID int
	// Segment defaults to Active.
	Segment string
	// OrderField defaults to EmailAddress.
	OrderField string
	// OrderType defaults to ASC.
	OrderType   string
	RecordsFrom int
	// RecordsPerRequest of zero retrieves every subscriber.
	RecordsPerRequest int
}

func (r GetSubscribersRequest) values() url.Values {
	params := url.Values{}
	params.Set("OrderField", orDefault(r.OrderField, "EmailAddress"))
	params.Set("OrderType", orDefault(r.OrderType, "ASC"))
	params.Set("RecordsFrom", itoa(r.RecordsFrom))
	if r.RecordsPerRequest > 0 {
		params.Set("RecordsPerRequest", itoa(r.RecordsPerRequest))
	} else {
		params.Set("RecordsPerRequest", "")
	}
	params.Set("SubscriberListID", itoa(r.ListID))
	params.Set("SubscriberSegment", orDefault(r.Segment, "Active"))
	return params
}

// GetSubscribers retrieves subscribers of a subscriber list.
//
// API: Subscribers.Get
func (c *Client) GetSubscribers(ctx context.Context, req GetSubscribersRequest) ([]Subscriber, error) {
	var resp subscribersResponse
	if err := c.call(ctx, commandSubscribersGet, req.values(), &resp); err != nil {
		return nil, err
	}
	return resp.Subscribers, nil
}

// DeleteSubscribers removes subscribers from a list.
//
// API: Subscribers.Delete
func (c *Client) DeleteSubscribers(ctx context.Context, listID int, subscriberIDs ...int) error {
	params := url.Values{}
	params.Set("SubscriberListID", itoa(listID))
	params.Set("Subscribers", joinIDs(subscriberIDs))

	var resp baseResponse
	return c.call(ctx, commandSubscribersDelete, params, &resp)
}
