package oempro

import (
	"context"
	"net/url"
)

const (
	commandListCreate = "List.Create"
	commandListsGet   = "Lists.Get"
)

// CreateList creates a new subscriber list and returns its ID.
//
// API: List.Create
//
// Errors:
//   - 2 There is already a subscriber list with given name.
//   - 3 Allowed list amount exceeded.
func (c *Client) CreateList(ctx context.Context, name string) (int, error) {
	params := url.Values{}
	params.Set("SubscriberListName", name)

	var resp listIDResponse
	if err := c.call(ctx, commandListCreate, params, &resp); err != nil {
		return 0, err
	}
	return int(resp.ListID), nil
}

// GetListsRequest represents the query for Lists.Get.
type GetListsRequest struct {
	// OrderField defaults to Name.
	OrderField string
	// OrderType defaults to ASC.
	OrderType string
}

// GetLists retrieves subscriber lists.
//
// API: Lists.Get
func (c *Client) GetLists(ctx context.Context, req GetListsRequest) ([]List, error) {
	params := url.Values{}
	params.Set("OrderField", orDefault(req.OrderField, "Name"))
	params.Set("OrderType", orDefault(req.OrderType, "ASC"))

	var resp listsResponse
	if err := c.call(ctx, commandListsGet, params, &resp); err != nil {
		return nil, err
	}
	return resp.Lists, nil
}
