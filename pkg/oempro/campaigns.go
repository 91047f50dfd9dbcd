package oempro

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	commandCampaignCreate   = "Campaign.Create"
	commandCampaignUpdate   = "Campaign.Update"
	commandCampaignsGet     = "Campaigns.Get"
	commandCampaignGet      = "Campaign.Get"
	commandCampaignsDelete  = "Campaigns.Delete"
	defaultSendTimeZone     = "(GMT-03:00) Brasilia"
	defaultCampaignStatus   = "Ready"
	defaultScheduleType     = "Immediate"
	scheduleTypeNotSchedule = "Not Scheduled"
)

// CreateCampaign creates a new campaign to send out.
//
// API: Campaign.Create
func (c *Client) CreateCampaign(ctx context.Context, name string) (int, error) {
	params := url.Values{}
	params.Set("CampaignName", name)

	var resp campaignIDResponse
	if err := c.call(ctx, commandCampaignCreate, params, &resp); err != nil {
		return 0, err
	}
	return int(resp.CampaignID), nil
}

// SetupCampaignRequest represents the payload for setting up a campaign.
type SetupCampaignRequest struct {
	// CampaignID is the campaign to update. A blank campaign named
	// CampaignName is created first when nil.
	CampaignID   *int
	CampaignName string
	EmailID      int
	// ListIDs are the recipient subscriber lists.
	ListIDs      []int
	SendTimeZone string
}

func (r SetupCampaignRequest) values(campaignID int) url.Values {
	recipients := make([]string, 0, len(r.ListIDs))
	for _, id := range r.ListIDs {
		recipients = append(recipients, strconv.Itoa(id)+":0")
	}
	joined := strings.Join(recipients, ",")

	tz := r.SendTimeZone
	if tz == "" {
		tz = defaultSendTimeZone
	}

	params := url.Values{}
	params.Set("CampaignID", itoa(campaignID))
	params.Set("CampaignName", r.CampaignName)
	params.Set("GoogleAnalyticsDomains", "")
	params.Set("PublishOnRSS", "Disabled")
	params.Set("RecipientListsAndSegments", joined)
	params.Set("Recipients", joined)
	params.Set("RelEmailID", itoa(r.EmailID))
	params.Set("ScheduleRecDaysOfMonth", "")
	params.Set("ScheduleRecDaysOfWeek", "")
	params.Set("ScheduleRecHours", "")
	params.Set("ScheduleRecMinutes", "")
	params.Set("ScheduleRecMonths", "")
	params.Set("ScheduleRecSendMaxInstance", "0")
	params.Set("ScheduleType", scheduleTypeNotSchedule)
	params.Set("SendDate", "")
	params.Set("SendDateAndTime", "")
	params.Set("SendTime", "")
	params.Set("SendTimeZone", tz)
	return params
}

// SetupCampaign updates campaign details, creating the campaign first when
// req.CampaignID is nil. It returns the campaign ID.
//
// API: Campaign.Create (optional), Campaign.Update
func (c *Client) SetupCampaign(ctx context.Context, req SetupCampaignRequest) (int, error) {
	if err := c.checkLogin(); err != nil {
		return 0, err
	}

	var campaignID int
	if req.CampaignID != nil {
		campaignID = *req.CampaignID
	} else {
		id, err := c.CreateCampaign(ctx, req.CampaignName)
		if err != nil {
			return 0, fmt.Errorf("failed to create campaign: %w", err)
		}
		campaignID = id
	}

	var resp baseResponse
	if err := c.call(ctx, commandCampaignUpdate, req.values(campaignID), &resp); err != nil {
		return 0, err
	}
	return campaignID, nil
}

// GetCampaignsRequest represents the query for Campaigns.Get. Zero values
// select the defaults documented on each field.
type GetCampaignsRequest struct {
	// OrderField defaults to CampaignStatus.
	OrderField string
	// OrderType defaults to ASC.
	OrderType   string
	RecordsFrom int
	// RecordsPerRequest defaults to 10.
	RecordsPerRequest int
	SearchKeyword     string
	// Status is one of All, Draft, Ready, Sending, Paused, Pending Approval,
	// Sent, Failed. Defaults to All.
	Status string
}

func (r GetCampaignsRequest) values() url.Values {
	params := url.Values{}
	params.Set("OrderField", orDefault(r.OrderField, "CampaignStatus"))
	params.Set("OrderType", orDefault(r.OrderType, "ASC"))
	params.Set("RecordsFrom", itoa(r.RecordsFrom))
	perRequest := r.RecordsPerRequest
	if perRequest == 0 {
		perRequest = 10
	}
	params.Set("RecordsPerRequest", itoa(perRequest))
	params.Set("RetrieveTags", "true")
	params.Set("SearchKeyword", r.SearchKeyword)
	params.Set("Status", orDefault(r.Status, "All"))
	return params
}

// GetCampaigns retrieves campaigns.
//
// API: Campaigns.Get
func (c *Client) GetCampaigns(ctx context.Context, req GetCampaignsRequest) ([]Campaign, error) {
	var resp campaignsResponse
	if err := c.call(ctx, commandCampaignsGet, req.values(), &resp); err != nil {
		return nil, err
	}
	return resp.Campaigns, nil
}

// GetCampaign retrieves a specific campaign of the user.
//
// API: Campaign.Get
func (c *Client) GetCampaign(ctx context.Context, campaignID int, retrieveStatistics bool) (*Campaign, error) {
	params := url.Values{}
	params.Set("CampaignID", itoa(campaignID))
	params.Set("RetrieveStatistics", strconv.FormatBool(retrieveStatistics))

	var resp campaignResponse
	if err := c.call(ctx, commandCampaignGet, params, &resp); err != nil {
		return nil, err
	}
	return &resp.Campaign, nil
}

// SendCampaignRequest represents the payload for scheduling a campaign.
type SendCampaignRequest struct {
	CampaignID int
	// CampaignStatus defaults to Ready.
	CampaignStatus string
	// ScheduleType defaults to Immediate.
	ScheduleType string
	SendDate     string
	SendTime     string
	SendTimeZone string
}

// SendCampaign updates the campaign status and schedule. With the defaults
// the campaign is marked Ready and scheduled immediately; delivery still
// depends on the Oempro cron running.
//
// API: Campaign.Update
func (c *Client) SendCampaign(ctx context.Context, req SendCampaignRequest) error {
	params := url.Values{}
	params.Set("CampaignID", itoa(req.CampaignID))
	params.Set("CampaignStatus", orDefault(req.CampaignStatus, defaultCampaignStatus))
	params.Set("ScheduleType", orDefault(req.ScheduleType, defaultScheduleType))
	params.Set("SendDate", req.SendDate)
	params.Set("SendTime", req.SendTime)
	params.Set("SendTimeZone", req.SendTimeZone)

	var resp baseResponse
	return c.call(ctx, commandCampaignUpdate, params, &resp)
}

// DeleteCampaigns deletes campaigns.
//
// API: Campaigns.Delete
func (c *Client) DeleteCampaigns(ctx context.Context, campaignIDs ...int) error {
	params := url.Values{}
	params.Set("Campaigns", joinIDs(campaignIDs))

	var resp baseResponse
	return c.call(ctx, commandCampaignsDelete, params, &resp)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
