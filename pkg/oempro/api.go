package oempro

import "context"

// API defines the interface for the Oempro SDK.
type API interface {
	// Login verifies the credentials and establishes the session used by every other command.
	Login(ctx context.Context, username, password string) (int, error)

	// CreateCampaign creates a new blank campaign.
	CreateCampaign(ctx context.Context, name string) (int, error)
	// SetupCampaign updates a campaign, creating it first when no ID is given.
	SetupCampaign(ctx context.Context, req SetupCampaignRequest) (int, error)
	// GetCampaigns retrieves campaigns of the logged in user.
	GetCampaigns(ctx context.Context, req GetCampaignsRequest) ([]Campaign, error)
	// GetCampaign retrieves a single campaign.
	GetCampaign(ctx context.Context, campaignID int, retrieveStatistics bool) (*Campaign, error)
	// SendCampaign sets the campaign status and schedule so it gets sent.
	SendCampaign(ctx context.Context, req SendCampaignRequest) error
	// DeleteCampaigns deletes campaigns.
	DeleteCampaigns(ctx context.Context, campaignIDs ...int) error

	// CreateList creates a new subscriber list.
	CreateList(ctx context.Context, name string) (int, error)
	// GetLists retrieves subscriber lists.
	GetLists(ctx context.Context, req GetListsRequest) ([]List, error)

	// Subscribe subscribes an email address to a subscriber list.
	Subscribe(ctx context.Context, req SubscribeRequest) (int, error)
	// SubscribeAll subscribes every address, one command per address, in order.
	SubscribeAll(ctx context.Context, listID int, emails []string) ([]SubscribeResult, error)
	// GetSubscribers retrieves subscribers of a subscriber list.
	GetSubscribers(ctx context.Context, req GetSubscribersRequest) ([]Subscriber, error)
	// DeleteSubscribers removes subscribers from a subscriber list.
	DeleteSubscribers(ctx context.Context, listID int, subscriberIDs ...int) error

	// CreateEmail creates a blank email content record.
	CreateEmail(ctx context.Context) (int, error)
	// SetupEmail updates an email content record, creating it first when no ID is given.
	SetupEmail(ctx context.Context, req SetupEmailRequest) (int, error)
	// GetEmails retrieves the email content records created so far.
	GetEmails(ctx context.Context) ([]Email, error)
	// PreviewEmail sends a preview of an email to an address.
	PreviewEmail(ctx context.Context, campaignID, emailID int, toEmail string) error

	// GetTemplates retrieves the email templates defined in the system.
	GetTemplates(ctx context.Context) ([]Template, error)
	// GetTemplate retrieves a single email template.
	GetTemplate(ctx context.Context, templateID int) (*Template, error)
}

var _ API = (*Client)(nil)
