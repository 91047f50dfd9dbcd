package oempro

import (
	"context"
	"fmt"
	"net/url"

	"k8s.io/utils/ptr"
)

const (
	commandEmailCreate   = "Email.Create"
	commandEmailUpdate   = "Email.Update"
	commandEmailsGet     = "Emails.Get"
	commandEmailPreview  = "Email.EmailPreview"
	defaultImageEmbedded = "Disabled"
)

// CreateEmail creates a blank email record and returns its ID.
//
// API: Email.Create
func (c *Client) CreateEmail(ctx context.Context) (int, error) {
	var resp emailIDResponse
	if err := c.call(ctx, commandEmailCreate, url.Values{}, &resp); err != nil {
		return 0, err
	}
	return int(resp.EmailID), nil
}

// SetupEmailRequest represents the payload for setting up email content.
type SetupEmailRequest struct {
	// EmailID is the email to update. A blank email is created first when nil.
	EmailID       *int
	Name          string
	FromEmail     string
	FromName      string
	ReplyToEmail  string
	ReplyToName   string
	Subject       string
	HTMLContent   string
	PlainContent  string
	RelTemplateID int
	// ImageEmbedding is Enabled or Disabled. Defaults to Disabled.
	ImageEmbedding *string
}

func (r SetupEmailRequest) values(emailID int) url.Values {
	params := url.Values{}
	params.Set("EmailID", itoa(emailID))
	params.Set("EmailName", r.Name)
	params.Set("FromEmail", r.FromEmail)
	params.Set("FromName", r.FromName)
	params.Set("HTMLContent", r.HTMLContent)
	params.Set("ImageEmbedding", ptr.Deref(r.ImageEmbedding, defaultImageEmbedded))
	params.Set("Mode", "Template")
	params.Set("PlainContent", r.PlainContent)
	params.Set("RelTemplateID", itoa(r.RelTemplateID))
	params.Set("ReplyToEmail", r.ReplyToEmail)
	params.Set("ReplyToName", r.ReplyToName)
	params.Set("Subject", r.Subject)
	params.Set("ValidateScope", "Campaign")
	params.Set("Campaign", "")
	return params
}

// SetupEmail updates email content, creating a blank email first when
// req.EmailID is nil. It returns the email ID.
//
// API: Email.Create (optional), Email.Update
func (c *Client) SetupEmail(ctx context.Context, req SetupEmailRequest) (int, error) {
	if err := c.checkLogin(); err != nil {
		return 0, err
	}

	emailID := ptr.Deref(req.EmailID, 0)
	if req.EmailID == nil {
		id, err := c.CreateEmail(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to create email: %w", err)
		}
		emailID = id
	}

	var resp baseResponse
	if err := c.call(ctx, commandEmailUpdate, req.values(emailID), &resp); err != nil {
		return 0, err
	}
	return emailID, nil
}

// GetEmails returns the list of email contents created so far.
//
// API: Emails.Get
func (c *Client) GetEmails(ctx context.Context) ([]Email, error) {
	var resp emailsResponse
	if err := c.call(ctx, commandEmailsGet, url.Values{}, &resp); err != nil {
		return nil, err
	}
	return resp.Emails, nil
}

// PreviewEmail sends a preview email to the provided address.
//
// API: Email.EmailPreview
func (c *Client) PreviewEmail(ctx context.Context, campaignID, emailID int, toEmail string) error {
	params := url.Values{}
	params.Set("CampaignID", itoa(campaignID))
	params.Set("EmailID", itoa(emailID))
	params.Set("EmailAddress", toEmail)

	var resp baseResponse
	return c.call(ctx, commandEmailPreview, params, &resp)
}
