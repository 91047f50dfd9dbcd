package oempro

import (
	"context"
	"net/url"
)

const (
	commandTemplatesGet = "Email.Templates.Get"
	commandTemplateGet  = "Email.Template.Get"
)

// GetTemplates retrieves the email templates defined in the system.
//
// API: Email.Templates.Get
func (c *Client) GetTemplates(ctx context.Context) ([]Template, error) {
	var resp templatesResponse
	if err := c.call(ctx, commandTemplatesGet, url.Values{}, &resp); err != nil {
		return nil, err
	}
	return resp.Templates, nil
}

// GetTemplate retrieves a single email template.
//
// API: Email.Template.Get
func (c *Client) GetTemplate(ctx context.Context, templateID int) (*Template, error) {
	params := url.Values{}
	params.Set("TemplateID", itoa(templateID))

	var resp templateResponse
	if err := c.call(ctx, commandTemplateGet, params, &resp); err != nil {
		return nil, err
	}
	return &resp.Template, nil
}
