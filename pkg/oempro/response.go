package oempro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an Oempro identifier. The API encodes identifiers either as JSON
// numbers or as numeric strings; both decode into ID.
type ID int

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid identifier %q: %w", s, err)
		}
		*id = ID(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid identifier %s: %w", data, err)
	}
	*id = ID(n)
	return nil
}

// errorCodes decodes the ErrorCode field, which is a single code or a list of codes.
type errorCodes []int

func (c *errorCodes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ids []ID
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		out := make(errorCodes, 0, len(ids))
		for _, id := range ids {
			out = append(out, int(id))
		}
		*c = out
		return nil
	}
	var id ID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	*c = errorCodes{int(id)}
	return nil
}

// baseResponse carries the fields every command reply has.
type baseResponse struct {
	Success   bool       `json:"Success"`
	ErrorCode errorCodes `json:"ErrorCode,omitempty"`
}

func (r *baseResponse) succeeded() bool {
	return r.Success
}

func (r *baseResponse) codes() []int {
	return r.ErrorCode
}

type response interface {
	succeeded() bool
	codes() []int
}

type loginResponse struct {
	baseResponse
	SessionID string `json:"SessionID"`
	UserInfo  struct {
		UserID ID `json:"UserID"`
	} `json:"UserInfo"`
}

type campaignIDResponse struct {
	baseResponse
	CampaignID ID `json:"CampaignID"`
}

type campaignsResponse struct {
	baseResponse
	TotalCampaigns ID         `json:"TotalCampaigns"`
	Campaigns      []Campaign `json:"Campaigns"`
}

type campaignResponse struct {
	baseResponse
	Campaign Campaign `json:"Campaign"`
}

type listIDResponse struct {
	baseResponse
	ListID ID `json:"ListID"`
}

type listsResponse struct {
	baseResponse
	TotalListCount ID     `json:"TotalListCount"`
	Lists          []List `json:"Lists"`
}

type subscriberIDResponse struct {
	baseResponse
	SubscriberID ID `json:"SubscriberID"`
}

type subscribersResponse struct {
	baseResponse
	TotalSubscribers ID           `json:"TotalSubscribers"`
	Subscribers      []Subscriber `json:"Subscribers"`
}

type emailIDResponse struct {
	baseResponse
	EmailID ID `json:"EmailID"`
}

type emailsResponse struct {
	baseResponse
	TotalEmailCount ID      `json:"TotalEmailCount"`
	Emails          []Email `json:"Emails"`
}

type templatesResponse struct {
	baseResponse
	TotalTemplates ID         `json:"TotalTemplates"`
	Templates      []Template `json:"Templates"`
}

type templateResponse struct {
	baseResponse
	Template Template `json:"Template"`
}

// Campaign is a campaign record as returned by Campaigns.Get and Campaign.Get.
type Campaign struct {
	CampaignID     ID     `json:"CampaignID"`
	CampaignName   string `json:"CampaignName"`
	CampaignStatus string `json:"CampaignStatus"`
	RelEmailID     ID     `json:"RelEmailID"`
	ScheduleType   string `json:"ScheduleType"`
	SendDate       string `json:"SendDate"`
	SendTime       string `json:"SendTime"`
	SendTimeZone   string `json:"SendTimeZone"`
	TotalSent      ID     `json:"TotalSent"`
}

// List is a subscriber list record as returned by Lists.Get.
type List struct {
	ListID           ID     `json:"ListID"`
	Name             string `json:"Name"`
	SubscriberCount  ID     `json:"SubscriberCount"`
	OptInMode        string `json:"OptInMode"`
	HideInSubscriber string `json:"HideInSubscriberArea"`
}

// Subscriber is a subscriber record as returned by Subscribers.Get.
type Subscriber struct {
	SubscriberID       ID     `json:"SubscriberID"`
	EmailAddress       string `json:"EmailAddress"`
	SubscriptionStatus string `json:"SubscriptionStatus"`
	SubscriptionDate   string `json:"SubscriptionDate"`
	SubscriptionIP     string `json:"SubscriptionIP"`
	BounceType         string `json:"BounceType"`
}

// Email is an email content record as returned by Emails.Get.
type Email struct {
	EmailID       ID     `json:"EmailID"`
	EmailName     string `json:"EmailName"`
	FromName      string `json:"FromName"`
	FromEmail     string `json:"FromEmail"`
	ReplyToName   string `json:"ReplyToName"`
	ReplyToEmail  string `json:"ReplyToEmail"`
	Subject       string `json:"Subject"`
	Mode          string `json:"Mode"`
	RelTemplateID ID     `json:"RelTemplateID"`
}

// Template is an email template record.
type Template struct {
	TemplateID           ID     `json:"TemplateID"`
	TemplateName         string `json:"TemplateName"`
	TemplateDescription  string `json:"TemplateDescription"`
	TemplateSubject      string `json:"TemplateSubject"`
	TemplateHTMLContent  string `json:"TemplateHTMLContent"`
	TemplatePlainContent string `json:"TemplatePlainContent"`
}
