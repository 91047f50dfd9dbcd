package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.miloapis.com/email-provider-oempro/pkg/oempro"
	notificationmiloapiscomv1alpha1 "go.miloapis.com/milo/pkg/apis/notification/v1alpha1"

	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// oemproProviderName is the provider name recorded in Milo statuses and
// looked up in ContactGroup provider references.
const oemproProviderName = "Oempro"

// Credentials are used to log in again when Oempro reports an expired session.
type Credentials struct {
	Username string
	Password string
}

// renewSession logs in again when err reports an expired session. It returns
// true when err was a session failure, in which case the caller should requeue.
func renewSession(ctx context.Context, api oempro.API, creds Credentials, err error) (bool, error) {
	if !oempro.IsSessionExpired(err) {
		return false, nil
	}

	log := logf.FromContext(ctx)
	log.Info("Oempro session expired, logging in again")

	if _, loginErr := api.Login(ctx, creds.Username, creds.Password); loginErr != nil {
		log.Error(loginErr, "Failed to renew Oempro session")
		return true, fmt.Errorf("failed to renew Oempro session: %w", loginErr)
	}
	return true, nil
}

// subscriberIDFromStatus returns the Oempro subscriber ID recorded in providers.
func subscriberIDFromStatus(providers []notificationmiloapiscomv1alpha1.ContactProviderStatus) (int, bool) {
	for _, p := range providers {
		if p.Name != oemproProviderName {
			continue
		}
		id, err := strconv.Atoi(p.ID)
		if err != nil || id == 0 {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

func oemproProviderStatus(subscriberID int) []notificationmiloapiscomv1alpha1.ContactProviderStatus {
	return []notificationmiloapiscomv1alpha1.ContactProviderStatus{
		{
			Name: oemproProviderName,
			ID:   strconv.Itoa(subscriberID),
		},
	}
}

// subscribe adds email to the list and returns the subscriber ID. An address
// that is already on the list is not an error; its existing ID is returned.
func subscribe(ctx context.Context, api oempro.API, listID int, email string) (int, error) {
	log := logf.FromContext(ctx).WithValues("listID", listID)

	id, err := api.Subscribe(ctx, oempro.SubscribeRequest{ListID: listID, EmailAddress: email})
	if err == nil {
		return id, nil
	}
	if !oempro.IsErrorCode(err, oempro.CodeEmailAlreadySubscribed) {
		return 0, err
	}

	log.Info("Email address already subscribed, looking up existing subscriber")
	subscribers, getErr := api.GetSubscribers(ctx, oempro.GetSubscribersRequest{ListID: listID})
	if getErr != nil {
		return 0, fmt.Errorf("failed to look up existing subscriber: %w", getErr)
	}
	for _, s := range subscribers {
		if strings.EqualFold(s.EmailAddress, email) {
			return int(s.SubscriberID), nil
		}
	}
	return 0, fmt.Errorf("subscriber already exists in list %d but was not returned by Subscribers.Get", listID)
}
