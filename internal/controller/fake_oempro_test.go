package controller

import (
	"context"
	"sync"

	"go.miloapis.com/email-provider-oempro/pkg/oempro"
)

type deleteCall struct {
	ListID        int
	SubscriberIDs []int
}

// fakeOempro records the subscriber commands issued by the controllers.
// Commands the controllers never use fall through to the nil embedded API.
type fakeOempro struct {
	oempro.API

	mu          sync.Mutex
	logins      int
	subscribes  []oempro.SubscribeRequest
	deletes     []deleteCall
	nextID      int
	subscribers []oempro.Subscriber

	loginErr     error
	subscribeErr []error
	deleteErr    []error
}

func newFakeOempro() *fakeOempro {
	return &fakeOempro{nextID: 100}
}

func (f *fakeOempro) Login(_ context.Context, _, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return 1, f.loginErr
}

func (f *fakeOempro) Subscribe(_ context.Context, req oempro.SubscribeRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, req)
	if err := pop(&f.subscribeErr); err != nil {
		return 0, err
	}
	f.nextID++
	f.subscribers = append(f.subscribers, oempro.Subscriber{SubscriberID: oempro.ID(f.nextID), EmailAddress: req.EmailAddress})
	return f.nextID, nil
}

func (f *fakeOempro) GetSubscribers(_ context.Context, _ oempro.GetSubscribersRequest) ([]oempro.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]oempro.Subscriber(nil), f.subscribers...), nil
}

func (f *fakeOempro) DeleteSubscribers(_ context.Context, listID int, subscriberIDs ...int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, deleteCall{ListID: listID, SubscriberIDs: subscriberIDs})
	return pop(&f.deleteErr)
}

func (f *fakeOempro) Subscribes() []oempro.SubscribeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]oempro.SubscribeRequest(nil), f.subscribes...)
}

func (f *fakeOempro) Deletes() []deleteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]deleteCall(nil), f.deletes...)
}

func (f *fakeOempro) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}
