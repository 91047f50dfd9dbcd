package controller

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"go.miloapis.com/email-provider-oempro/pkg/oempro"
	notificationmiloapiscomv1alpha1 "go.miloapis.com/milo/pkg/apis/notification/v1alpha1"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
)

const contactsListID = 5

var _ = Describe("OemproContactController", func() {
	var (
		ctx context.Context
		api *fakeOempro
	)

	BeforeEach(func() {
		ctx = context.Background()
		api = newFakeOempro()
	})

	newController := func(c client.Client) *OemproContactController {
		r := &OemproContactController{
			Client:                          c,
			Oempro:                          api,
			Credentials:                     credentials,
			ContactsListID:                  contactsListID,
			NewsLetterContactGroupName:      "newsletter",
			NewsLetterContactGroupNamespace: testNamespace,
		}
		Expect(r.registerFinalizers()).To(Succeed())
		return r
	}

	// reconcileNew runs the first pass, which only adds the finalizer, and then the subscribe pass.
	reconcileNew := func(r *OemproContactController, contact *notificationmiloapiscomv1alpha1.Contact) error {
		_, err := r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		Expect(controllerutil.ContainsFinalizer(get(ctx, r.Client, contact), oemproContactFinalizerKey)).To(BeTrue())
		Expect(api.Subscribes()).To(BeEmpty())

		_, err = r.Reconcile(ctx, requestFor(contact))
		return err
	}

	It("subscribes a new contact to the contacts list", func() {
		contact := newContact("jane", "jane@example.com")
		r := newController(newFakeClient(contact))

		Expect(reconcileNew(r, contact)).To(Succeed())

		Expect(api.Subscribes()).To(ConsistOf(oempro.SubscribeRequest{ListID: contactsListID, EmailAddress: "jane@example.com"}))

		updated := get(ctx, r.Client, contact)
		cond := meta.FindStatusCondition(updated.Status.Conditions, OemproContactReadyCondition)
		Expect(cond).NotTo(BeNil())
		Expect(cond.Status).To(Equal(metav1.ConditionTrue))
		Expect(cond.Reason).To(Equal(OemproContactCreatedReason))
		Expect(updated.Status.Providers).To(HaveLen(1))
		Expect(updated.Status.Providers[0].ID).To(Equal("101"))
		Expect(string(updated.Status.Providers[0].Name)).To(Equal("Oempro"))
	})

	It("reports Oempro rejections on the ready condition", func() {
		contact := newContact("jane", "not-an-email")
		r := newController(newFakeClient(contact))
		api.subscribeErr = []error{apiError("Subscriber.Subscribe", 5)}

		Expect(reconcileNew(r, contact)).To(Succeed())

		updated := get(ctx, r.Client, contact)
		cond := meta.FindStatusCondition(updated.Status.Conditions, OemproContactReadyCondition)
		Expect(cond).NotTo(BeNil())
		Expect(cond.Status).To(Equal(metav1.ConditionFalse))
		Expect(cond.Reason).To(Equal(OemproContactNotCreatedReason))
		Expect(cond.Message).To(ContainSubstring("Invalid email address"))
		Expect(updated.Status.Providers).To(BeEmpty())

		By("retrying on the next reconcile")
		_, err := r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		Expect(api.Subscribes()).To(HaveLen(2))
		cond = meta.FindStatusCondition(get(ctx, r.Client, contact).Status.Conditions, OemproContactReadyCondition)
		Expect(cond.Status).To(Equal(metav1.ConditionTrue))
	})

	It("returns transport errors so the request is retried", func() {
		contact := newContact("jane", "jane@example.com")
		r := newController(newFakeClient(contact))
		api.subscribeErr = []error{&oempro.TransportError{Command: "Subscriber.Subscribe", StatusCode: 502, Err: errors.New("bad gateway")}}

		err := reconcileNew(r, contact)
		Expect(err).To(HaveOccurred())
		Expect(oempro.IsTransport(err)).To(BeTrue())
		Expect(get(ctx, r.Client, contact).Status.Conditions).To(BeEmpty())
	})

	It("adopts an address that is already on the list", func() {
		contact := newContact("jane", "jane@example.com")
		r := newController(newFakeClient(contact))
		api.subscribers = []oempro.Subscriber{
			{SubscriberID: 41, EmailAddress: "someone@example.com"},
			{SubscriberID: 42, EmailAddress: "Jane@Example.com"},
		}
		api.subscribeErr = []error{apiError("Subscriber.Subscribe", oempro.CodeEmailAlreadySubscribed)}

		Expect(reconcileNew(r, contact)).To(Succeed())

		updated := get(ctx, r.Client, contact)
		Expect(meta.IsStatusConditionTrue(updated.Status.Conditions, OemproContactReadyCondition)).To(BeTrue())
		Expect(updated.Status.Providers[0].ID).To(Equal("42"))
	})

	It("logs in again when the session expired", func() {
		contact := newContact("jane", "jane@example.com")
		r := newController(newFakeClient(contact))
		api.subscribeErr = []error{apiError("Subscriber.Subscribe", oempro.CodeSessionExpired)}

		_, err := r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		result, err := r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Requeue).To(BeTrue())
		Expect(api.Logins()).To(Equal(1))
		Expect(get(ctx, r.Client, contact).Status.Conditions).To(BeEmpty())

		By("subscribing once the session is renewed")
		_, err = r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.IsStatusConditionTrue(get(ctx, r.Client, contact).Status.Conditions, OemproContactReadyCondition)).To(BeTrue())
	})

	// changedContact is a subscribed contact whose spec moved on to generation 2.
	changedContact := func() *notificationmiloapiscomv1alpha1.Contact {
		contact := newContact("jane", "jane.new@example.com")
		contact.Generation = 2
		contact.Finalizers = []string{oemproContactFinalizerKey}
		contact.Status.Providers = oemproProviderStatus(55)
		contact.Status.Conditions = []metav1.Condition{{
			Type:               OemproContactReadyCondition,
			Status:             metav1.ConditionTrue,
			Reason:             OemproContactCreatedReason,
			ObservedGeneration: 1,
			LastTransitionTime: metav1.Now(),
		}}
		return contact
	}

	It("replaces the subscriber when the contact changes", func() {
		contact := changedContact()
		r := newController(newFakeClient(contact))

		_, err := r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())

		Expect(api.Deletes()).To(ConsistOf(deleteCall{ListID: contactsListID, SubscriberIDs: []int{55}}))
		Expect(api.Subscribes()).To(ConsistOf(oempro.SubscribeRequest{ListID: contactsListID, EmailAddress: "jane.new@example.com"}))

		updated := get(ctx, r.Client, contact)
		cond := meta.FindStatusCondition(updated.Status.Conditions, OemproContactReadyCondition)
		Expect(cond.Reason).To(Equal(OemproContactUpdatedReason))
		Expect(cond.ObservedGeneration).To(Equal(int64(2)))
		Expect(updated.Status.Providers[0].ID).To(Equal("101"))
	})

	It("retries the replacement when Oempro rejects the new address", func() {
		contact := changedContact()
		r := newController(newFakeClient(contact))
		api.subscribeErr = []error{apiError("Subscriber.Subscribe", 5)}

		_, err := r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		Expect(api.Deletes()).To(ConsistOf(deleteCall{ListID: contactsListID, SubscriberIDs: []int{55}}))

		updated := get(ctx, r.Client, contact)
		cond := meta.FindStatusCondition(updated.Status.Conditions, OemproContactReadyCondition)
		Expect(cond.Status).To(Equal(metav1.ConditionFalse))
		Expect(cond.Reason).To(Equal(OemproContactNotUpdatedReason))
		Expect(updated.Status.Providers).To(BeEmpty())

		By("subscribing again without deleting twice")
		_, err = r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		Expect(api.Subscribes()).To(HaveLen(2))
		Expect(api.Deletes()).To(HaveLen(1))

		updated = get(ctx, r.Client, contact)
		Expect(meta.IsStatusConditionTrue(updated.Status.Conditions, OemproContactReadyCondition)).To(BeTrue())
		Expect(updated.Status.Providers[0].ID).To(Equal("101"))
	})

	It("records the completed delete when the new subscription fails in transit", func() {
		contact := changedContact()
		r := newController(newFakeClient(contact))
		api.subscribeErr = []error{&oempro.TransportError{Command: "Subscriber.Subscribe", StatusCode: 502, Err: errors.New("bad gateway")}}

		_, err := r.Reconcile(ctx, requestFor(contact))
		Expect(oempro.IsTransport(err)).To(BeTrue())
		Expect(get(ctx, r.Client, contact).Status.Providers).To(BeEmpty())

		_, err = r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		Expect(api.Deletes()).To(HaveLen(1))
		Expect(get(ctx, r.Client, contact).Status.Providers[0].ID).To(Equal("101"))
	})

	It("retries the replacement after renewing an expired session", func() {
		contact := changedContact()
		r := newController(newFakeClient(contact))
		api.subscribeErr = []error{apiError("Subscriber.Subscribe", oempro.CodeSessionExpired)}

		result, err := r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Requeue).To(BeTrue())
		Expect(api.Logins()).To(Equal(1))
		Expect(get(ctx, r.Client, contact).Status.Providers).To(BeEmpty())

		_, err = r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())
		Expect(api.Deletes()).To(HaveLen(1))
		Expect(api.Subscribes()).To(HaveLen(2))
		Expect(meta.IsStatusConditionTrue(get(ctx, r.Client, contact).Status.Conditions, OemproContactReadyCondition)).To(BeTrue())
	})

	It("deletes the subscriber when the contact is deleted", func() {
		contact := newContact("jane", "jane@example.com")
		contact.Finalizers = []string{oemproContactFinalizerKey}
		contact.Status.Providers = oemproProviderStatus(55)
		now := metav1.Now()
		contact.DeletionTimestamp = &now
		c := newFakeClient(contact)
		r := newController(c)

		_, err := r.Reconcile(ctx, requestFor(contact))
		Expect(err).NotTo(HaveOccurred())

		Expect(api.Deletes()).To(ConsistOf(deleteCall{ListID: contactsListID, SubscriberIDs: []int{55}}))
		err = c.Get(ctx, client.ObjectKeyFromObject(contact), &notificationmiloapiscomv1alpha1.Contact{})
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
	})

	It("keeps the finalizer when Oempro refuses the deletion", func() {
		contact := newContact("jane", "jane@example.com")
		contact.Finalizers = []string{oemproContactFinalizerKey}
		contact.Status.Providers = oemproProviderStatus(55)
		now := metav1.Now()
		contact.DeletionTimestamp = &now
		c := newFakeClient(contact)
		r := newController(c)
		api.deleteErr = []error{apiError("Subscribers.Delete", oempro.CodeNotEnoughPrivileges)}

		_, err := r.Reconcile(ctx, requestFor(contact))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("Not enough privileges"))
		Expect(get(ctx, c, contact).Finalizers).To(ContainElement(oemproContactFinalizerKey))
	})

	It("adds newsletter contacts to the newsletter group", func() {
		contact := newContact("newsletter-jane", "jane@example.com")
		c := newFakeClient(contact)
		r := newController(c)

		Expect(reconcileNew(r, contact)).To(Succeed())

		memberships := &notificationmiloapiscomv1alpha1.ContactGroupMembershipList{}
		Expect(c.List(ctx, memberships, client.InNamespace(testNamespace))).To(Succeed())
		Expect(memberships.Items).To(HaveLen(1))
		cgm := memberships.Items[0]
		Expect(strings.HasPrefix(cgm.Name, "newsletter-jane-")).To(BeTrue())
		Expect(cgm.Spec.ContactRef.Name).To(Equal("newsletter-jane"))
		Expect(cgm.Spec.ContactGroupRef.Name).To(Equal("newsletter"))

		Expect(meta.IsStatusConditionTrue(get(ctx, c, contact).Status.Conditions, NewsLetterAddedCondition)).To(BeTrue())
	})
})
