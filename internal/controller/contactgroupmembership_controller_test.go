package controller

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"go.miloapis.com/email-provider-oempro/pkg/oempro"
	notificationmiloapiscomv1alpha1 "go.miloapis.com/milo/pkg/apis/notification/v1alpha1"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

var _ = Describe("OemproContactGroupMembershipController", func() {
	var (
		ctx     context.Context
		api     *fakeOempro
		contact *notificationmiloapiscomv1alpha1.Contact
	)

	BeforeEach(func() {
		ctx = context.Background()
		api = newFakeOempro()
		contact = newContact("jane", "jane@example.com")
	})

	newController := func(c client.Client) *OemproContactGroupMembershipController {
		r := &OemproContactGroupMembershipController{
			Client:      c,
			Oempro:      api,
			Credentials: credentials,
		}
		Expect(r.registerFinalizers()).To(Succeed())
		return r
	}

	deletedMembership := func(group *notificationmiloapiscomv1alpha1.ContactGroup) *notificationmiloapiscomv1alpha1.ContactGroupMembership {
		cgm := newMembership("jane-weekly", contact, group)
		cgm.Finalizers = []string{oemproContactGroupMembershipFinalizerKey}
		cgm.Status.Providers = oemproProviderStatus(77)
		now := metav1.Now()
		cgm.DeletionTimestamp = &now
		return cgm
	}

	It("subscribes the contact to the group's list", func() {
		group := newContactGroup("weekly", "12")
		cgm := newMembership("jane-weekly", contact, group)
		c := newFakeClient(contact, group, cgm)
		r := newController(c)

		_, err := r.Reconcile(ctx, requestFor(cgm))
		Expect(err).NotTo(HaveOccurred())
		Expect(api.Subscribes()).To(BeEmpty())

		_, err = r.Reconcile(ctx, requestFor(cgm))
		Expect(err).NotTo(HaveOccurred())
		Expect(api.Subscribes()).To(ConsistOf(oempro.SubscribeRequest{ListID: 12, EmailAddress: "jane@example.com"}))

		updated := get(ctx, c, cgm)
		cond := meta.FindStatusCondition(updated.Status.Conditions, OemproContactGroupMembershipReadyCondition)
		Expect(cond).NotTo(BeNil())
		Expect(cond.Status).To(Equal(metav1.ConditionTrue))
		Expect(cond.Reason).To(Equal(OemproContactGroupMembershipCreatedReason))
		Expect(updated.Status.Providers).To(HaveLen(1))
		Expect(updated.Status.Providers[0].ID).To(Equal("101"))

		By("not subscribing again once ready")
		_, err = r.Reconcile(ctx, requestFor(cgm))
		Expect(err).NotTo(HaveOccurred())
		Expect(api.Subscribes()).To(HaveLen(1))
	})

	It("fails when the group has no Oempro list", func() {
		group := newContactGroup("weekly", "")
		cgm := newMembership("jane-weekly", contact, group)
		cgm.Finalizers = []string{oemproContactGroupMembershipFinalizerKey}
		c := newFakeClient(contact, group, cgm)
		r := newController(c)

		_, err := r.Reconcile(ctx, requestFor(cgm))
		Expect(err).To(MatchError(ContainSubstring("oempro list ID not found")))
		Expect(api.Subscribes()).To(BeEmpty())

		cond := meta.FindStatusCondition(get(ctx, c, cgm).Status.Conditions, OemproContactGroupMembershipReadyCondition)
		Expect(cond).NotTo(BeNil())
		Expect(cond.Status).To(Equal(metav1.ConditionFalse))
		Expect(cond.Reason).To(Equal(OemproContactGroupMembershipNotCreatedReason))
	})

	It("records Oempro rejections and returns them", func() {
		group := newContactGroup("weekly", "12")
		cgm := newMembership("jane-weekly", contact, group)
		cgm.Finalizers = []string{oemproContactGroupMembershipFinalizerKey}
		c := newFakeClient(contact, group, cgm)
		r := newController(c)
		api.subscribeErr = []error{apiError("Subscriber.Subscribe", 4)}

		_, err := r.Reconcile(ctx, requestFor(cgm))
		Expect(oempro.IsErrorCode(err, 4)).To(BeTrue())

		cond := meta.FindStatusCondition(get(ctx, c, cgm).Status.Conditions, OemproContactGroupMembershipReadyCondition)
		Expect(cond.Message).To(ContainSubstring("Invalid subscriber list ID"))
	})

	It("logs in again when the session expired", func() {
		group := newContactGroup("weekly", "12")
		cgm := newMembership("jane-weekly", contact, group)
		cgm.Finalizers = []string{oemproContactGroupMembershipFinalizerKey}
		c := newFakeClient(contact, group, cgm)
		r := newController(c)
		api.subscribeErr = []error{apiError("Subscriber.Subscribe", oempro.CodeSessionExpired)}

		result, err := r.Reconcile(ctx, requestFor(cgm))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Requeue).To(BeTrue())
		Expect(api.Logins()).To(Equal(1))
	})

	It("removes the subscriber from the list on deletion", func() {
		group := newContactGroup("weekly", "12")
		cgm := deletedMembership(group)
		c := newFakeClient(contact, group, cgm)
		r := newController(c)

		_, err := r.Reconcile(ctx, requestFor(cgm))
		Expect(err).NotTo(HaveOccurred())

		Expect(api.Deletes()).To(ConsistOf(deleteCall{ListID: 12, SubscriberIDs: []int{77}}))
		err = c.Get(ctx, client.ObjectKeyFromObject(cgm), &notificationmiloapiscomv1alpha1.ContactGroupMembership{})
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
	})

	It("marks the membership not finalized when removal fails", func() {
		group := newContactGroup("weekly", "12")
		cgm := deletedMembership(group)
		c := newFakeClient(contact, group, cgm)
		r := newController(c)
		api.deleteErr = []error{apiError("Subscribers.Delete", 2)}

		_, err := r.Reconcile(ctx, requestFor(cgm))
		Expect(err).To(MatchError(ContainSubstring("Target segment ID is missing")))

		updated := get(ctx, c, cgm)
		Expect(updated.Finalizers).To(ContainElement(oemproContactGroupMembershipFinalizerKey))
		cond := meta.FindStatusCondition(updated.Status.Conditions, OemproContactGroupMembershipReadyCondition)
		Expect(cond).NotTo(BeNil())
		Expect(cond.Reason).To(Equal(OemproContactGroupMembershipNotFinalizedReason))
	})

	It("completes deletion when the contact group is already gone", func() {
		group := newContactGroup("weekly", "12")
		cgm := deletedMembership(group)
		c := newFakeClient(contact, cgm)
		r := newController(c)

		_, err := r.Reconcile(ctx, requestFor(cgm))
		Expect(err).NotTo(HaveOccurred())

		Expect(api.Deletes()).To(BeEmpty())
		err = c.Get(ctx, client.ObjectKeyFromObject(cgm), &notificationmiloapiscomv1alpha1.ContactGroupMembership{})
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
	})

	It("completes deletion when the contact group lost its Oempro list", func() {
		group := newContactGroup("weekly", "")
		cgm := deletedMembership(group)
		c := newFakeClient(contact, group, cgm)
		r := newController(c)

		_, err := r.Reconcile(ctx, requestFor(cgm))
		Expect(err).NotTo(HaveOccurred())

		Expect(api.Deletes()).To(BeEmpty())
		err = c.Get(ctx, client.ObjectKeyFromObject(cgm), &notificationmiloapiscomv1alpha1.ContactGroupMembership{})
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
	})

	It("retries removal after renewing an expired session", func() {
		group := newContactGroup("weekly", "12")
		cgm := deletedMembership(group)
		c := newFakeClient(contact, group, cgm)
		r := newController(c)
		api.deleteErr = []error{apiError("Subscribers.Delete", oempro.CodeSessionExpired)}

		_, err := r.Reconcile(ctx, requestFor(cgm))
		Expect(err).NotTo(HaveOccurred())
		Expect(api.Logins()).To(Equal(1))
		Expect(api.Deletes()).To(HaveLen(2))
	})
})

var _ = Describe("getListID", func() {
	It("parses the Oempro provider ID", func() {
		id, err := getListID(newContactGroup("weekly", "12"))
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(12))
	})

	It("rejects a non-numeric provider ID", func() {
		_, err := getListID(newContactGroup("weekly", "abc"))
		Expect(err).To(MatchError(ContainSubstring("invalid Oempro list ID")))
	})
})
