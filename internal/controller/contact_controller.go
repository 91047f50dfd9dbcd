package controller

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"go.miloapis.com/email-provider-oempro/internal/util"
	"go.miloapis.com/email-provider-oempro/pkg/oempro"
	notificationmiloapiscomv1alpha1 "go.miloapis.com/milo/pkg/apis/notification/v1alpha1"

	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/finalizer"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	oemproContactFinalizerKey = "notification.miloapis.com/oempro-contact"
	oemproContactFieldOwner   = "oemprocontact-controller"
)

const (
	// OemproContactReadyCondition is set to true when the contact is subscribed to the Oempro contacts list
	OemproContactReadyCondition = "OemproContactReady"
	// OemproContactNotCreatedReason is set when Oempro rejected the subscription
	OemproContactNotCreatedReason = "ContactNotCreated"
	// OemproContactCreatedReason is set when the contact was subscribed
	OemproContactCreatedReason = "ContactCreated"
	// OemproContactUpdatedReason is set when the subscription was replaced after a spec change
	OemproContactUpdatedReason = "ContactUpdated"
	// OemproContactNotUpdatedReason is set when Oempro rejected the replacement subscription
	OemproContactNotUpdatedReason = "ContactNotUpdated"
)

const (
	// NewsLetterAddedCondition is set to true when the contact joined the newsletter contact group
	NewsLetterAddedCondition = "NewsLetterAdded"
	// NewsLetterAddedReason is set when the newsletter membership was created
	NewsLetterAddedReason = "NewsLetterAdded"
	// NewsLetterNotAddedReason is set when the newsletter membership could not be created
	NewsLetterNotAddedReason = "NewsLetterNotAdded"
)

// OemproContactController mirrors Milo contacts into the Oempro contacts list.
type OemproContactController struct {
	Client                          client.Client
	Finalizers                      finalizer.Finalizers
	Oempro                          oempro.API
	Credentials                     Credentials
	ContactsListID                  int
	NewsLetterContactGroupName      string
	NewsLetterContactGroupNamespace string
}

// oemproContactFinalizer removes the Oempro subscriber of a deleted Contact
type oemproContactFinalizer struct {
	Client         client.Client
	Oempro         oempro.API
	Credentials    Credentials
	ContactsListID int
}

func (f *oemproContactFinalizer) Finalize(ctx context.Context, obj client.Object) (finalizer.Result, error) {
	log := logf.FromContext(ctx).WithValues("finalizer", "ContactFinalizer", "trigger", obj.GetName())
	log.Info("Finalizing Contact")

	contact, ok := obj.(*notificationmiloapiscomv1alpha1.Contact)
	if !ok {
		log.Error(fmt.Errorf("object is not a Contact"), "Failed to finalize Contact")
		return finalizer.Result{}, fmt.Errorf("object is not a Contact")
	}

	if err := f.deleteSubscriber(ctx, contact); err != nil {
		log.Error(err, "Failed to delete Oempro subscriber")
		return finalizer.Result{}, fmt.Errorf("failed to delete Oempro subscriber: %w", err)
	}

	return finalizer.Result{}, nil
}

func (f *oemproContactFinalizer) deleteSubscriber(ctx context.Context, contact *notificationmiloapiscomv1alpha1.Contact) error {
	log := logf.FromContext(ctx).WithValues("controller", "OemproContactController", "trigger", contact.Name)

	subscriberID, ok := subscriberIDFromStatus(contact.Status.Providers)
	if !ok {
		log.Info("No Oempro subscriber recorded, nothing to delete")
		return nil
	}

	log.Info("Deleting Oempro subscriber", "subscriberID", subscriberID)
	err := f.Oempro.DeleteSubscribers(ctx, f.ContactsListID, subscriberID)
	if renewed, renewErr := renewSession(ctx, f.Oempro, f.Credentials, err); renewed {
		if renewErr != nil {
			return renewErr
		}
		err = f.Oempro.DeleteSubscribers(ctx, f.ContactsListID, subscriberID)
	}
	return err
}

// +kubebuilder:rbac:groups=notification.miloapis.com,resources=contacts,verbs=get;list;watch
// +kubebuilder:rbac:groups=notification.miloapis.com,resources=contacts/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=notification.miloapis.com,resources=contacts/finalizers,verbs=update
// +kubebuilder:rbac:groups=notification.miloapis.com,resources=contactgroupmemberships,verbs=get;list;watch;create;delete

// Reconcile is the main function that reconciles the Contact object.
func (r *OemproContactController) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := logf.FromContext(ctx).WithValues("controller", "ContactController", "trigger", req.NamespacedName)
	log.Info("Starting reconciliation", "namespacedName", req.String(), "name", req.Name, "namespace", req.Namespace)

	contact := &notificationmiloapiscomv1alpha1.Contact{}
	err := r.Client.Get(ctx, req.NamespacedName, contact)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Info("Contact not found. Probably deleted.")
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("failed to get contact: %w", err)
	}

	finalizeResult, err := r.Finalizers.Finalize(ctx, contact)
	if err != nil {
		log.Error(err, "Failed to run finalizers for Contact")
		return ctrl.Result{}, fmt.Errorf("failed to run finalizers for Contact: %w", err)
	}
	if finalizeResult.Updated {
		log.Info("finalizer updated the contact object, updating API server")
		if updateErr := r.Client.Update(ctx, contact); updateErr != nil {
			if errors.IsConflict(updateErr) {
				log.Info("Conflict updating Contact after finalizer update; requeuing")
				return ctrl.Result{Requeue: true}, nil
			}
			log.Error(updateErr, "Failed to update Contact after finalizer update")
			return ctrl.Result{}, updateErr
		}
		return ctrl.Result{}, nil
	}
	if !contact.GetDeletionTimestamp().IsZero() {
		return ctrl.Result{}, nil
	}

	oldStatus := contact.Status.DeepCopy()
	original := contact.DeepCopy()
	readyCond := meta.FindStatusCondition(contact.Status.Conditions, OemproContactReadyCondition)
	requeue := false
	var updateErr error

	switch {
	// First creation, or a previous attempt was rejected by Oempro
	case readyCond == nil || readyCond.Reason == OemproContactNotCreatedReason:
		log.Info("Oempro subscriber creation")

		subscriberID, err := subscribe(ctx, r.Oempro, r.ContactsListID, contact.Spec.Email)
		if renewed, renewErr := renewSession(ctx, r.Oempro, r.Credentials, err); renewed {
			return ctrl.Result{Requeue: renewErr == nil}, renewErr
		}
		if err != nil && !oempro.IsAPIError(err) {
			log.Error(err, "Failed to create Oempro subscriber")
			return ctrl.Result{}, fmt.Errorf("failed to create Oempro subscriber: %w", err)
		}

		if err != nil {
			log.Info("Oempro rejected the subscription", "error", err.Error())
			meta.SetStatusCondition(&contact.Status.Conditions, metav1.Condition{
				Type:               OemproContactReadyCondition,
				Status:             metav1.ConditionFalse,
				Reason:             OemproContactNotCreatedReason,
				Message:            fmt.Sprintf("Oempro subscriber not created on email provider: %s", err.Error()),
				LastTransitionTime: metav1.Now(),
				ObservedGeneration: contact.GetGeneration(),
			})
		} else {
			log.Info("Oempro subscriber created", "subscriberID", subscriberID)
			meta.SetStatusCondition(&contact.Status.Conditions, metav1.Condition{
				Type:               OemproContactReadyCondition,
				Status:             metav1.ConditionTrue,
				Reason:             OemproContactCreatedReason,
				Message:            "Oempro subscriber created on email provider",
				LastTransitionTime: metav1.Now(),
				ObservedGeneration: contact.GetGeneration(),
			})
			contact.Status.Providers = oemproProviderStatus(subscriberID)
		}

	// Update: generation changed since we last processed the object, or a
	// previous replacement was rejected by Oempro
	case readyCond.Reason == OemproContactNotUpdatedReason || readyCond.ObservedGeneration != contact.GetGeneration():
		log.Info("Contact updated")

		subscriberID, err := r.resubscribe(ctx, contact)
		if renewed, renewErr := renewSession(ctx, r.Oempro, r.Credentials, err); renewed {
			if renewErr != nil {
				return ctrl.Result{}, renewErr
			}
			requeue = true
		}
		switch {
		case err != nil && !requeue && !oempro.IsAPIError(err):
			// Status is still patched so a completed delete is not repeated.
			log.Error(err, "Failed to update Oempro subscriber")
			updateErr = fmt.Errorf("failed to update Oempro subscriber: %w", err)
		case err != nil:
			log.Info("Failed to update subscriber on email provider", "error", err.Error())
			meta.SetStatusCondition(&contact.Status.Conditions, metav1.Condition{
				Type:               OemproContactReadyCondition,
				Status:             metav1.ConditionFalse,
				Reason:             OemproContactNotUpdatedReason,
				Message:            fmt.Sprintf("Oempro subscriber not updated on email provider: %s", err.Error()),
				LastTransitionTime: metav1.Now(),
				ObservedGeneration: contact.GetGeneration(),
			})
		default:
			log.Info("Oempro subscriber updated", "subscriberID", subscriberID)
			meta.SetStatusCondition(&contact.Status.Conditions, metav1.Condition{
				Type:               OemproContactReadyCondition,
				Status:             metav1.ConditionTrue,
				Reason:             OemproContactUpdatedReason,
				Message:            "Oempro subscriber updated on email provider",
				LastTransitionTime: metav1.Now(),
				ObservedGeneration: contact.GetGeneration(),
			})
			contact.Status.Providers = oemproProviderStatus(subscriberID)
		}
	}

	errorAddingToNewsLetter := false
	if r.isNewsletterContact(contact) {
		errorAddingToNewsLetter = r.addToNewsLetterList(ctx, contact)
	}

	if err := util.PatchStatusIfChanged(ctx, util.StatusPatchParams{
		Client:     r.Client,
		Logger:     log,
		Object:     contact,
		Original:   original,
		OldStatus:  oldStatus,
		NewStatus:  &contact.Status,
		FieldOwner: oemproContactFieldOwner,
	}); err != nil {
		return ctrl.Result{}, err
	}

	if updateErr != nil {
		return ctrl.Result{}, updateErr
	}

	if errorAddingToNewsLetter {
		log.Error(errors.NewInternalError(fmt.Errorf("failed to add contact to newsletter group")), "Failed to add contact to newsletter group")
		return ctrl.Result{}, fmt.Errorf("failed to add contact to newsletter group")
	}

	if requeue {
		log.Info("Oempro session renewed, requeuing")
		return ctrl.Result{Requeue: true}, nil
	}

	log.Info("Contact reconciled")

	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *OemproContactController) SetupWithManager(mgr ctrl.Manager) error {
	if err := r.registerFinalizers(); err != nil {
		return err
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&notificationmiloapiscomv1alpha1.Contact{}).
		Named("oemprocontact").
		Complete(r)
}

func (r *OemproContactController) registerFinalizers() error {
	r.Finalizers = finalizer.NewFinalizers()
	if err := r.Finalizers.Register(oemproContactFinalizerKey, &oemproContactFinalizer{
		Client:         r.Client,
		Oempro:         r.Oempro,
		Credentials:    r.Credentials,
		ContactsListID: r.ContactsListID,
	}); err != nil {
		return fmt.Errorf("failed to register oempro contact finalizer: %w", err)
	}
	return nil
}

// resubscribe replaces the recorded subscriber with one for the current email.
// The recorded provider status is cleared as soon as the old subscriber is
// gone, so a rejected subscription is retried without a second delete.
func (r *OemproContactController) resubscribe(ctx context.Context, contact *notificationmiloapiscomv1alpha1.Contact) (int, error) {
	log := logf.FromContext(ctx).WithValues("controller", "OemproContactController", "trigger", contact.Name)

	if subscriberID, ok := subscriberIDFromStatus(contact.Status.Providers); ok {
		log.Info("Deleting previous Oempro subscriber", "subscriberID", subscriberID)
		if err := r.Oempro.DeleteSubscribers(ctx, r.ContactsListID, subscriberID); err != nil {
			return 0, fmt.Errorf("failed to delete previous subscriber: %w", err)
		}
		contact.Status.Providers = nil
	}

	return subscribe(ctx, r.Oempro, r.ContactsListID, contact.Spec.Email)
}

// isNewsletterContact returns true if the contact name starts with "newsletter-".
func (r *OemproContactController) isNewsletterContact(contact *notificationmiloapiscomv1alpha1.Contact) bool {
	return strings.HasPrefix(contact.Name, "newsletter-")
}

func (r *OemproContactController) addToNewsLetterList(ctx context.Context, contact *notificationmiloapiscomv1alpha1.Contact) bool {
	log := logf.FromContext(ctx).WithValues("controller", "OemproContactController", "trigger", contact.Name)

	newsLetterCond := meta.FindStatusCondition(contact.Status.Conditions, NewsLetterAddedCondition)
	if newsLetterCond != nil && newsLetterCond.Status == metav1.ConditionTrue {
		log.Info("News letter already added")
		return false
	}

	log.Info("Adding contact to newsletter group")
	contactgroupmembership := notificationmiloapiscomv1alpha1.ContactGroupMembership{
		ObjectMeta: metav1.ObjectMeta{
			Name:      r.generateCgmName(contact),
			Namespace: contact.Namespace,
		},
		Spec: notificationmiloapiscomv1alpha1.ContactGroupMembershipSpec{
			ContactRef: notificationmiloapiscomv1alpha1.ContactReference{
				Name:      contact.Name,
				Namespace: contact.Namespace,
			},
			ContactGroupRef: notificationmiloapiscomv1alpha1.ContactGroupReference{
				Name:      r.NewsLetterContactGroupName,
				Namespace: r.NewsLetterContactGroupNamespace,
			},
		},
	}

	if err := r.Client.Create(ctx, &contactgroupmembership); err != nil {
		if errors.IsAlreadyExists(err) {
			log.Info("ContactGroupMembership already exists")
			return false
		}
		log.Error(err, "Failed to create ContactGroupMembership")

		meta.SetStatusCondition(&contact.Status.Conditions, metav1.Condition{
			Type:               NewsLetterAddedCondition,
			Status:             metav1.ConditionFalse,
			Reason:             NewsLetterNotAddedReason,
			Message:            fmt.Sprintf("Contact not added to Newsletter list: %s", err.Error()),
			LastTransitionTime: metav1.Now(),
			ObservedGeneration: contact.GetGeneration(),
		})

		return true
	}

	meta.SetStatusCondition(&contact.Status.Conditions, metav1.Condition{
		Type:               NewsLetterAddedCondition,
		Status:             metav1.ConditionTrue,
		Reason:             NewsLetterAddedReason,
		Message:            "Contact added to Newsletter list on email provider.",
		LastTransitionTime: metav1.Now(),
		ObservedGeneration: contact.GetGeneration(),
	})

	log.Info("ContactGroupMembership created")
	return false
}

// generateCgmName generates a deterministic name for the newsletter ContactGroupMembership
func (r *OemproContactController) generateCgmName(contact *notificationmiloapiscomv1alpha1.Contact) string {
	hash := sha256.Sum256([]byte(string(contact.UID)))
	return fmt.Sprintf("%s-%x", contact.Name, hash)
}
