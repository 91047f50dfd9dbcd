package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.miloapis.com/email-provider-oempro/internal/util"
	"go.miloapis.com/email-provider-oempro/pkg/oempro"
	notificationmiloapiscomv1alpha1 "go.miloapis.com/milo/pkg/apis/notification/v1alpha1"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/finalizer"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	// OemproContactGroupMembershipReadyCondition is set to true when the contact is subscribed to the group's Oempro list
	OemproContactGroupMembershipReadyCondition = "OemproContactGroupMembershipReady"
	// OemproContactGroupMembershipNotCreatedReason is set when the subscription could not be created
	OemproContactGroupMembershipNotCreatedReason = "ContactGroupMembershipNotCreated"
	// OemproContactGroupMembershipCreatedReason is set when the subscription was created
	OemproContactGroupMembershipCreatedReason = "ContactGroupMembershipCreated"
	// OemproContactGroupMembershipNotFinalizedReason is set when the subscriber could not be removed on deletion
	OemproContactGroupMembershipNotFinalizedReason = "ContactGroupMembershipNotFinalized"
)

const (
	oemproContactGroupMembershipFinalizerKey = "notification.miloapis.com/oempro-contact-group-membership"
	oemproContactGroupMembershipFieldOwner   = "oemprocontactgroupmembership-controller"
)

// OemproContactGroupMembershipController subscribes group members to the
// Oempro list referenced by their ContactGroup.
type OemproContactGroupMembershipController struct {
	Client      client.Client
	Finalizers  finalizer.Finalizers
	Oempro      oempro.API
	Credentials Credentials
}

// oemproContactGroupMembershipFinalizer removes the subscriber when a membership is deleted
type oemproContactGroupMembershipFinalizer struct {
	Client      client.Client
	Oempro      oempro.API
	Credentials Credentials
}

func (f *oemproContactGroupMembershipFinalizer) Finalize(ctx context.Context, obj client.Object) (finalizer.Result, error) {
	log := logf.FromContext(ctx).WithValues("finalizer", "ContactGroupMembershipFinalizer", "trigger", obj.GetName())
	log.Info("Finalizing ContactGroupMembership")

	cgm, ok := obj.(*notificationmiloapiscomv1alpha1.ContactGroupMembership)
	if !ok {
		log.Error(fmt.Errorf("object is not a ContactGroupMembership"), "Failed to finalize ContactGroupMembership")
		return finalizer.Result{}, fmt.Errorf("object is not a ContactGroupMembership")
	}

	finalizerError := f.removeSubscriber(ctx, cgm)
	if finalizerError == nil {
		return finalizer.Result{}, nil
	}
	log.Error(finalizerError, "Failed to remove Oempro subscriber")

	original := cgm.DeepCopy()
	oldStatus := cgm.Status.DeepCopy()

	meta.SetStatusCondition(&cgm.Status.Conditions, metav1.Condition{
		Type:               OemproContactGroupMembershipReadyCondition,
		Status:             metav1.ConditionFalse,
		Reason:             OemproContactGroupMembershipNotFinalizedReason,
		Message:            fmt.Sprintf("Failed to remove Oempro subscriber from list: %s", finalizerError.Error()),
		LastTransitionTime: metav1.Now(),
		ObservedGeneration: cgm.GetGeneration(),
	})

	if err := util.PatchStatusIfChanged(ctx, util.StatusPatchParams{
		Client:     f.Client,
		Logger:     log,
		Object:     cgm,
		Original:   original,
		OldStatus:  oldStatus,
		NewStatus:  &cgm.Status,
		FieldOwner: oemproContactGroupMembershipFieldOwner,
	}); err != nil {
		log.Error(err, "Failed to patch contactgroupmembership status in finalizer")
		return finalizer.Result{}, fmt.Errorf("failed to patch contactgroupmembership status in finalizer: %w", err)
	}

	return finalizer.Result{}, fmt.Errorf("failed to remove Oempro subscriber: %w", finalizerError)
}

func (f *oemproContactGroupMembershipFinalizer) removeSubscriber(ctx context.Context, cgm *notificationmiloapiscomv1alpha1.ContactGroupMembership) error {
	log := logf.FromContext(ctx).WithValues("controller", "OemproContactGroupMembershipController", "trigger", cgm.Name)

	subscriberID, ok := subscriberIDFromStatus(cgm.Status.Providers)
	if !ok {
		log.Info("No Oempro subscriber recorded, nothing to remove")
		return nil
	}

	contactGroup, err := getContactGroup(ctx, f.Client, cgm)
	if apierrors.IsNotFound(err) {
		log.Info("ContactGroup not found, nothing to remove", "subscriberID", subscriberID)
		return nil
	}
	if err != nil {
		return err
	}
	listID, err := getListID(contactGroup)
	if errors.Is(err, errListIDNotFound) {
		log.Info("ContactGroup has no Oempro list, nothing to remove", "subscriberID", subscriberID)
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("Removing Oempro subscriber from list", "listID", listID, "subscriberID", subscriberID)
	err = f.Oempro.DeleteSubscribers(ctx, listID, subscriberID)
	if renewed, renewErr := renewSession(ctx, f.Oempro, f.Credentials, err); renewed {
		if renewErr != nil {
			return renewErr
		}
		err = f.Oempro.DeleteSubscribers(ctx, listID, subscriberID)
	}
	return err
}

// +kubebuilder:rbac:groups=notification.miloapis.com,resources=contactgroupmemberships,verbs=get;list;watch
// +kubebuilder:rbac:groups=notification.miloapis.com,resources=contactgroupmemberships/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=notification.miloapis.com,resources=contactgroupmemberships/finalizers,verbs=update
// +kubebuilder:rbac:groups=notification.miloapis.com,resources=contactgroups,verbs=get;list;watch

// Reconcile is the main function that reconciles the ContactGroupMembership object.
func (r *OemproContactGroupMembershipController) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := logf.FromContext(ctx).WithValues("controller", "ContactGroupMembershipController", "trigger", req.NamespacedName)
	log.Info("Starting reconciliation", "namespacedName", req.String(), "name", req.Name, "namespace", req.Namespace)

	cgm := &notificationmiloapiscomv1alpha1.ContactGroupMembership{}
	err := r.Client.Get(ctx, req.NamespacedName, cgm)
	if err != nil {
		if apierrors.IsNotFound(err) {
			log.Info("ContactGroupMembership not found. Probably deleted.")
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("failed to get contactgroupmembership: %w", err)
	}

	finalizeResult, err := r.Finalizers.Finalize(ctx, cgm)
	if err != nil {
		log.Error(err, "Failed to run finalizers for ContactGroupMembership")
		return ctrl.Result{}, fmt.Errorf("failed to run finalizers for ContactGroupMembership: %w", err)
	}
	if finalizeResult.Updated {
		log.Info("finalizer updated the contactgroupmembership object, updating API server")
		if updateErr := r.Client.Update(ctx, cgm); updateErr != nil {
			if apierrors.IsConflict(updateErr) {
				log.Info("Conflict updating ContactGroupMembership after finalizer update; requeuing")
				return ctrl.Result{Requeue: true}, nil
			}
			log.Error(updateErr, "Failed to update ContactGroupMembership after finalizer update")
			return ctrl.Result{}, updateErr
		}
		return ctrl.Result{}, nil
	}
	if !cgm.GetDeletionTimestamp().IsZero() {
		return ctrl.Result{}, nil
	}

	readyCond := meta.FindStatusCondition(cgm.Status.Conditions, OemproContactGroupMembershipReadyCondition)
	if readyCond != nil && readyCond.Reason != OemproContactGroupMembershipNotCreatedReason {
		log.Info("Contactgroupmembership already reconciled")
		return ctrl.Result{}, nil
	}

	contact, contactGroup, err := getReferencedResources(ctx, r.Client, cgm)
	if err != nil {
		log.Error(err, "Failed to get referenced resources")
		return ctrl.Result{}, fmt.Errorf("failed to get referenced resources: %w", err)
	}

	oldStatus := cgm.Status.DeepCopy()
	original := cgm.DeepCopy()

	log.Info("Oempro subscriber creation")
	subscriberID, reconcileError := r.subscribeToList(ctx, contact, contactGroup)
	if renewed, renewErr := renewSession(ctx, r.Oempro, r.Credentials, reconcileError); renewed {
		return ctrl.Result{Requeue: renewErr == nil}, renewErr
	}

	if reconcileError != nil {
		log.Error(reconcileError, "Failed to subscribe contact to list")
		meta.SetStatusCondition(&cgm.Status.Conditions, metav1.Condition{
			Type:               OemproContactGroupMembershipReadyCondition,
			Status:             metav1.ConditionFalse,
			Reason:             OemproContactGroupMembershipNotCreatedReason,
			Message:            fmt.Sprintf("Oempro contact group membership not created on email provider: %s", reconcileError.Error()),
			LastTransitionTime: metav1.Now(),
			ObservedGeneration: cgm.GetGeneration(),
		})
	} else {
		log.Info("Oempro contact group membership created", "subscriberID", subscriberID)
		meta.SetStatusCondition(&cgm.Status.Conditions, metav1.Condition{
			Type:               OemproContactGroupMembershipReadyCondition,
			Status:             metav1.ConditionTrue,
			Reason:             OemproContactGroupMembershipCreatedReason,
			Message:            "Oempro contact group membership created on email provider",
			LastTransitionTime: metav1.Now(),
			ObservedGeneration: cgm.GetGeneration(),
		})
		cgm.Status.Providers = oemproProviderStatus(subscriberID)
	}

	if err := util.PatchStatusIfChanged(ctx, util.StatusPatchParams{
		Client:     r.Client,
		Logger:     log,
		Object:     cgm,
		Original:   original,
		OldStatus:  oldStatus,
		NewStatus:  &cgm.Status,
		FieldOwner: oemproContactGroupMembershipFieldOwner,
	}); err != nil {
		return ctrl.Result{}, err
	}

	if reconcileError != nil {
		return ctrl.Result{}, reconcileError
	}

	log.Info("Contactgroupmembership reconciled")
	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *OemproContactGroupMembershipController) SetupWithManager(mgr ctrl.Manager) error {
	if err := r.registerFinalizers(); err != nil {
		return err
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&notificationmiloapiscomv1alpha1.ContactGroupMembership{}).
		Named("oemprocontactgroupmembership").
		Complete(r)
}

func (r *OemproContactGroupMembershipController) registerFinalizers() error {
	r.Finalizers = finalizer.NewFinalizers()
	if err := r.Finalizers.Register(oemproContactGroupMembershipFinalizerKey, &oemproContactGroupMembershipFinalizer{
		Client:      r.Client,
		Oempro:      r.Oempro,
		Credentials: r.Credentials,
	}); err != nil {
		return fmt.Errorf("failed to register oempro contact group membership finalizer: %w", err)
	}
	return nil
}

func (r *OemproContactGroupMembershipController) subscribeToList(ctx context.Context, c *notificationmiloapiscomv1alpha1.Contact, cg *notificationmiloapiscomv1alpha1.ContactGroup) (int, error) {
	log := logf.FromContext(ctx).WithValues("controller", "OemproContactGroupMembershipController", "trigger", c.Name)

	listID, err := getListID(cg)
	if err != nil {
		log.Error(err, "Failed to get Oempro list ID")
		return 0, err
	}

	subscriberID, err := subscribe(ctx, r.Oempro, listID, c.Spec.Email)
	if err != nil {
		return 0, fmt.Errorf("failed to subscribe contact to Oempro list %d: %w", listID, err)
	}
	return subscriberID, nil
}

var errListIDNotFound = errors.New("oempro list ID not found")

// getListID returns the Oempro subscriber list referenced by the contact group.
func getListID(cg *notificationmiloapiscomv1alpha1.ContactGroup) (int, error) {
	for _, provider := range cg.Spec.Providers {
		if provider.Name != oemproProviderName {
			continue
		}
		id, err := strconv.Atoi(provider.ID)
		if err != nil {
			return 0, fmt.Errorf("invalid Oempro list ID %q for contact group %s: %w", provider.ID, cg.Name, err)
		}
		return id, nil
	}

	return 0, fmt.Errorf("%w for contact group %s", errListIDNotFound, cg.Name)
}

func getContactGroup(ctx context.Context, k8sClient client.Client, cgm *notificationmiloapiscomv1alpha1.ContactGroupMembership) (*notificationmiloapiscomv1alpha1.ContactGroup, error) {
	contactGroup := &notificationmiloapiscomv1alpha1.ContactGroup{}
	err := k8sClient.Get(ctx, client.ObjectKey{Name: cgm.Spec.ContactGroupRef.Name, Namespace: cgm.Spec.ContactGroupRef.Namespace}, contactGroup)
	if err != nil {
		return nil, fmt.Errorf("failed to get ContactGroup: %w", err)
	}
	return contactGroup, nil
}

func getReferencedResources(ctx context.Context, k8sClient client.Client, cgm *notificationmiloapiscomv1alpha1.ContactGroupMembership) (*notificationmiloapiscomv1alpha1.Contact, *notificationmiloapiscomv1alpha1.ContactGroup, error) {
	contact := &notificationmiloapiscomv1alpha1.Contact{}
	err := k8sClient.Get(ctx, client.ObjectKey{Name: cgm.Spec.ContactRef.Name, Namespace: cgm.Spec.ContactRef.Namespace}, contact)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get Contact: %w", err)
	}

	contactGroup, err := getContactGroup(ctx, k8sClient, cgm)
	if err != nil {
		return nil, nil, err
	}

	return contact, contactGroup, nil
}
