package util

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// StatusPatchParams describes a status subresource merge patch.
//
// Original is the object as read from the API server; OldStatus and NewStatus
// are compared semantically to decide whether a patch is sent at all.
type StatusPatchParams struct {
	Client     client.Client
	Logger     logr.Logger
	Object     client.Object
	Original   client.Object
	OldStatus  any
	NewStatus  any
	FieldOwner string
}

// PatchStatusIfChanged sends a merge patch for the status of Object when it
// moved away from OldStatus. An object that disappeared in the meantime is
// not an error: finalizers routinely release it in the same reconcile.
func PatchStatusIfChanged(ctx context.Context, params StatusPatchParams) error {
	key := client.ObjectKeyFromObject(params.Object)
	log := params.Logger.WithValues("object", key, "fieldOwner", params.FieldOwner)

	if equality.Semantic.DeepEqual(params.OldStatus, params.NewStatus) {
		log.V(1).Info("Status unchanged, skipping patch")
		return nil
	}

	patch := client.MergeFrom(params.Original)
	err := params.Client.Status().Patch(ctx, params.Object, patch, client.FieldOwner(params.FieldOwner))
	switch {
	case apierrors.IsNotFound(err):
		log.Info("Object gone before its status could be patched")
		return nil
	case err != nil:
		log.Error(err, "Failed to patch status")
		return fmt.Errorf("failed to patch status of %s: %w", key, err)
	}

	log.V(1).Info("Status patched")
	return nil
}
