package worker

import (
	"context"

	"github.com/martinsuchenak/gestion-impacts/internal/log"
)

// ReconcileTaskName names the VRF reconcile task
const ReconcileTaskName = "reconcile-impact-vrfs"

// VRFReconciler re-copies impact VRFs from their IP addresses
type VRFReconciler interface {
	ReconcileImpactVRFs(ctx context.Context) (int, error)
}

// ReconcileTask keeps every IP-bound impact in its IP address's VRF after
// inventory edits.
func ReconcileTask(store VRFReconciler) TaskHandler {
	return func(ctx context.Context) error {
		n, err := store.ReconcileImpactVRFs(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("Impact VRFs reconciled", "updated", n)
		} else {
			log.Debug("Impact VRFs already consistent")
		}
		return nil
	}
}
