/*
Package fit drives parametric body model fitting. The optimizer itself
is an external process; the driver hands it triangulated 3D keypoints
as an npz bundle and reads the fitted parameters back from another.
*/
package fit

import (
	"context"

	mocap "github.com/mvlab/go-mocap"
)

// Fitter fits a parametric body model to a 3D keypoint sequence. init
// may carry a previous fit to warm start from and may be nil.
type Fitter interface {
	Fit(ctx context.Context, kps *mocap.Keypoints3D, init *mocap.BodyModel) (*mocap.BodyModel, error)
}
