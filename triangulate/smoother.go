package triangulate

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	mocap "github.com/mvlab/go-mocap"
)

// Smoother runs a constant velocity Kalman filter over each joint's
// world trajectory, reducing the frame to frame jitter left by
// independent per frame triangulation. Gaps in the mask are coasted
// across by prediction and stay invalid in the output.
type Smoother struct {
	processNoise float64
	measureNoise float64
	motionMat    *mat.Dense
	updateMat    *mat.Dense
}

// NewSmoother initializes and returns a new Smoother. processNoise is
// the motion model standard deviation per frame and measureNoise the
// triangulation standard deviation, both in world units. Values at or
// below zero fall back to 0.01 and 0.05.
func NewSmoother(processNoise, measureNoise float64) *Smoother {

	if processNoise <= 0 {
		processNoise = 0.01
	}
	if measureNoise <= 0 {
		measureNoise = 0.05
	}

	ndim := 3
	dt := 1.0

	// constant velocity motion model over [x y z vx vy vz]
	motionMat := mat.NewDense(6, 6, nil)

	for i := 0; i < 6; i++ {
		motionMat.Set(i, i, 1)
	}
	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, dt)
	}

	// observation matrix picking the position block
	updateMat := mat.NewDense(3, 6, nil)

	for i := 0; i < 3; i++ {
		updateMat.Set(i, i, 1)
	}

	return &Smoother{
		processNoise: processNoise,
		measureNoise: measureNoise,
		motionMat:    motionMat,
		updateMat:    updateMat,
	}
}

// jointState is one joint's filter state.
type jointState struct {
	mean *mat.VecDense
	cov  *mat.Dense
}

// Smooth returns a smoothed copy of the sequence. The input is not
// modified and the mask carries over unchanged.
func (s *Smoother) Smooth(kp *mocap.Keypoints3D) *mocap.Keypoints3D {

	out := kp.Clone()

	for j := 0; j < kp.NumJoints(); j++ {

		var st *jointState

		for f := 0; f < kp.NumFrames(); f++ {

			valid := kp.Mask.Valid(f, j)

			if st == nil {
				if !valid {
					continue
				}
				// first observation passes through unchanged
				st = s.initiate(kp.Frames[f][j])
				continue
			}

			s.predict(st)

			if !valid {
				continue
			}

			if err := s.update(st, kp.Frames[f][j]); err != nil {
				// keep the raw triangulation on numerical failure
				continue
			}

			out.Frames[f][j] = mocap.Joint3D{
				X: st.mean.AtVec(0),
				Y: st.mean.AtVec(1),
				Z: st.mean.AtVec(2),
			}
		}
	}

	return out
}

// initiate seeds the filter state on a joint's first observation.
func (s *Smoother) initiate(p mocap.Joint3D) *jointState {

	mean := mat.NewVecDense(6, []float64{p.X, p.Y, p.Z, 0, 0, 0})

	cov := mat.NewDense(6, 6, nil)

	posVar := (2 * s.measureNoise) * (2 * s.measureNoise)
	velVar := (10 * s.processNoise) * (10 * s.processNoise)

	for i := 0; i < 3; i++ {
		cov.Set(i, i, posVar)
		cov.Set(3+i, 3+i, velVar)
	}

	return &jointState{mean: mean, cov: cov}
}

// predict advances the state one frame through the motion model.
func (s *Smoother) predict(st *jointState) {

	next := mat.NewVecDense(6, nil)
	next.MulVec(s.motionMat, st.mean)
	st.mean = next

	// motion noise on the diagonal
	motionCov := mat.NewDense(6, 6, nil)
	q := s.processNoise * s.processNoise

	for i := 0; i < 6; i++ {
		motionCov.Set(i, i, q)
	}

	cov := mat.NewDense(6, 6, nil)
	cov.Mul(s.motionMat, st.cov)
	cov.Mul(cov, s.motionMat.T())
	cov.Add(cov, motionCov)
	st.cov = cov
}

// update folds an observation into the state.
func (s *Smoother) update(st *jointState, p mocap.Joint3D) error {

	projectedMean, projectedCov := s.project(st)

	chol := mat.Cholesky{}

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// B = P·Hᵀ for the Kalman gain
	b := mat.NewDense(6, 3, nil)
	b.Mul(st.cov, s.updateMat.T())

	var kalmanGain mat.Dense
	if err := chol.SolveTo(&kalmanGain, b.T()); err != nil {
		return err
	}

	// innovation between the observation and the predicted position
	innovation := mat.NewVecDense(3, []float64{
		p.X - projectedMean.AtVec(0),
		p.Y - projectedMean.AtVec(1),
		p.Z - projectedMean.AtVec(2),
	})

	shift := mat.NewVecDense(6, nil)
	shift.MulVec(kalmanGain.T(), innovation)
	st.mean.AddVec(st.mean, shift)

	// covariance shrinks by gainᵀ·S·gain
	temp := mat.NewDense(6, 3, nil)
	temp.Mul(kalmanGain.T(), projectedCov)

	temp2 := mat.NewDense(6, 6, nil)
	temp2.Mul(temp, &kalmanGain)

	newCov := mat.NewDense(6, 6, nil)
	newCov.Sub(st.cov, temp2)
	st.cov = newCov

	return nil
}

// project maps the state mean and covariance into measurement space.
func (s *Smoother) project(st *jointState) (*mat.VecDense, *mat.SymDense) {

	projectedMean := mat.NewVecDense(3, nil)
	projectedMean.MulVec(s.updateMat, st.mean)

	temp := mat.NewDense(3, 6, nil)
	temp.Mul(s.updateMat, st.cov)

	temp2 := mat.NewDense(3, 3, nil)
	temp2.Mul(temp, s.updateMat.T())

	projectedCov := mat.NewSymDense(3, nil)
	r := s.measureNoise * s.measureNoise

	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			projectedCov.SetSym(i, j, temp2.At(i, j))
		}
		projectedCov.SetSym(i, i, temp2.At(i, i)+r)
	}

	return projectedMean, projectedCov
}
