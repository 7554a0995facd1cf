/*
go-mocap reconstructs 3D human pose from synchronized multi camera
captures. The root package holds the shared data model: per view 2D
keypoints with validity masks, fused 3D keypoints, camera calibration
normalization and fitted parametric body model values.

The processing stages live in the subdirectories. capture reads multi
camera containers, framecache manages on disk frame materialization,
estimate drives 2D pose detection, triangulate fuses views into world
space and projects back, fit drives an external body model optimizer,
render draws overlay videos and pipeline orchestrates a full run.

See cmd/mocap-process for the command line front end.
*/
package mocap
