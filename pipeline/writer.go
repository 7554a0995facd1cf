package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	mocap "github.com/mvlab/go-mocap"
	"github.com/mvlab/go-mocap/estimate"
	"github.com/mvlab/go-mocap/npz"
)

// Writer saves run artifacts as NPZ archives under the output directory.
// Artifact names are deterministic so later runs of the same capture
// overwrite their predecessors, and carry no file extension.
type Writer struct {
	outputDir string
	captureID string
	runID     string
	log       zerolog.Logger
}

// NewWriter creates a Writer for one capture's artifacts
func NewWriter(outputDir, captureID, runID string, log zerolog.Logger) *Writer {

	return &Writer{
		outputDir: outputDir,
		captureID: captureID,
		runID:     runID,
		log:       log,
	}
}

// Keypoints2DFile returns the artifact path for a view's 2D keypoints
func (w *Writer) Keypoints2DFile(view int) string {
	return filepath.Join(w.outputDir,
		fmt.Sprintf("%s_keypoints2d_view%02d", w.captureID, view))
}

// Keypoints3DFile returns the artifact path for the 3D keypoints
func (w *Writer) Keypoints3DFile() string {
	return filepath.Join(w.outputDir, w.captureID+"_keypoints3d")
}

// BodyModelFile returns the artifact path for fitted body model parameters
func (w *Writer) BodyModelFile(variant mocap.Variant) string {
	return filepath.Join(w.outputDir,
		fmt.Sprintf("%s_%s_data", w.captureID, variant))
}

// WriteKeypoints2D saves one view's 2D keypoints
func (w *Writer) WriteKeypoints2D(view int, kps *mocap.Keypoints2D) (string, error) {

	file := w.Keypoints2DFile(view)

	if err := npz.Write(file, w.stamp(kps.Arrays())); err != nil {
		return "", fmt.Errorf("error writing view %d keypoints: %w", view, err)
	}

	return file, nil
}

// WriteKeypoints3D saves the triangulated 3D keypoints
func (w *Writer) WriteKeypoints3D(kps *mocap.Keypoints3D) (string, error) {

	file := w.Keypoints3DFile()

	if err := npz.Write(file, w.stamp(kps.Arrays())); err != nil {
		return "", fmt.Errorf("error writing 3D keypoints: %w", err)
	}

	return file, nil
}

// WriteBodyModel saves fitted body model parameters
func (w *Writer) WriteBodyModel(body *mocap.BodyModel) (string, error) {

	file := w.BodyModelFile(body.Variant)

	if err := npz.Write(file, w.stamp(body.Arrays())); err != nil {
		return "", fmt.Errorf("error writing body model: %w", err)
	}

	return file, nil
}

// WriteAll saves every artifact of an estimation result and returns the
// files written.  Absent views are skipped with a warning.
func (w *Writer) WriteAll(res *estimate.Result) ([]string, error) {

	var files []string

	for v, kps := range res.Views {
		if kps == nil {
			w.log.Warn().Int("view", v).Msg("no keypoints for view, skipping artifact")
			continue
		}

		file, err := w.WriteKeypoints2D(v, kps)

		if err != nil {
			return files, err
		}

		files = append(files, file)
	}

	if res.Keypoints != nil {
		file, err := w.WriteKeypoints3D(res.Keypoints)

		if err != nil {
			return files, err
		}

		files = append(files, file)
	}

	if res.Body != nil {
		file, err := w.WriteBodyModel(res.Body)

		if err != nil {
			return files, err
		}

		files = append(files, file)
	}

	for _, f := range files {
		w.log.Info().Str("file", f).Msg("wrote artifact")
	}

	return files, nil
}

// stamp adds the run ID to an artifact's arrays
func (w *Writer) stamp(arrays map[string]npz.Array) map[string]npz.Array {

	arrays["run_id"] = npz.String(w.runID)
	return arrays
}
