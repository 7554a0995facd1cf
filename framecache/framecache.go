// Package framecache materializes capture frames as image files on disk
// and cleans them up according to the configured retention strategy.
package framecache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cheggaaa/pb/v3"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Strategy controls where decoded frames live and how long they are kept
type Strategy string

const (
	// InMemory decodes frames straight into memory without touching disk
	InMemory Strategy = "none"
	// Temp writes frames to disk and removes them after a successful run
	Temp Strategy = "temp"
	// Keep writes frames to disk and leaves them for reuse by later runs
	Keep Strategy = "keep"
)

// ParseStrategy converts a strategy flag value to a Strategy
func ParseStrategy(s string) (Strategy, error) {

	switch Strategy(s) {
	case InMemory, Temp, Keep:
		return Strategy(s), nil
	}

	return "", fmt.Errorf("unknown frame strategy %q, use none, temp or keep", s)
}

// FrameReader yields successive video frames, matching the read loop of
// gocv.VideoCapture.  Read returns false when no frames remain.
type FrameReader interface {
	Read(dst *gocv.Mat) bool
}

// Params defines the settings for creating a frame Cache
type Params struct {
	// OutputDir is the directory the cache root is created under
	OutputDir string
	// CaptureID names the capture, used in the cache directory name
	CaptureID string
	// Strategy must be Temp or Keep
	Strategy Strategy
	// ShowProgress renders a progress bar while materializing frames
	ShowProgress bool
	// Logger receives cache diagnostics, optional
	Logger zerolog.Logger
}

// Cache holds materialized frames for one capture under a per capture
// directory, with one subdirectory of numbered image files per view
type Cache struct {
	root         string
	strategy     Strategy
	showProgress bool
	log          zerolog.Logger
}

// New creates a frame cache rooted at {OutputDir}/{CaptureID}_temp_frames
func New(p Params) (*Cache, error) {

	if p.Strategy == InMemory {
		return nil, fmt.Errorf("the none strategy keeps frames in memory and needs no cache")
	}

	if p.Strategy != Temp && p.Strategy != Keep {
		return nil, fmt.Errorf("unknown frame strategy %q", p.Strategy)
	}

	if p.CaptureID == "" {
		return nil, fmt.Errorf("no capture ID set")
	}

	return &Cache{
		root:         filepath.Join(p.OutputDir, p.CaptureID+"_temp_frames"),
		strategy:     p.Strategy,
		showProgress: p.ShowProgress,
		log:          p.Logger,
	}, nil
}

// Root returns the cache directory for this capture
func (c *Cache) Root() string {
	return c.root
}

// ViewDir returns the directory frames of the given view are stored in
func (c *Cache) ViewDir(view int) string {
	return filepath.Join(c.root, fmt.Sprintf("view_%02d", view))
}

// CachedView returns the frame files already materialized for a view in
// frame order, or nil when none are usable.  Only the Keep strategy reuses
// files from an earlier run.
func (c *Cache) CachedView(view int) []string {

	if c.strategy != Keep {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(c.ViewDir(view), "*.png"))

	if err != nil || len(files) == 0 {
		return nil
	}

	// file names are zero padded so lexical order is frame order
	sort.Strings(files)

	c.log.Debug().Int("view", view).Int("frames", len(files)).
		Msg("reusing cached frames")

	return files
}

// MaterializeView decodes the reader's frames to numbered image files under
// the view directory and returns their paths in frame order.  total sizes
// the progress bar and may be zero when unknown.
func (c *Cache) MaterializeView(view int, frames FrameReader, total int) ([]string, error) {

	dir := c.ViewDir(view)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating frame directory: %w", err)
	}

	var bar *pb.ProgressBar

	if c.showProgress && total > 0 {
		bar = pb.StartNew(total)
		defer bar.Finish()
	}

	img := gocv.NewMat()
	defer img.Close()

	var paths []string

	for idx := 0; frames.Read(&img); idx++ {
		if img.Empty() {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("%06d.png", idx))

		if ok := gocv.IMWrite(path, img); !ok {
			return nil, fmt.Errorf("error writing frame %d of view %d to %s",
				idx, view, path)
		}

		paths = append(paths, path)

		if bar != nil {
			bar.Increment()
		}
	}

	c.log.Debug().Int("view", view).Int("frames", len(paths)).
		Str("dir", dir).Msg("materialized frames")

	return paths, nil
}

// Release removes the cache directory when the strategy allows it.  Temp
// caches are removed only after a successful run so failed runs can be
// inspected, Keep caches are never removed.
func (c *Cache) Release(success bool) error {

	if c.strategy != Temp || !success {
		return nil
	}

	c.log.Debug().Str("dir", c.root).Msg("removing frame cache")

	return os.RemoveAll(c.root)
}
