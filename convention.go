package mocap

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Convention names a keypoint schema: the ordered list of joint names a
// detector produces and the limb pairs connecting them for rendering.
// All views of a capture and the fused 3D sequence share one convention.
type Convention struct {
	Name   string
	Joints []string
	Limbs  [][2]int
}

/* coco_17 joint order
0: Nose
1: Left Eye
2: Right Eye
3: Left Ear
4: Right Ear
5: Left Shoulder
6: Right Shoulder
7: Left Elbow
8: Right Elbow
9: Left Wrist
10: Right Wrist
11: Left Hip
12: Right Hip
13: Left Knee
14: Right Knee
15: Left Ankle
16: Right Ankle
*/

// COCO17 is the 17 joint COCO body convention produced by YOLOv8 pose
// models.
var COCO17 = Convention{
	Name: "coco_17",
	Joints: []string{
		"nose", "left_eye", "right_eye", "left_ear", "right_ear",
		"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
		"left_wrist", "right_wrist", "left_hip", "right_hip",
		"left_knee", "right_knee", "left_ankle", "right_ankle",
	},
	Limbs: [][2]int{
		{15, 13}, {13, 11}, {16, 14}, {14, 12}, {11, 12}, {5, 11},
		{6, 12}, {5, 6}, {5, 7}, {6, 8}, {7, 9}, {8, 10}, {1, 2},
		{0, 1}, {0, 2}, {1, 3}, {2, 4}, {3, 5}, {4, 6},
	},
}

// Equal reports whether two conventions describe the same schema. Limb
// pairs are rendering hints and do not take part in the comparison.
func (c Convention) Equal(o Convention) bool {

	if c.Name != o.Name || len(c.Joints) != len(o.Joints) {
		return false
	}

	for i := range c.Joints {
		if c.Joints[i] != o.Joints[i] {
			return false
		}
	}
	return true
}

// Validate checks the convention names at least one joint and that limb
// pairs stay within the joint range.
func (c Convention) Validate() error {

	if c.Name == "" {
		return fmt.Errorf("convention has no name")
	}
	if len(c.Joints) == 0 {
		return fmt.Errorf("convention %s has no joints", c.Name)
	}

	for _, l := range c.Limbs {
		if l[0] < 0 || l[0] >= len(c.Joints) || l[1] < 0 || l[1] >= len(c.Joints) {
			return fmt.Errorf("convention %s limb (%d,%d) outside %d joints",
				c.Name, l[0], l[1], len(c.Joints))
		}
	}
	return nil
}

// LoadConvention reads a keypoint convention from the given text file.
// It should contain one joint name per line. The convention carries no
// limb pairs, so rendering falls back to joints only.
func LoadConvention(name, file string) (Convention, error) {

	f, err := os.Open(file)

	if err != nil {
		return Convention{}, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var joints []string

	// read and trim each line, skipping blanks
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		joints = append(joints, line)
	}

	if err := scanner.Err(); err != nil {
		return Convention{}, fmt.Errorf("error reading file: %w", err)
	}

	conv := Convention{Name: name, Joints: joints}

	if err := conv.Validate(); err != nil {
		return Convention{}, err
	}

	return conv, nil
}
