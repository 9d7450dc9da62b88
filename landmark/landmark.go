// Package landmark keeps the observation track of every landmark seen by the keyframes
// delivered to the back end and decides which landmarks are well enough observed to be
// estimated.
package landmark

import (
	"fmt"

	"github.com/golang/geo/r3"

	"go.viam.com/swarmvins/state"
)

// Flag is the estimation status of a landmark.
type Flag int

// The landmark statuses.
const (
	// FlagUninitialized landmarks have no state variable.
	FlagUninitialized Flag = iota
	// FlagInitialized landmarks have an initial estimate registered in the state.
	FlagInitialized
	// FlagEstimated landmarks have been refined by at least one solve.
	FlagEstimated
	// FlagOutlier landmarks are excluded from the graph.
	FlagOutlier
)

func (f Flag) String() string {
	switch f {
	case FlagUninitialized:
		return "uninitialized"
	case FlagInitialized:
		return "initialized"
	case FlagEstimated:
		return "estimated"
	case FlagOutlier:
		return "outlier"
	}
	return fmt.Sprintf("Flag(%d)", int(f))
}

// Observation is one sighting of a landmark. Point is the measurement on the normalized
// image plane (z == 1) of the observing camera.
type Observation struct {
	LandmarkID  state.LandmarkID
	FrameID     state.FrameID
	DroneID     int
	CameraIndex int
	Timestamp   float64
	Point       r3.Vector
	Depth       float64
	HasDepth    bool
}

// Image carries the observations made by one camera of a keyframe.
type Image struct {
	CameraIndex  int
	Observations []Observation
}

// Keyframe is the bundle produced by the frontend for one capture time.
type Keyframe struct {
	Timestamp float64
	DroneID   int
	FrameID   state.FrameID
	Images    []Image
}

// NumObservations counts the observations across all images.
func (kf Keyframe) NumObservations() int {
	n := 0
	for _, img := range kf.Images {
		n += len(img.Observations)
	}
	return n
}

// Landmark is the track of one landmark and its estimation status.
type Landmark struct {
	ID       state.LandmarkID
	Track    []Observation
	Flag     Flag
	Position r3.Vector
	InvDepth float64

	eligible bool
	anchor   Observation
	// pinned is set while an inverse-depth variable in the state is expressed in the anchor.
	pinned bool
}

// Eligible reports whether the landmark has reached the tracking threshold.
func (lm *Landmark) Eligible() bool {
	return lm.eligible
}

// Anchor is the observation the landmark is parameterized in. It starts as the first
// observation of the track. While an inverse-depth variable is registered the anchor only
// moves through Manager.Reanchor, so it can name a frame that already left the window.
func (lm *Landmark) Anchor() Observation {
	return lm.anchor
}

// Pinned reports whether the landmark's inverse depth in the state is relative to Anchor.
func (lm *Landmark) Pinned() bool {
	return lm.pinned
}

func (lm *Landmark) clone() Landmark {
	out := *lm
	out.Track = append([]Observation(nil), lm.Track...)
	return out
}
