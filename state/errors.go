package state

import "github.com/pkg/errors"

var (
	// ErrStaleHandle is returned when a parameter handle refers to storage that has since been released.
	ErrStaleHandle = errors.New("parameter handle is stale")
	// ErrFrameNotFound is returned for frame ids the sliding window does not hold.
	ErrFrameNotFound = errors.New("frame not in sliding window")
	// ErrLandmarkNotFound is returned for landmark ids without a registered variable.
	ErrLandmarkNotFound = errors.New("landmark has no state")
)

// NewFrameNotFoundError wraps ErrFrameNotFound with the offending id.
func NewFrameNotFoundError(id FrameID) error {
	return errors.Wrapf(ErrFrameNotFound, "frame %d", id)
}

// NewLandmarkNotFoundError wraps ErrLandmarkNotFound with the offending id.
func NewLandmarkNotFoundError(id LandmarkID) error {
	return errors.Wrapf(ErrLandmarkNotFound, "landmark %d", id)
}

// NewDuplicateFrameError is returned when a frame id is added twice.
func NewDuplicateFrameError(id FrameID) error {
	return errors.Errorf("frame %d already in sliding window", id)
}
