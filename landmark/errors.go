package landmark

import "github.com/pkg/errors"

var (
	// ErrOutOfOrderKeyframe is returned when a keyframe is older than the last one observed.
	ErrOutOfOrderKeyframe = errors.New("keyframe older than the last observed keyframe")
	// ErrDuplicateKeyframe is returned when a frame id is observed twice.
	ErrDuplicateKeyframe = errors.New("keyframe already observed")
	// ErrUnknownLandmark is returned for landmark ids without a track.
	ErrUnknownLandmark = errors.New("unknown landmark")
	// ErrInvalidTimestamp is returned for keyframes stamped NaN or infinite.
	ErrInvalidTimestamp = errors.New("keyframe timestamp is not finite")
	// ErrUnknownCamera is returned for observations by a camera index outside camera_num.
	ErrUnknownCamera = errors.New("observation by unknown camera")
	// ErrRemoteKeyframe is returned in single-drone mode for keyframes of other drones.
	ErrRemoteKeyframe = errors.New("keyframe from another drone")
)

func newOutOfOrderError(stamp, last float64) error {
	return errors.Wrapf(ErrOutOfOrderKeyframe, "stamp %.6f before %.6f", stamp, last)
}
