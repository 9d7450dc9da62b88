package state

import "github.com/pkg/errors"

// CreateFramePose describes the 6-DOF pose variable of a frame.
func CreateFramePose(s *State, id FrameID) (ParamInfo, error) {
	f, ok := s.frames[id]
	if !ok {
		return ParamInfo{}, NewFrameNotFoundError(id)
	}
	return ParamInfo{Kind: Pose6DOF, Handle: f.pose, ID: int64(id)}, nil
}

// CreateFramePose4D describes the 4-DOF (position + yaw) variable of a frame.
func CreateFramePose4D(s *State, id FrameID) (ParamInfo, error) {
	f, ok := s.frames[id]
	if !ok {
		return ParamInfo{}, NewFrameNotFoundError(id)
	}
	return ParamInfo{Kind: Pose4DOF, Handle: f.pose4d, ID: int64(id)}, nil
}

// CreateSpeedBias describes the velocity and IMU bias variable of a frame.
func CreateSpeedBias(s *State, id FrameID) (ParamInfo, error) {
	f, ok := s.frames[id]
	if !ok {
		return ParamInfo{}, NewFrameNotFoundError(id)
	}
	if !f.hasBias {
		return ParamInfo{}, errors.Errorf("frame %d has no speed/bias state", id)
	}
	return ParamInfo{Kind: SpeedBias, Handle: f.speedBias, ID: int64(id)}, nil
}

// CreateLandmark describes a landmark variable in whichever parameterization it was
// registered with.
func CreateLandmark(s *State, id LandmarkID) (ParamInfo, error) {
	h, ok := s.landmarks[id]
	if !ok {
		return ParamInfo{}, NewLandmarkNotFoundError(id)
	}
	kind, err := s.Kind(h)
	if err != nil {
		return ParamInfo{}, err
	}
	return ParamInfo{Kind: kind, Handle: h, ID: int64(id)}, nil
}

// CreateExtrinsic describes the camera-to-body pose of a camera.
func CreateExtrinsic(s *State, camera int) (ParamInfo, error) {
	h, ok := s.extrinsics[camera]
	if !ok {
		return ParamInfo{}, errors.Errorf("no extrinsic for camera %d", camera)
	}
	return ParamInfo{Kind: Extrinsic, Handle: h, ID: int64(camera)}, nil
}

// CreateTimeOffset describes the camera-IMU time offset.
func CreateTimeOffset(s *State) (ParamInfo, error) {
	if !s.hasTD {
		return ParamInfo{}, errors.New("time offset is not estimated")
	}
	return ParamInfo{Kind: TimeOffset, Handle: s.td}, nil
}

// ResolveParams returns the storage of every descriptor, in order.
func ResolveParams(s *State, params []ParamInfo) ([][]float64, error) {
	out := make([][]float64, len(params))
	for i, p := range params {
		vals, err := s.Values(p.Handle)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving %s", p)
		}
		out[i] = vals
	}
	return out, nil
}
