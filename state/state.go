// Package state holds the sliding-window variable storage and hands out parameter-block
// descriptors that refer into it by handle rather than by address.
//
// State is not safe for concurrent use; callers own exclusive access during a solve pass.
package state

import (
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/swarmvins/spatialmath"
)

type slot struct {
	kind       ParamKind
	owner      int64
	generation uint32
	live       bool
	constant   bool
	values     []float64
}

type frameEntry struct {
	pose      ParamHandle
	pose4d    ParamHandle
	speedBias ParamHandle
	hasBias   bool
	timestamp float64
	droneID   int
}

// State owns the storage of every variable in the sliding window.
type State struct {
	slots []slot
	free  []int

	frames     map[FrameID]*frameEntry
	landmarks  map[LandmarkID]ParamHandle
	extrinsics map[int]ParamHandle
	td         ParamHandle
	hasTD      bool
}

// New returns an empty sliding-window state.
func New() *State {
	return &State{
		frames:     map[FrameID]*frameEntry{},
		landmarks:  map[LandmarkID]ParamHandle{},
		extrinsics: map[int]ParamHandle{},
	}
}

func (s *State) alloc(kind ParamKind, owner int64, values []float64) ParamHandle {
	vals := make([]float64, kind.Size())
	copy(vals, values)
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		sl := &s.slots[idx]
		sl.generation++
		sl.kind, sl.owner, sl.live, sl.constant, sl.values = kind, owner, true, false, vals
		return ParamHandle{Slot: idx, Generation: sl.generation}
	}
	s.slots = append(s.slots, slot{kind: kind, owner: owner, live: true, values: vals})
	return ParamHandle{Slot: len(s.slots) - 1}
}

func (s *State) release(h ParamHandle) {
	if h.Slot < 0 || h.Slot >= len(s.slots) {
		return
	}
	sl := &s.slots[h.Slot]
	if !sl.live || sl.generation != h.Generation {
		return
	}
	sl.live = false
	sl.values = nil
	s.free = append(s.free, h.Slot)
}

// Values returns the storage a handle refers to. The returned slice aliases the state;
// writes through it update the variable.
func (s *State) Values(h ParamHandle) ([]float64, error) {
	if h.Slot < 0 || h.Slot >= len(s.slots) {
		return nil, errors.Wrapf(ErrStaleHandle, "slot %d out of range", h.Slot)
	}
	sl := &s.slots[h.Slot]
	if !sl.live || sl.generation != h.Generation {
		return nil, errors.Wrapf(ErrStaleHandle, "slot %d generation %d", h.Slot, h.Generation)
	}
	return sl.values, nil
}

// Kind returns the kind of variable stored behind h.
func (s *State) Kind(h ParamHandle) (ParamKind, error) {
	if _, err := s.Values(h); err != nil {
		return 0, err
	}
	return s.slots[h.Slot].kind, nil
}

// SetConstant marks the variable behind h as held fixed by the solver, or frees it.
func (s *State) SetConstant(h ParamHandle, constant bool) error {
	if _, err := s.Values(h); err != nil {
		return err
	}
	s.slots[h.Slot].constant = constant
	return nil
}

// IsConstant reports whether the variable behind h is held fixed. Stale handles are not.
func (s *State) IsConstant(h ParamHandle) bool {
	if _, err := s.Values(h); err != nil {
		return false
	}
	return s.slots[h.Slot].constant
}

// AddFrame inserts a new frame with its initial pose. The 4-DOF storage is initialized from
// the same pose.
func (s *State) AddFrame(id FrameID, pose spatialmath.Pose) error {
	if _, ok := s.frames[id]; ok {
		return NewDuplicateFrameError(id)
	}
	s.frames[id] = &frameEntry{
		pose:   s.alloc(Pose6DOF, int64(id), pose.ToArray(nil)),
		pose4d: s.alloc(Pose4DOF, int64(id), pose.ToPose4D().ToArray(nil)),
	}
	return nil
}

// SetFrameStamp records the capture time and drone of a frame.
func (s *State) SetFrameStamp(id FrameID, timestamp float64, droneID int) error {
	f, ok := s.frames[id]
	if !ok {
		return NewFrameNotFoundError(id)
	}
	f.timestamp, f.droneID = timestamp, droneID
	return nil
}

// FrameStamp returns the capture time and drone recorded for a frame.
func (s *State) FrameStamp(id FrameID) (float64, int, error) {
	f, ok := s.frames[id]
	if !ok {
		return 0, 0, NewFrameNotFoundError(id)
	}
	return f.timestamp, f.droneID, nil
}

// RemoveFrame drops a frame and all of its variables. Outstanding handles become stale.
func (s *State) RemoveFrame(id FrameID) error {
	f, ok := s.frames[id]
	if !ok {
		return NewFrameNotFoundError(id)
	}
	s.release(f.pose)
	s.release(f.pose4d)
	if f.hasBias {
		s.release(f.speedBias)
	}
	delete(s.frames, id)
	return nil
}

// HasFrame reports whether the window holds id.
func (s *State) HasFrame(id FrameID) bool {
	_, ok := s.frames[id]
	return ok
}

// FrameIDs returns every frame id in ascending order.
func (s *State) FrameIDs() []FrameID {
	ids := make([]FrameID, 0, len(s.frames))
	for id := range s.frames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NumFrames is the size of the window.
func (s *State) NumFrames() int {
	return len(s.frames)
}

// FramePose returns the current 6-DOF estimate of a frame.
func (s *State) FramePose(id FrameID) (spatialmath.Pose, error) {
	f, ok := s.frames[id]
	if !ok {
		return spatialmath.Pose{}, NewFrameNotFoundError(id)
	}
	vals, err := s.Values(f.pose)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	return spatialmath.NewPoseFromArray(vals)
}

// SetFramePose overwrites the 6-DOF estimate of a frame. The 4-DOF storage is not touched;
// call SyncPose4D to propagate.
func (s *State) SetFramePose(id FrameID, pose spatialmath.Pose) error {
	f, ok := s.frames[id]
	if !ok {
		return NewFrameNotFoundError(id)
	}
	vals, err := s.Values(f.pose)
	if err != nil {
		return err
	}
	pose.ToArray(vals)
	return nil
}

// FramePose4D returns the current 4-DOF estimate of a frame.
func (s *State) FramePose4D(id FrameID) (spatialmath.Pose4D, error) {
	f, ok := s.frames[id]
	if !ok {
		return spatialmath.Pose4D{}, NewFrameNotFoundError(id)
	}
	vals, err := s.Values(f.pose4d)
	if err != nil {
		return spatialmath.Pose4D{}, err
	}
	return spatialmath.NewPose4DFromArray(vals)
}

// SyncPose4D copies the 6-DOF estimate of a frame into its 4-DOF storage.
func (s *State) SyncPose4D(id FrameID) error {
	pose, err := s.FramePose(id)
	if err != nil {
		return err
	}
	vals, err := s.Values(s.frames[id].pose4d)
	if err != nil {
		return err
	}
	pose.ToPose4D().ToArray(vals)
	return nil
}

// ApplyPose4D writes the 4-DOF estimate back into the 6-DOF storage. Roll and pitch of the
// existing 6-DOF estimate are kept; only heading and translation change.
func (s *State) ApplyPose4D(id FrameID) error {
	pose, err := s.FramePose(id)
	if err != nil {
		return err
	}
	p4, err := s.FramePose4D(id)
	if err != nil {
		return err
	}
	ypr := spatialmath.QuatToYPR(pose.Orientation)
	updated := spatialmath.NewPose(p4.Position, spatialmath.YPRToQuat(p4.Yaw, ypr.Y, ypr.Z))
	return s.SetFramePose(id, updated)
}

// SetSpeedBias sets (allocating on first use) the 9-vector [v ba bg] of a frame.
func (s *State) SetSpeedBias(id FrameID, values []float64) error {
	f, ok := s.frames[id]
	if !ok {
		return NewFrameNotFoundError(id)
	}
	if !f.hasBias {
		f.speedBias = s.alloc(SpeedBias, int64(id), values)
		f.hasBias = true
		return nil
	}
	vals, err := s.Values(f.speedBias)
	if err != nil {
		return err
	}
	copy(vals, values)
	return nil
}

// AddLandmark registers a landmark variable. kind must be LandmarkInvDepth or LandmarkXYZ.
// Re-adding an existing landmark replaces its variable and invalidates old handles.
func (s *State) AddLandmark(id LandmarkID, kind ParamKind, values []float64) error {
	if kind != LandmarkInvDepth && kind != LandmarkXYZ {
		return errors.Errorf("landmark %d: unsupported kind %s", id, kind)
	}
	if h, ok := s.landmarks[id]; ok {
		s.release(h)
	}
	s.landmarks[id] = s.alloc(kind, int64(id), values)
	return nil
}

// RemoveLandmark drops a landmark variable.
func (s *State) RemoveLandmark(id LandmarkID) error {
	h, ok := s.landmarks[id]
	if !ok {
		return NewLandmarkNotFoundError(id)
	}
	s.release(h)
	delete(s.landmarks, id)
	return nil
}

// HasLandmark reports whether a landmark variable is registered.
func (s *State) HasLandmark(id LandmarkID) bool {
	_, ok := s.landmarks[id]
	return ok
}

// LandmarkValues returns the landmark's storage and kind.
func (s *State) LandmarkValues(id LandmarkID) ([]float64, ParamKind, error) {
	h, ok := s.landmarks[id]
	if !ok {
		return nil, 0, NewLandmarkNotFoundError(id)
	}
	vals, err := s.Values(h)
	if err != nil {
		return nil, 0, err
	}
	return vals, s.slots[h.Slot].kind, nil
}

// SetExtrinsic sets the camera-to-body pose of a camera.
func (s *State) SetExtrinsic(camera int, pose spatialmath.Pose) {
	if h, ok := s.extrinsics[camera]; ok {
		if vals, err := s.Values(h); err == nil {
			pose.ToArray(vals)
			return
		}
	}
	s.extrinsics[camera] = s.alloc(Extrinsic, int64(camera), pose.ToArray(nil))
}

// ExtrinsicPose returns the camera-to-body pose of a camera.
func (s *State) ExtrinsicPose(camera int) (spatialmath.Pose, error) {
	h, ok := s.extrinsics[camera]
	if !ok {
		return spatialmath.Pose{}, errors.Errorf("no extrinsic for camera %d", camera)
	}
	vals, err := s.Values(h)
	if err != nil {
		return spatialmath.Pose{}, err
	}
	return spatialmath.NewPoseFromArray(vals)
}

// ExtrinsicCameras returns the camera indices with an extrinsic, in ascending order.
func (s *State) ExtrinsicCameras() []int {
	cams := make([]int, 0, len(s.extrinsics))
	for cam := range s.extrinsics {
		cams = append(cams, cam)
	}
	sort.Ints(cams)
	return cams
}

// SetTimeOffset sets the camera-IMU time offset variable.
func (s *State) SetTimeOffset(td float64) {
	if s.hasTD {
		if vals, err := s.Values(s.td); err == nil {
			vals[0] = td
			return
		}
	}
	s.td = s.alloc(TimeOffset, 0, []float64{td})
	s.hasTD = true
}
