package landmark

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/swarmvins/config"
	"go.viam.com/swarmvins/logging"
	"go.viam.com/swarmvins/state"
)

// Manager maps landmark ids to their tracks. It is not safe for concurrent use; the
// caller serializes Observe with the solve pass that reads the tracks.
type Manager struct {
	cfg    config.Config
	logger logging.Logger

	landmarks map[state.LandmarkID]*Landmark
	frames    map[state.FrameID]struct{}
	lastStamp float64
	observed  bool
}

// NewManager returns an empty manager using cfg's tracking threshold.
func NewManager(cfg config.Config, logger logging.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		landmarks: map[state.LandmarkID]*Landmark{},
		frames:    map[state.FrameID]struct{}{},
	}
}

// Observe folds every observation of kf into the tracks, in delivery order. A keyframe
// older than the previous one, one whose frame was already observed, one with a non-finite
// timestamp or one carrying an image of an unknown camera is rejected without changing
// anything. In single-drone mode keyframes of other drones are rejected too.
func (m *Manager) Observe(kf Keyframe) error {
	if math.IsNaN(kf.Timestamp) || math.IsInf(kf.Timestamp, 0) {
		return errors.Wrapf(ErrInvalidTimestamp, "frame %d stamp %v", kf.FrameID, kf.Timestamp)
	}
	if m.cfg.SingleDrone && kf.DroneID != m.cfg.SelfID {
		return errors.Wrapf(ErrRemoteKeyframe, "frame %d of drone %d, self is %d", kf.FrameID, kf.DroneID, m.cfg.SelfID)
	}
	if m.observed && kf.Timestamp < m.lastStamp {
		return newOutOfOrderError(kf.Timestamp, m.lastStamp)
	}
	if _, ok := m.frames[kf.FrameID]; ok {
		return errors.Wrapf(ErrDuplicateKeyframe, "frame %d", kf.FrameID)
	}
	for _, img := range kf.Images {
		if img.CameraIndex < 0 || img.CameraIndex >= m.cfg.CameraNum {
			return errors.Wrapf(ErrUnknownCamera, "frame %d camera %d of %d", kf.FrameID, img.CameraIndex, m.cfg.CameraNum)
		}
	}
	m.frames[kf.FrameID] = struct{}{}
	m.lastStamp = kf.Timestamp
	m.observed = true

	newTracks, promoted := 0, 0
	for _, img := range kf.Images {
		for _, obs := range img.Observations {
			obs.FrameID = kf.FrameID
			obs.DroneID = kf.DroneID
			obs.CameraIndex = img.CameraIndex
			obs.Timestamp = kf.Timestamp

			lm, ok := m.landmarks[obs.LandmarkID]
			if !ok {
				lm = &Landmark{ID: obs.LandmarkID, anchor: obs}
				m.landmarks[obs.LandmarkID] = lm
				newTracks++
			}
			lm.Track = append(lm.Track, obs)
			if !lm.eligible && len(lm.Track) >= m.cfg.LandmarkEstimateTracks {
				lm.eligible = true
				promoted++
			}
		}
	}

	if n := kf.NumObservations(); n < m.cfg.MinMeasurementsPerKeyframe {
		m.logger.Warnw("keyframe has few observations", "frame", kf.FrameID, "observations", n)
	}
	m.logger.Debugw("keyframe observed",
		"frame", kf.FrameID, "drone", kf.DroneID, "new_tracks", newTracks, "newly_eligible", promoted)
	return nil
}

// Len is the number of tracked landmarks.
func (m *Manager) Len() int {
	return len(m.landmarks)
}

// Landmark returns a copy of a landmark's track and status.
func (m *Manager) Landmark(id state.LandmarkID) (Landmark, bool) {
	lm, ok := m.landmarks[id]
	if !ok {
		return Landmark{}, false
	}
	return lm.clone(), true
}

// IsEligible reports whether a landmark has reached the tracking threshold.
func (m *Manager) IsEligible(id state.LandmarkID) bool {
	lm, ok := m.landmarks[id]
	return ok && lm.eligible
}

// Eligible returns the ids of every eligible landmark in ascending order, outliers included.
func (m *Manager) Eligible() []state.LandmarkID {
	ids := lo.Filter(lo.Keys(m.landmarks), func(id state.LandmarkID, _ int) bool {
		return m.landmarks[id].eligible
	})
	sortIDs(ids)
	return ids
}

// Estimable returns the eligible landmarks that are not outliers, in ascending order.
func (m *Manager) Estimable() []state.LandmarkID {
	return lo.Filter(m.Eligible(), func(id state.LandmarkID, _ int) bool {
		return m.landmarks[id].Flag != FlagOutlier
	})
}

// Remove drops a landmark and its track.
func (m *Manager) Remove(id state.LandmarkID) error {
	if _, ok := m.landmarks[id]; !ok {
		return errors.Wrapf(ErrUnknownLandmark, "landmark %d", id)
	}
	delete(m.landmarks, id)
	return nil
}

// MarkOutlier excludes a landmark from estimation. Its eligibility is unchanged.
func (m *Manager) MarkOutlier(id state.LandmarkID) error {
	lm, ok := m.landmarks[id]
	if !ok {
		return errors.Wrapf(ErrUnknownLandmark, "landmark %d", id)
	}
	lm.Flag = FlagOutlier
	return nil
}

// RemoveFrame prunes the observations made by a frame that left the window. Landmarks left
// without observations are dropped; the others keep their eligibility. An unpinned landmark
// anchored in frame moves its anchor to its oldest remaining observation; a pinned one keeps
// it and is unusable until Reanchor. The ids of dropped landmarks are returned in ascending
// order.
func (m *Manager) RemoveFrame(frame state.FrameID) []state.LandmarkID {
	var dropped []state.LandmarkID
	for id, lm := range m.landmarks {
		lm.Track = lo.Filter(lm.Track, func(obs Observation, _ int) bool {
			return obs.FrameID != frame
		})
		if len(lm.Track) == 0 {
			delete(m.landmarks, id)
			dropped = append(dropped, id)
			continue
		}
		if lm.anchor.FrameID == frame && !lm.pinned {
			lm.anchor = lm.Track[0]
		}
	}
	sortIDs(dropped)
	if len(dropped) > 0 {
		m.logger.Debugw("dropped landmarks with empty tracks", "frame", frame, "count", len(dropped))
	}
	return dropped
}

// InitializeFromDepth registers a state variable for every estimable landmark that has none
// yet and whose anchor observation carries a depth within the fusion range. It returns the
// number of landmarks initialized.
func (m *Manager) InitializeFromDepth(st *state.State) (int, error) {
	if !m.cfg.FuseDep {
		return 0, nil
	}
	initialized := 0
	for _, id := range m.Estimable() {
		lm := m.landmarks[id]
		if st.HasLandmark(id) {
			continue
		}
		anchor := lm.Anchor()
		if !anchor.HasDepth || anchor.Depth < m.cfg.MinDepthToFuse || anchor.Depth > m.cfg.MaxDepthToFuse {
			continue
		}
		if anchor.Point.Z <= 0 || !st.HasFrame(anchor.FrameID) {
			continue
		}
		camPoint := anchor.Point.Mul(anchor.Depth / anchor.Point.Z)
		var vals []float64
		kind := state.LandmarkXYZ
		if m.cfg.LandmarkParam != config.LandmarkXYZ {
			kind = state.LandmarkInvDepth
			invDep := math.Max(1/camPoint.Z, m.cfg.MinInvDep)
			camPoint = anchor.Point.Mul(1 / (invDep * anchor.Point.Z))
			vals = []float64{invDep}
		}
		world, err := cameraToWorld(st, anchor, camPoint)
		if err != nil {
			return initialized, err
		}
		if kind == state.LandmarkXYZ {
			vals = []float64{world.X, world.Y, world.Z}
		}
		if err := st.AddLandmark(id, kind, vals); err != nil {
			return initialized, err
		}
		if kind == state.LandmarkInvDepth {
			lm.InvDepth = vals[0]
			lm.pinned = true
		}
		lm.Position = world
		lm.Flag = FlagInitialized
		initialized++
	}
	m.logger.Debugw("initialized landmarks from depth", "count", initialized)
	return initialized, nil
}

// SyncFromState copies solved landmark variables back into the tracks and marks them
// estimated. Inverse-depth landmarks whose anchor frame has left the window are skipped.
func (m *Manager) SyncFromState(st *state.State) error {
	for id, lm := range m.landmarks {
		if lm.Flag == FlagOutlier {
			continue
		}
		vals, kind, err := st.LandmarkValues(id)
		if err != nil {
			if errors.Is(err, state.ErrLandmarkNotFound) {
				continue
			}
			return err
		}
		switch kind {
		case state.LandmarkXYZ:
			lm.Position = r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}
		case state.LandmarkInvDepth:
			anchor := lm.anchor
			if !lm.pinned || !st.HasFrame(anchor.FrameID) || vals[0] == 0 || anchor.Point.Z == 0 {
				continue
			}
			lm.InvDepth = vals[0]
			world, err := cameraToWorld(st, anchor, anchor.Point.Mul(1/(vals[0]*anchor.Point.Z)))
			if err != nil {
				return err
			}
			lm.Position = world
		default:
		}
		lm.Flag = FlagEstimated
	}
	return nil
}

// Reanchor moves every pinned inverse-depth landmark anchored in frame to its oldest other
// observation by a frame still in st, converting the inverse depth through the current
// poses. It must run before frame is removed from st. Landmarks with no such observation, or
// that would land behind the new camera, lose their state variable and return to
// uninitialized. The ids of re-anchored landmarks are returned in ascending order.
func (m *Manager) Reanchor(st *state.State, frame state.FrameID) ([]state.LandmarkID, error) {
	var moved, reset []state.LandmarkID
	for id, lm := range m.landmarks {
		if !lm.pinned || lm.anchor.FrameID != frame {
			continue
		}
		vals, kind, err := st.LandmarkValues(id)
		if err != nil {
			return nil, errors.Wrapf(err, "re-anchoring landmark %d", id)
		}
		if kind != state.LandmarkInvDepth {
			return nil, errors.Errorf("landmark %d is pinned but stored as %s", id, kind)
		}
		next, ok := lo.Find(lm.Track, func(obs Observation) bool {
			return obs.FrameID != frame && st.HasFrame(obs.FrameID)
		})
		var depth float64
		if ok && vals[0] != 0 && lm.anchor.Point.Z != 0 {
			world, err := cameraToWorld(st, lm.anchor, lm.anchor.Point.Mul(1/(vals[0]*lm.anchor.Point.Z)))
			if err != nil {
				return nil, err
			}
			camPoint, err := worldToCamera(st, next, world)
			if err != nil {
				return nil, err
			}
			depth = camPoint.Z
		}
		if depth <= 0 {
			if err := st.RemoveLandmark(id); err != nil {
				return nil, err
			}
			lm.pinned = false
			lm.InvDepth = 0
			if lm.Flag != FlagOutlier {
				lm.Flag = FlagUninitialized
			}
			if ok {
				lm.anchor = next
			}
			reset = append(reset, id)
			continue
		}
		vals[0] = math.Max(1/depth, m.cfg.MinInvDep)
		lm.InvDepth = vals[0]
		lm.anchor = next
		moved = append(moved, id)
	}
	sortIDs(moved)
	if len(moved) > 0 || len(reset) > 0 {
		m.logger.Debugw("re-anchored landmarks", "frame", frame, "moved", len(moved), "reset", len(reset))
	}
	return moved, nil
}

func worldToCamera(st *state.State, obs Observation, world r3.Vector) (r3.Vector, error) {
	pose, err := st.FramePose(obs.FrameID)
	if err != nil {
		return r3.Vector{}, err
	}
	ext, err := st.ExtrinsicPose(obs.CameraIndex)
	if err != nil {
		return r3.Vector{}, err
	}
	return ext.Inverse().Transform(pose.Inverse().Transform(world)), nil
}

func cameraToWorld(st *state.State, obs Observation, camPoint r3.Vector) (r3.Vector, error) {
	pose, err := st.FramePose(obs.FrameID)
	if err != nil {
		return r3.Vector{}, err
	}
	ext, err := st.ExtrinsicPose(obs.CameraIndex)
	if err != nil {
		return r3.Vector{}, err
	}
	return pose.Transform(ext.Transform(camPoint)), nil
}

func sortIDs(ids []state.LandmarkID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
