package state

import "fmt"

// ParamKind is the semantic kind of an optimization variable. The ambient and tangent sizes
// of each kind are fixed.
type ParamKind int

// The recognized parameter kinds.
const (
	Pose6DOF ParamKind = iota
	Pose4DOF
	LandmarkInvDepth
	LandmarkXYZ
	TimeOffset
	Extrinsic
	SpeedBias
)

var paramSizes = map[ParamKind][2]int{
	Pose6DOF:         {7, 6},
	Pose4DOF:         {4, 4},
	LandmarkInvDepth: {1, 1},
	LandmarkXYZ:      {3, 3},
	TimeOffset:       {1, 1},
	Extrinsic:        {7, 6},
	SpeedBias:        {9, 9},
}

// Size is the number of stored coordinates.
func (k ParamKind) Size() int {
	return paramSizes[k][0]
}

// TangentSize is the dimension of the local perturbation space.
func (k ParamKind) TangentSize() int {
	return paramSizes[k][1]
}

// IsPose reports whether the kind is stored as [t q] with a multiplicative rotation update.
func (k ParamKind) IsPose() bool {
	return k == Pose6DOF || k == Extrinsic
}

func (k ParamKind) String() string {
	switch k {
	case Pose6DOF:
		return "pose6dof"
	case Pose4DOF:
		return "pose4dof"
	case LandmarkInvDepth:
		return "landmark_inv_depth"
	case LandmarkXYZ:
		return "landmark_xyz"
	case TimeOffset:
		return "time_offset"
	case Extrinsic:
		return "extrinsic"
	case SpeedBias:
		return "speed_bias"
	default:
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
}

// ParamHandle is a stable key into the State's variable table. Slots are recycled, so a
// handle also carries the generation of the slot it was issued for.
type ParamHandle struct {
	Slot       int
	Generation uint32
}

// ParamInfo describes one optimization variable: where it lives, its sizes and what it is.
// It is a view into State storage and must not outlive the frame or landmark it describes.
type ParamInfo struct {
	Kind   ParamKind
	Handle ParamHandle
	// ID is the frame id, landmark id or camera index that owns the variable, depending on Kind.
	ID int64
}

// Size is the ambient size of the variable.
func (p ParamInfo) Size() int {
	return p.Kind.Size()
}

// TangentSize is the local perturbation size of the variable.
func (p ParamInfo) TangentSize() int {
	return p.Kind.TangentSize()
}

func (p ParamInfo) String() string {
	return fmt.Sprintf("%s(%d)@%d", p.Kind, p.ID, p.Handle.Slot)
}
