// Package config defines the options of the back end. A Config is passed explicitly to the
// components that read it and is treated as immutable for the duration of a solve pass.
package config

import (
	"bytes"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"
)

// PoseMode selects the pose parameterization used by relative-pose residuals.
type PoseMode string

const (
	// PoseMode6DOF optimizes full rigid poses.
	PoseMode6DOF PoseMode = "6dof"
	// PoseMode4DOF optimizes position and yaw only.
	PoseMode4DOF PoseMode = "4dof"
)

// LandmarkParam selects how landmarks are parameterized.
type LandmarkParam string

const (
	// LandmarkInvDepth anchors a landmark in its first observing frame by inverse depth.
	LandmarkInvDepth LandmarkParam = "inv_dep"
	// LandmarkXYZ estimates a landmark as a world-frame point.
	LandmarkXYZ LandmarkParam = "xyz"
)

// Config holds every recognized option.
type Config struct {
	// SelfID is the drone this back end runs on.
	SelfID int `yaml:"self_id"`
	// SingleDrone restricts the window to SelfID: keyframes and relative-pose measurements
	// involving other drones are rejected.
	SingleDrone bool `yaml:"single_drone"`
	// CameraNum is the number of cameras per drone. Observations by camera indices outside
	// [0, CameraNum) are rejected.
	CameraNum int `yaml:"camera_num"`
	// FocalLength in pixels scales normalized-plane reprojection errors.
	FocalLength float64 `yaml:"focal_length"`

	// MaxSldWinSize is the number of frames kept before marginalization.
	MaxSldWinSize int `yaml:"max_sld_win_size"`
	// MinSolveFrames is the window size below which a pass builds no residuals.
	MinSolveFrames int `yaml:"min_solve_frames"`
	// LandmarkEstimateTracks is the observation count at which a landmark becomes eligible.
	LandmarkEstimateTracks int `yaml:"landmark_estimate_tracks"`

	PoseMode      PoseMode      `yaml:"pose_mode"`
	LandmarkParam LandmarkParam `yaml:"landmark_param"`
	// EstimateExtrinsic leaves camera extrinsics free. Otherwise they are held constant and
	// never enter a marginalization prior.
	EstimateExtrinsic     bool `yaml:"estimate_extrinsic"`
	EnableMarginalization bool `yaml:"enable_marginalization"`

	// RelPoseSqrtInfoScale multiplies the sqrt information of relative-pose measurements.
	RelPoseSqrtInfoScale float64 `yaml:"rel_pose_sqrt_info_scale"`
	// LoopSqrtInfoScale multiplies the sqrt information of loop closures.
	LoopSqrtInfoScale float64 `yaml:"loop_sqrt_info_scale"`

	// FuseDep initializes landmarks from measured depth.
	FuseDep bool `yaml:"fuse_dep"`
	// MinInvDep bounds the inverse depth of a landmark from below, capping its depth.
	MinInvDep float64 `yaml:"min_inv_dep"`
	// DepthSqrtInf weights the residual tying an inverse-depth landmark to the depth
	// measured at its anchor. Zero disables depth residuals.
	DepthSqrtInf float64 `yaml:"depth_sqrt_inf"`
	// Measured depths outside [MinDepthToFuse, MaxDepthToFuse] are ignored.
	MaxDepthToFuse float64 `yaml:"max_depth_to_fuse"`
	MinDepthToFuse float64 `yaml:"min_depth_to_fuse"`

	// LandmarkOutlierThreshold is the reprojection residual norm above which a landmark is
	// rejected.
	LandmarkOutlierThreshold float64 `yaml:"landmark_outlier_threshold"`
	// PerformOutlierRejectionNum is the number of eligible landmarks below which outlier
	// rejection is skipped.
	PerformOutlierRejectionNum int `yaml:"perform_outlier_rejection_num"`
	// MinMeasurementsPerKeyframe is the observation count below which a keyframe is logged as
	// weak.
	MinMeasurementsPerKeyframe int `yaml:"min_measurements_per_keyframe"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the stock options.
func Default() Config {
	return Config{
		CameraNum:                  1,
		FocalLength:                460,
		MaxSldWinSize:              10,
		MinSolveFrames:             9,
		LandmarkEstimateTracks:     4,
		PoseMode:                   PoseMode6DOF,
		LandmarkParam:              LandmarkInvDepth,
		EnableMarginalization:      true,
		RelPoseSqrtInfoScale:       1,
		LoopSqrtInfoScale:          1,
		FuseDep:                    true,
		MinInvDep:                  0.1,
		DepthSqrtInf:               20,
		MaxDepthToFuse:             5,
		MinDepthToFuse:             0.3,
		LandmarkOutlierThreshold:   10,
		PerformOutlierRejectionNum: 50,
		MinMeasurementsPerKeyframe: 10,
		LogLevel:                   "info",
	}
}

// Is4DOF reports whether relative poses use the yaw-only parameterization.
func (cfg Config) Is4DOF() bool {
	return cfg.PoseMode == PoseMode4DOF
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate(path string) error {
	var errs error
	if cfg.CameraNum < 1 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("camera_num must be at least 1, got %d", cfg.CameraNum)))
	}
	if cfg.FocalLength <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "focal_length"))
	}
	if cfg.LandmarkEstimateTracks < 1 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("landmark_estimate_tracks must be at least 1, got %d", cfg.LandmarkEstimateTracks)))
	}
	if cfg.MaxSldWinSize < 2 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("max_sld_win_size must be at least 2, got %d", cfg.MaxSldWinSize)))
	}
	if cfg.MinSolveFrames > cfg.MaxSldWinSize {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("min_solve_frames (%d) exceeds max_sld_win_size (%d)", cfg.MinSolveFrames, cfg.MaxSldWinSize)))
	}
	switch cfg.PoseMode {
	case PoseMode6DOF, PoseMode4DOF:
	case "":
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "pose_mode"))
	default:
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("unknown pose_mode %q", cfg.PoseMode)))
	}
	switch cfg.LandmarkParam {
	case LandmarkInvDepth, LandmarkXYZ:
	case "":
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "landmark_param"))
	default:
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("unknown landmark_param %q", cfg.LandmarkParam)))
	}
	if cfg.RelPoseSqrtInfoScale <= 0 || cfg.LoopSqrtInfoScale <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.New("sqrt information scales must be positive")))
	}
	if cfg.LandmarkOutlierThreshold <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("landmark_outlier_threshold must be positive, got %v", cfg.LandmarkOutlierThreshold)))
	}
	if cfg.DepthSqrtInf < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("depth_sqrt_inf must not be negative, got %v", cfg.DepthSqrtInf)))
	}
	if cfg.MinSolveFrames < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("min_solve_frames must not be negative, got %d", cfg.MinSolveFrames)))
	}
	if cfg.FuseDep && (cfg.MinDepthToFuse <= 0 || cfg.MaxDepthToFuse <= cfg.MinDepthToFuse) {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("depth fusion range [%v, %v] is empty", cfg.MinDepthToFuse, cfg.MaxDepthToFuse)))
	}
	return errs
}

// Read reads a config from the given file, substituting environment variables first.
// Options missing from the file keep their Default values.
func Read(filePath string) (Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %q", filePath)
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader parses and validates a config. originalPath is used in validation errors.
func FromReader(originalPath string, r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(err, "parsing config %q", originalPath)
	}
	if err := cfg.Validate(originalPath); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
