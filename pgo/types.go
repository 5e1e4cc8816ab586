package pgo

import (
	"errors"
	"fmt"
)

// Sentinel errors for store and input violations. Rejected measurements are
// not errors; these mark malformed input that would corrupt store
// invariants if ignored.
var (
	// ErrDuplicateTransform is returned when a transform for a node pair
	// already exists; duplicates are rejected, never overwritten.
	ErrDuplicateTransform = errors.New("pgo: duplicate transform key")
	// ErrDuplicateNode is returned when appending a node id that is
	// already present in a trajectory.
	ErrDuplicateNode = errors.New("pgo: duplicate trajectory node")
	// ErrUnknownNode is returned when a measurement references a node id
	// that no trajectory contains.
	ErrUnknownNode = errors.New("pgo: unknown node id")
	// ErrUnknownRobot is returned when a node id references a robot with
	// no trajectory.
	ErrUnknownRobot = errors.New("pgo: unknown robot")
	// ErrNoSeparator is returned when a cross-robot measurement arrives
	// before any separator links the two trajectories.
	ErrNoSeparator = errors.New("pgo: no separator between robots")
	// ErrNotSequential is returned when an odometry measurement does not
	// connect consecutive nodes of one robot.
	ErrNotSequential = errors.New("pgo: odometry nodes not consecutive")
	// ErrDimensionMismatch is returned when a tangent vector or covariance
	// does not match the pose dimension.
	ErrDimensionMismatch = errors.New("pgo: dimension mismatch")
)

// Key identifies a pose-graph node: a robot tag plus a per-robot index
// that increases monotonically along the trajectory. Keys are globally
// unique and comparable, so they serve directly as map keys.
type Key struct {
	Robot rune   `json:"robot"`
	Index uint64 `json:"index"`
}

// K is shorthand for constructing a Key.
func K(robot rune, index uint64) Key {
	return Key{Robot: robot, Index: index}
}

// String renders the key in the compact robot-tag form, e.g. "a12".
func (k Key) String() string {
	return fmt.Sprintf("%c%d", k.Robot, k.Index)
}

// pairKey orders two node ids for transform-store lookup.
type pairKey struct {
	i, j Key
}

// FactorKind classifies accepted factor records.
type FactorKind int

const (
	// FactorPrior anchors a trajectory's first node.
	FactorPrior FactorKind = iota
	// FactorOdometry links consecutive nodes of one robot.
	FactorOdometry
	// FactorSeparator bridges two robot trajectories.
	FactorSeparator
	// FactorLoopClosure is a non-sequential measurement currently in the
	// maximum consistent clique.
	FactorLoopClosure
)

// String names the factor kind for diagnostics and export properties.
func (k FactorKind) String() string {
	switch k {
	case FactorPrior:
		return "prior"
	case FactorOdometry:
		return "odometry"
	case FactorSeparator:
		return "separator"
	case FactorLoopClosure:
		return "loop_closure"
	default:
		return "unknown"
	}
}

// Transform is an accepted inter-node measurement: an ordered node pair,
// the measured relative belief, and a flag marking cross-trajectory
// (separator) edges. One record per accepted measurement.
type Transform[B Belief[B]] struct {
	I, J      Key
	Belief    B
	Separator bool
}

// Factor is an entry of the accepted factor set handed to the external
// solver. For priors I equals J.
type Factor[B Belief[B]] struct {
	I, J   Key
	Belief B
	Kind   FactorKind
}

// Config is the service configuration loaded from YAML.
type Config struct {
	MQTT MQTTConfig `yaml:"mqtt" json:"mqtt"`
	// Thresholds defaults to DefaultThresholds when the section is
	// omitted; explicit zeros inside the section are respected.
	Thresholds *ThresholdConfig `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Robots     []RobotConfig    `yaml:"robots" json:"robots"`
	Render     RenderConfig     `yaml:"render,omitempty" json:"render,omitempty"`
}

// ThresholdConfig holds the two chi-squared consistency cutoffs. A value
// of 0 demands exact consistency; a very large value disables the check.
type ThresholdConfig struct {
	Odometry    float64 `yaml:"odometry" json:"odometry"`
	LoopClosure float64 `yaml:"loopClosure" json:"loopClosure"`
}

// RobotConfig defines one robot's measurement stream.
type RobotConfig struct {
	// ID is the single-character robot tag used in node keys.
	ID    string `yaml:"id" json:"id"`
	Topic string `yaml:"topic" json:"topic"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// MQTTConfig holds MQTT connection settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"clientId" json:"clientId"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// EffectiveThresholds returns the configured thresholds, or the defaults
// when the config omits the section.
func (c *Config) EffectiveThresholds() ThresholdConfig {
	if c == nil || c.Thresholds == nil {
		return DefaultThresholds
	}
	return *c.Thresholds
}

// RenderConfig holds graph rendering options.
type RenderConfig struct {
	// Scale is millimeters of world space per pose unit when rendering.
	Scale float64 `yaml:"scale,omitempty" json:"scale,omitempty"`
	// GridSpacing is the grid line spacing in world units; 0 disables.
	GridSpacing float64 `yaml:"gridSpacing,omitempty" json:"gridSpacing,omitempty"`
}

// RobotTag returns the rune tag for a configured robot id.
func (rc *RobotConfig) RobotTag() (rune, error) {
	runes := []rune(rc.ID)
	if len(runes) != 1 {
		return 0, fmt.Errorf("robot id %q must be a single character", rc.ID)
	}
	return runes[0], nil
}

// GetRobotByTag returns the robot config for the given tag, or nil.
func (c *Config) GetRobotByTag(tag rune) *RobotConfig {
	for i := range c.Robots {
		if t, err := c.Robots[i].RobotTag(); err == nil && t == tag {
			return &c.Robots[i]
		}
	}
	return nil
}
