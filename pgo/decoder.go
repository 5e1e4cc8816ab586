package pgo

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// MeasurementType names the candidate kinds a stream can deliver.
type MeasurementType string

const (
	MeasurementPrior       MeasurementType = "prior"
	MeasurementOdometry    MeasurementType = "odometry"
	MeasurementSeparator   MeasurementType = "separator"
	MeasurementLoopClosure MeasurementType = "loop_closure"
)

// MeasurementMessage is the wire form of one candidate measurement. Pose
// is planar; Covariance is the row-major 3x3 matrix over (theta, x, y)
// tangent coordinates and may be omitted for exact priors.
type MeasurementMessage struct {
	Type MeasurementType `json:"type"`
	From NodeRef         `json:"from"`
	To   NodeRef         `json:"to"`
	Pose Pose2           `json:"pose"`
	// Covariance is flattened row-major; length must be Dim*Dim.
	Covariance []float64 `json:"covariance,omitempty"`
	Timestamp  int64     `json:"timestamp,omitempty"`
}

// NodeRef addresses a pose-graph node on the wire.
type NodeRef struct {
	Robot string `json:"robot"`
	Index uint64 `json:"index"`
}

// Key converts the wire reference to a node key.
func (n NodeRef) Key() (Key, error) {
	runes := []rune(n.Robot)
	if len(runes) != 1 {
		return Key{}, fmt.Errorf("robot tag %q must be a single character", n.Robot)
	}
	return Key{Robot: runes[0], Index: n.Index}, nil
}

// DecodeMeasurement decodes a candidate measurement payload. Payloads are
// JSON, optionally gzip-compressed (detected by magic bytes); both forms
// arrive on the same topics depending on the publisher.
func DecodeMeasurement(data []byte) (*MeasurementMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	jsonBytes := data
	if isGzip(data) {
		var err error
		jsonBytes, err = gunzip(data)
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}
	}

	var msg MeasurementMessage
	if err := json.Unmarshal(jsonBytes, &msg); err != nil {
		return nil, fmt.Errorf("parsing measurement JSON: %w", err)
	}
	if err := validateMeasurement(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// validateMeasurement checks the structural invariants of a decoded
// message before it reaches the filter.
func validateMeasurement(msg *MeasurementMessage) error {
	switch msg.Type {
	case MeasurementPrior, MeasurementOdometry, MeasurementSeparator, MeasurementLoopClosure:
	default:
		return fmt.Errorf("unknown measurement type %q", msg.Type)
	}
	if _, err := msg.From.Key(); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if msg.Type != MeasurementPrior {
		if _, err := msg.To.Key(); err != nil {
			return fmt.Errorf("to: %w", err)
		}
	}
	dim := msg.Pose.Dim()
	if len(msg.Covariance) != 0 && len(msg.Covariance) != dim*dim {
		return fmt.Errorf("%w: covariance has %d entries, want %d",
			ErrDimensionMismatch, len(msg.Covariance), dim*dim)
	}
	return nil
}

// Belief converts the message to a covariance-model belief, applying the
// degenerate-rotation handling of NewPoseWithCovariance.
func (msg *MeasurementMessage) Belief() PoseWithCovariance[Pose2] {
	dim := msg.Pose.Dim()
	var cov *mat.SymDense
	if len(msg.Covariance) != 0 {
		cov = mat.NewSymDense(dim, nil)
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				// Use the upper triangle; publishers serialize symmetric
				// matrices but round-trip through text.
				cov.SetSym(i, j, msg.Covariance[i*dim+j])
			}
		}
	}
	return NewPoseWithCovariance(NewPose2(msg.Pose.X, msg.Pose.Y, msg.Pose.Theta), cov)
}

// isGzip checks for the gzip magic bytes.
func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// gunzip decompresses a gzip payload.
func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
