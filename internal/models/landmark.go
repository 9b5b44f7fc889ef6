package models

// Landmark is a normalized camera-space keypoint. X and Y are in [0,1];
// Visibility is the detector's confidence in [0,1].
type Landmark struct {
	X          float64 `json:"x" msgpack:"x"`
	Y          float64 `json:"y" msgpack:"y"`
	Z          float64 `json:"z,omitempty" msgpack:"z"`
	Visibility float64 `json:"visibility" msgpack:"visibility"`
}

// Frame is one detection's ordered landmark list, indexed by the pose
// (or hand) taxonomy below.
type Frame []Landmark

// At returns the landmark at i and whether it exists.
func (f Frame) At(i int) (Landmark, bool) {
	if i < 0 || i >= len(f) {
		return Landmark{}, false
	}
	return f[i], true
}

// Clone returns an independent copy of the frame.
func (f Frame) Clone() Frame {
	if f == nil {
		return nil
	}
	out := make(Frame, len(f))
	copy(out, f)
	return out
}

// JointQuery names the pivot joint and the point that sweeps around it.
type JointQuery struct {
	Pivot int `json:"pivot" yaml:"pivot"`
	Point int `json:"point" yaml:"point"`
}

// Valid reports whether both indices fall inside a frame of size n.
func (q JointQuery) Valid(n int) bool {
	return q.Pivot >= 0 && q.Point >= 0 && q.Pivot < n && q.Point < n && q.Pivot != q.Point
}

// Pose landmark indices (33-point body taxonomy).
const (
	Nose = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	PoseLandmarkCount
)

// HandWrist is the wrist index in the 21-point hand taxonomy.
const (
	HandWrist         = 0
	HandLandmarkCount = 21
)

// PoseConnections lists the skeleton edges drawn by the overlay.
var PoseConnections = [][2]int{
	{Nose, LeftEyeInner}, {LeftEyeInner, LeftEye}, {LeftEye, LeftEyeOuter}, {LeftEyeOuter, LeftEar},
	{Nose, RightEyeInner}, {RightEyeInner, RightEye}, {RightEye, RightEyeOuter}, {RightEyeOuter, RightEar},
	{MouthLeft, MouthRight},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow}, {LeftElbow, LeftWrist},
	{LeftWrist, LeftPinky}, {LeftWrist, LeftIndex}, {LeftWrist, LeftThumb}, {LeftPinky, LeftIndex},
	{RightShoulder, RightElbow}, {RightElbow, RightWrist},
	{RightWrist, RightPinky}, {RightWrist, RightIndex}, {RightWrist, RightThumb}, {RightPinky, RightIndex},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip}, {LeftHip, RightHip},
	{LeftHip, LeftKnee}, {LeftKnee, LeftAnkle}, {LeftAnkle, LeftHeel}, {LeftHeel, LeftFootIndex}, {LeftAnkle, LeftFootIndex},
	{RightHip, RightKnee}, {RightKnee, RightAnkle}, {RightAnkle, RightHeel}, {RightHeel, RightFootIndex}, {RightAnkle, RightFootIndex},
}
