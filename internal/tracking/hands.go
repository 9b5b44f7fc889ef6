package tracking

import "github.com/claude/romkiosk/internal/models"

// HandPosition is a wrist position in normalized camera space.
type HandPosition struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// HandResults is the per-frame hand state used by the game exercises.
type HandResults struct {
	Left          HandPosition `json:"leftHand"`
	Right         HandPosition `json:"rightHand"`
	PersonVisible bool         `json:"isPersonVisible"`
}

// ExtractHands places each labelled hand at its wrist landmark. Hands with
// no wrist or an unknown label are ignored.
func ExtractHands(r Result) HandResults {
	var out HandResults
	for _, h := range r.Hands {
		wrist, ok := h.Landmarks.At(models.HandWrist)
		if !ok {
			continue
		}
		pos := HandPosition{X: wrist.X, Y: wrist.Y, Visible: true}
		switch h.Handedness {
		case "Left":
			out.Left = pos
		case "Right":
			out.Right = pos
		}
	}
	out.PersonVisible = out.Left.Visible || out.Right.Visible
	return out
}
