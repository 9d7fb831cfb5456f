package pose

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/EmekaOkaforTech/deskpulse-sub000/internal/types"
)

// torso connections drawn between landmark pairs.
var torsoEdges = [][2]int{
	{types.LandmarkLeftShoulder, types.LandmarkRightShoulder},
	{types.LandmarkLeftShoulder, types.LandmarkLeftHip},
	{types.LandmarkRightShoulder, types.LandmarkRightHip},
	{types.LandmarkLeftHip, types.LandmarkRightHip},
}

// minOverlayVisibility hides keypoints the model barely saw.
const minOverlayVisibility = 0.3

// RenderOverlay draws the landmark skeleton onto the frame in place and
// returns the same frame. Nil landmarks are a no-op.
func RenderOverlay(frame types.Frame, landmarks types.LandmarkSet, c color.RGBA) types.Frame {
	if landmarks == nil || !frame.IsValid() {
		return frame
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return frame
	}
	defer mat.Close()

	for _, edge := range torsoEdges {
		a, okA := landmarks.At(edge[0])
		b, okB := landmarks.At(edge[1])
		if !okA || !okB {
			continue
		}
		if a.Visibility < minOverlayVisibility || b.Visibility < minOverlayVisibility {
			continue
		}
		gocv.Line(&mat, toPixel(a, frame), toPixel(b, frame), c, 2)
	}

	for i := 0; i < len(landmarks); i++ {
		lm, _ := landmarks.At(i)
		if lm.Visibility < minOverlayVisibility {
			continue
		}
		gocv.Circle(&mat, toPixel(lm, frame), 4, c, -1)
	}

	// Mat writes land in a fresh buffer; copy them back into the frame.
	copy(frame.Data, mat.ToBytes())
	return frame
}

// EncodeJPEG compresses a BGR frame for transport.
func EncodeJPEG(frame types.Frame) ([]byte, error) {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func toPixel(lm types.Landmark, frame types.Frame) image.Point {
	return image.Pt(
		clamp(int(lm.X*float64(frame.Width)), 0, frame.Width-1),
		clamp(int(lm.Y*float64(frame.Height)), 0, frame.Height-1),
	)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
