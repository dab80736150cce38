package present

import "github.com/andresmejia3/mimic/internal/warp"

// Console and /status messages.
const (
	MsgCameraReady     = "Camera started ✅ Upload a photo to begin."
	MsgAnalyzing       = "Analyzing face in photo…"
	MsgPhotoReady      = "Photo ready ✅ Your expressions now animate it."
	MsgPhotoNoFace     = "No face detected in that photo. Try a front-facing one with good lighting."
	MsgPhotoBad        = "Could not load that image. Try another one."
	MsgPhotoCleared    = "Photo cleared. Upload another one to animate."
	MsgTrackingActive  = "Tracking ✅ (animated photo active)"
	MsgTrackingNoPhoto = "Tracking ✅ (upload a photo)"
	MsgNoFace          = "No face detected (try more light and look at the camera)."
)

// StatusMessage describes a render pass. faceFound reports whether the live
// frame had a face, which a no-source pass cannot tell on its own.
func StatusMessage(res warp.Result, faceFound bool) string {
	if !faceFound || res.Status == warp.StatusNoFace {
		return MsgNoFace
	}
	if res.Status == warp.StatusRendered {
		return MsgTrackingActive
	}
	return MsgTrackingNoPhoto
}
