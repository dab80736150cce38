package landmark

// FaceOval lists the FaceMesh contour indices around the face, in drawing order.
var FaceOval = []int{
	10, 338, 297, 332, 284, 251, 389, 356, 454, 323, 361, 288,
	397, 365, 379, 378, 400, 377, 152, 148, 176, 149, 150, 136,
	172, 58, 132, 93, 234, 127, 162, 21, 54, 103, 67, 109,
}

// LipsOuter and LipsInner are the closed lip contours.
var (
	LipsOuter = []int{
		61, 146, 91, 181, 84, 17, 314, 405, 321, 375,
		291, 409, 270, 269, 267, 0, 37, 39, 40, 185,
	}
	LipsInner = []int{
		78, 95, 88, 178, 87, 14, 317, 402, 318, 324,
		308, 415, 310, 311, 312, 13, 82, 81, 80, 191,
	}
)

// LeftEye and RightEye are the closed eyelid contours, from the subject's point of view.
var (
	LeftEye = []int{
		263, 249, 390, 373, 374, 380, 381, 382,
		362, 398, 384, 385, 386, 387, 388, 466,
	}
	RightEye = []int{
		33, 7, 163, 144, 145, 153, 154, 155,
		133, 173, 157, 158, 159, 160, 161, 246,
	}
)

// Contours are the closed feature outlines drawn over a tracked face.
var Contours = [][]int{FaceOval, LipsOuter, LipsInner, LeftEye, RightEye}

// ValidCount reports whether n is a landmark count a FaceMesh tracker produces.
func ValidCount(n int) bool {
	return n == FaceMeshPoints || n == FaceMeshRefinedPoints
}
