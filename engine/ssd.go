package engine

import (
	iface "CamDetLoop/interface"
)

// DecodeSSD turns the four tensors of an SSD post-processing op into results
// in pixel coordinates of a width x height frame. boxes holds
// [ymin, xmin, ymax, xmax] normalized to [0, 1] for every detection. count
// is bounded by the tensor lengths; a negative count yields no results.
func DecodeSSD(boxes, classes, scores []float32, count int, width, height int) []iface.Result {
	n := max(count, 0)
	if n > len(scores) {
		n = len(scores)
	}
	if n > len(classes) {
		n = len(classes)
	}
	if n > len(boxes)/4 {
		n = len(boxes) / 4
	}
	out := make([]iface.Result, 0, n)
	w, h := float32(width), float32(height)
	for i := 0; i < n; i++ {
		ymin, xmin, ymax, xmax := clamp01(boxes[4*i]), clamp01(boxes[4*i+1]), clamp01(boxes[4*i+2]), clamp01(boxes[4*i+3])
		out = append(out, iface.Result{
			ClassID: int(classes[i]),
			Conf:    scores[i],
			Box:     iface.NewBox(xmin*w, ymin*h, xmax*w, ymax*h),
		})
	}
	return out
}

// DecodeDetectionRows reads the 1x1xNx7 output of an OpenCV DNN detection
// network: [batchId, classId, confidence, left, top, right, bottom] per row.
func DecodeDetectionRows(rows []float32, width, height int) []iface.Result {
	w, h := float32(width), float32(height)
	out := make([]iface.Result, 0, len(rows)/7)
	for i := 0; i+7 <= len(rows); i += 7 {
		r := rows[i : i+7]
		if r[2] <= 0 {
			continue
		}
		out = append(out, iface.Result{
			ClassID: int(r[1]),
			Conf:    r[2],
			Box:     iface.NewBox(clamp01(r[3])*w, clamp01(r[4])*h, clamp01(r[5])*w, clamp01(r[6])*h),
		})
	}
	return out
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
