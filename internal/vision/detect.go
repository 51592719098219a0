package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face found by the detector, in original image pixels.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
	Landmarks  [5][2]float32
}

// RetinaFace det_10g geometry. The model emits, per stride, a score,
// a box and a landmark tensor with two anchors per feature map cell.
const (
	detInputSize    = 640
	anchorsPerCell  = 2
	nmsIoUThreshold = 0.4
	landmarkCount   = 5
	detInputName    = "input.1"
)

var detStrides = []int{8, 16, 32}

// Output tensor names of det_10g, grouped scores, boxes, landmarks and
// ordered by stride within each group.
var (
	detScoreOutputs    = []string{"448", "471", "494"}
	detBoxOutputs      = []string{"451", "474", "497"}
	detLandmarkOutputs = []string{"454", "477", "500"}
)

// Detector runs RetinaFace through ONNX Runtime. A Detector is not safe
// for concurrent use; its tensors are reused between runs.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scores    []*ort.Tensor[float32]
	boxes     []*ort.Tensor[float32]
	landmarks []*ort.Tensor[float32]
	threshold float32
}

func NewDetector(modelPath string, threshold float32) (*Detector, error) {
	d := &Detector{threshold: threshold}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	d.input = input

	var names []string
	var values []ort.Value
	for i, stride := range detStrides {
		cells := int64(detInputSize/stride) * int64(detInputSize/stride) * anchorsPerCell

		groups := []struct {
			name  string
			width int64
			dst   *[]*ort.Tensor[float32]
		}{
			{detScoreOutputs[i], 1, &d.scores},
			{detBoxOutputs[i], 4, &d.boxes},
			{detLandmarkOutputs[i], landmarkCount * 2, &d.landmarks},
		}
		for _, g := range groups {
			t, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, g.width))
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("create output tensor %s: %w", g.name, err)
			}
			*g.dst = append(*g.dst, t)
			names = append(names, g.name)
			values = append(values, t)
		}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{detInputName},
		names,
		[]ort.Value{d.input},
		values,
		nil,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	d.session = session
	return d, nil
}

// Detect runs the model on a CHW tensor of size 3x640x640 and returns
// faces scaled to an origW x origH image, highest confidence first.
func (d *Detector) Detect(chw []float32, origW, origH int) ([]Detection, error) {
	copy(d.input.GetData(), chw)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	scaleX := float32(origW) / detInputSize
	scaleY := float32(origH) / detInputSize

	var found []Detection
	for i, stride := range detStrides {
		found = decodeStride(found, stride,
			d.scores[i].GetData(), d.boxes[i].GetData(), d.landmarks[i].GetData(),
			d.threshold, scaleX, scaleY, float32(origW), float32(origH))
	}
	return nms(found, nmsIoUThreshold), nil
}

// decodeStride appends detections of one stride whose score reaches
// threshold. Boxes and landmarks are offsets from the anchor centre in
// stride units.
func decodeStride(dst []Detection, stride int, scores, boxes, marks []float32, threshold, scaleX, scaleY, maxX, maxY float32) []Detection {
	side := detInputSize / stride
	st := float32(stride)

	for idx := range scores {
		if scores[idx] < threshold {
			continue
		}
		cell := idx / anchorsPerCell
		ax := float32(cell%side) * st
		ay := float32(cell/side) * st

		b := boxes[idx*4 : idx*4+4]
		det := Detection{
			Confidence: scores[idx],
			BBox: [4]float32{
				clampF((ax-b[0]*st)*scaleX, 0, maxX),
				clampF((ay-b[1]*st)*scaleY, 0, maxY),
				clampF((ax+b[2]*st)*scaleX, 0, maxX),
				clampF((ay+b[3]*st)*scaleY, 0, maxY),
			},
		}
		m := marks[idx*landmarkCount*2 : (idx+1)*landmarkCount*2]
		for k := 0; k < landmarkCount; k++ {
			det.Landmarks[k] = [2]float32{(ax + m[2*k]*st) * scaleX, (ay + m[2*k+1]*st) * scaleY}
		}
		dst = append(dst, det)
	}
	return dst
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, group := range [][]*ort.Tensor[float32]{d.scores, d.boxes, d.landmarks} {
		for _, t := range group {
			t.Destroy()
		}
	}
}

// nms keeps the most confident of every cluster of boxes overlapping by
// more than iouThreshold.
func nms(dets []Detection, iouThreshold float32) []Detection {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	kept := make([]Detection, 0, len(dets))
	for _, cand := range dets {
		suppressed := false
		for _, k := range kept {
			if iou(k.BBox, cand.BBox) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	x1, y1 := max(a[0], b[0]), max(a[1], b[1])
	x2, y2 := min(a[2], b[2]), min(a[3], b[3])

	inter := max(0, x2-x1) * max(0, y2-y1)
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
