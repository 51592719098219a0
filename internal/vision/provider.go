package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/your-org/eventface/internal/config"
	"github.com/your-org/eventface/internal/embedding"
	"github.com/your-org/eventface/internal/observability"
)

// Provider turns an image into one descriptor per detected face. An image
// without faces yields an empty slice and no error.
type Provider interface {
	Embed(ctx context.Context, image []byte) ([][]float32, error)
	Dimension() int
}

// ONNXProvider chains the RetinaFace detector and a recognition model.
type ONNXProvider struct {
	mu        sync.Mutex // sessions reuse their tensors
	detector  *Detector
	embedder  *Embedder
	dim       int
	cropSize  int
	normalize bool
}

// NewONNXProvider loads both models from cfg.ModelsDir. dim must match the
// recognition model's output length; session creation fails otherwise.
func NewONNXProvider(cfg config.VisionConfig, dim int) (*ONNXProvider, error) {
	detPath := filepath.Join(cfg.ModelsDir, cfg.DetectorModel)
	embPath := filepath.Join(cfg.ModelsDir, cfg.EmbedderModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath, "dimension", dim)
	emb, err := NewEmbedder(embPath, cfg.EmbedderInput, cfg.EmbedderOutput, cfg.EmbedderInputSize, dim)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	slog.Info("embedding provider ready")
	return &ONNXProvider{
		detector:  det,
		embedder:  emb,
		dim:       dim,
		cropSize:  cfg.EmbedderInputSize,
		normalize: cfg.Normalize,
	}, nil
}

func (p *ONNXProvider) Dimension() int { return p.dim }

// Embed returns descriptors ordered by detection confidence, highest first.
func (p *ONNXProvider) Embed(ctx context.Context, data []byte) ([][]float32, error) {
	start := time.Now()
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	detInput := toCHW(img, detInputSize, detMean, detStd)
	observability.EmbedDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()

	start = time.Now()
	b := img.Bounds()
	dets, err := p.detector.Detect(detInput, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	observability.EmbedDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	faces := make([][]float32, 0, len(dets))
	for _, d := range dets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		crop := cropFace(img, offsetBox(d.BBox, b.Min))
		if crop == nil {
			continue
		}

		start = time.Now()
		vec, err := p.embedder.Extract(toCHW(crop, p.cropSize, embMean, embStd))
		if err != nil {
			return nil, err
		}
		observability.EmbedDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

		if p.normalize {
			embedding.Normalize(vec)
		}
		faces = append(faces, vec)
	}
	return faces, nil
}

// offsetBox moves a box from zero-based detector space into the image's
// own coordinate space.
func offsetBox(bbox [4]float32, origin image.Point) [4]float32 {
	dx, dy := float32(origin.X), float32(origin.Y)
	return [4]float32{bbox[0] + dx, bbox[1] + dy, bbox[2] + dx, bbox[3] + dy}
}

func (p *ONNXProvider) Close() {
	if p.detector != nil {
		p.detector.Close()
	}
	if p.embedder != nil {
		p.embedder.Close()
	}
}
