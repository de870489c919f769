package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"strings"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels

	warmupSize = 64
)

// Detector implements provider.Detector and provider.Model using DeepFace API
type Detector struct {
	client *Client
}

// NewDetector creates a new DeepFace detector
func NewDetector(config Config) *Detector {
	return &Detector{
		client: NewClient(config),
	}
}

// Detect returns the largest face in the frame, or nil when DeepFace finds none.
func (d *Detector) Detect(ctx context.Context, frame provider.Frame) (*provider.Detection, error) {
	if frame.Empty() {
		return nil, domain.ErrInvalidImage
	}

	resp, err := d.client.Represent(ctx, dataURI(frame), true)
	if err != nil {
		if isNoFaceError(err) {
			return nil, nil
		}
		if isRejectedFrame(err) {
			return nil, domain.ErrInvalidImage.WithError(err)
		}
		return nil, fmt.Errorf("detect face: %w", err)
	}

	if len(resp.Results) == 0 {
		return nil, nil
	}

	best := resp.Results[0]
	for _, r := range resp.Results[1:] {
		if r.FacialArea.Area() > best.FacialArea.Area() {
			best = r
		}
	}

	if len(best.Embedding) == 0 {
		return nil, fmt.Errorf("detect face: %w: empty embedding", ErrInvalidResponse)
	}

	score := best.FaceConfidence
	if score <= 0 {
		score = calculateConfidence(float64(best.FacialArea.Area()))
	}

	return &provider.Detection{
		Descriptor: best.Embedding,
		Score:      score,
		Box: provider.BoundingBox{
			X:      float64(best.FacialArea.X),
			Y:      float64(best.FacialArea.Y),
			Width:  float64(best.FacialArea.W),
			Height: float64(best.FacialArea.H),
		},
	}, nil
}

// Probe checks that the DeepFace service answers at all.
func (d *Detector) Probe(ctx context.Context) error {
	if err := d.client.Ping(ctx); err != nil {
		return fmt.Errorf("probe deepface: %w", err)
	}
	return nil
}

// Load forces DeepFace to build the configured model by representing a
// blank image with detection disabled.
func (d *Detector) Load(ctx context.Context) error {
	img, err := warmupImage()
	if err != nil {
		return fmt.Errorf("build warmup image: %w", err)
	}

	resp, err := d.client.Represent(ctx, img, false)
	if err != nil {
		return fmt.Errorf("warm up %s: %w", d.client.config.Model, err)
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Embedding) == 0 {
		return fmt.Errorf("warm up %s: %w: no embedding", d.client.config.Model, ErrInvalidResponse)
	}
	return nil
}

// calculateConfidence estimates confidence based on face area for
// detector backends that do not report one.
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5 // Low confidence for very small faces
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

func isNoFaceError(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(statusErr.Message), "face could not be detected")
}

// isRejectedFrame reports a 4xx from DeepFace: the frame was refused, the
// service itself is fine.
func isRejectedFrame(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.ClientError()
}

func dataURI(frame provider.Frame) string {
	contentType := frame.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(frame.Data)
}

func warmupImage() (string, error) {
	img := image.NewGray(image.Rect(0, 0, warmupSize, warmupSize))
	for i := range img.Pix {
		img.Pix[i] = color.Gray{Y: 128}.Y
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return dataURI(provider.Frame{Data: buf.Bytes(), ContentType: "image/png"}), nil
}

var (
	_ provider.Detector = (*Detector)(nil)
	_ provider.Model    = (*Detector)(nil)
)
