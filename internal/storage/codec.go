package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// referenceObject is the stored JSON form of a FaceReference. Unlike the
// API representation it carries the descriptor.
type referenceObject struct {
	UserID       string    `json:"user_id"`
	Descriptor   []float64 `json:"descriptor"`
	SampleCount  int       `json:"sample_count"`
	QualityScore float64   `json:"quality_score"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func encodeReference(ref *domain.FaceReference) ([]byte, error) {
	data, err := json.Marshal(referenceObject{
		UserID:       ref.UserID,
		Descriptor:   ref.Descriptor,
		SampleCount:  ref.SampleCount,
		QualityScore: ref.QualityScore,
		CreatedAt:    ref.CreatedAt,
		UpdatedAt:    ref.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode reference: %w", err)
	}
	return data, nil
}

func decodeReference(data []byte) (*domain.FaceReference, error) {
	var obj referenceObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode reference: %w", err)
	}
	if len(obj.Descriptor) == 0 {
		return nil, fmt.Errorf("decode reference: missing descriptor")
	}
	return &domain.FaceReference{
		UserID:       obj.UserID,
		Descriptor:   obj.Descriptor,
		SampleCount:  obj.SampleCount,
		QualityScore: obj.QualityScore,
		CreatedAt:    obj.CreatedAt,
		UpdatedAt:    obj.UpdatedAt,
	}, nil
}
