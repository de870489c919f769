package biometric

// Quality is the bucketed detector confidence of a frame.
type Quality string

const (
	QualityNone      Quality = "none"
	QualityPoor      Quality = "poor"
	QualityFair      Quality = "fair"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

const (
	excellentScore = 0.95
	goodScore      = 0.85
	fairScore      = 0.70
)

// ClassifyQuality buckets a detector confidence score.
func ClassifyQuality(score float64) Quality {
	switch {
	case score >= excellentScore:
		return QualityExcellent
	case score >= goodScore:
		return QualityGood
	case score >= fairScore:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Acceptable reports whether a sample of this quality may be enrolled.
func (q Quality) Acceptable() bool {
	return q == QualityFair || q == QualityGood || q == QualityExcellent
}
