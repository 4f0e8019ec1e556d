package domain

// ImageQuality buckets an input image by pixel count. The bucket feeds the
// overall score with a fixed weight, so each bucket maps to a scalar.
type ImageQuality string

const (
	ImageQualityLow       ImageQuality = "low"
	ImageQualityMedium    ImageQuality = "medium"
	ImageQualityHigh      ImageQuality = "high"
	ImageQualityExcellent ImageQuality = "excellent"
)

func (q ImageQuality) Score() float64 {
	switch q {
	case ImageQualityLow:
		return 0.25
	case ImageQualityMedium:
		return 0.5
	case ImageQualityHigh:
		return 0.75
	case ImageQualityExcellent:
		return 1.0
	}
	return 0.5
}

// QualityMetrics is the structured quality profile derived from a single
// engine's page tree plus the source image geometry. Every field degrades to
// a safe zero value when its input is empty.
type QualityMetrics struct {
	MeanWordConfidence      float64 `json:"mean_word_confidence"`
	MeanLineConfidence      float64 `json:"mean_line_confidence"`
	MeanParagraphConfidence float64 `json:"mean_paragraph_confidence"`

	TextDensity      float64 `json:"text_density"`
	RegionCount      int     `json:"region_count"`
	LayoutComplexity float64 `json:"layout_complexity"`
	SkewDegrees      float64 `json:"skew_degrees"`

	LanguagePlausibility float64 `json:"language_plausibility"`
	SuspiciousCharRatio  float64 `json:"suspicious_char_ratio"`
	WhitespaceRatio      float64 `json:"whitespace_ratio"`
	DigitRatio           float64 `json:"digit_ratio"`
	UppercaseRatio       float64 `json:"uppercase_ratio"`

	TableLikely       bool `json:"table_likely"`
	HandwritingLikely bool `json:"handwriting_likely"`

	ImageQuality ImageQuality `json:"image_quality"`
}
