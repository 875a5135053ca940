package model

// Rating buckets a score for display.
//
// Scores are continuous, but reports and the history view group them into a
// handful of ratings so that regressions stand out.
type Rating int

const (
	// RatingError marks an audit without a score.
	RatingError Rating = iota

	// RatingFail is a score below RatingAverageThreshold.
	RatingFail

	// RatingAverage is a score from RatingAverageThreshold up to RatingPassThreshold.
	RatingAverage

	// RatingPass is a score of at least RatingPassThreshold.
	RatingPass
)

// Score thresholds, on the 0-100 scale.
const (
	RatingPassThreshold    = 90.0
	RatingAverageThreshold = 50.0
)

// String returns a human-readable representation of the rating.
func (r Rating) String() string {
	switch r {
	case RatingError:
		return "ERROR"
	case RatingFail:
		return "FAIL"
	case RatingAverage:
		return "AVERAGE"
	case RatingPass:
		return "PASS"
	default:
		return "UNKNOWN"
	}
}

// Symbol returns a one character marker for terminal output.
func (r Rating) Symbol() string {
	switch r {
	case RatingPass:
		return "✓"
	case RatingAverage:
		return "~"
	case RatingFail:
		return "✗"
	default:
		return "!"
	}
}

// RatingForScore maps a 0-100 score to a Rating.
func RatingForScore(score float64) Rating {
	switch {
	case score >= RatingPassThreshold:
		return RatingPass
	case score >= RatingAverageThreshold:
		return RatingAverage
	default:
		return RatingFail
	}
}
