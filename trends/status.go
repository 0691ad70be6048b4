package trends

import "pulsegraph/domain"

// Evaluation is one historical measurement of a trend, ordered oldest to
// newest when passed to UpdateStatus.
type Evaluation struct {
	Window     domain.Window
	Volume     int
	GrowthRate float64
}

// UpdateStatus derives the lifecycle state of a trend from its evaluation
// history and writes it onto the trend. A trend ends when the latest
// window carried no posts at all; it is declining after two consecutive
// evaluations with negative growth; otherwise it stays active. An empty
// history leaves the trend active.
func UpdateStatus(t *domain.Trend, history []Evaluation) domain.TrendStatus {
	status := domain.TrendStatusActive

	if n := len(history); n > 0 {
		latest := history[n-1]
		switch {
		case latest.Volume == 0:
			status = domain.TrendStatusEnded
		case n >= 2 && latest.GrowthRate < 0 && history[n-2].GrowthRate < 0:
			status = domain.TrendStatusDeclining
		}
	}

	t.Status = status
	return status
}
