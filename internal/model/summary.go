package model

// BatchSummary reports a batch run. Flagged records need a number reviewed;
// failures need the missing extraction investigated.
type BatchSummary struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Flagged   []OutputRecord `json:"flagged"`
	Failures  []OutputRecord `json:"failures"`
}

// SuccessRate is the share of processed documents that produced a value.
func (s BatchSummary) SuccessRate() float64 {
	processed := s.Succeeded + s.Failed
	if processed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(processed)
}
