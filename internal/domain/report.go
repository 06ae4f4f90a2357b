package domain

// Outcome is the result of one delivery attempt to one recipient.
type Outcome struct {
	Target   string `json:"target"`
	Platform string `json:"platform"`
	Success  bool   `json:"success"`
	Removed  bool   `json:"removed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ChannelReport aggregates the outcomes of one propagation channel.
// A report with no attempts is successful.
type ChannelReport struct {
	Attempted int       `json:"attempted"`
	Success   bool      `json:"success"`
	Skipped   bool      `json:"skipped,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
	Outcomes  []Outcome `json:"outcomes,omitempty"`
}

func NewChannelReport(outcomes []Outcome) ChannelReport {
	report := ChannelReport{
		Attempted: len(outcomes),
		Success:   true,
		Outcomes:  outcomes,
	}
	for _, o := range outcomes {
		if !o.Success {
			report.Success = false
			report.Errors = append(report.Errors, o.Target+": "+o.Error)
		}
	}
	return report
}

// SkippedReport is returned when a channel is not configured.
func SkippedReport() ChannelReport {
	return ChannelReport{Success: true, Skipped: true}
}

// FailedReport is returned when a channel could not even list its recipients.
func FailedReport(err error) ChannelReport {
	return ChannelReport{Success: false, Errors: []string{err.Error()}}
}
