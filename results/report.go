package results

import "encoding/json"

type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusFailure {
		return "failure"
	}
	return "success"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ComputeStatus fails iff at least one verdict is a mismatch.
func ComputeStatus(verdicts []PackageVerdict) Status {
	for _, v := range verdicts {
		if v.Verdict == Mismatch {
			return StatusFailure
		}
	}
	return StatusSuccess
}

type Summary struct {
	Total    int `json:"total"`
	Match    int `json:"match"`
	Mismatch int `json:"mismatch"`
	Unknown  int `json:"unknown"`
	Warnings int `json:"warnings"`
}

func Summarize(verdicts []PackageVerdict) Summary {
	summary := Summary{Total: len(verdicts)}
	for _, v := range verdicts {
		switch v.Verdict {
		case Match:
			summary.Match++
		case Mismatch:
			summary.Mismatch++
		case Unknown:
			summary.Unknown++
		}
		if v.Warning != "" {
			summary.Warnings++
		}
	}
	return summary
}

// Report is the outcome of one evaluation. Verdicts is the displayed
// sequence; Status and Summary always cover every evaluated package.
type Report struct {
	Verdicts []PackageVerdict `json:"verdicts"`
	Status   Status           `json:"status"`
	Summary  Summary          `json:"summary"`
}

func NewReport(verdicts []PackageVerdict, filterKnownGood bool) *Report {
	displayed := verdicts
	if filterKnownGood {
		displayed = make([]PackageVerdict, 0, len(verdicts))
		for _, v := range verdicts {
			if v.Verdict != Match {
				displayed = append(displayed, v)
			}
		}
	}

	return &Report{
		Verdicts: displayed,
		Status:   ComputeStatus(verdicts),
		Summary:  Summarize(verdicts),
	}
}
