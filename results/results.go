package results

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
)

type Verdict int

const (
	Unknown Verdict = iota
	Match
	Mismatch
)

var verdictNames = map[Verdict]string{
	Unknown:  "unknown",
	Match:    "match",
	Mismatch: "mismatch",
}

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return "invalid"
}

func ParseVerdict(s string) (Verdict, error) {
	for v, name := range verdictNames {
		if name == s {
			return v, nil
		}
	}
	return Unknown, fmt.Errorf("invalid verdict %q", s)
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Verdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVerdict(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Percentage is the confidence attached to a verdict. It is not applicable
// to unknown verdicts, which is different from a 0% similarity.
type Percentage struct {
	Value      int
	Applicable bool
}

var NotApplicable = Percentage{}

func PercentageOf(value int) Percentage {
	return Percentage{Value: value, Applicable: true}
}

func (p Percentage) String() string {
	if !p.Applicable {
		return "-"
	}
	return strconv.Itoa(p.Value) + "%"
}

func (p Percentage) MarshalJSON() ([]byte, error) {
	if !p.Applicable {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

func (p *Percentage) UnmarshalJSON(data []byte) error {
	var value *int
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value == nil {
		*p = NotApplicable
		return nil
	}
	*p = PercentageOf(*value)
	return nil
}

type PackageVerdict struct {
	Name        string     `json:"name"`
	Version     string     `json:"version"`
	Purl        string     `json:"purl,omitempty"`
	InstallPath string     `json:"install_path,omitempty"`
	ID          string     `json:"id"`
	Checksum    string     `json:"checksum"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Verdict     Verdict    `json:"verdict"`
	Percentage  Percentage `json:"percentage"`
	Warning     string     `json:"warning,omitempty"`
}

// Found reports whether the authority had a record for the package.
func (v *PackageVerdict) Found() bool {
	return v.ID != ""
}

// ResultFingerprint identifies a verdict across runs, for SARIF consumers.
func (v *PackageVerdict) ResultFingerprint() string {
	fingerprintString := v.Name + "@" + v.Version + v.Verdict.String() + v.Checksum
	h := sha256.New()
	h.Write([]byte(fingerprintString))
	fingerprint := h.Sum(nil)
	return fmt.Sprintf("%x", fingerprint)
}
