package worker

import "strings"

// RunningNotice replaces the startup confirmation line of the child.
const RunningNotice = "Your configuration is running"

// LineClass is the result of OutputFilter.Classify.
type LineClass int

const (
	LinePass LineClass = iota
	LineNoise
	LineRunning
)

// OutputFilter drops hostlist and profile loading chatter and detects the
// startup confirmation. Matching is case-insensitive on substrings.
type OutputFilter struct {
	Noise   []string
	Running string
}

// DefaultFilter matches the output of winws/nfqws.
func DefaultFilter() OutputFilter {
	return OutputFilter{
		Noise: []string{
			"loading hostlist",
			"we have",
			"desync profile(s)",
			"loaded hosts",
			"loading plain text list",
			"loaded",
			"loading ipset",
		},
		Running: "windivert initialized. capture is started.",
	}
}

func (f OutputFilter) Classify(line string) LineClass {
	lower := strings.ToLower(line)
	if f.Running != "" && strings.Contains(lower, f.Running) {
		return LineRunning
	}
	for _, n := range f.Noise {
		if strings.Contains(lower, n) {
			return LineNoise
		}
	}
	return LinePass
}
