package localsched

import "fmt"

// Policy selects which of the four local-scheduler admission/ordering rules
// (spec.md §4.2) this node runs; it also picks the Availability Summary
// variant Snapshot produces, since the two are fixed in lockstep per
// spec.md §3 ("a node's policy determines both").
type Policy int

const (
	// IBP is the Immediate policy: accept iff queue empty, one task only.
	IBP Policy = iota
	// MMP is the FCFS / Queue-Balancing policy: accept the full bag,
	// ordered by creation time.
	MMP
	// DP is the Deadline policy: accept iff every task, inserted by
	// deadline, still meets it under non-preemptive execution.
	DP
	// FSP is the Fair-Slowness policy: accept all, then resort to
	// minimise the maximum slowness.
	FSP
)

func (p Policy) String() string {
	switch p {
	case IBP:
		return "ibp"
	case MMP:
		return "mmp"
	case DP:
		return "dp"
	case FSP:
		return "fsp"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a config.NodeConfig.Policy string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "ibp":
		return IBP, nil
	case "mmp":
		return MMP, nil
	case "dp":
		return DP, nil
	case "fsp":
		return FSP, nil
	default:
		return 0, fmt.Errorf("localsched: unknown policy %q", s)
	}
}
