// Package taskmodel holds the data model shared by every component of the
// scheduling core: task requirements, in-flight bags, worker-side tasks and
// submission-side bookkeeping (spec.md §3).
package taskmodel

import "time"

// Description is spec.md's TaskDescription: the resource and timing
// requirements of one or more identical tasks.
type Description struct {
	// Length is work in abstract units (e.g. instructions, or a
	// normalised "seconds at reference power" unit).
	Length float64
	// MaxMemory and MaxDisk are hard resource ceilings a worker must
	// satisfy to even be considered (static admission rule #1 in §4.2).
	MaxMemory int64
	MaxDisk   int64
	// InputSize and OutputSize describe data staging volume; the
	// scheduling core never moves bytes itself (executor's job) but
	// uses these for cluster fulfilment checks and summary loss
	// accounting.
	InputSize  int64
	OutputSize int64
	// NumTasks is how many tasks share this Description within one bag.
	NumTasks int
	// Deadline is an absolute point in time, or the zero time meaning
	// "none" (spec.md §3).
	Deadline time.Time
	// AppLength is the total work of the enclosing application; used by
	// the Slowness (FSP) policy to compute S = (finish-release)/AppLength.
	AppLength float64
}

// HasDeadline reports whether Deadline carries an actual constraint.
func (d Description) HasDeadline() bool {
	return !d.Deadline.IsZero()
}

// Fits reports whether a candidate's static capacities (memory, disk) are
// sufficient for this Description — admission rule #1, shared by every
// local-scheduler policy (spec.md §4.2).
func (d Description) Fits(availMemory, availDisk int64) bool {
	return availMemory >= d.MaxMemory && availDisk >= d.MaxDisk
}
