package config

import (
	"fmt"
	"strings"
)

// ValidationError mirrors ollama-distributed/internal/config's per-field
// validation error shape.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates every ValidationError found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(msgs, "; "))
}

// Validate checks every recognised key from spec.md §6 for a sane range.
func (c *Config) Validate() error {
	var errs ValidationErrors

	switch c.Node.Policy {
	case "ibp", "mmp", "dp", "fsp":
	default:
		errs = append(errs, ValidationError{"node.policy", c.Node.Policy, "must be one of ibp, mmp, dp, fsp"})
	}

	if c.Node.Memory <= 0 {
		errs = append(errs, ValidationError{"node.memory", c.Node.Memory, "must be positive"})
	}
	if c.Node.Disk <= 0 {
		errs = append(errs, ValidationError{"node.disk", c.Node.Disk, "must be positive"})
	}
	if c.Node.Power <= 0 {
		errs = append(errs, ValidationError{"node.power", c.Node.Power, "must be positive"})
	}

	if c.Dispatch.UpdateBandwidth <= 0 {
		errs = append(errs, ValidationError{"dispatch.update_bandwidth", c.Dispatch.UpdateBandwidth, "must be positive"})
	}
	if c.Dispatch.Heartbeat <= 0 {
		errs = append(errs, ValidationError{"dispatch.heartbeat", c.Dispatch.Heartbeat, "must be positive"})
	}
	if c.Dispatch.SubmitRetries < 0 {
		errs = append(errs, ValidationError{"dispatch.submit_retries", c.Dispatch.SubmitRetries, "must be >= 0"})
	}
	if c.Dispatch.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{"dispatch.request_timeout", c.Dispatch.RequestTimeout, "must be positive"})
	}
	if c.Dispatch.MaxTasksPerRequest <= 0 {
		errs = append(errs, ValidationError{"dispatch.max_tasks_per_request", c.Dispatch.MaxTasksPerRequest, "must be positive"})
	}

	if c.Scheduler.RescheduleTimeout <= 0 {
		errs = append(errs, ValidationError{"scheduler.reschedule_timeout", c.Scheduler.RescheduleTimeout, "must be positive"})
	}

	if c.Summary.AvailClusters <= 0 {
		errs = append(errs, ValidationError{"summary.avail_clusters", c.Summary.AvailClusters, "must be positive"})
	}
	if c.Summary.DPPieces <= 0 {
		errs = append(errs, ValidationError{"summary.dp_pieces", c.Summary.DPPieces, "must be positive"})
	}
	if c.Summary.FSPPieces <= 0 {
		errs = append(errs, ValidationError{"summary.fsp_pieces", c.Summary.FSPPieces, "must be positive"})
	}

	if c.FSP.Beta < 0 || c.FSP.Beta > 1 {
		errs = append(errs, ValidationError{"fsp.beta", c.FSP.Beta, "must be within [0,1]"})
	}
	if c.FSP.ReductionQuality < 1 {
		errs = append(errs, ValidationError{"fsp.reduction_quality", c.FSP.ReductionQuality, "must be >= 1"})
	}
	if c.FSP.Discard && c.FSP.DiscardRatio <= 0 {
		errs = append(errs, ValidationError{"fsp.discard_ratio", c.FSP.DiscardRatio, "must be positive when discard is enabled"})
	}

	if c.MMP.Beta < 0 || c.MMP.Beta > 1 {
		errs = append(errs, ValidationError{"mmp.beta", c.MMP.Beta, "must be within [0,1]"})
	}

	if c.Exec.SecondsPerUnit <= 0 {
		errs = append(errs, ValidationError{"exec.seconds_per_unit", c.Exec.SecondsPerUnit, "must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
