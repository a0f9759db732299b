package internaldefs

import (
	lockstep "github.com/lockstep-auth/lockstep"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   lockstep.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   lockstep.MetricID
	Name string
	Help string
}

// CounterDefs is the canonical counter list. Exporters iterate it so every
// backend exposes the same series under the same names.
var CounterDefs = []CounterDef{
	{ID: lockstep.MetricIssueSuccess, Name: "lockstep_issue_success_total", Help: "Successful token pair issuances."},
	{ID: lockstep.MetricIssueFailure, Name: "lockstep_issue_failure_total", Help: "Failed token pair issuances."},
	{ID: lockstep.MetricRotateSuccess, Name: "lockstep_rotate_success_total", Help: "Successful refresh rotations."},
	{ID: lockstep.MetricRotateFailure, Name: "lockstep_rotate_failure_total", Help: "Failed refresh rotations."},
	{ID: lockstep.MetricReuseDetected, Name: "lockstep_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: lockstep.MetricFamilyRevoked, Name: "lockstep_family_revoked_total", Help: "Revoked session families."},
	{ID: lockstep.MetricSubjectRevoked, Name: "lockstep_subject_revoked_total", Help: "Subject-wide revocations."},
	{ID: lockstep.MetricValidateSuccess, Name: "lockstep_validate_success_total", Help: "Successful access token validations."},
	{ID: lockstep.MetricValidateFailure, Name: "lockstep_validate_failure_total", Help: "Failed access token validations."},
	{ID: lockstep.MetricRecordsPurged, Name: "lockstep_records_purged_total", Help: "Expired refresh records removed by purge."},
}

// HistogramDefs is the canonical histogram list.
var HistogramDefs = []HistogramDef{
	{ID: lockstep.MetricRotateLatency, Name: "lockstep_rotate_latency_seconds", Help: "Rotation latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's millisecond buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix holds attribute-safe forms of HistogramBounds for
// backends that cannot carry dots or plus signs in names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
