package internaldefs

import (
	goLease "github.com/MrEthical07/goLease"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goLease.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goLease.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goLease.MetricRegisterSuccess, Name: "golease_register_success_total", Help: "Leases installed by Register."},
	{ID: goLease.MetricRegisterFailure, Name: "golease_register_failure_total", Help: "Register calls that failed on the store."},
	{ID: goLease.MetricRegisterMalformed, Name: "golease_register_malformed_total", Help: "Register calls rejected for a malformed candidate."},
	{ID: goLease.MetricLeaseEvicted, Name: "golease_lease_evicted_total", Help: "Registrations that displaced a different lease."},
	{ID: goLease.MetricValidateOK, Name: "golease_validate_ok_total", Help: "Accepted lease checks."},
	{ID: goLease.MetricValidateRejected, Name: "golease_validate_rejected_total", Help: "Lease checks rejected as superseded."},
	{ID: goLease.MetricValidateUnavailable, Name: "golease_validate_unavailable_total", Help: "Lease checks that failed closed on a store error."},
	{ID: goLease.MetricRevoke, Name: "golease_revoke_total", Help: "Revoke calls applied to the store."},
	{ID: goLease.MetricRevokeFailure, Name: "golease_revoke_failure_total", Help: "Revoke calls that failed on the store."},
	{ID: goLease.MetricCorruptRecord, Name: "golease_corrupt_record_total", Help: "Undecodable lease records encountered."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goLease.MetricValidateLatency, Name: "golease_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bounds of the engine buckets, in seconds.
var HistogramBounds = []string{
	"0.001",
	"0.002",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// HistogramBoundValues mirrors HistogramBounds as floats, without +Inf.
var HistogramBoundValues = []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1}

// HistogramBoundSuffix is HistogramBounds rendered for instrument names.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_002",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size bucket array, padding with
// zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
