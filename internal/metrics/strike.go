package metrics

import "time"

// StrikeMetrics are the counters the boundary layer updates.
type StrikeMetrics struct {
	registry *Registry

	BytesStruck         *Counter
	SessionsSealed      *Counter
	SessionsAborted     *Counter
	StrikesRejected     *Counter
	ContaminantsFound   *Counter
	Verifications       *Counter
	VerificationsFailed *Counter
	ActiveSessions      *Gauge

	StrikeDuration *Histogram
	StrikeSize     *Histogram
	VerifyDuration *Histogram
}

// NewStrikeMetrics registers the strike metrics in registry. A nil registry
// gets a fresh one under the "dotmatrix" namespace.
func NewStrikeMetrics(registry *Registry) *StrikeMetrics {
	if registry == nil {
		registry = NewRegistry("dotmatrix")
	}
	return &StrikeMetrics{
		registry: registry,

		BytesStruck:         registry.Counter("bytes_struck_total", "Bytes written to substrates", nil),
		SessionsSealed:      registry.Counter("sessions_sealed_total", "Write sessions sealed cleanly", nil),
		SessionsAborted:     registry.Counter("sessions_aborted_total", "Write sessions aborted", nil),
		StrikesRejected:     registry.Counter("strikes_rejected_total", "Strike requests refused before any write", nil),
		ContaminantsFound:   registry.Counter("contaminants_total", "Invalid bytes detected at any layer", nil),
		Verifications:       registry.Counter("verifications_total", "Substrate verifications performed", nil),
		VerificationsFailed: registry.Counter("verifications_failed_total", "Verifications that found contamination", nil),
		ActiveSessions:      registry.Gauge("active_sessions", "Write sessions currently open", nil),

		StrikeDuration: registry.Histogram("strike_duration_seconds", "Wall time of a full strike sequence", nil, DurationBuckets),
		StrikeSize:     registry.Histogram("strike_size_bytes", "Requested bytes per strike sequence", nil, SizeBuckets),
		VerifyDuration: registry.Histogram("verify_duration_seconds", "Wall time of a substrate verification", nil, DurationBuckets),
	}
}

// Registry returns the underlying registry.
func (m *StrikeMetrics) Registry() *Registry {
	return m.registry
}

// SessionStarted marks a session as open.
func (m *StrikeMetrics) SessionStarted(requested int) {
	m.ActiveSessions.Inc()
	m.StrikeSize.Observe(float64(requested))
}

// SessionEnded records how a session finished.
func (m *StrikeMetrics) SessionEnded(d time.Duration, strikes int, sealed bool, contaminants int) {
	m.ActiveSessions.Dec()
	m.StrikeDuration.ObserveDuration(d)
	m.BytesStruck.Add(uint64(strikes))
	m.ContaminantsFound.Add(uint64(contaminants))
	if sealed {
		m.SessionsSealed.Inc()
	} else {
		m.SessionsAborted.Inc()
	}
}

// Rejected records a strike refused at the boundary.
func (m *StrikeMetrics) Rejected(contaminants int) {
	m.StrikesRejected.Inc()
	m.ContaminantsFound.Add(uint64(contaminants))
}

// Verified records a verification outcome.
func (m *StrikeMetrics) Verified(d time.Duration, clean bool, contaminants int) {
	m.Verifications.Inc()
	m.VerifyDuration.ObserveDuration(d)
	m.ContaminantsFound.Add(uint64(contaminants))
	if !clean {
		m.VerificationsFailed.Inc()
	}
}
