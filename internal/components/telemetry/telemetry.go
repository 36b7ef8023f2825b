package telemetry

// API is the reporting surface every component logs through, tests swap in a
// RecordingAPI to assert on what was reported.
//
// Report ids name the component that produced the report, not the exact line:
// `<struct or interface>.<method>` in lowercase with dashes between words
// (`client.show-records`, `scraper.detail`). Whether something broke is
// already carried by the method called, so ids never say "failed" or
// "broken". Each package declares its ids as `report_...` constants and
// receives a ScopedAPI so the package name does not need repeating.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that stopped working and needs
	// attention.
	ReportBroken(id string, params ...any)
	// ReportWarning reports something unexpected the component recovered
	// from.
	ReportWarning(id string, params ...any)
	// ReportDebug is only visible with verbose logging.
	ReportDebug(msg string, params ...any)
	// ReportCount reports a gauge reading, successive values are points over
	// time and are not summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id it reports with "<namespace>: ".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

// Scope nests another namespace under this one ("scraper.detail: ...").
func (s ScopedAPI) Scope(namespace string) ScopedAPI {
	return ScopedAPI{namespace: s.namespace + "." + namespace, inner: s.inner}
}

func (s ScopedAPI) qualify(id string) string {
	return s.namespace + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.qualify(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.qualify(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.qualify(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.qualify(id), count)
}
