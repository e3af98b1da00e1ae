// Package service holds the server-side halves of the remote services the
// session and guest/table managers talk to:
//
//	IdentityService  → accounts, passwords, sessions
//	AuthClient       → one signed-in browser's view of IdentityService
//	DataService      → profile-scoped rows, publishing a change per write
//
// Handlers never call these directly for guest/table work; they go through
// the per-session managers, which call these.
package service

// Recorder receives business counters. *metrics.Collector implements it.
type Recorder interface {
	RecordWrite(relation, op string)
	RecordAuth(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWrite(string, string) {}
func (nopRecorder) RecordAuth(string, string)  {}

func recorderOrNop(rec Recorder) Recorder {
	if rec == nil {
		return nopRecorder{}
	}
	return rec
}
