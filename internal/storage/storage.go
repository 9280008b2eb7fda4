// internal/storage/storage.go
package storage

import "github.com/OCAP2/telemetry-synth/pkg/core"

// Backend is the interface all storage implementations must satisfy.
// RecordSession may be called concurrently from several day workers.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Run management
	StartRun(run *core.Run, players []core.Player) error
	EndRun() error

	// Session recording
	RecordSession(rec *core.SessionRecord) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the ingest API.
type Uploadable interface {
	GetExportedFilePath() string
	GetSessionFilePaths() []string
	GetExportMetadata() core.UploadMetadata
}
