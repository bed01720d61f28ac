package model

// Version constants for persisted records and the binary.
const (
	// SchemaVersion is the version of the job/run record layout.
	SchemaVersion = "1"

	// EngineVersion is the routegen orchestrator version.
	EngineVersion = "0.1.0"
)
