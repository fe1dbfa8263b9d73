package types

// Version is the canonical project version.
// The CLI and the completion event schema share this version per the
// lockstep versioning policy.
const Version = "0.3.0"

// SchemaVersion is the session_completed event schema version.
const SchemaVersion = "0.1.0"
