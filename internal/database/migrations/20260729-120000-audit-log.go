package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260729-120000",
		Description: "Authorization audit log",
		Up: []string{
			// session_id_hash is the first 12 hex chars of SHA-256(session id),
			// never the raw session id —
			// the log exists to reconstruct who touched what, not to re-derive identity.
			`CREATE TABLE IF NOT EXISTS audit_log (
				id TEXT PRIMARY KEY,
				request_id TEXT NOT NULL,
				session_id_hash TEXT NOT NULL,
				action TEXT NOT NULL,
				resource_type TEXT NOT NULL,
				resource_id TEXT NOT NULL,
				outcome TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_log_request_id ON audit_log(request_id)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_log_session_id_hash ON audit_log(session_id_hash)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log(created_at)`,
		},
	})
}
