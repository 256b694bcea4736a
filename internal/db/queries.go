package db

const documentColumns = `id, owner_id, original_filename, stored_filename, file_path, file_size, file_type, merged, source_files, print_path, copies, color_mode, status, failure_reason, retry_count, released, upload_time, queued_at, started_at, completed_at`

const (
	InsertDocument = `
		INSERT INTO documents (id, owner_id, original_filename, stored_filename, file_path, file_size, file_type, merged, source_files, print_path, copies, color_mode, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetDocumentByID = `
		SELECT ` + documentColumns + `
		FROM documents WHERE id = ?
	`

	ListDocumentIDsByStatus = `
		SELECT id FROM documents WHERE status = ? ORDER BY upload_time ASC LIMIT ?
	`

	// UpdateDocumentStatus is a compare-and-swap: zero rows affected means the
	// expected current status did not match and the transition is stale.
	UpdateDocumentStatus = `
		UPDATE documents SET status = ? WHERE id = ? AND status = ?
	`

	MarkDocumentQueued = `
		UPDATE documents SET status = 'queued', queued_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?
	`

	MarkDocumentPrinting = `
		UPDATE documents SET status = 'printing', started_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'queued'
	`

	MarkDocumentCompleted = `
		UPDATE documents SET status = 'completed', completed_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'printing'
	`

	MarkDocumentFailed = `
		UPDATE documents SET status = 'failed', failure_reason = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?
	`

	SetDocumentPrintPath = `
		UPDATE documents SET print_path = ? WHERE id = ?
	`

	// RequeueDocumentForRetry pushes a failed print attempt back into the
	// queue with a deferred eligibility time; the datetime modifier carries
	// the retry backoff (e.g. "+10 seconds").
	RequeueDocumentForRetry = `
		UPDATE documents SET status = 'queued', queued_at = datetime('now', ?), retry_count = retry_count + 1
		WHERE id = ? AND status = 'printing'
	`

	ReleaseDocument = `
		UPDATE documents SET released = 1 WHERE id = ?
	`

	// NextPrintable selects the oldest queued job eligible for printing:
	// explicitly released, or any queued job when auto-print is on and the
	// configured delay has elapsed. queued_at has one-second resolution, so
	// rowid breaks ties between jobs queued within the same second.
	NextPrintable = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status = 'queued' AND ((released = 1 AND queued_at <= ?) OR (? = 1 AND queued_at <= ?))
		ORDER BY queued_at ASC, rowid ASC
		LIMIT 1
	`

	ResetInFlightDocuments = `
		UPDATE documents SET status = 'uploaded' WHERE status = 'downloading'
	`

	ResetPrintingDocuments = `
		UPDATE documents SET status = 'queued' WHERE status = 'printing'
	`

	CountDocuments = `SELECT COUNT(*) FROM documents`

	CountDocumentsByStatus = `SELECT COUNT(*) FROM documents WHERE status = ?`

	RecentDocuments = `
		SELECT ` + documentColumns + `
		FROM documents ORDER BY upload_time DESC LIMIT ?
	`

	ListDocumentsByOwner = `
		SELECT ` + documentColumns + `
		FROM documents WHERE owner_id = ? ORDER BY upload_time DESC LIMIT ?
	`
)

const (
	InsertUser = `
		INSERT INTO users (id, name, email, password_hash)
		VALUES (?, ?, ?, ?)
	`

	GetUserByID = `
		SELECT id, name, email, password_hash, total_prints, created_at
		FROM users WHERE id = ?
	`

	GetUserByEmail = `
		SELECT id, name, email, password_hash, total_prints, created_at
		FROM users WHERE email = ?
	`

	IncrementUserPrints = `
		UPDATE users SET total_prints = total_prints + 1 WHERE id = ?
	`
)

const (
	GetSettingQuery = `SELECT key, value, updated_at FROM settings WHERE key = ?`

	SetSettingQuery = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`
)
