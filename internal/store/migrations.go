package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create checkpoints and archive",
		SQL: `
			CREATE TABLE checkpoints (
				thread_id    TEXT PRIMARY KEY,
				domain       TEXT NOT NULL,
				version      INTEGER NOT NULL,
				messages     TEXT NOT NULL,
				extra_state  TEXT NOT NULL DEFAULT '{}',
				created_at   TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_checkpoints_domain ON checkpoints (domain);

			CREATE TABLE checkpoint_archive (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				thread_id    TEXT NOT NULL,
				domain       TEXT NOT NULL,
				version      INTEGER NOT NULL,
				messages     TEXT NOT NULL,
				extra_state  TEXT NOT NULL DEFAULT '{}',
				created_at   TEXT NOT NULL,
				updated_at   TEXT NOT NULL,
				deleted_at   TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_archive_thread ON checkpoint_archive (thread_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "create cases",
		SQL: `
			CREATE TABLE cases (
				id               TEXT PRIMARY KEY,
				domain           TEXT NOT NULL,
				user_id          TEXT NOT NULL DEFAULT '',
				fields           TEXT NOT NULL DEFAULT '{}',
				status           TEXT NOT NULL DEFAULT 'NOT_ASSIGNED',
				idempotency_key  TEXT,
				created_at       TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_cases_idem ON cases (idempotency_key) WHERE idempotency_key IS NOT NULL;
			CREATE INDEX idx_cases_domain_status ON cases (domain, status);
			CREATE INDEX idx_cases_user ON cases (user_id);
		`,
	},
	{
		Version: 3,
		Name:    "create notifications and triage reports",
		SQL: `
			CREATE TABLE notifications (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL,
				case_id     TEXT NOT NULL DEFAULT '',
				domain      TEXT NOT NULL DEFAULT '',
				title       TEXT NOT NULL,
				body        TEXT NOT NULL,
				read        INTEGER NOT NULL DEFAULT 0,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_notifications_user ON notifications (user_id, read);

			CREATE TABLE triage_reports (
				id              TEXT PRIMARY KEY,
				user_id         TEXT NOT NULL,
				emergency_type  TEXT NOT NULL,
				user_query      TEXT NOT NULL,
				created_at      TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_triage_user ON triage_reports (user_id);
		`,
	},
	{
		Version: 4,
		Name:    "create embedding cache",
		SQL: `
			CREATE TABLE embedding_cache (
				model       TEXT NOT NULL,
				hash        TEXT NOT NULL,
				vector      BLOB NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (model, hash)
			);
		`,
	},
	{
		Version: 5,
		Name:    "add notification kind and approval",
		SQL: `
			ALTER TABLE notifications ADD COLUMN kind TEXT NOT NULL DEFAULT 'status_update';
			ALTER TABLE notifications ADD COLUMN approved INTEGER;
		`,
	},
}
