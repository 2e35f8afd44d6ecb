package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create deployments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS deployments (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					network TEXT NOT NULL,
					contract_name TEXT NOT NULL,
					contract_address TEXT NOT NULL,
					deployer_address TEXT NOT NULL,
					deployment_date TEXT NOT NULL,
					block_number INTEGER,
					gas_used TEXT NOT NULL, -- decimal string, may exceed int64
					transaction_hash TEXT NOT NULL UNIQUE,
					failed_steps INTEGER NOT NULL DEFAULT 0,
					created_at TEXT NOT NULL -- RFC 3339, UTC
				);

				CREATE INDEX IF NOT EXISTS idx_deployments_network ON deployments(network);
				CREATE INDEX IF NOT EXISTS idx_deployments_contract_address ON deployments(contract_address);
			`,
		},
		{
			Version:     "002",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					version TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create deployments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS deployments (
					id BIGSERIAL PRIMARY KEY,
					network TEXT NOT NULL,
					contract_name TEXT NOT NULL,
					contract_address TEXT NOT NULL,
					deployer_address TEXT NOT NULL,
					deployment_date TEXT NOT NULL,
					block_number BIGINT,
					gas_used NUMERIC(78, 0) NOT NULL,
					transaction_hash TEXT NOT NULL UNIQUE,
					failed_steps INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_deployments_network ON deployments(network);
				CREATE INDEX IF NOT EXISTS idx_deployments_contract_address ON deployments(contract_address);
			`,
		},
		{
			Version:     "002",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					version TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`,
		},
	}
}
