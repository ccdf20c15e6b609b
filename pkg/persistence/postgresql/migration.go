package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE run_sessions (
				thread_id VARCHAR(255) PRIMARY KEY,
				status VARCHAR(50) NOT NULL,
				session JSONB NOT NULL,
				interrupt JSONB,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_run_sessions_status ON run_sessions(status);
			CREATE INDEX idx_run_sessions_updated_at ON run_sessions(updated_at);
		`,
	}
}
