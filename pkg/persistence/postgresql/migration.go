package postgresql

import "github.com/dukex/dailyreel/pkg/persistence/sqlbase"

func migrations() []sqlbase.Migration {
	return []sqlbase.Migration{
		{Version: 1, Name: "runs_and_events", SQL: `
			CREATE TABLE runs (
				id VARCHAR(10) PRIMARY KEY,
				run_date DATE NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'running', 'succeeded', 'failed', 'stopped')),
				mode VARCHAR(20) NOT NULL,
				record JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_runs_status ON runs(status);

			CREATE TABLE run_events (
				run_id VARCHAR(10) NOT NULL,
				seq BIGINT NOT NULL,
				payload JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (run_id, seq)
			);
		`},
		{Version: 2, Name: "active_run", SQL: `
			-- Single-row sentinel naming the running date
			CREATE TABLE active_run (
				singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
				run_id VARCHAR(10) NOT NULL,
				owner VARCHAR(255) NOT NULL,
				acquired_at TIMESTAMP WITH TIME ZONE NOT NULL,
				stop_requested BOOLEAN NOT NULL DEFAULT FALSE
			);
		`},
	}
}
