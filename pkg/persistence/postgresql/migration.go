package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create executions table
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				input_data JSONB,
				output_data JSONB,
				error JSONB,
				variables JSONB DEFAULT '{}',
				execution_path JSONB NOT NULL DEFAULT '[]',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_executions_flow_id ON executions(flow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_started_at ON executions(started_at);

			-- Create execution_logs table (append-only)
			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255),
				level VARCHAR(10) NOT NULL CHECK (level IN ('debug', 'info', 'warn', 'error')),
				message TEXT NOT NULL,
				data JSONB,
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
				sequence BIGINT NOT NULL
			);

			CREATE INDEX idx_execution_logs_order ON execution_logs(execution_id, timestamp, sequence);
		`,
	}
}
