package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_event VARCHAR(100) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_owner_id ON workflows(owner_id);
			CREATE INDEX idx_workflows_trigger_event ON workflows(trigger_event);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			-- Ordered step sets, replaced wholesale on workflow update
			CREATE TABLE workflow_steps (
				id UUID NOT NULL,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				kind VARCHAR(50) NOT NULL,
				step_order INT NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (workflow_id, id),
				UNIQUE (workflow_id, step_order)
			);

			-- Per-step execution progress; order_no is copied from the step at
			-- creation time so history survives step edits
			CREATE TABLE execution_logs (
				id UUID PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				workflow_id UUID NOT NULL,
				lead_id VARCHAR(255) NOT NULL,
				step_id UUID NOT NULL,
				order_no INT NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'done')),
				attempts INT NOT NULL DEFAULT 0,
				detail TEXT NOT NULL DEFAULT '',
				executed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_logs_status ON execution_logs(status);
			CREATE INDEX idx_execution_logs_lead_id ON execution_logs(lead_id);
			CREATE INDEX idx_execution_logs_workflow_id ON execution_logs(workflow_id);

			-- Reconciliation run ledger
			CREATE TABLE sweep_runs (
				id UUID PRIMARY KEY,
				status VARCHAR(20) NOT NULL CHECK (status IN ('started', 'completed', 'failed')),
				processed_entities INT NOT NULL DEFAULT 0,
				processed_steps INT NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_sweep_runs_started_at ON sweep_runs(started_at);

			-- Collaborating record stores
			CREATE TABLE leads (
				id VARCHAR(255) PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				full_name VARCHAR(255) NOT NULL DEFAULT '',
				email VARCHAR(255) NOT NULL DEFAULT '',
				phone VARCHAR(50) NOT NULL DEFAULT '',
				status_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_leads_owner_id ON leads(owner_id);

			CREATE TABLE users (
				id VARCHAR(255) PRIMARY KEY,
				email VARCHAR(255) NOT NULL,
				sms_balance INT NOT NULL DEFAULT 0,
				email_notifications_enabled BOOLEAN NOT NULL DEFAULT true,
				sms_notifications_enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE message_templates (
				id UUID PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				kind VARCHAR(20) NOT NULL CHECK (kind IN ('email', 'sms')),
				name VARCHAR(255) NOT NULL,
				subject TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				attachments JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_message_templates_owner_id ON message_templates(owner_id);

			CREATE TABLE user_variables (
				user_id VARCHAR(255) NOT NULL,
				key VARCHAR(255) NOT NULL,
				value TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (user_id, key)
			);

			CREATE TABLE status_changes (
				id UUID PRIMARY KEY,
				lead_id VARCHAR(255) NOT NULL,
				from_status_id VARCHAR(255) NOT NULL DEFAULT '',
				to_status_id VARCHAR(255) NOT NULL,
				changed_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_status_changes_lead_id ON status_changes(lead_id);
		`,
	}
}
