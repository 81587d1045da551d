package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE cadences (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL CHECK (status IN ('not_started', 'processing', 'in_progress', 'paused', 'completed')),
				priority VARCHAR(32) NOT NULL DEFAULT 'standard',
				type VARCHAR(32) NOT NULL DEFAULT 'personal',
				user_id VARCHAR(64) NOT NULL,
				sd_id VARCHAR(64) NOT NULL DEFAULT '',
				company_id VARCHAR(64) NOT NULL DEFAULT '',
				is_product_tour BOOLEAN NOT NULL DEFAULT false,
				resume_at TIMESTAMP WITH TIME ZONE,
				launch_at TIMESTAMP WITH TIME ZONE,
				launch_cron VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_cadences_user_id ON cadences(user_id);
			CREATE INDEX idx_cadences_sd_id ON cadences(sd_id);
			CREATE INDEX idx_cadences_resume_at ON cadences(resume_at) WHERE status = 'paused';

			CREATE TABLE nodes (
				id VARCHAR(64) PRIMARY KEY,
				cadence_id VARCHAR(64) NOT NULL REFERENCES cadences(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				type VARCHAR(64) NOT NULL,
				wait_time INT NOT NULL DEFAULT 0 CHECK (wait_time >= 0),
				next_node_id VARCHAR(64),
				is_first BOOLEAN NOT NULL DEFAULT false,
				step_number INT NOT NULL DEFAULT 0,
				is_urgent BOOLEAN NOT NULL DEFAULT false,
				replied_node_id VARCHAR(64),
				data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_nodes_cadence_id ON nodes(cadence_id);
			CREATE INDEX idx_nodes_replied_node_id ON nodes(replied_node_id);
			-- one head per chain
			CREATE UNIQUE INDEX idx_nodes_first ON nodes(cadence_id) WHERE is_first;

			CREATE TABLE leads (
				id VARCHAR(64) PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				full_name VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'new',
				first_contact_time TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_leads_user_id ON leads(user_id);

			CREATE TABLE lead_cadences (
				lead_id VARCHAR(64) NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
				cadence_id VARCHAR(64) NOT NULL REFERENCES cadences(id) ON DELETE CASCADE,
				user_id VARCHAR(64) NOT NULL,
				status VARCHAR(32) NOT NULL CHECK (status IN ('not_started', 'in_progress', 'paused', 'stopped', 'completed')),
				status_reason TEXT NOT NULL DEFAULT '',
				unsubscribed BOOLEAN NOT NULL DEFAULT false,
				unsubscribe_node_id VARCHAR(64),
				current_node_id VARCHAR(64),
				lead_cadence_order INT NOT NULL DEFAULT 0,
				paused_until TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (lead_id, cadence_id)
			);

			CREATE INDEX idx_lead_cadences_cadence_status ON lead_cadences(cadence_id, status);
			CREATE INDEX idx_lead_cadences_user ON lead_cadences(user_id, cadence_id);
			CREATE INDEX idx_lead_cadences_paused_until ON lead_cadences(paused_until) WHERE status = 'paused';

			CREATE TABLE tasks (
				id VARCHAR(64) PRIMARY KEY,
				lead_id VARCHAR(64) NOT NULL,
				node_id VARCHAR(64),
				cadence_id VARCHAR(64) NOT NULL DEFAULT '',
				user_id VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				urgent BOOLEAN NOT NULL DEFAULT false,
				completed BOOLEAN NOT NULL DEFAULT false,
				complete_time TIMESTAMP WITH TIME ZONE,
				is_skipped BOOLEAN NOT NULL DEFAULT false,
				skip_time TIMESTAMP WITH TIME ZONE,
				skip_reason TEXT NOT NULL DEFAULT '',
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				is_today BOOLEAN NOT NULL DEFAULT false,
				metadata JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			-- at most one outstanding task per (lead, node)
			CREATE UNIQUE INDEX idx_tasks_one_outstanding ON tasks(lead_id, node_id)
				WHERE node_id IS NOT NULL AND NOT completed AND NOT is_skipped;
			CREATE INDEX idx_tasks_user_outstanding ON tasks(user_id, start_time)
				WHERE NOT completed AND NOT is_skipped;
			CREATE INDEX idx_tasks_cadence_id ON tasks(cadence_id);
			CREATE INDEX idx_tasks_node_id ON tasks(node_id);

			CREATE TABLE activities (
				id VARCHAR(64) PRIMARY KEY,
				type VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(64) NOT NULL DEFAULT '',
				lead_id VARCHAR(64) NOT NULL,
				cadence_id VARCHAR(64) NOT NULL DEFAULT '',
				user_id VARCHAR(64) NOT NULL DEFAULT '',
				node_id VARCHAR(64),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_activities_lead_id ON activities(lead_id, created_at);

			CREATE TABLE settings (
				user_id VARCHAR(64) PRIMARY KEY,
				sd_id VARCHAR(64) NOT NULL DEFAULT '',
				max_tasks INT NOT NULL,
				high_priority_split INT NOT NULL CHECK (high_priority_split BETWEEN 0 AND 100),
				lead_cadence_order_max INT NOT NULL,
				unsubscribe_skip JSONB NOT NULL DEFAULT '{}',
				skip_weekends BOOLEAN NOT NULL DEFAULT false
			);

			CREATE INDEX idx_settings_sd_id ON settings(sd_id);

			CREATE TABLE schedules (
				id VARCHAR(64) PRIMARY KEY,
				cadence_id VARCHAR(64) NOT NULL UNIQUE REFERENCES cadences(id) ON DELETE CASCADE,
				cron_expression VARCHAR(255) NOT NULL DEFAULT '',
				launch_at TIMESTAMP WITH TIME ZONE,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_due ON schedules(next_due_at) WHERE active;
		`,
		2: `
			ALTER TABLE settings ADD COLUMN company_id VARCHAR(64) NOT NULL DEFAULT '';
		`,
	}
}
