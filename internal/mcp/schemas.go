package mcp

// toolSchemas holds the JSON Schema (draft 2020-12 subset) each tool's
// argument object must validate against, per spec §4.8 / §6. Keep these
// minimal: required fields and types only, matching the tool table.
var toolSchemas = map[string]string{
	"register_agent": `{
		"type": "object",
		"properties": {
			"persona": {"type": "string", "minLength": 1},
			"agentType": {"type": "string", "minLength": 1},
			"workingDirectory": {"type": "string", "minLength": 1},
			"model": {"type": "string"},
			"worktree": {"type": "string"}
		},
		"required": ["persona", "agentType", "workingDirectory"]
	}`,
	"heartbeat": `{
		"type": "object",
		"properties": {"agentId": {"type": "string", "minLength": 1}},
		"required": ["agentId"]
	}`,
	"kill_agent": `{
		"type": "object",
		"properties": {"agentId": {"type": "string", "minLength": 1}},
		"required": ["agentId"]
	}`,
	"list_agents": `{
		"type": "object",
		"properties": {"filter": {"type": "string"}}
	}`,
	"create_task": `{
		"type": "object",
		"properties": {
			"description": {"type": "string", "minLength": 1},
			"agentId": {"type": "string"},
			"personaId": {"type": "string"},
			"priority": {"type": "integer", "minimum": 1, "maximum": 4}
		},
		"required": ["description"]
	}`,
	"get_next_task": `{
		"type": "object",
		"properties": {
			"agentId": {"type": "string", "minLength": 1},
			"waitMs": {"type": "integer", "minimum": 0},
			"pollMs": {"type": "integer", "minimum": 0}
		},
		"required": ["agentId"]
	}`,
	"report_task_completion": `{
		"type": "object",
		"properties": {
			"taskId": {"type": "string", "minLength": 1},
			"agentId": {"type": "string", "minLength": 1},
			"result": {"type": "string"},
			"success": {"type": "boolean"}
		},
		"required": ["taskId", "agentId", "success"]
	}`,
	"get_task_status": `{
		"type": "object",
		"properties": {"taskId": {"type": "string", "minLength": 1}},
		"required": ["taskId"]
	}`,
	"get_tasks_by_status": `{
		"type": "object",
		"properties": {"status": {"type": "string", "enum": ["Pending", "InProgress", "Completed", "Failed"]}},
		"required": ["status"]
	}`,
	"save_memory": `{
		"type": "object",
		"properties": {
			"key": {"type": "string", "minLength": 1},
			"value": {"type": "string", "minLength": 1},
			"namespace": {"type": "string"},
			"type": {"type": "string"},
			"metadata": {"type": "string"}
		},
		"required": ["key", "value"]
	}`,
	"read_memory": `{
		"type": "object",
		"properties": {
			"key": {"type": "string", "minLength": 1},
			"namespace": {"type": "string"}
		},
		"required": ["key"]
	}`,
	"list_memory": `{
		"type": "object",
		"properties": {"namespace": {"type": "string"}}
	}`,
	"wait_for_memory_key": `{
		"type": "object",
		"properties": {
			"key": {"type": "string", "minLength": 1},
			"namespace": {"type": "string"},
			"timeoutMs": {"type": "integer", "minimum": 0}
		},
		"required": ["key"]
	}`,
}
