// Package logkeys defines some static logging keys for consistent structured logging output.
// Mostly exists as a mental aid when drafting log messages.
package logkeys

const (
	Message = "msg"
	Error   = "err"

	CaseID     = "case_id"
	CaseNumber = "case_number"
	CaseState  = "case_state"

	WorkItemID    = "work_item_id"
	WorkItemState = "work_item_state"

	DefinitionName = "definition_name"
	TaskID         = "task_id"
	FlowFrom       = "flow_from"

	ResourceID = "resource_id"
	Strategy   = "strategy"

	ActivationID = "activation_id"
	Pattern      = "pattern"

	// a context-dependent numerical count/length of something
	GenericCount = "count"

	// a named component or subsystem of the engine
	GenericComponent = "component"
)
