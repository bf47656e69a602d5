package event

// Type identifies the kind of frame emitted on a workflow stream.
type Type string

const (
	TypeWorkflowStart        Type = "workflow_start"
	TypeAgentStart           Type = "agent_start"
	TypeReasoning            Type = "reasoning"
	TypeAgentAction          Type = "agent_action"
	TypeAgentResult          Type = "agent_result"
	TypeInterventionRequired Type = "human_intervention_required"
	TypeInterventionPending  Type = "intervention_pending"
	TypeAgentComplete        Type = "agent_complete"
	TypeWorkflowComplete     Type = "workflow_complete"
	TypeInterventionDecision Type = "intervention_decision"
	TypeWorkflowStopped      Type = "workflow_stopped"
	TypeError                Type = "error"
	TypeDone                 Type = "done"
)

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}
