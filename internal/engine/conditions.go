package engine

import "taskboard/internal/domain"

// ruleMatches decides whether a trigger fires for an event. Absent condition
// fields are wildcards; present fields compare by exact string equality.
func ruleMatches(trigger domain.Trigger, evt TaskEvent) bool {
	if trigger.Type != evt.Type {
		return false
	}
	c := trigger.Conditions
	switch trigger.Type {
	case domain.TriggerStatusChanged:
		if c.FromStatus != nil && *c.FromStatus != evt.OldStatus {
			return false
		}
		if c.ToStatus != nil && *c.ToStatus != evt.NewStatus {
			return false
		}
		return true
	case domain.TriggerAssigneeChanged:
		if c.AssigneeID != nil && *c.AssigneeID != evt.NewAssignee {
			return false
		}
		return true
	case domain.TriggerCreated, domain.TriggerDueDatePassed:
		// No conditions defined for these triggers; they always match.
		return true
	}
	return false
}
