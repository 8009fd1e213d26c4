package transition

import (
	"sort"

	"github.com/nholik/openstack-service-checks/internal/status"
)

// StageTransition captures a status change of one reconciliation stage.
type StageTransition struct {
	Stage           string       `json:"stage"`
	PreviousLevel   status.Level `json:"previous_level"`
	CurrentLevel    status.Level `json:"current_level"`
	PreviousMessage string       `json:"previous_message,omitempty"`
	CurrentMessage  string       `json:"current_message"`
}

// Resolved reports whether the stage went back to active.
func (t StageTransition) Resolved() bool {
	return t.CurrentLevel == status.LevelActive
}

// DetectStageTransitions compares the previous and current workload status per stage.
// A stage missing from the current conditions is treated as active again.
func DetectStageTransitions(prev *status.WorkloadStatus, current status.WorkloadStatus) []StageTransition {
	prevConditions := map[string]status.Condition{}
	if prev != nil {
		for _, condition := range prev.Conditions {
			prevConditions[condition.Stage] = condition
		}
	}
	firstRun := prev == nil || prev.IsZero()

	currentConditions := map[string]status.Condition{}
	for _, condition := range current.Conditions {
		currentConditions[condition.Stage] = condition
	}

	transitions := make([]StageTransition, 0)
	for stage, condition := range currentConditions {
		previous, hadPrev := prevConditions[stage]
		if firstRun || !hadPrev {
			if condition.Level == status.LevelActive {
				continue
			}
			previous = status.Condition{Stage: stage, Level: status.LevelActive}
		} else if previous.Level == condition.Level && previous.Message == condition.Message {
			continue
		}

		transitions = append(transitions, StageTransition{
			Stage:           stage,
			PreviousLevel:   previous.Level,
			CurrentLevel:    condition.Level,
			PreviousMessage: previous.Message,
			CurrentMessage:  condition.Message,
		})
	}

	for stage, previous := range prevConditions {
		if _, ok := currentConditions[stage]; ok || previous.Level == status.LevelActive {
			continue
		}
		transitions = append(transitions, StageTransition{
			Stage:           stage,
			PreviousLevel:   previous.Level,
			CurrentLevel:    status.LevelActive,
			PreviousMessage: previous.Message,
			CurrentMessage:  status.ReadyMessage,
		})
	}

	// Sort by stage name for deterministic output
	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Stage < transitions[j].Stage
	})

	return transitions
}
