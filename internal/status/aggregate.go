package status

// Aggregate reduces conditions to the single most severe one. Ties keep the
// earliest condition, so stages should be passed in ladder order.
func Aggregate(conditions []Condition) WorkloadStatus {
	result := WorkloadStatus{Level: LevelActive, Message: ReadyMessage}
	if len(conditions) == 0 {
		return result
	}

	worst := -1
	for i, condition := range conditions {
		if worst == -1 || Severity(condition.Level) > Severity(conditions[worst].Level) {
			worst = i
		}
	}
	if Severity(conditions[worst].Level) == Severity(LevelActive) {
		return result
	}

	result.Level = conditions[worst].Level
	result.Message = conditions[worst].Message
	result.Conditions = append([]Condition(nil), conditions...)
	return result
}

// Worsen returns the more severe of two levels.
func Worsen(current, next Level) Level {
	if Severity(next) > Severity(current) {
		return next
	}
	return current
}

// Severity orders levels: blocked > waiting > maintenance > active.
func Severity(level Level) int {
	switch level {
	case LevelBlocked:
		return 3
	case LevelWaiting:
		return 2
	case LevelMaintenance:
		return 1
	default:
		return 0
	}
}
