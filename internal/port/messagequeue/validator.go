package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectExecutionRequested:
		var p ExecutionRequestedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.OrchestrationID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("orchestration_id is required"))
		}
		return nil
	case SubjectExecutionStarted, SubjectExecutionCompleted, SubjectExecutionFailed:
		var p ExecutionEventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		return nil
	case SubjectDispatchResult:
		var p DispatchResultPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		return nil
	default:
		return nil
	}
}
