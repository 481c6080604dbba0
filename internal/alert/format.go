package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

// ValidFormat reports whether format is supported. Empty means generic.
func ValidFormat(format string) bool {
	switch format {
	case "", "generic", "slack", "pagerduty":
		return true
	}
	return false
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Identity:* %s", event.Identity)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", event.SessionID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
	}
	if event.ActionType != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Action:* %s", event.ActionType)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("fieldguard: %s", event.Kind),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("fieldguard %s on %s: %s", event.Kind, event.Identity, event.Reason),
			"severity": severityFor(event.Kind),
			"source":   event.Identity,
			"custom_details": map[string]any{
				"kind":        event.Kind,
				"session_id":  event.SessionID,
				"action_type": event.ActionType,
				"boundary":    event.Boundary,
				"reason":      event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(kind string) string {
	switch kind {
	case EventQuarantined:
		return "critical"
	case EventConnectivityLost:
		return "error"
	case EventBlock, EventSyncFailed:
		return "warning"
	default:
		return "info"
	}
}
