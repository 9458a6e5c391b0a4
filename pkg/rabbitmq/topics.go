package rabbitmq

import "strings"

// Topic templates; {plant} is replaced by the plant id.
const (
	ActionTopicTemplate  = "plant/{plant}/action"
	StepTopicTemplate    = "plant/{plant}/step"
	SummaryTopicTemplate = "plant/{plant}/summary"

	StepSubscription    = "plant/+/step"
	SummarySubscription = "plant/+/summary"
)

// FormatTopic fills a topic template.
func FormatTopic(tmpl, plantID string) string {
	return strings.ReplaceAll(tmpl, "{plant}", plantID)
}

// PlantFromTopic extracts the plant id from "plant/{plant}/...".
func PlantFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) >= 2 && parts[0] == "plant" {
		return parts[1]
	}
	return ""
}

func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	// commands and summaries must not be lost; step telemetry can be
	if strings.HasSuffix(t, "/action") || strings.HasSuffix(t, "/summary") {
		return 1
	}
	return 0
}
