package hub

import (
	"strings"

	"tracking-svr/internal/apperr"
)

// Topic identifies a fan-out stream: "vehicle:<id>", "route:<id>" or "all".
type Topic string

const TopicAll Topic = "all"

func VehicleTopic(id string) Topic { return Topic("vehicle:" + id) }
func RouteTopic(id string) Topic   { return Topic("route:" + id) }

// ParseTopic checks well-formedness of a client-supplied topic string.
func ParseTopic(raw string) (Topic, error) {
	if raw == string(TopicAll) {
		return TopicAll, nil
	}
	kind, id, ok := strings.Cut(raw, ":")
	if ok && id != "" && (kind == "vehicle" || kind == "route") {
		return Topic(raw), nil
	}
	return "", apperr.Validation("malformed topic %q", raw)
}
