package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for Gray Logic Edge.
const (
	// TopicPrefixEdge is the base for all per-engine topics.
	// Scheme: graylogic/edge/{engine}/{kind}
	TopicPrefixEdge = "graylogic/edge"

	// TopicPrefixSystem is the base for supervisor-wide topics.
	TopicPrefixSystem = "graylogic/edge/system"
)

// Topics provides builders for Gray Logic Edge MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.EngineState("Engine")
//	// Returns: "graylogic/edge/Engine/state"
type Topics struct{}

// EngineState returns the retained lifecycle state topic of an engine.
//
// Example: graylogic/edge/Engine/state
func (Topics) EngineState(engine string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixEdge, Segment(engine))
}

// EngineCommand returns the topic an engine's supervisor takes commands on.
//
// Example: graylogic/edge/Engine/command
func (Topics) EngineCommand(engine string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixEdge, Segment(engine))
}

// SystemStatus returns the supervisor online/offline topic (also the LWT topic).
//
// Example: graylogic/edge/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// segmentReplacer removes the characters MQTT gives meaning to inside a level.
var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Segment makes s usable as a single topic level.
func Segment(s string) string {
	if s == "" {
		return "_"
	}
	return segmentReplacer.Replace(s)
}
