package models

import (
	"fmt"
	"strings"
)

// ChatModel is an upstream model the proxy accepts
type ChatModel string

const (
	ModelGPT5     ChatModel = "gpt-5"
	ModelGPT5Mini ChatModel = "gpt-5-mini"
	ModelO3       ChatModel = "o3"
)

// ChatModels lists accepted models in display order
var ChatModels = []ChatModel{ModelGPT5, ModelGPT5Mini, ModelO3}

// SupportsTuning reports whether the model accepts reasoning effort and
// verbosity parameters. o3 rejects both.
func (m ChatModel) SupportsTuning() bool {
	return m != ModelO3
}

// ReasoningEffort controls how much reasoning GPT-5 models perform
type ReasoningEffort string

const (
	ReasoningMinimal ReasoningEffort = "minimal"
	ReasoningLow     ReasoningEffort = "low"
	ReasoningMedium  ReasoningEffort = "medium"
	ReasoningHigh    ReasoningEffort = "high"
)

// ReasoningEfforts lists accepted reasoning effort values
var ReasoningEfforts = []ReasoningEffort{ReasoningMinimal, ReasoningLow, ReasoningMedium, ReasoningHigh}

// Verbosity controls answer length for GPT-5 models
type Verbosity string

const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

// Verbosities lists accepted verbosity values
var Verbosities = []Verbosity{VerbosityLow, VerbosityMedium, VerbosityHigh}

// ParseChatModel validates a model name
func ParseChatModel(s string) (ChatModel, error) {
	for _, m := range ChatModels {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported model %q (expected one of %s)", s, joinValues(ChatModels))
}

// ParseReasoningEffort validates a reasoning effort. Empty means unset.
func ParseReasoningEffort(s string) (ReasoningEffort, error) {
	if s == "" {
		return "", nil
	}
	for _, e := range ReasoningEfforts {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unsupported reasoning_effort %q (expected one of %s)", s, joinValues(ReasoningEfforts))
}

// ParseVerbosity validates a verbosity. Empty means unset.
func ParseVerbosity(s string) (Verbosity, error) {
	if s == "" {
		return "", nil
	}
	for _, v := range Verbosities {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unsupported verbosity %q (expected one of %s)", s, joinValues(Verbosities))
}

// Strings converts typed enum values for tool schemas and flag help
func Strings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func joinValues[T ~string](values []T) string {
	return strings.Join(Strings(values), ", ")
}
