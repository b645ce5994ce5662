package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fleetmaint/internal/access"
	"fleetmaint/internal/machine"
)

// PolicyFile is the YAML document named by FLEET_POLICY_FILE.
//
//	status_transitions:
//	  RETIRED: []
//	  OUT_OF_SERVICE: [MAINTENANCE, RETIRED]
//	capabilities:
//	  CLIENT: []
//	  ADMIN: ["machine:delete:any"]
//	default_capabilities: ["machine:delete:any"]
type PolicyFile struct {
	StatusTransitions   map[string][]string `yaml:"status_transitions"`
	Capabilities        map[string][]string `yaml:"capabilities"`
	DefaultCapabilities *[]string           `yaml:"default_capabilities"`
}

// Policies are the decisions the service reads from the policy file.
type Policies struct {
	Transitions machine.TransitionPolicy
	Access      *access.Policy
}

// DefaultPolicies allow every status transition and keep the CLIENT-only
// ownership check.
func DefaultPolicies() Policies {
	return Policies{Transitions: machine.Unrestricted, Access: access.DefaultPolicy()}
}

// LoadPolicies reads path, or returns the defaults when path is empty.
func LoadPolicies(path string) (Policies, error) {
	if path == "" {
		return DefaultPolicies(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policies{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(data)
}

// ParsePolicies decodes a policy document. Sections left out keep their defaults.
func ParsePolicies(data []byte) (Policies, error) {
	var doc PolicyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Policies{}, fmt.Errorf("parse policy file: %w", err)
	}

	out := DefaultPolicies()

	if doc.StatusTransitions != nil {
		table := make(machine.TransitionTable, len(doc.StatusTransitions))
		for from, targets := range doc.StatusTransitions {
			fromStatus, err := machine.ParseStatus(from)
			if err != nil {
				return Policies{}, fmt.Errorf("status_transitions: %w", err)
			}
			allowed := make([]machine.Status, 0, len(targets))
			for _, to := range targets {
				toStatus, err := machine.ParseStatus(to)
				if err != nil {
					return Policies{}, fmt.Errorf("status_transitions[%s]: %w", from, err)
				}
				allowed = append(allowed, toStatus)
			}
			table[fromStatus] = allowed
		}
		out.Transitions = table
	}

	if doc.Capabilities != nil || doc.DefaultCapabilities != nil {
		grants := map[access.UserType][]access.Capability{access.UserTypeClient: nil}
		for userType, caps := range doc.Capabilities {
			grants[access.UserType(strings.ToUpper(strings.TrimSpace(userType)))] = toCapabilities(caps)
		}
		fallback := []access.Capability{access.DeleteAnyMachine}
		if doc.DefaultCapabilities != nil {
			fallback = toCapabilities(*doc.DefaultCapabilities)
		}
		out.Access = access.NewPolicy(grants, fallback)
	}

	return out, nil
}

func toCapabilities(raw []string) []access.Capability {
	caps := make([]access.Capability, len(raw))
	for i, c := range raw {
		caps[i] = access.Capability(c)
	}
	return caps
}
