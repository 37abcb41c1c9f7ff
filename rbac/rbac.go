package rbac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/upb/jwt-gate/utils"
)

// RoleSource resolves a claim to the collection of roles it holds
type RoleSource interface {
	Strings(claim string) []string
}

// RoleRule is a role membership test. With RequireAll every role must be
// present, otherwise any one of them is enough.
type RoleRule struct {
	Roles      []string `json:"roles,omitempty" validate:"dive,required"`
	RequireAll bool     `json:"requireAll,omitempty"`
}

// Rule passes when the permitted side matches and the denied side does not.
// An empty permitted side always matches; an empty denied side never does.
type Rule struct {
	Permitted RoleRule `json:"permitted"`
	Denied    RoleRule `json:"denied"`
}

// Spec maps claim names to the rule enforced on that claim. Every entry must
// pass for the spec to pass.
type Spec map[string]Rule

// Decision is the outcome of one Spec entry
type Decision struct {
	Claim     string
	Permitted bool
	Denied    bool
}

// Passed reports whether the entry allows the request
func (d Decision) Passed() bool {
	return d.Permitted && !d.Denied
}

// RoleList builds the shorthand rule: all roles are required, nothing is denied
func RoleList(roles ...string) Rule {
	return Rule{Permitted: RoleRule{Roles: roles, RequireAll: true}}
}

// RuleObject builds a rule from explicit permitted and denied sides
func RuleObject(permitted, denied RoleRule) Rule {
	return Rule{Permitted: permitted, Denied: denied}
}

// AnyOf is a RoleRule matching when at least one role is present
func AnyOf(roles ...string) RoleRule {
	return RoleRule{Roles: roles}
}

// AllOf is a RoleRule matching when every role is present
func AllOf(roles ...string) RoleRule {
	return RoleRule{Roles: roles, RequireAll: true}
}

// matches evaluates r against collection, returning dflt when r has no roles
func (r RoleRule) matches(collection []string, dflt bool) bool {
	if len(r.Roles) == 0 {
		return dflt
	}

	held := make(map[string]struct{}, len(collection))
	for _, role := range collection {
		held[role] = struct{}{}
	}

	for _, role := range r.Roles {
		_, ok := held[role]
		if r.RequireAll && !ok {
			return false
		}
		if !r.RequireAll && ok {
			return true
		}
	}
	return r.RequireAll
}

// Check evaluates the rule against the roles in collection
func (r Rule) Check(collection []string) (permitted, denied bool) {
	return r.Permitted.matches(collection, true), r.Denied.matches(collection, false)
}

// Evaluate returns the decision for every entry, in no particular order
func (s Spec) Evaluate(src RoleSource) []Decision {
	decisions := make([]Decision, 0, len(s))
	for claim, rule := range s {
		permitted, denied := rule.Check(src.Strings(claim))
		decisions = append(decisions, Decision{
			Claim:     claim,
			Permitted: permitted,
			Denied:    denied,
		})
	}
	return decisions
}

// Allows reports whether every entry passes. A nil or empty spec allows.
func (s Spec) Allows(src RoleSource) bool {
	for claim, rule := range s {
		permitted, denied := rule.Check(src.Strings(claim))
		if !permitted || denied {
			return false
		}
	}
	return true
}

// Validate rejects empty claim names and empty role names
func (s Spec) Validate() error {
	for claim, rule := range s {
		if err := utils.ValidateVar(claim, "required"); err != nil {
			return fmt.Errorf("invalid claim name: %w", err)
		}
		if err := utils.ValidateStruct(rule); err != nil {
			return fmt.Errorf("invalid rule for claim %q: %w", claim, err)
		}
	}
	return nil
}

// UnmarshalJSON accepts either a list of role names (the shorthand form) or
// an object with optional permitted and denied sides.
func (r *Rule) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var roles []string
		if err := json.Unmarshal(trimmed, &roles); err != nil {
			return fmt.Errorf("invalid role list: %w", err)
		}
		*r = RoleList(roles...)
		return nil
	}

	// alias drops the method set so decoding does not recurse
	type alias Rule
	var obj alias
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return fmt.Errorf("invalid rule object: %w", err)
	}
	*r = Rule(obj)
	return nil
}

// Parse decodes and validates a JSON encoded Spec
func Parse(data []byte) (Spec, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Load reads a Spec from a JSON file
func Load(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permissions file: %w", err)
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse permissions file %s: %w", path, err)
	}
	return spec, nil
}
