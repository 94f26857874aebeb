package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Policy is an IAM-style access policy document attached to a resource.
type Policy struct {
	Version   string      `json:"Version,omitempty"`
	ID        string      `json:"Id,omitempty"`
	Statement []Statement `json:"Statement"`
}

type Statement struct {
	Sid       string          `json:"Sid,omitempty"`
	Effect    string          `json:"Effect,omitempty"`
	Principal json.RawMessage `json:"Principal,omitempty"`
	Action    StringList      `json:"Action,omitempty"`
	Resource  StringList      `json:"Resource,omitempty"`
	Condition json.RawMessage `json:"Condition,omitempty"`
}

// StringList accepts both a bare string and an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return fmt.Errorf("expected string or string array: %w", err)
	}
	*l = ss
	return nil
}

func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

func (p *Policy) UnmarshalJSON(data []byte) error {
	var raw struct {
		Version   string          `json:"Version"`
		ID        string          `json:"Id"`
		Statement json.RawMessage `json:"Statement"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Version = raw.Version
	p.ID = raw.ID
	p.Statement = nil

	stmt := bytes.TrimSpace(raw.Statement)
	switch {
	case len(stmt) == 0, bytes.Equal(stmt, []byte("null")):
		return nil
	case stmt[0] == '{':
		var s Statement
		if err := json.Unmarshal(stmt, &s); err != nil {
			return fmt.Errorf("decode policy statement: %w", err)
		}
		p.Statement = []Statement{s}
	default:
		if err := json.Unmarshal(stmt, &p.Statement); err != nil {
			return fmt.Errorf("decode policy statements: %w", err)
		}
	}
	return nil
}

// ParsePolicy decodes a policy document. An empty document yields a nil policy.
func ParsePolicy(doc string) (*Policy, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, nil
	}
	var p Policy
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return &p, nil
}

func (p *Policy) Statements() []Statement {
	if p == nil {
		return nil
	}
	return p.Statement
}

func (s Statement) HasPrincipal() bool {
	raw := bytes.TrimSpace(s.Principal)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// HasWildcardPrincipal matches `"Principal": "*"` and `"Principal": {"AWS": "*"}`.
func (s Statement) HasWildcardPrincipal() bool {
	if !s.HasPrincipal() {
		return false
	}

	var single string
	if err := json.Unmarshal(s.Principal, &single); err == nil {
		return single == "*"
	}

	var byKind map[string]StringList
	if err := json.Unmarshal(s.Principal, &byKind); err != nil {
		return false
	}
	return byKind["AWS"].Contains("*")
}

// HasWildcardAction matches "*" and service-wide grants such as "s3:*".
func (s Statement) HasWildcardAction() bool {
	for _, a := range s.Action {
		if a == "*" || strings.HasSuffix(a, ":*") {
			return true
		}
	}
	return false
}
