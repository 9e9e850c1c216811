// Package policy decides whether a downstream response payload counts
// as a genuine successful result. Policies are typed per provider kind
// and injected into the settlement pipeline, replacing ad hoc
// shape-sniffing of response bodies.
package policy

import (
	"fmt"
	"strings"
	"sync"
)

// Verdict is the outcome of result validation.
type Verdict struct {
	Acceptable bool
	Detail     string // why the payload was rejected
}

func accept() Verdict { return Verdict{Acceptable: true} }

func reject(format string, args ...interface{}) Verdict {
	return Verdict{Acceptable: false, Detail: fmt.Sprintf(format, args...)}
}

// ResultPolicy judges one provider kind's payloads.
type ResultPolicy interface {
	// Kind names the provider kind this policy covers.
	Kind() string
	// Judge inspects a decoded JSON object.
	Judge(body map[string]interface{}) Verdict
}

// JSONResult is the standard policy for JSON-speaking providers: the
// payload must carry every required field with a non-null value and
// none of the known error/fallback markers.
type JSONResult struct {
	kind          string
	requiredKeys  []string
	rejectMarkers []string
}

// NewJSONResult builds a JSONResult policy.
func NewJSONResult(kind string, required, rejectMarkers []string) *JSONResult {
	return &JSONResult{kind: kind, requiredKeys: required, rejectMarkers: rejectMarkers}
}

func (p *JSONResult) Kind() string { return p.kind }

func (p *JSONResult) Judge(body map[string]interface{}) Verdict {
	if body == nil {
		return reject("empty or non-JSON payload")
	}
	for _, marker := range p.rejectMarkers {
		if v, present := body[marker]; present && !isFalsy(v) {
			return reject("payload carries error marker %q", marker)
		}
	}
	for _, key := range p.requiredKeys {
		v, present := body[key]
		if !present || v == nil {
			return reject("payload missing required field %q", key)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return reject("payload field %q is empty", key)
		}
	}
	return accept()
}

// isFalsy treats explicit false / empty markers as absent.
func isFalsy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// Func adapts a plain function into a ResultPolicy.
type Func struct {
	kind  string
	judge func(body map[string]interface{}) Verdict
}

// NewFunc wraps a judgment function for kinds whose success criteria
// are not expressible as field checks.
func NewFunc(kind string, judge func(body map[string]interface{}) Verdict) *Func {
	return &Func{kind: kind, judge: judge}
}

func (p *Func) Kind() string                              { return p.kind }
func (p *Func) Judge(body map[string]interface{}) Verdict { return p.judge(body) }

// Registry maps provider kinds to their policies.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]ResultPolicy
}

// NewRegistry creates an empty policy registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]ResultPolicy)}
}

// Register adds or replaces the policy for a kind.
func (r *Registry) Register(p ResultPolicy) {
	r.mu.Lock()
	r.policies[p.Kind()] = p
	r.mu.Unlock()
}

// Judge applies the kind's policy. A kind with no registered policy
// fails closed: paying for a payload nobody vouches for is worse than
// rejecting it.
func (r *Registry) Judge(kind string, body map[string]interface{}) Verdict {
	r.mu.RLock()
	p, ok := r.policies[kind]
	r.mu.RUnlock()

	if !ok {
		return reject("no result policy registered for kind %q", kind)
	}
	return p.Judge(body)
}
