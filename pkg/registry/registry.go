// Package registry holds per-tool risk profiles. Registration happens at
// startup by the tool owner; lookups are lock-free on the hot path.
package registry

import (
	"sync"
	"sync/atomic"
)

// Criticality is the static severity of a tool, independent of runtime risk.
type Criticality string

const (
	CriticalityLow    Criticality = "LOW"
	CriticalityMedium Criticality = "MEDIUM"
	CriticalityHigh   Criticality = "HIGH"
)

// ToolProfile is the risk profile metadata a tool owner declares.
type ToolProfile struct {
	Name         string      `json:"name"`
	Criticality  Criticality `json:"criticality"`
	BlastRadius  string      `json:"blast_radius"`
	Irreversible bool        `json:"irreversible"`
	Regulatory   bool        `json:"regulatory"`
	RiskTier     string      `json:"risk_tier,omitempty"`
}

// DefaultProfile is what Get returns for unregistered tools.
func DefaultProfile(name string) ToolProfile {
	return ToolProfile{
		Name:        name,
		Criticality: CriticalityLow,
		BlastRadius: "limited",
	}
}

// Registry maps tool names to profiles. Writes are serialized; reads go
// through an atomically swapped copy-on-write map and take no lock.
type Registry struct {
	mu       sync.Mutex
	profiles atomic.Pointer[map[string]ToolProfile]
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	empty := map[string]ToolProfile{}
	r.profiles.Store(&empty)
	return r
}

// Register stores a profile under its tool name. Registration is idempotent;
// a later registration for the same name overwrites the earlier one.
func (r *Registry) Register(profile ToolProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := *r.profiles.Load()
	next := make(map[string]ToolProfile, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[profile.Name] = profile
	r.profiles.Store(&next)
}

// Get never fails: unknown names return the LOW-criticality default profile.
func (r *Registry) Get(toolName string) ToolProfile {
	if profile, ok := (*r.profiles.Load())[toolName]; ok {
		return profile
	}
	return DefaultProfile(toolName)
}

// All returns a snapshot of every registered profile.
func (r *Registry) All() map[string]ToolProfile {
	current := *r.profiles.Load()
	out := make(map[string]ToolProfile, len(current))
	for k, v := range current {
		out[k] = v
	}
	return out
}

// Default is the process-wide registry used by attach-style registration.
// Tests should construct their own via New.
var Default = New()

// Attach registers a profile for fn on the given registry (Default when nil)
// and returns fn unchanged. It is the Go form of the profile decorator:
//
//	var initiateWireTransfer = registry.Attach(nil, registry.ToolProfile{
//		Name:        "initiate_wire_transfer",
//		Criticality: registry.CriticalityHigh,
//		Irreversible: true,
//	}, initiateWireTransferImpl)
func Attach[F any](r *Registry, profile ToolProfile, fn F) F {
	if r == nil {
		r = Default
	}
	if profile.BlastRadius == "" {
		profile.BlastRadius = "limited"
	}
	if profile.Criticality == "" {
		profile.Criticality = CriticalityLow
	}
	r.Register(profile)
	return fn
}
