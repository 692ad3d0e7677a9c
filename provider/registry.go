package provider

import (
	"sort"
	"sync"

	"github.com/kbukum/tokenkeeper/errors"
)

// DefaultRegion is the region every built-in IdC provider registers in.
const DefaultRegion = "us-east-1"

// Profile describes how to authenticate against one provider kind.
type Profile struct {
	Kind        Kind
	AuthMethod  AuthMethod
	DisplayName string
	// Region is the SSO-OIDC region (IdC only).
	Region string
	// SocialIDP is the idp tag forwarded to the social login endpoint (social only).
	SocialIDP string
	// RequiresStartURL marks kinds whose start URL must be supplied by the user.
	RequiresStartURL bool
}

// Registry maps provider kinds to profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[Kind]Profile
}

// NewRegistry creates a registry preloaded with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[Kind]Profile)}
	for _, p := range builtins() {
		r.profiles[p.Kind] = p
	}
	return r
}

func builtins() []Profile {
	return []Profile{
		{Kind: BuilderID, AuthMethod: AuthMethodIdC, DisplayName: "AWS Builder ID", Region: DefaultRegion},
		{Kind: Enterprise, AuthMethod: AuthMethodIdC, DisplayName: "IAM Identity Center", Region: DefaultRegion, RequiresStartURL: true},
		{Kind: Internal, AuthMethod: AuthMethodIdC, DisplayName: "Internal", Region: DefaultRegion},
		{Kind: Google, AuthMethod: AuthMethodSocial, DisplayName: "Google", SocialIDP: "Google"},
		{Kind: Github, AuthMethod: AuthMethodSocial, DisplayName: "GitHub", SocialIDP: "Github"},
	}
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) error {
	if p.Kind == "" {
		return errors.Configuration("kind", "provider kind is required")
	}
	if !p.AuthMethod.Valid() {
		return errors.Configuration("authMethod", "unknown auth method: "+string(p.AuthMethod))
	}
	if p.AuthMethod == AuthMethodSocial && p.SocialIDP == "" {
		p.SocialIDP = string(p.Kind)
	}
	if p.AuthMethod == AuthMethodIdC && p.Region == "" {
		p.Region = DefaultRegion
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Kind] = p
	return nil
}

// Lookup returns the profile for kind.
func (r *Registry) Lookup(kind Kind) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[kind]
	if !ok {
		return Profile{}, errors.Configuration("provider", "unknown provider: "+string(kind))
	}
	return p, nil
}

// Kinds returns the sorted registered kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.profiles))
	for k := range r.profiles {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Lookup returns the profile for kind from the default registry.
func Lookup(kind Kind) (Profile, error) { return defaultRegistry.Lookup(kind) }
