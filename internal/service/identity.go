package service

import (
	"strings"
	"sync"

	"github.com/mathieu-neron/toptabled/internal/model"
)

// IdentityProvider reports the acting identity and notifies on sign-in,
// sign-out and account switches.
type IdentityProvider interface {
	Current() model.Identity
	OnChange(fn func(model.Identity))
}

// StaticIdentityProvider holds an identity set by its owner. Used when the
// service is embedded and in tests.
type StaticIdentityProvider struct {
	mu        sync.RWMutex
	current   model.Identity
	listeners []func(model.Identity)
}

func NewStaticIdentityProvider(initial model.Identity) *StaticIdentityProvider {
	return &StaticIdentityProvider{current: initial}
}

func (p *StaticIdentityProvider) Current() model.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *StaticIdentityProvider) OnChange(fn func(model.Identity)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Set switches the identity and calls every listener, outside the lock, when
// it actually changed.
func (p *StaticIdentityProvider) Set(ident model.Identity) {
	p.mu.Lock()
	if p.current == ident {
		p.mu.Unlock()
		return
	}
	p.current = ident
	listeners := append([]func(model.Identity){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(ident)
	}
}

// Classifier turns raw user ids into identities. Ids on the ephemeral list
// are demo accounts; everything else is persisted.
type Classifier struct {
	ephemeral map[string]struct{}
}

func NewClassifier(ephemeralIDs []string) *Classifier {
	c := &Classifier{ephemeral: make(map[string]struct{}, len(ephemeralIDs))}
	for _, id := range ephemeralIDs {
		if id = strings.TrimSpace(id); id != "" {
			c.ephemeral[id] = struct{}{}
		}
	}
	return c
}

// Identify builds the identity for id. An empty id is anonymous.
func (c *Classifier) Identify(id string, elevated bool) model.Identity {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Anonymous
	}
	class := model.Persisted
	if _, ok := c.ephemeral[id]; ok {
		class = model.Ephemeral
	}
	return model.Identity{
		ID:            id,
		Authenticated: true,
		Elevated:      elevated,
		Class:         class,
	}
}
