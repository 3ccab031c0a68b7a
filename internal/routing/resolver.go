// Package routing decides where a write executes. The context configured as
// authority applies operations directly; every other context wraps them into
// one-way envelopes addressed to the authority and learns about side effects
// only through messages sent back.
package routing

import (
	"github.com/victornm/crosstate/internal/domain"
)

// Resolver answers whether the current context is the authority. Both ids
// are fixed at instantiation; resolution is pure.
type Resolver struct {
	self      domain.ContextID
	authority domain.ContextID
}

func NewResolver(self, authority domain.ContextID) Resolver {
	return Resolver{self: self, authority: authority}
}

func (r Resolver) IsAuthority() bool {
	return r.self == r.authority
}

func (r Resolver) Self() domain.ContextID {
	return r.self
}

func (r Resolver) Authority() domain.ContextID {
	return r.authority
}
