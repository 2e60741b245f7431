package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrChainExhausted is returned when no link in a [Chain] could serve the
// call: each one either failed or had an open breaker.
var ErrChainExhausted = errors.New("resilience: all providers failed")

// ChainConfig is applied to every link added to a [Chain]. The breaker name
// is overwritten with the link name.
type ChainConfig struct {
	Breaker BreakerConfig
}

// link is one provider in the chain together with its breaker.
type link[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain tries a primary provider first and walks the remaining links in
// registration order until one succeeds. Links whose breaker is open are
// skipped without being called, so a flapping upstream does not slow every
// request down by its timeout.
//
// A chain always holds at least one link (the primary).
type Chain[T any] struct {
	links []link[T]
	cfg   ChainConfig
}

// NewChain builds a chain around its primary link.
func NewChain[T any](name string, primary T, cfg ChainConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.links = append(c.links, c.newLink(name, primary))
	return c
}

// Add appends a fallback link. Links are tried in the order added.
func (c *Chain[T]) Add(name string, value T) {
	c.links = append(c.links, c.newLink(name, value))
}

func (c *Chain[T]) newLink(name string, value T) link[T] {
	bcfg := c.cfg.Breaker
	bcfg.Name = name
	return link[T]{name: name, value: value, breaker: NewBreaker(bcfg)}
}

// Primary returns the first link's provider. Static provider metadata
// (capabilities, dimensions) is read from here rather than whichever link
// happens to be healthy, so it stays stable across failovers.
func (c *Chain[T]) Primary() T {
	return c.links[0].value
}

// Do walks the chain until fn succeeds against some link. When every link
// fails or is skipped, the returned error wraps [ErrChainExhausted] together
// with the last failure.
func (c *Chain[T]) Do(fn func(T) error) error {
	_, err := DoWithResult(c, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// DoWithResult is [Chain.Do] for callbacks that produce a value. It is a
// package function because methods cannot introduce the result type
// parameter.
func DoWithResult[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range c.links {
		ln := &c.links[i]
		var out R
		err := ln.breaker.Do(func() error {
			var ferr error
			out, ferr = fn(ln.value)
			return ferr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, breaker open", "provider", ln.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", ln.name, "err", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrChainExhausted, lastErr)
}
