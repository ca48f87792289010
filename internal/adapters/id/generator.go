// Package id generates opaque correlation tokens.
package id

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const defaultLength = 21

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) generate(prefix string) string {
	id, err := gonanoid.New(defaultLength)
	if err != nil {
		return prefix + "_fallback"
	}
	return prefix + "_" + id
}

// GenerateSessionID returns a fresh session correlation token.
func (g *Generator) GenerateSessionID() string {
	return g.generate("sess")
}
