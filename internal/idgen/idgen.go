package idgen

import "github.com/google/uuid"

// NewFunc produces a globally unique identifier. It is a variable so tests
// can substitute a deterministic sequence.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new identifier string.
func New() string { return NewFunc() }
