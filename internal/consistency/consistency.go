// Package consistency runs a flat list of independently named checks and
// accumulates every failure instead of stopping at the first one, unlike
// continuity.IfThen's Then/Thenf chain (teacher package), which
// short-circuits once any step fails. FileWriter's flush-time
// validation wants the opposite: a cyclic sub-table graph and oversized
// signature annotations should both be reported together rather than
// one at a time across repeated build attempts. (Duplicate keys are
// rejected earlier, at insert time, by HashTableBuilder itself.)
package consistency

import "strings"

// Errors aggregates every failure a Checklist recorded.
type Errors []error

func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "multiple errors: " + strings.Join(msgs, ", ")
}

// Checklist runs every registered check unconditionally.
type Checklist struct {
	failures Errors
}

// New returns an empty Checklist.
func New() *Checklist { return &Checklist{} }

// Check runs f and records its error, if any. Unlike
// continuity.IfThen.Thenf, it always runs f regardless of prior failures.
func (c *Checklist) Check(f func() error) *Checklist {
	if err := f(); err != nil {
		c.failures = append(c.failures, err)
	}
	return c
}

// Err returns nil if every check passed, or the accumulated Errors
// otherwise.
func (c *Checklist) Err() error {
	if len(c.failures) == 0 {
		return nil
	}
	return c.failures
}
