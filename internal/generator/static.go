package generator

import "context"

// Static returns the same lines for every turn.
type Static struct {
	lines []string
}

// NewStatic creates a Static generator returning lines.
func NewStatic(lines []string) *Static {
	return &Static{lines: append([]string(nil), lines...)}
}

// Generate returns a copy of the configured lines.
func (s *Static) Generate(ctx context.Context, _ Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.lines...), nil
}
