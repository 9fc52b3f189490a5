package rules

import "github.com/atlas-desktop/aurum-control-plane/pkg/types"

// DXYContextProvider is implemented by internal/dxy.Service; the rule
// analyzer only ever reads the cached context, never refreshes it.
type DXYContextProvider interface {
	Current() (*types.DXYContext, bool)
}

// DXYReaderResult is what the scorer consumes from the DXY context.
type DXYReaderResult struct {
	Available   bool
	Impact      types.DXYImpact
	Strength    types.DXYStrength
	CorrRolling *float64
}

// DXYReader exposes the cached DXYContext to the scorer.
type DXYReader struct {
	provider DXYContextProvider
}

// NewDXYReader constructs a DXYReader over the given context provider.
func NewDXYReader(provider DXYContextProvider) *DXYReader {
	return &DXYReader{provider: provider}
}

// Read returns the latest cached DXY context, or Available=false if none has
// been published yet.
func (r *DXYReader) Read() DXYReaderResult {
	ctx, ok := r.provider.Current()
	if !ok || ctx == nil {
		return DXYReaderResult{Available: false}
	}
	return DXYReaderResult{
		Available:   true,
		Impact:      ctx.Impact,
		Strength:    ctx.Strength,
		CorrRolling: ctx.CorrRolling,
	}
}
