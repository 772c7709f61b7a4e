package manager

const (
	// DefaultSearchLimit is the number of records a retrieval returns.
	DefaultSearchLimit = 5
	// DefaultOverfetchFactor is how many candidates each store contributes
	// per requested result, so that post-merge ranking has real choice.
	DefaultOverfetchFactor = 4
	// DefaultCategorizeLimit bounds the candidate set grouped by kind.
	DefaultCategorizeLimit = 15
)

// Options tune the manager's retrieval behaviour.
type Options struct {
	// SearchLimit is the default result count when a caller passes none.
	SearchLimit int
	// OverfetchFactor multiplies the limit when asking each store for
	// candidates ahead of the merge.
	OverfetchFactor int
	// CategorizeLimit is the retrieval size used by CategorizeMemories.
	CategorizeLimit int
	// RelevanceFloor drops records whose score does not exceed it.
	RelevanceFloor float64
	// AutoExtractFacts stores facts distilled from each conversation turn.
	AutoExtractFacts bool
}

// DefaultOptions returns the tuning used when callers pass a zero Options.
func DefaultOptions() Options {
	return Options{
		SearchLimit:     DefaultSearchLimit,
		OverfetchFactor: DefaultOverfetchFactor,
		CategorizeLimit: DefaultCategorizeLimit,
	}
}

func (o Options) withDefaults() Options {
	if o.SearchLimit <= 0 {
		o.SearchLimit = DefaultSearchLimit
	}
	if o.OverfetchFactor < 2 {
		o.OverfetchFactor = DefaultOverfetchFactor
	}
	if o.CategorizeLimit <= 0 {
		o.CategorizeLimit = DefaultCategorizeLimit
	}
	if o.RelevanceFloor < 0 {
		o.RelevanceFloor = 0
	}
	return o
}
