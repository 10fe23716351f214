package slots

import (
	"context"
	"strconv"
	"strings"

	"salonbot/internal/model"
)

// MaxAmbiguityAttempts bounds how many replies a pending ambiguity accepts before giving up.
const MaxAmbiguityAttempts = 3

// shortReplyWords is the longest reply still treated as a disambiguation answer.
const shortReplyWords = 3

// Catalog is the subset of catalog lookups the resolver needs.
type Catalog interface {
	Search(ctx context.Context, term string) ([]model.Service, error)
	GetByID(ctx context.Context, id int64) (*model.Service, error)
	GetByName(ctx context.Context, name string) (*model.Service, error)
}

// OutcomeKind classifies a resolution.
type OutcomeKind int

const (
	Resolved OutcomeKind = iota
	NotFound
	Ambiguous
)

func (k OutcomeKind) String() string {
	switch k {
	case Resolved:
		return "RESOLVED"
	case NotFound:
		return "NOT_FOUND"
	case Ambiguous:
		return "AMBIGUOUS"
	}
	return "UNKNOWN"
}

// Outcome is the result of resolving a service term.
type Outcome struct {
	Kind       OutcomeKind
	Service    *model.Service          // set when Resolved
	Candidates []model.Service         // set when Ambiguous
	Ambiguity  *model.AmbiguityContext // context to store; nil clears it
}

// Resolver maps free-text service terms onto catalog entries.
type Resolver struct {
	catalog Catalog
}

// NewResolver creates a resolver over catalog.
func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve resolves term, taking a pending ambiguity into account. Outcomes other than
// Ambiguous always clear the ambiguity.
func (r *Resolver) Resolve(ctx context.Context, term string, amb *model.AmbiguityContext) (Outcome, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Outcome{Kind: NotFound}, nil
	}

	if amb != nil && isShortReply(term) {
		out, handled, err := r.narrow(ctx, term, amb)
		if err != nil || handled {
			return out, err
		}
	}
	return r.fresh(ctx, term)
}

// narrow tries to answer a pending ambiguity. handled is false when term turned out to be
// unrelated to the pending candidates and must be resolved from scratch.
func (r *Resolver) narrow(ctx context.Context, term string, amb *model.AmbiguityContext) (Outcome, bool, error) {
	if n, err := strconv.Atoi(term); err == nil {
		if n >= 1 && n <= len(amb.CandidateIDs) {
			svc, err := r.catalog.GetByID(ctx, amb.CandidateIDs[n-1])
			if err != nil {
				return Outcome{}, true, err
			}
			if svc != nil {
				return Outcome{Kind: Resolved, Service: svc}, true, nil
			}
		}
		return r.retry(ctx, amb)
	}

	unrelated := false
	for _, q := range []string{amb.OriginalTerm + " " + term, term} {
		matches, err := r.catalog.Search(ctx, q)
		if err != nil {
			return Outcome{}, true, err
		}
		var inContext []model.Service
		for _, m := range matches {
			if amb.Contains(m.ID) {
				inContext = append(inContext, m)
			}
		}
		switch {
		case len(inContext) == 1:
			svc := inContext[0]
			return Outcome{Kind: Resolved, Service: &svc}, true, nil
		case len(inContext) > 1:
			if len(inContext) < len(amb.CandidateIDs) {
				next := &model.AmbiguityContext{
					OriginalTerm: q,
					CandidateIDs: serviceIDs(inContext),
					Attempts:     amb.Attempts + 1,
				}
				if next.Attempts >= MaxAmbiguityAttempts {
					return Outcome{Kind: NotFound}, true, nil
				}
				return Outcome{Kind: Ambiguous, Candidates: inContext, Ambiguity: next}, true, nil
			}
		case len(matches) > 0:
			unrelated = true
		}
	}
	if unrelated {
		return Outcome{}, false, nil
	}
	return r.retry(ctx, amb)
}

// retry keeps the pending ambiguity for another round, up to MaxAmbiguityAttempts.
func (r *Resolver) retry(ctx context.Context, amb *model.AmbiguityContext) (Outcome, bool, error) {
	next := &model.AmbiguityContext{
		OriginalTerm: amb.OriginalTerm,
		CandidateIDs: append([]int64(nil), amb.CandidateIDs...),
		Attempts:     amb.Attempts + 1,
	}
	if next.Attempts >= MaxAmbiguityAttempts {
		return Outcome{Kind: NotFound}, true, nil
	}
	candidates := make([]model.Service, 0, len(next.CandidateIDs))
	for _, id := range next.CandidateIDs {
		svc, err := r.catalog.GetByID(ctx, id)
		if err != nil {
			return Outcome{}, true, err
		}
		if svc != nil {
			candidates = append(candidates, *svc)
		}
	}
	if len(candidates) == 0 {
		return Outcome{Kind: NotFound}, true, nil
	}
	return Outcome{Kind: Ambiguous, Candidates: candidates, Ambiguity: next}, true, nil
}

func (r *Resolver) fresh(ctx context.Context, term string) (Outcome, error) {
	exact, err := r.catalog.GetByName(ctx, term)
	if err != nil {
		return Outcome{}, err
	}
	if exact != nil {
		return Outcome{Kind: Resolved, Service: exact}, nil
	}

	matches, err := r.catalog.Search(ctx, term)
	if err != nil {
		return Outcome{}, err
	}
	switch len(matches) {
	case 0:
		return Outcome{Kind: NotFound}, nil
	case 1:
		svc := matches[0]
		return Outcome{Kind: Resolved, Service: &svc}, nil
	}
	return Outcome{
		Kind:       Ambiguous,
		Candidates: matches,
		Ambiguity:  &model.AmbiguityContext{OriginalTerm: term, CandidateIDs: serviceIDs(matches)},
	}, nil
}

func isShortReply(term string) bool {
	return len(strings.Fields(term)) <= shortReplyWords
}

func serviceIDs(services []model.Service) []int64 {
	ids := make([]int64, len(services))
	for i, s := range services {
		ids[i] = s.ID
	}
	return ids
}
