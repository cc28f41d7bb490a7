package uvp

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/go-multierror"

	"uvp/generic"
)

var (
	PriorityHighest int16 = math.MinInt16
	PriorityDefault int16 = 0
	PriorityLowest  int16 = math.MaxInt16
)

// A Source is a matched single video reference that can be resolved into a
// Candidate (title, canonical playable reference, duration if known).
type Source interface {
	// URL should return the canonical URL for this source. It is assumed that
	// the Resolver.Match that created the Source would match this canonical
	// URL again.
	URL() string
	// Resolve should fetch metadata for the video and produce a Candidate.
	Resolve(ctx context.Context) (Candidate, error)
}

type MatchFunc = func(string) (Source, error)

// A Resolver matches any single-video URL it knows how to handle, giving a
// Source that can fill in the video's metadata.
type Resolver struct {
	Name  string
	Match MatchFunc
	// Priority of the matcher, lower (including negative) means matching earlier.
	Priority int16
}

func (r Resolver) WithPriority(priority int16) Resolver {
	r.Priority = priority
	return r
}

// A ResolverRegistry is a collection of Resolver instances which can be used
// to try to match single-video URLs.
type ResolverRegistry struct {
	resolvers   []*Resolver
	resolverMap map[string]*Resolver
}

// Add registers a Resolver with the ResolverRegistry. Resolver.Name and
// Resolver.Match must be set, and Resolver.Name must be unique within the
// ResolverRegistry.
func (r *ResolverRegistry) Add(res Resolver) error {
	if r.resolverMap == nil {
		r.resolverMap = make(map[string]*Resolver)
	}
	if res.Name == "" || res.Match == nil {
		return ErrInvalidResolver
	}
	if _, ok := r.resolverMap[res.Name]; ok {
		return ErrDuplicateResolver
	}
	r.resolverMap[res.Name] = &res
	r.resolvers = append(r.resolvers, r.resolverMap[res.Name])
	r.sortByPriority()
	return nil
}

// MustAdd wraps Add but panics if there is an error.
func (r *ResolverRegistry) MustAdd(res Resolver) {
	generic.Unwrap_(r.Add(res))
}

// List returns the names of registered resolvers in priority order.
func (r *ResolverRegistry) List() []string {
	names := make([]string, 0, len(r.resolvers))
	for _, res := range r.resolvers {
		names = append(names, res.Name)
	}
	return names
}

// Match a string against each Resolver in priority order, or return
// ErrNoMatch wrapping the collected per-resolver failures.
func (r *ResolverRegistry) Match(s string) (Source, error) {
	var result error
	for _, res := range r.resolvers {
		if source, err := res.Match(s); source != nil && err == nil {
			return source, nil
		} else {
			result = multierror.Append(result, multierror.Prefix(err, fmt.Sprintf("[%v]", res.Name)))
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrNoMatch, result)
}

func (r *ResolverRegistry) sortByPriority() {
	sort.SliceStable(r.resolvers, func(i, j int) bool {
		return r.resolvers[i].Priority < r.resolvers[j].Priority
	})
}

var DefaultResolverRegistry ResolverRegistry
