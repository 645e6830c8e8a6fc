package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service fans a query out across the requested entity matchers, merges the
// candidates by relevance, and paginates the result.
type Service struct {
	store   Store
	timeout time.Duration
}

// NewService creates a search service. timeout bounds each Search call;
// zero disables the bound.
func NewService(st Store, timeout time.Duration) *Service {
	return &Service{store: st, timeout: timeout}
}

// Search executes the fan-out. The matchers for each requested entity type
// run concurrently; one failing matcher fails the whole call with the entity
// type in the error, and the join always awaits every dispatched matcher so
// no store query is orphaned. Cancellation reaches the store queries through
// the group context.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	start := time.Now()

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	types := q.EntityTypes
	if len(types) == 0 {
		types = AllEntityTypes
	}
	for _, entity := range types {
		if _, ok := matchers[entity]; !ok {
			return Response{}, fmt.Errorf("unknown entity type %q", entity)
		}
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		// Empty query is a valid fast-path, not an error.
		return Response{
			Results:   []Result{},
			Total:     0,
			Page:      page,
			PageSize:  pageSize,
			QueryTime: time.Since(start).Milliseconds(),
		}, nil
	}

	filters, err := ParseFilters(q.Filters)
	if err != nil {
		return Response{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// One bucket per entity type keeps the concatenation order fixed, so the
	// stable sort below is deterministic across independent page fetches.
	buckets := make([][]Result, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, entity := range types {
		i, entity := i, entity
		match := matchers[entity]
		g.Go(func() error {
			results, err := match(gctx, s.store, text, q.OrganizationID, filters)
			if err != nil {
				return fmt.Errorf("search %s: %w", entity, err)
			}
			buckets[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Response{}, err
	}

	var candidates []Result
	for _, bucket := range buckets {
		candidates = append(candidates, bucket...)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Relevance > candidates[j].Relevance
	})

	total := len(candidates)
	from := (page - 1) * pageSize
	if from > total {
		from = total
	}
	to := from + pageSize
	if to > total {
		to = total
	}

	results := make([]Result, 0, to-from)
	results = append(results, candidates[from:to]...)

	return Response{
		Results:   results,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}
