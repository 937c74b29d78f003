// Package search runs predictive search for one shopper. Only the most
// recently started query may produce results.
package search

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nordic-editorial/storefront/src/frontend/model"
	"github.com/nordic-editorial/storefront/src/frontend/shopify"
)

const DefaultMinQueryLength = 2

// ErrSuperseded is returned to a query that a newer one replaced.
var ErrSuperseded = errors.New("search: superseded by a newer query")

type Source interface {
	Suggest(ctx context.Context, query string, opts shopify.SuggestOptions) (*model.SuggestResults, error)
}

type Config struct {
	MinQueryLength int
	Types          []string
	Limit          int
}

type Suggester struct {
	src  Source
	opts shopify.SuggestOptions
	min  int
	log  logrus.FieldLogger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewSuggester(src Source, cfg Config, log logrus.FieldLogger) *Suggester {
	min := cfg.MinQueryLength
	if min <= 0 {
		min = DefaultMinQueryLength
	}
	return &Suggester{
		src:  src,
		opts: shopify.SuggestOptions{Types: cfg.Types, Limit: cfg.Limit},
		min:  min,
		log:  log,
	}
}

// Suggest cancels whatever query is in flight and starts this one. A query
// shorter than the minimum length clears the results without a request.
func (s *Suggester) Suggest(ctx context.Context, query string) (*model.SuggestResults, error) {
	q := strings.TrimSpace(query)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if utf8.RuneCountInString(q) < s.min {
		s.mu.Unlock()
		return &model.SuggestResults{}, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	res, err := s.src.Suggest(ctx, q, s.opts)

	s.mu.Lock()
	current := s.gen == gen
	if current {
		s.cancel = nil
	}
	s.mu.Unlock()

	if !current {
		s.log.WithField("search.query", q).Debug("search superseded")
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, errors.Wrapf(err, "suggest %q", q)
	}
	if res == nil {
		res = &model.SuggestResults{}
	}
	return res, nil
}

// Cancel aborts the in-flight query, if any.
func (s *Suggester) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// TooShort reports whether query is below the minimum search length.
func (s *Suggester) TooShort(query string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(query)) < s.min
}
