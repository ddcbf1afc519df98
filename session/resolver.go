package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Evaluator evaluates expressions for one source-language family. The
// façade asks the ExpressionResolverCache for the right Evaluator by
// source file extension and hands it off; how a given Evaluator actually
// talks to its language runtime is its own concern.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string) (string, error)
}

// ResolverHook resolves a bare identifier used in an expression to its
// fully-qualified form at the given location string (typically
// "file:line" or a frame id). Returning "" means "resolver declined";
// returning an error is logged and treated the same as a decline, except
// the decline is not cached so the hook gets a chance to try again.
type ResolverHook func(ctx context.Context, expression, location string) (string, error)

// EvaluatorLookup resolves a file extension (without the leading dot) to
// an Evaluator.
type EvaluatorLookup func(fileExtension string) Evaluator

type resolverKey struct {
	expression string
	location   string
}

// ExpressionResolverCache memoizes identifier resolution per
// (expression, location) and evaluator selection per file extension.
// Both caches are bounded LRUs (hashicorp/golang-lru) rather than
// unbounded maps, so a long-running session doesn't grow them without
// limit.
type ExpressionResolverCache struct {
	resolve          ResolverHook
	lookupEvaluator  EvaluatorLookup
	defaultEvaluator Evaluator
	logWriter        func(isStderr bool, text string)

	resolved   *lru.Cache[resolverKey, *string]
	evaluators *lru.Cache[string, Evaluator]
}

// ResolverCacheSize bounds the number of (expression, location) entries.
const ResolverCacheSize = 512

// EvaluatorCacheSize bounds the number of file-extension entries.
const EvaluatorCacheSize = 64

// NewExpressionResolverCache creates a cache backed by resolve and lookup.
// defaultEvaluator is returned for files with no extension or when lookup
// yields nothing.
func NewExpressionResolverCache(resolve ResolverHook, lookup EvaluatorLookup, defaultEvaluator Evaluator) *ExpressionResolverCache {
	resolved, _ := lru.New[resolverKey, *string](ResolverCacheSize)
	evaluators, _ := lru.New[string, Evaluator](EvaluatorCacheSize)
	return &ExpressionResolverCache{
		resolve:          resolve,
		lookupEvaluator:  lookup,
		defaultEvaluator: defaultEvaluator,
		resolved:         resolved,
		evaluators:       evaluators,
	}
}

// SetLogWriter installs the sink used for resolver-exception log lines.
func (c *ExpressionResolverCache) SetLogWriter(w func(isStderr bool, text string)) {
	c.logWriter = w
}

// Resolve returns the resolved form of expression at location, consulting
// the cache first. On a resolver error the original expression is
// returned and nothing is cached, so the next call retries the hook; on a
// resolver decline (empty string, nil error) the decline itself is
// cached, and the original expression is returned every time thereafter
// without invoking the hook again.
func (c *ExpressionResolverCache) Resolve(ctx context.Context, expression, location string) string {
	key := resolverKey{expression: expression, location: location}
	if v, ok := c.resolved.Get(key); ok {
		if v == nil {
			return expression
		}
		return *v
	}

	if c.resolve == nil {
		return expression
	}

	resolved, err := c.resolve(ctx, expression, location)
	if err != nil {
		if c.logWriter != nil {
			c.logWriter(true, fmt.Sprintf("resolve %q at %s: %v", expression, location, err))
		}
		return expression
	}
	if resolved == "" {
		c.resolved.Add(key, nil)
		return expression
	}
	c.resolved.Add(key, &resolved)
	return resolved
}

// EvaluatorFor returns the Evaluator registered for file's extension,
// falling back to the default evaluator when the extension is empty or
// unregistered.
func (c *ExpressionResolverCache) EvaluatorFor(file string) Evaluator {
	ext := strings.TrimPrefix(filepath.Ext(file), ".")
	if ext == "" {
		return c.defaultEvaluator
	}
	if v, ok := c.evaluators.Get(ext); ok {
		return v
	}

	var ev Evaluator
	if c.lookupEvaluator != nil {
		ev = c.lookupEvaluator(ext)
	}
	if ev == nil {
		ev = c.defaultEvaluator
	}
	c.evaluators.Add(ext, ev)
	return ev
}

// Reset purges both caches, used on restart/re-launch when the previous
// resolution results may no longer apply.
func (c *ExpressionResolverCache) Reset() {
	c.resolved.Purge()
	c.evaluators.Purge()
}
