package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
)

type namedAnalyzer struct {
	name     string
	analyzer Analyzer
}

// FallbackAnalyzer tries each backend in order and returns the first
// successful analysis.
type FallbackAnalyzer struct {
	backends []namedAnalyzer
}

func NewFallbackAnalyzer() *FallbackAnalyzer {
	return &FallbackAnalyzer{}
}

func (f *FallbackAnalyzer) Add(name string, analyzer Analyzer) *FallbackAnalyzer {
	if analyzer != nil {
		f.backends = append(f.backends, namedAnalyzer{name: name, analyzer: analyzer})
	}
	return f
}

func (f *FallbackAnalyzer) Len() int {
	return len(f.backends)
}

func (f *FallbackAnalyzer) Analyze(ctx context.Context, req *AnalysisRequest) (*Analysis, error) {
	var errs []error
	for _, b := range f.backends {
		result, err := b.analyzer.Analyze(ctx, req)
		if err == nil {
			return result, nil
		}
		switch {
		case isQuotaError(err):
			log.Printf("[AI] %s quota exhausted: %v", b.name, err)
		case isConnectionError(err):
			log.Printf("[AI] %s unreachable: %v", b.name, err)
		default:
			log.Printf("[AI] %s failed: %v", b.name, err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, errors.New("no AI provider available for analysis")
	}
	return nil, errors.Join(errs...)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return containsAny(err.Error(), "connection refused", "no such host", "network is unreachable", "connection reset", "timeout", "dial tcp", "EOF")
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "429", "quota", "rate limit", "too many requests", "resource exhausted")
}

func containsAny(s string, needles ...string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
