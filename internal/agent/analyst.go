// Package agent turns an intake form into a structured session analysis by
// calling a generative model with a fixed instruction and response schema.
package agent

import (
	"context"

	"biomagnet-assist/internal/platform/apierr"
	"biomagnet-assist/internal/platform/logger"
	"biomagnet-assist/internal/session"
)

type Analyst struct {
	gen Generator
	log *logger.Logger
}

func NewAnalyst(gen Generator, log *logger.Logger) *Analyst {
	return &Analyst{gen: gen, log: log.With("component", "analyst")}
}

// RequestAnalysis makes a single model call. It never retries and never
// returns a partially decoded analysis.
func (a *Analyst) RequestAnalysis(ctx context.Context, req session.AnalystRequest) (*session.Analysis, error) {
	raw, err := a.gen.Generate(ctx, instruction(req.SessionType, req.Knowledge), userContent(req))
	if err != nil {
		return nil, apierr.AnalysisUnavailable(err)
	}
	analysis, err := Decode(raw, req)
	if err != nil {
		a.log.Warn("model response rejected", "session_type", string(req.SessionType), "bytes", len(raw), "error", err)
		return nil, apierr.AnalysisMalformed(err)
	}
	return analysis, nil
}
