package lifecycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"calltriage-server/pkg/metrics"
	"calltriage-server/pkg/rum"
	"calltriage-server/pkg/transform"
)

// EventSearcher fetches raw telemetry events for a query and time
// range.
type EventSearcher interface {
	Search(ctx context.Context, params rum.SearchParams) (*rum.Result, error)
}

// IncidentPublisher forwards RTP timeout post-mortems to downstream
// consumers.
type IncidentPublisher interface {
	PublishIncidents(records []RTPRecord) error
}

// SummaryBroadcaster pushes freshly computed lifecycle summaries to
// live subscribers.
type SummaryBroadcaster interface {
	BroadcastSummaries(summaries []CallSummary)
}

// Service ties event fetching, flattening, and lifecycle analysis
// together. All state is request scoped; the service itself is safe
// for concurrent use.
type Service struct {
	searcher    EventSearcher
	builder     *transform.RowBuilder
	logger      *logrus.Logger
	publisher   IncidentPublisher
	broadcaster SummaryBroadcaster
}

// NewService creates a triage service. Publisher and broadcaster are
// optional; pass nil to disable them.
func NewService(searcher EventSearcher, builder *transform.RowBuilder, logger *logrus.Logger) *Service {
	return &Service{
		searcher: searcher,
		builder:  builder,
		logger:   logger,
	}
}

// WithPublisher attaches an incident publisher.
func (s *Service) WithPublisher(p IncidentPublisher) *Service {
	s.publisher = p
	return s
}

// WithBroadcaster attaches a summary broadcaster.
func (s *Service) WithBroadcaster(b SummaryBroadcaster) *Service {
	s.broadcaster = b
	return s
}

// SearchResult carries the flattened rows of one raw search.
type SearchResult struct {
	TotalEvents int                          `json:"total_events"`
	Skipped     int                          `json:"skipped_events"`
	Rows        []map[string]transform.Value `json:"rows"`
}

// SummarizeResult carries one lifecycle summary per call found in the
// fetched window.
type SummarizeResult struct {
	TotalEvents int           `json:"total_events"`
	TotalCalls  int           `json:"total_calls"`
	Summaries   []CallSummary `json:"summaries"`
}

// RTPAnalysisResult carries the post-mortems of the calls implicated in
// RTP timeouts within the fetched window.
type RTPAnalysisResult struct {
	TotalRelatedEvents int         `json:"total_related_events"`
	Calls              []RTPRecord `json:"calls"`
}

// fetchRows runs one search and flattens the result, recording fetch
// and flatten metrics under the given phase label.
func (s *Service) fetchRows(ctx context.Context, phase string, params rum.SearchParams) ([]*transform.FlatRow, int, error) {
	start := time.Now()
	if metrics.IsMetricsEnabled() && metrics.FetchRequestsTotal != nil {
		metrics.FetchRequestsTotal.WithLabelValues(phase).Inc()
	}

	result, err := s.searcher.Search(ctx, params)
	if err != nil {
		if metrics.IsMetricsEnabled() && metrics.FetchErrors != nil {
			metrics.FetchErrors.WithLabelValues(phase).Inc()
		}
		return nil, 0, err
	}

	if metrics.IsMetricsEnabled() && metrics.FetchLatency != nil {
		metrics.FetchLatency.WithLabelValues(phase).Observe(time.Since(start).Seconds())
		metrics.FetchPagesTotal.WithLabelValues(phase).Add(float64(result.Pages))
		metrics.EventsFetched.WithLabelValues(phase).Add(float64(len(result.Events)))
	}

	rows, skipped := s.builder.BuildRows(result.Events)
	if metrics.IsMetricsEnabled() && metrics.RowsFlattened != nil {
		metrics.RowsFlattened.Add(float64(len(rows)))
		metrics.MalformedEvents.Add(float64(skipped))
	}

	if skipped > 0 {
		s.logger.WithFields(logrus.Fields{
			"phase":   phase,
			"skipped": skipped,
		}).Warn("Skipped malformed telemetry events")
	}

	return rows, skipped, nil
}

// Search fetches events for the given query and returns them as
// flattened rows.
func (s *Service) Search(ctx context.Context, params rum.SearchParams) (*SearchResult, error) {
	rows, skipped, err := s.fetchRows(ctx, "search", params)
	if err != nil {
		return nil, err
	}

	out := &SearchResult{
		TotalEvents: len(rows),
		Skipped:     skipped,
		Rows:        make([]map[string]transform.Value, 0, len(rows)),
	}
	for _, row := range rows {
		out.Rows = append(out.Rows, row.AsMap())
	}
	return out, nil
}

// Summarize fetches events for the given query and reconstructs one
// lifecycle summary per call.
func (s *Service) Summarize(ctx context.Context, params rum.SearchParams) (*SummarizeResult, error) {
	rows, _, err := s.fetchRows(ctx, "summarize", params)
	if err != nil {
		return nil, err
	}

	summaries := SummarizeCalls(rows)
	if metrics.IsMetricsEnabled() && metrics.CallsSummarized != nil {
		metrics.CallsSummarized.Add(float64(len(summaries)))
	}

	if s.broadcaster != nil && len(summaries) > 0 {
		s.broadcaster.BroadcastSummaries(summaries)
	}

	return &SummarizeResult{
		TotalEvents: len(rows),
		TotalCalls:  len(summaries),
		Summaries:   summaries,
	}, nil
}

// AnalyzeRTPTimeouts runs the two-phase RTP timeout post-mortem: phase
// one finds the calls whose teardown mentioned RTP, phase two refetches
// the full event history of those calls and derives one record each.
// An empty phase one short-circuits without a second fetch.
func (s *Service) AnalyzeRTPTimeouts(ctx context.Context, params rum.SearchParams) (*RTPAnalysisResult, error) {
	phase1 := params
	phase1.Query = RTPReasonQuery

	rtpRows, _, err := s.fetchRows(ctx, "rtp_phase1", phase1)
	if err != nil {
		return nil, err
	}

	callIDs := CollectRTPCallIDs(rtpRows)
	if len(callIDs) == 0 {
		return &RTPAnalysisResult{Calls: []RTPRecord{}}, nil
	}

	phase2 := params
	phase2.Query = BuildCallIDOrQuery(callIDs)

	allRows, _, err := s.fetchRows(ctx, "rtp_phase2", phase2)
	if err != nil {
		return nil, err
	}

	records := AnalyzeRTPTimeouts(allRows)
	if metrics.IsMetricsEnabled() && metrics.RTPTimeoutCalls != nil {
		metrics.RTPTimeoutCalls.Add(float64(len(records)))
	}

	if s.publisher != nil && len(records) > 0 {
		if err := s.publisher.PublishIncidents(records); err != nil {
			s.logger.WithError(err).Warn("Failed to publish RTP timeout incidents")
		}
	}

	return &RTPAnalysisResult{
		TotalRelatedEvents: len(allRows),
		Calls:              records,
	}, nil
}
