package lookup

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/appointment-lookup/internal/meevo"
)

const (
	phaseSearch = "search"
	phaseLinked = "linked"
)

// StopReason says why a paginated scan ended.
type StopReason string

const (
	StopMatched         StopReason = "matched"
	StopEndOfData       StopReason = "end_of_data"
	StopBudgetExhausted StopReason = "budget_exhausted"
	StopNoCriteria      StopReason = "no_criteria"
	StopCancelled       StopReason = "cancelled"
)

// SearchReport describes how much of the listing a client search covered.
// Failed pages count as empty for termination but are listed so degraded
// coverage stays visible.
type SearchReport struct {
	Batches           int
	PagesScanned      int
	EmptyPages        int
	FailedPages       int
	FailedPageNumbers []int
	Stop              StopReason
}

func (r *SearchReport) record(res pageResult) {
	r.PagesScanned++
	if res.err != nil {
		r.FailedPages++
		r.FailedPageNumbers = append(r.FailedPageNumbers, res.page)
	}
	if len(res.clients) == 0 {
		r.EmptyPages++
	}
}

// FindClient scans the client listing batch by batch for the first entry
// whose phone or email matches q. Pages of a batch are fetched
// concurrently; matches are taken in page order, then in-page order. The
// scan ends on a match, on a batch with no data, or when the page budget is
// spent.
func (s *Service) FindClient(ctx context.Context, q Query) (match *meevo.ClientSummary, report SearchReport) {
	ctx, span := startSpan(ctx, "lookup.find_client",
		attribute.Bool("lookup.by_phone", q.Phone != ""),
		attribute.Bool("lookup.by_email", q.Email != ""),
	)
	defer func() {
		span.SetAttributes(
			attribute.String("lookup.stop", string(report.Stop)),
			attribute.Int("lookup.pages_scanned", report.PagesScanned),
			attribute.Int("lookup.failed_pages", report.FailedPages),
		)
		span.End()
	}()

	m := newMatcher(q)
	if !m.usable() {
		report.Stop = StopNoCriteria
		return nil, report
	}

	report.Stop = StopBudgetExhausted
	for batch := 0; batch < s.opts.MaxBatches; batch++ {
		if ctx.Err() != nil {
			report.Stop = StopCancelled
			return nil, report
		}

		start := batch*s.opts.PagesPerBatch + 1
		results := s.fetchPages(ctx, phaseSearch, pageSpan(start, start+s.opts.PagesPerBatch), s.opts.SearchPageTimeout)
		report.Batches++

		empty := 0
		for _, res := range results {
			report.record(res)
			if len(res.clients) == 0 {
				empty++
			}
		}

		for _, res := range results {
			for i := range res.clients {
				if m.matches(res.clients[i]) {
					found := res.clients[i]
					report.Stop = StopMatched
					return &found, report
				}
			}
		}

		if ctx.Err() != nil {
			report.Stop = StopCancelled
			return nil, report
		}
		if empty == len(results) {
			report.Stop = StopEndOfData
			break
		}
	}

	if report.FailedPages > 0 {
		s.logger.Warn("lookup: client search ran with failed pages",
			"failed_pages", report.FailedPages,
			"pages_scanned", report.PagesScanned,
		)
	}
	return nil, report
}
