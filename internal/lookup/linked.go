package lookup

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/appointment-lookup/internal/meevo"
)

// LinkedProfile is a dependent client whose guardian is the caller.
type LinkedProfile struct {
	ClientID  string `json:"client_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	IsMinor   bool   `json:"is_minor"`
}

// RangeReport covers one page range of linked profile discovery.
type RangeReport struct {
	Range        PageRange
	PagesScanned int
	EmptyPages   int
	FailedPages  int
	Candidates   int
	Linked       int
	// Exhausted is set when a single page batch held a run of
	// EmptyPageStreak empty pages.
	Exhausted bool
}

// LinkedReport summarizes a discovery run.
type LinkedReport struct {
	Ranges         []RangeReport
	DetailsFetched int
	DetailsFailed  int
}

// FailedPages totals failed listing pages over all searched ranges.
func (r LinkedReport) FailedPages() int {
	n := 0
	for _, rr := range r.Ranges {
		n += rr.FailedPages
	}
	return n
}

type detailResult struct {
	detail *meevo.ClientDetail
	err    error
}

// FindLinked looks for clients whose guardianId is guardianID. Ranges are
// searched in priority order (recent pages first) and only candidate
// entries, phone-less by default, get a detail lookup. Discovery stops
// after the first range that yields a profile.
func (s *Service) FindLinked(ctx context.Context, guardianID string) (linked []LinkedProfile, report LinkedReport) {
	ctx, span := startSpan(ctx, "lookup.find_linked", attribute.String("lookup.guardian_id", guardianID))
	defer func() {
		span.SetAttributes(
			attribute.Int("lookup.linked_profiles", len(linked)),
			attribute.Int("lookup.ranges_searched", len(report.Ranges)),
			attribute.Int("lookup.details_failed", report.DetailsFailed),
		)
		span.End()
	}()

	if guardianID == "" {
		return nil, report
	}

	seen := make(map[string]struct{})
	for _, r := range s.opts.LinkedRanges {
		if ctx.Err() != nil {
			break
		}
		rr := s.scanRange(ctx, guardianID, r, seen, &linked, &report)
		report.Ranges = append(report.Ranges, rr)
		if len(linked) > 0 {
			s.logger.Info("lookup: linked profiles found, skipping older ranges",
				"guardian_id", guardianID,
				"range_start", r.Start,
				"range_end", r.End,
				"linked_profiles", len(linked),
			)
			break
		}
	}

	if failed := report.FailedPages(); failed > 0 || report.DetailsFailed > 0 {
		s.logger.Warn("lookup: linked profile discovery degraded",
			"guardian_id", guardianID,
			"failed_pages", failed,
			"failed_details", report.DetailsFailed,
		)
	}
	return linked, report
}

func (s *Service) scanRange(ctx context.Context, guardianID string, r PageRange, seen map[string]struct{}, linked *[]LinkedProfile, report *LinkedReport) RangeReport {
	rr := RangeReport{Range: r}
	for batchStart := r.Start; batchStart < r.End; batchStart += s.opts.LinkedPageBatch {
		if ctx.Err() != nil {
			return rr
		}
		// Empty runs are counted within one batch only.
		streak := 0
		batchEnd := min(batchStart+s.opts.LinkedPageBatch, r.End)
		results := s.fetchPages(ctx, phaseLinked, pageSpan(batchStart, batchEnd), s.opts.LinkedPageTimeout)

		var candidates []meevo.ClientSummary
		queued := make(map[string]struct{})
		for _, res := range results {
			rr.PagesScanned++
			if res.err != nil {
				rr.FailedPages++
			}
			if len(res.clients) == 0 {
				rr.EmptyPages++
				streak++
				if streak >= s.opts.EmptyPageStreak {
					rr.Exhausted = true
				}
				continue
			}
			streak = 0
			for _, c := range res.clients {
				if _, ok := seen[c.ClientID]; ok {
					continue
				}
				if _, ok := queued[c.ClientID]; ok {
					continue
				}
				if !s.opts.IsCandidate(c) {
					continue
				}
				queued[c.ClientID] = struct{}{}
				candidates = append(candidates, c)
			}
		}

		rr.Candidates += len(candidates)
		before := len(*linked)
		s.resolveCandidates(ctx, guardianID, candidates, seen, linked, report)
		rr.Linked += len(*linked) - before

		if rr.Exhausted {
			break
		}
	}
	return rr
}

// resolveCandidates fetches candidate details in chunks and keeps those
// pointing at guardianID. Failed lookups are skipped.
func (s *Service) resolveCandidates(ctx context.Context, guardianID string, candidates []meevo.ClientSummary, seen map[string]struct{}, linked *[]LinkedProfile, report *LinkedReport) {
	for i := 0; i < len(candidates); i += s.opts.DetailBatch {
		chunk := candidates[i:min(i+s.opts.DetailBatch, len(candidates))]
		details := fanOut(ctx, s.opts.DetailConcurrency, len(chunk), func(ctx context.Context, j int) detailResult {
			if s.opts.DetailTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, s.opts.DetailTimeout)
				defer cancel()
			}
			detail, err := s.dir.GetClient(ctx, chunk[j].ClientID)
			return detailResult{detail: detail, err: err}
		})

		for _, d := range details {
			if d.err != nil || d.detail == nil {
				report.DetailsFailed++
				s.metrics.ObserveDetail("error")
				continue
			}
			report.DetailsFetched++
			if _, ok := seen[d.detail.ClientID]; ok {
				continue
			}
			seen[d.detail.ClientID] = struct{}{}

			if d.detail.GuardianID != guardianID {
				s.metrics.ObserveDetail("unrelated")
				continue
			}
			s.metrics.ObserveDetail("linked")
			*linked = append(*linked, LinkedProfile{
				ClientID:  d.detail.ClientID,
				FirstName: d.detail.FirstName,
				LastName:  d.detail.LastName,
				Name:      d.detail.FullName(),
				IsMinor:   d.detail.IsMinor,
			})
			s.logger.Info("lookup: linked profile found",
				"guardian_id", guardianID,
				"client_id", d.detail.ClientID,
			)
		}
	}
}
