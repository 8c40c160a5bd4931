package ports

import "github.com/Reddy-45/siem/internal/domain"

// EngineObserver receives notifications about engine activity. Used by the
// Prometheus exporter; all methods MUST be safe for concurrent calls and
// return quickly because some are invoked on the ingestion path.
type EngineObserver interface {
	// ObserveDecision records the outcome of one ingestion call.
	//
	// Parameters:
	//   - verdict: accepted or rejected
	//   - seconds: time spent inside the ingestion boundary
	ObserveDecision(verdict domain.Verdict, seconds float64)

	// ObserveBlock is called once per newly created block entry.
	ObserveBlock(entry domain.BlockEntry)

	// ObserveUnblock is called once per successful manual unblock.
	ObserveUnblock()

	// ObserveEnrichment records a lookup result ("ok", "empty", "error", "skipped").
	ObserveEnrichment(result string)

	// ObserveReport records a report pipeline result ("generated", "failed",
	// "dropped", "discarded").
	ObserveReport(result string)
}
