package session

import "time"

// LedgerEntry pairs a feedback item with its resolution marker.
type LedgerEntry struct {
	Item       FeedbackItem `json:"item"`
	Resolved   bool         `json:"resolved"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

func (e LedgerEntry) clone() LedgerEntry {
	out := e
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// openBlockers is the Blocker Set: unresolved blocker items in acceptance order.
func openBlockers(ledger []LedgerEntry) []FeedbackItem {
	out := make([]FeedbackItem, 0)
	for _, e := range ledger {
		if e.Item.IsBlocker() && !e.Resolved {
			out = append(out, e.Item)
		}
	}
	return out
}

func ledgerItems(ledger []LedgerEntry) []FeedbackItem {
	out := make([]FeedbackItem, len(ledger))
	for i, e := range ledger {
		out[i] = e.Item
	}
	return out
}

// computeSummary derives outcome counts. A checkpoint counts as passed only
// when it was approved and no feedback was ever recorded against it, so a
// checkpoint approved after its blocker was resolved stays a failure.
func computeSummary(ledger []LedgerEntry, results []CheckpointResult) Summary {
	var sum Summary
	flagged := make(map[string]struct{}, len(ledger))
	for _, e := range ledger {
		flagged[e.Item.CheckpointID] = struct{}{}
		sum.Failed++
		if e.Item.IsBlocker() {
			sum.Blockers++
		} else {
			sum.NiceToHave++
		}
	}
	passed := make(map[string]struct{}, len(results))
	for _, r := range results {
		if r.Verdict != VerdictPassed {
			continue
		}
		if _, bad := flagged[r.CheckpointID]; bad {
			continue
		}
		passed[r.CheckpointID] = struct{}{}
	}
	sum.Passed = len(passed)
	return sum
}
