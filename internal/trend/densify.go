package trend

import "github.com/leapstack-labs/churnwatch/pkg/core"

// Densify gives every customer a record for every period between the
// dataset's first and last period, filling gaps with zero purchases.
// All records must share one span.
func Densify(records []core.AggregatedRecord) []core.AggregatedRecord {
	if len(records) == 0 {
		return nil
	}
	span := records[0].Period.Span
	lo, hi := records[0].Period.Index, records[0].Period.Index
	for _, r := range records {
		lo = min(lo, r.Period.Index)
		hi = max(hi, r.Period.Index)
	}

	sorted := sortedCopy(records)
	width := int(hi - lo + 1)
	out := make([]core.AggregatedRecord, 0, width*countCustomers(sorted))

	i := 0
	for i < len(sorted) {
		customer := sorted[i].CustomerID
		for idx := lo; idx <= hi; idx++ {
			if i < len(sorted) && sorted[i].CustomerID == customer && sorted[i].Period.Index == idx {
				out = append(out, sorted[i])
				i++
				continue
			}
			out = append(out, core.AggregatedRecord{
				CustomerID: customer,
				Period:     core.Period{Span: span, Index: idx},
			})
		}
		for i < len(sorted) && sorted[i].CustomerID == customer {
			i++
		}
	}
	return out
}

func countCustomers(sorted []core.AggregatedRecord) int {
	n := 0
	for i := range sorted {
		if i == 0 || sorted[i].CustomerID != sorted[i-1].CustomerID {
			n++
		}
	}
	return n
}
