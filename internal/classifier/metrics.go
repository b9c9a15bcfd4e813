package classifier

import "sort"

// ClassMetrics are the per-label scores of an evaluation.
type ClassMetrics struct {
	Class     int     `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Evaluation summarizes predictions against true labels.
// Confusion rows are true labels and columns predicted labels, both in
// Classes order.
type Evaluation struct {
	Accuracy  float64        `json:"accuracy"`
	Classes   []int          `json:"classes"`
	PerClass  []ClassMetrics `json:"per_class"`
	Confusion [][]int        `json:"confusion"`
	Samples   int            `json:"samples"`
}

// Evaluate scores yPred against yTrue. Undefined ratios are reported as 0.
func Evaluate(yTrue, yPred []int) Evaluation {
	labels := make(map[int]struct{})
	for _, v := range yTrue {
		labels[v] = struct{}{}
	}
	for _, v := range yPred {
		labels[v] = struct{}{}
	}
	classes := make([]int, 0, len(labels))
	for c := range labels {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}

	n := min(len(yTrue), len(yPred))
	confusion := make([][]int, len(classes))
	for i := range confusion {
		confusion[i] = make([]int, len(classes))
	}
	correct := 0
	for i := 0; i < n; i++ {
		confusion[pos[yTrue[i]]][pos[yPred[i]]]++
		if yTrue[i] == yPred[i] {
			correct++
		}
	}

	ev := Evaluation{Classes: classes, Confusion: confusion, Samples: n}
	if n > 0 {
		ev.Accuracy = float64(correct) / float64(n)
	}
	for c := range classes {
		tp := confusion[c][c]
		predicted, actual := 0, 0
		for k := range classes {
			predicted += confusion[k][c]
			actual += confusion[c][k]
		}
		m := ClassMetrics{Class: classes[c], Support: actual}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			m.Recall = float64(tp) / float64(actual)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		ev.PerClass = append(ev.PerClass, m)
	}
	return ev
}
