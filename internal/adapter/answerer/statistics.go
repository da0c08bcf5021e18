package answerer

import (
	"strconv"
	"strings"

	"metasearch/internal/domain"
)

// Statistics answers "<func> <n1> <n2> ..." for min, max, avg, sum and prod.
type Statistics struct{}

var statFuncs = map[string]func(xs []float64) float64{
	"min": func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			m = min(m, x)
		}
		return m
	},
	"max": func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			m = max(m, x)
		}
		return m
	},
	"avg": func(xs []float64) float64 {
		return sum(xs) / float64(len(xs))
	},
	"sum": sum,
	"prod": func(xs []float64) float64 {
		p := 1.0
		for _, x := range xs {
			p *= x
		}
		return p
	},
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func (Statistics) Keywords() []string { return []string{"min", "max", "avg", "sum", "prod"} }

// Answer returns nothing unless every argument is a number.
func (Statistics) Answer(q domain.SearchQuery) []domain.Result {
	parts := strings.Fields(q.Query)
	if len(parts) < 2 {
		return nil
	}
	f, ok := statFuncs[parts[0]]
	if !ok {
		return nil
	}
	args := make([]float64, 0, len(parts)-1)
	for _, p := range parts[1:] {
		x, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil
		}
		args = append(args, x)
	}
	return []domain.Result{{Answer: strconv.FormatFloat(f(args), 'f', -1, 64)}}
}

func (Statistics) Info() domain.AnswererInfo {
	return domain.AnswererInfo{
		Name:        "Statistics functions",
		Description: "Compute min/max/avg/sum/prod of the arguments",
		Examples:    []string{"avg 123 548 2.04 24.2"},
	}
}
