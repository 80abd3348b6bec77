package airquality

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/config"
	"gonum.org/v1/gonum/mat"
)

// Imputer fills missing cells (NaN) of a numeric matrix by round-robin
// regression: each column with gaps is regressed on every other column and
// its gaps replaced by the prediction, repeated up to MaxIter rounds.
type Imputer struct {
	MaxIter   int
	Tolerance float64
	Alpha     float64
	Order     string
	Seed      int64
}

func NewImputer(settings config.ImputerSettings) *Imputer {
	imp := &Imputer{
		MaxIter:   settings.MaxIter,
		Tolerance: settings.Tolerance,
		Alpha:     settings.Alpha,
		Order:     settings.Order,
		Seed:      settings.Seed,
	}
	if imp.MaxIter <= 0 {
		imp.MaxIter = 10
	}
	if imp.Alpha <= 0 {
		imp.Alpha = 1e-3
	}
	if imp.Tolerance <= 0 {
		imp.Tolerance = 1e-3
	}
	return imp
}

// FitTransform returns a copy of data with every NaN imputed. Observed cells
// are returned unchanged. A column without any observed value is set to 0
// before fitting.
func (imp *Imputer) FitTransform(data *mat.Dense) *mat.Dense {
	rows, cols := data.Dims()
	x := mat.DenseCopyOf(data)

	missing := make([][]bool, cols)
	missingCount := make([]int, cols)
	maxObserved := 0.0

	for j := 0; j < cols; j++ {
		missing[j] = make([]bool, rows)
		for i := 0; i < rows; i++ {
			v := x.At(i, j)
			if math.IsNaN(v) {
				missing[j][i] = true
				missingCount[j]++
			} else if math.Abs(v) > maxObserved {
				maxObserved = math.Abs(v)
			}
		}

		// An all-missing column would make a degenerate fit
		if missingCount[j] == rows {
			for i := 0; i < rows; i++ {
				x.Set(i, j, 0)
				missing[j][i] = false
			}
			missingCount[j] = 0
		}
	}

	var targets []int
	for j := 0; j < cols; j++ {
		if missingCount[j] > 0 {
			targets = append(targets, j)
		}
	}
	if len(targets) == 0 {
		return x
	}

	// Initial fill with the observed column mean
	for _, j := range targets {
		sum, n := 0.0, 0
		for i := 0; i < rows; i++ {
			if !missing[j][i] {
				sum += x.At(i, j)
				n++
			}
		}
		mean := sum / float64(n)
		for i := 0; i < rows; i++ {
			if missing[j][i] {
				x.Set(i, j, mean)
			}
		}
	}

	sort.SliceStable(targets, func(a, b int) bool {
		return missingCount[targets[a]] < missingCount[targets[b]]
	})

	rng := rand.New(rand.NewSource(imp.Seed))
	threshold := imp.Tolerance * maxObserved

	for iter := 0; iter < imp.MaxIter; iter++ {
		if imp.Order == "random" {
			rng.Shuffle(len(targets), func(a, b int) {
				targets[a], targets[b] = targets[b], targets[a]
			})
		}

		previous := mat.DenseCopyOf(x)
		for _, j := range targets {
			imp.imputeColumn(x, j, missing[j])
		}

		change := 0.0
		for _, j := range targets {
			for i := 0; i < rows; i++ {
				if d := math.Abs(x.At(i, j) - previous.At(i, j)); d > change {
					change = d
				}
			}
		}
		if change < threshold {
			break
		}
	}

	return x
}

// imputeColumn fits a ridge regression of column target on the remaining
// columns using the rows where target is observed, then overwrites the
// missing rows with the predictions.
func (imp *Imputer) imputeColumn(x *mat.Dense, target int, missing []bool) {
	rows, cols := x.Dims()

	var observed []int
	for i := 0; i < rows; i++ {
		if !missing[i] {
			observed = append(observed, i)
		}
	}

	predictors := make([]int, 0, cols-1)
	for j := 0; j < cols; j++ {
		if j != target {
			predictors = append(predictors, j)
		}
	}

	yMean := 0.0
	for _, i := range observed {
		yMean += x.At(i, target)
	}
	yMean /= float64(len(observed))

	if len(predictors) == 0 {
		for i := 0; i < rows; i++ {
			if missing[i] {
				x.Set(i, target, yMean)
			}
		}
		return
	}

	p := len(predictors)
	xMeans := make([]float64, p)
	for k, j := range predictors {
		for _, i := range observed {
			xMeans[k] += x.At(i, j)
		}
		xMeans[k] /= float64(len(observed))
	}

	design := mat.NewDense(len(observed), p, nil)
	response := mat.NewVecDense(len(observed), nil)
	for r, i := range observed {
		for k, j := range predictors {
			design.Set(r, k, x.At(i, j)-xMeans[k])
		}
		response.SetVec(r, x.At(i, target)-yMean)
	}

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for k := 0; k < p; k++ {
		gram.Set(k, k, gram.At(k, k)+imp.Alpha)
	}

	var rhs mat.VecDense
	rhs.MulVec(design.T(), response)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			// Unsolvable system, keep the mean estimate
			for i := 0; i < rows; i++ {
				if missing[i] {
					x.Set(i, target, yMean)
				}
			}
			return
		}
	}

	for i := 0; i < rows; i++ {
		if !missing[i] {
			continue
		}
		prediction := yMean
		for k, j := range predictors {
			prediction += beta.AtVec(k) * (x.At(i, j) - xMeans[k])
		}
		x.Set(i, target, prediction)
	}
}
