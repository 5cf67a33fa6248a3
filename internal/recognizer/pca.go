package recognizer

import (
	"context"
	"fmt"
	"math"
)

const (
	powerIterations = 500
	powerTolerance  = 1e-10
)

// pca is a principal component basis fitted with the snapshot method: the
// eigenvectors of the small n x n Gram matrix are lifted back into pixel
// space. Eigenpairs are found by power iteration with deflation.
type pca struct {
	mean        []float64
	components  [][]float64
	eigenvalues []float64
}

func fitPCA(ctx context.Context, data [][]float64, maxComponents int) (*pca, error) {
	n := len(data)
	if n == 0 {
		return nil, errNoSamples
	}
	dim := len(data[0])

	mean := make([]float64, dim)
	for _, row := range data {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	centered := make([][]float64, n)
	for i, row := range data {
		c := make([]float64, dim)
		for j, v := range row {
			c[j] = v - mean[j]
		}
		centered[i] = c
	}

	gram := make([][]float64, n)
	for i := range gram {
		gram[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i; j < n; j++ {
			v := dot(centered[i], centered[j])
			gram[i][j] = v
			gram[j][i] = v
		}
	}

	k := min(n-1, maxComponents)
	vals, vecs := topEigen(gram, k)

	p := &pca{mean: mean}
	for c, lambda := range vals {
		u := make([]float64, dim)
		for i, w := range vecs[c] {
			if w == 0 {
				continue
			}
			for j, v := range centered[i] {
				u[j] += w * v
			}
		}
		norm := math.Sqrt(dot(u, u))
		if norm == 0 {
			continue
		}
		for j := range u {
			u[j] /= norm
		}
		p.components = append(p.components, u)
		p.eigenvalues = append(p.eigenvalues, lambda)
	}
	return p, nil
}

// project returns the coordinates of x in the basis and the squared
// distance from x to the subspace.
func (p *pca) project(x []float64) ([]float64, float64, error) {
	if len(x) != len(p.mean) {
		return nil, 0, fmt.Errorf("projection: got %d values, want %d", len(x), len(p.mean))
	}
	y := make([]float64, len(x))
	for j, v := range x {
		y[j] = v - p.mean[j]
	}

	w := make([]float64, len(p.components))
	inSpace := 0.0
	for c, u := range p.components {
		w[c] = dot(u, y)
		inSpace += w[c] * w[c]
	}
	residual := dot(y, y) - inSpace
	if residual < 0 {
		residual = 0
	}
	return w, residual, nil
}

// topEigen returns up to k leading eigenpairs of a symmetric positive
// semi-definite matrix. Eigenvalues below a relative floor are dropped.
func topEigen(m [][]float64, k int) ([]float64, [][]float64) {
	n := len(m)
	a := make([][]float64, n)
	for i := range m {
		a[i] = append([]float64(nil), m[i]...)
	}

	var (
		vals []float64
		vecs [][]float64
	)
	for c := 0; c < k; c++ {
		v := make([]float64, n)
		for i := range v {
			v[i] = 1 + float64((i*7+c*3)%11)/11
		}
		orthogonalize(v, vecs)
		if !normalize(v) {
			break
		}

		lambda := 0.0
		for it := 0; it < powerIterations; it++ {
			w := matVec(a, v)
			orthogonalize(w, vecs)
			norm := math.Sqrt(dot(w, w))
			if norm < 1e-12 {
				lambda = 0
				break
			}
			for i := range w {
				w[i] /= norm
			}
			delta := math.Abs(norm - lambda)
			lambda = norm
			v = w
			if delta <= powerTolerance*math.Max(1, lambda) {
				break
			}
		}

		if lambda <= 1e-12 || (len(vals) > 0 && lambda < 1e-9*vals[0]) {
			break
		}
		vals = append(vals, lambda)
		vecs = append(vecs, v)

		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				a[i][j] -= lambda * v[i] * v[j]
			}
		}
	}
	return vals, vecs
}

func orthogonalize(v []float64, basis [][]float64) {
	for _, b := range basis {
		p := dot(v, b)
		for i := range v {
			v[i] -= p * b[i]
		}
	}
}

func normalize(v []float64) bool {
	norm := math.Sqrt(dot(v, v))
	if norm < 1e-12 {
		return false
	}
	for i := range v {
		v[i] /= norm
	}
	return true
}

func matVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = dot(row, v)
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func errImageSize(got, want int) error {
	return fmt.Errorf("probe size %d does not match trained size %d", got, want)
}
