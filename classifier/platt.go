package classifier

import "math"

// platt maps a decision value f to P(positive) = 1 / (1 + exp(A*f + B)).
type platt struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func (p platt) probability(f float64) float64 {
	fApB := f*p.A + p.B
	if fApB >= 0 {
		return math.Exp(-fApB) / (1 + math.Exp(-fApB))
	}
	return 1 / (1 + math.Exp(fApB))
}

// fitPlatt fits the sigmoid by Newton's method with backtracking on
// regularized targets, following Lin, Lin and Weng's formulation.
func fitPlatt(decisions, labels []float64) platt {
	var prior1, prior0 float64
	for _, y := range labels {
		if y > 0 {
			prior1++
		} else {
			prior0++
		}
	}
	hi := (prior1 + 1) / (prior1 + 2)
	lo := 1 / (prior0 + 2)
	targets := make([]float64, len(labels))
	for i, y := range labels {
		targets[i] = lo
		if y > 0 {
			targets[i] = hi
		}
	}

	objective := func(a, b float64) float64 {
		f := 0.0
		for i, d := range decisions {
			fApB := d*a + b
			if fApB >= 0 {
				f += targets[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (targets[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return f
	}

	const (
		maxIterations = 100
		minStep       = 1e-10
		sigma         = 1e-12
		eps           = 1e-5
	)
	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	fval := objective(a, b)
	for it := 0; it < maxIterations; it++ {
		h11, h22, h21, g1, g2 := sigma, sigma, 0.0, 0.0, 0.0
		for i, d := range decisions {
			fApB := d*a + b
			var p, q float64
			if fApB >= 0 {
				p = math.Exp(-fApB) / (1 + math.Exp(-fApB))
				q = 1 / (1 + math.Exp(-fApB))
			} else {
				p = 1 / (1 + math.Exp(fApB))
				q = math.Exp(fApB) / (1 + math.Exp(fApB))
			}
			d2 := p * q
			h11 += d * d * d2
			h22 += d2
			h21 += d * d2
			d1 := targets[i] - p
			g1 += d * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}
		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			na, nb := a+step*dA, b+step*dB
			if nf := objective(na, nb); nf < fval+0.0001*step*gd {
				a, b, fval = na, nb, nf
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return platt{A: a, B: b}
}
