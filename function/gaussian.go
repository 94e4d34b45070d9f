package function

import (
	"math"

	"github.com/YuminosukeSato/scifit/domain"
)

// fwhmToSigma converts a Gaussian FWHM to its standard deviation.
var fwhmToSigma = 1 / (2 * math.Sqrt(2*math.Ln2))

// Gaussian is Height*exp(-0.5*((x-PeakCentre)/Sigma)^2).
type Gaussian struct {
	ParamFunction
}

// NewGaussian creates a Gaussian with Height 0, PeakCentre 0 and Sigma 1.
func NewGaussian() *Gaussian {
	g := &Gaussian{}
	g.DeclareParameter("Height", 0, "Height of the peak")
	g.DeclareParameter("PeakCentre", 0, "Centre of the peak")
	g.DeclareParameter("Sigma", 1, "Width parameter")
	return g
}

func (g *Gaussian) Name() string { return "Gaussian" }

func (g *Gaussian) Function1D(out, x []float64) {
	height, centre, sigma := g.values[0], g.values[1], g.values[2]
	w := 1 / (sigma * sigma)
	for i, xi := range x {
		d := xi - centre
		out[i] = height * math.Exp(-0.5*d*d*w)
	}
}

func (g *Gaussian) FunctionDeriv1D(j domain.Jacobian, x []float64) {
	height, centre, sigma := g.values[0], g.values[1], g.values[2]
	w := 1 / (sigma * sigma)
	for i, xi := range x {
		d := xi - centre
		e := math.Exp(-0.5 * d * d * w)
		j.Set(i, 0, e)
		j.Set(i, 1, height*e*d*w)
		j.Set(i, 2, height*e*d*d*w/sigma)
	}
}

func (g *Gaussian) Function(d domain.FunctionDomain, v *domain.FunctionValues) error {
	return Eval1D(g, d, v)
}

func (g *Gaussian) FunctionDeriv(d domain.FunctionDomain, j domain.Jacobian) error {
	return EvalDeriv1D(g, d, j)
}

func (g *Gaussian) Centre() float64     { return g.values[1] }
func (g *Gaussian) SetCentre(c float64) { g.values[1] = c }
func (g *Gaussian) Height() float64     { return g.values[0] }
func (g *Gaussian) SetHeight(h float64) { g.values[0] = h }
func (g *Gaussian) FWHM() float64       { return math.Abs(g.values[2]) / fwhmToSigma }
func (g *Gaussian) SetFWHM(w float64)   { g.values[2] = w * fwhmToSigma }

func (g *Gaussian) Intensity() float64 {
	return g.values[0] * math.Abs(g.values[2]) * math.Sqrt(2*math.Pi)
}
