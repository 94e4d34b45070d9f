package function

import (
	"math"

	"github.com/YuminosukeSato/scifit/domain"
)

// PseudoVoigt mixes an area-normalised Lorentzian and Gaussian sharing
// PeakCentre and FWHM: Mixing*L + (1-Mixing)*G, both scaled to Intensity.
// It has no analytic derivative.
type PseudoVoigt struct {
	ParamFunction
}

func NewPseudoVoigt() *PseudoVoigt {
	p := &PseudoVoigt{}
	p.DeclareParameter("Mixing", 0.5, "Lorentzian fraction")
	p.DeclareParameter("Intensity", 1, "Integrated intensity")
	p.DeclareParameter("PeakCentre", 0, "Centre of peak")
	p.DeclareParameter("FWHM", 1, "Full-width at half-maximum")
	return p
}

func (p *PseudoVoigt) Name() string { return "PseudoVoigt" }

func (p *PseudoVoigt) Function1D(out, x []float64) {
	eta, intensity, centre, fwhm := p.values[0], p.values[1], p.values[2], p.values[3]
	gNorm := math.Sqrt(4*math.Ln2/math.Pi) / fwhm
	lNorm := 2 / (math.Pi * fwhm)
	for i, xi := range x {
		t := (xi - centre) / fwhm
		g := gNorm * math.Exp(-4*math.Ln2*t*t)
		l := lNorm / (1 + 4*t*t)
		out[i] = intensity * (eta*l + (1-eta)*g)
	}
}

func (p *PseudoVoigt) Function(d domain.FunctionDomain, v *domain.FunctionValues) error {
	return Eval1D(p, d, v)
}

func (p *PseudoVoigt) FunctionDeriv(d domain.FunctionDomain, j domain.Jacobian) error {
	return EvalDeriv1D(p, d, j)
}

func (p *PseudoVoigt) Centre() float64     { return p.values[2] }
func (p *PseudoVoigt) SetCentre(c float64) { p.values[2] = c }
func (p *PseudoVoigt) FWHM() float64       { return p.values[3] }
func (p *PseudoVoigt) SetFWHM(w float64)   { p.values[3] = w }
func (p *PseudoVoigt) Intensity() float64  { return p.values[1] }

func (p *PseudoVoigt) peakScale() float64 {
	eta, fwhm := p.values[0], p.values[3]
	return eta*2/(math.Pi*fwhm) + (1-eta)*math.Sqrt(4*math.Ln2/math.Pi)/fwhm
}

func (p *PseudoVoigt) Height() float64 { return p.values[1] * p.peakScale() }

func (p *PseudoVoigt) SetHeight(h float64) {
	if s := p.peakScale(); s != 0 {
		p.values[1] = h / s
	}
}
