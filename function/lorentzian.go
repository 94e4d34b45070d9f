package function

import (
	"math"

	"github.com/YuminosukeSato/scifit/domain"
)

// Lorentzian is Amplitude*(FWHM/2)/pi / ((x-PeakCentre)^2 + (FWHM/2)^2).
// Amplitude is the integrated intensity.
type Lorentzian struct {
	ParamFunction
}

func NewLorentzian() *Lorentzian {
	l := &Lorentzian{}
	l.DeclareParameter("Amplitude", 1, "Intensity scaling")
	l.DeclareParameter("PeakCentre", 0, "Centre of peak")
	l.DeclareParameter("FWHM", 0, "Full-width at half-maximum")
	return l
}

func (l *Lorentzian) Name() string { return "Lorentzian" }

func (l *Lorentzian) Function1D(out, x []float64) {
	amp, centre, gamma := l.values[0], l.values[1], l.values[2]/2
	g2 := gamma * gamma
	for i, xi := range x {
		d := xi - centre
		out[i] = amp * gamma / math.Pi / (d*d + g2)
	}
}

func (l *Lorentzian) FunctionDeriv1D(j domain.Jacobian, x []float64) {
	amp, centre, gamma := l.values[0], l.values[1], l.values[2]/2
	g2 := gamma * gamma
	for i, xi := range x {
		d := xi - centre
		den := d*d + g2
		j.Set(i, 0, gamma/math.Pi/den)
		j.Set(i, 1, 2*amp*gamma*d/math.Pi/(den*den))
		// d/dFWHM = 0.5 * d/dgamma
		j.Set(i, 2, 0.5*amp/math.Pi*(d*d-g2)/(den*den))
	}
}

func (l *Lorentzian) Function(d domain.FunctionDomain, v *domain.FunctionValues) error {
	return Eval1D(l, d, v)
}

func (l *Lorentzian) FunctionDeriv(d domain.FunctionDomain, j domain.Jacobian) error {
	return EvalDeriv1D(l, d, j)
}

func (l *Lorentzian) Centre() float64     { return l.values[1] }
func (l *Lorentzian) SetCentre(c float64) { l.values[1] = c }
func (l *Lorentzian) FWHM() float64       { return l.values[2] }
func (l *Lorentzian) SetFWHM(w float64)   { l.values[2] = w }
func (l *Lorentzian) Intensity() float64  { return l.values[0] }

func (l *Lorentzian) Height() float64 {
	if l.values[2] == 0 {
		return 0
	}
	return 2 * l.values[0] / (math.Pi * l.values[2])
}

func (l *Lorentzian) SetHeight(h float64) {
	l.values[0] = h * math.Pi * l.values[2] / 2
}
