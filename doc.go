// Package scifit fits parametric models to measured data by non-linear
// least squares, for backend services and data-reduction pipelines.
//
// A model is a tree of functions: leaf peak and background shapes summed in
// composites, or bound to parts of a joint domain by a MultiDomainFunction.
// Parameters can be fixed, tied to expressions of other parameters, or held
// inside bounds by penalty constraints. A cost function turns the model and
// the data into a scalar objective, and a minimizer drives it to a minimum.
// The fit driver runs the loop and reports parameter errors from the
// covariance matrix together with goodness-of-fit statistics.
//
// # Features
//
// - Levenberg-Marquardt minimizers on the residual vector or the Gauss-Newton Hessian
// - BFGS, conjugate gradient and steepest descent with a More-Thuente line search
// - Least-squares and Rwp cost functions with constraint penalties
// - Sequential and parallel evaluation of data split into sub-domains
// - Structured logging, Prometheus metrics and OpenTelemetry spans per fit
//
// # Installation
//
//	go get github.com/YuminosukeSato/scifit
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/scifit/domain"
//	    "github.com/YuminosukeSato/scifit/fit"
//	    "github.com/YuminosukeSato/scifit/function"
//	)
//
//	func main() {
//	    d, _ := domain.NewDomain1D([]float64{0, 1, 2, 3, 4})
//	    v := domain.NewFunctionValues(d)
//	    _ = v.SetFitDataSlice([]float64{1.1, 2.9, 5.2, 6.8, 9.1})
//
//	    fn, err := function.NewFactory().CreateInitialized("name=LinearBackground,A0=0,A1=1")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    f, err := fit.New(fn, d, v)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    res, err := f.Run(context.Background())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Print(res)
//	}
//
// # Packages
//
//   - domain: domains, observed and calculated values, Jacobians, domain creators
//   - function: models, composites, ties, constraints, the function factory
//   - cost: least-squares and Rwp cost functions, sequential and parallel domains
//   - minimizer: minimizers and their factory
//   - fit: the fit driver, results, YAML configuration, metrics
//   - metrics: goodness-of-fit statistics
//   - pkg/errors: typed errors
//   - pkg/log: structured logging
//   - core/parallel: chunked evaluation of large domains
package scifit
