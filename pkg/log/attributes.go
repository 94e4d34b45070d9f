package log

// Fit context.
const (
	// MinimizerKey names the minimizer, e.g. "Levenberg-Marquardt".
	MinimizerKey = "fit.minimizer"

	// CostFunctionKey names the cost function, e.g. "Least squares".
	CostFunctionKey = "fit.cost_function"

	// FunctionKey is the function name or its string form.
	FunctionKey = "fit.function"

	// DomainKey describes the domain variant: "simple", "seq" or "par".
	DomainKey = "fit.domain"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "fit.component"
)

// Problem shape.
const (
	// DataPointsKey is the number of fitted data points.
	DataPointsKey = "data.points"

	// ParametersKey is the number of active parameters.
	ParametersKey = "data.parameters"

	// SubDomainsKey is the number of sub-domains of a sequential or parallel domain.
	SubDomainsKey = "data.sub_domains"

	// WorkersKey is the worker count of a parallel domain.
	WorkersKey = "data.workers"
)

// Iteration state.
const (
	IterationKey = "iter.number"
	CostKey      = "iter.cost"
	// DampingKey is the Levenberg-Marquardt damping parameter mu.
	DampingKey = "iter.damping"
	// GradientNormKey is the max-norm of the cost gradient.
	GradientNormKey = "iter.gradient_norm"
	StepNormKey     = "iter.step_norm"
	// RatioKey is the gain ratio rho of a trust-region step.
	RatioKey = "iter.ratio"
)

// Results.
const (
	StatusKey      = "result.status"
	ConvergedKey   = "result.converged"
	ChiSquaredKey  = "result.chi2"
	ReducedChi2Key = "result.reduced_chi2"
	DurationMsKey  = "perf.duration_ms"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	SuggestionKey = "error.suggestion"
)

// Standard component values.
const (
	ComponentFunction  = "function"
	ComponentCost      = "cost"
	ComponentMinimizer = "minimizer"
	ComponentFit       = "fit"
)
