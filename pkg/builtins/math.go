package builtins

import (
	"math"
	"math/bits"
)

// unaryMath lists the Math functions that take one number and map it
// directly onto a float64 function.
var unaryMath = []struct {
	name string
	fn   func(float64) float64
}{
	{"abs", math.Abs},
	{"acos", math.Acos},
	{"acosh", math.Acosh},
	{"asin", math.Asin},
	{"asinh", math.Asinh},
	{"atan", math.Atan},
	{"atanh", math.Atanh},
	{"cbrt", math.Cbrt},
	{"ceil", math.Ceil},
	{"cos", math.Cos},
	{"cosh", math.Cosh},
	{"exp", math.Exp},
	{"expm1", math.Expm1},
	{"floor", math.Floor},
	{"fround", mathFround},
	{"log", math.Log},
	{"log1p", math.Log1p},
	{"log10", math.Log10},
	{"log2", math.Log2},
	{"round", mathRound},
	{"sign", mathSign},
	{"sin", math.Sin},
	{"sinh", math.Sinh},
	{"sqrt", math.Sqrt},
	{"tan", math.Tan},
	{"tanh", math.Tanh},
	{"trunc", math.Trunc},
}

func mathFround(x float64) float64 {
	return float64(float32(x))
}

// mathRound rounds half up, keeping -0 for inputs in [-0.5, -0].
func mathRound(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x == 0 {
		return x
	}
	if x < 0 && x >= -0.5 {
		return math.Copysign(0, -1)
	}
	r := math.Floor(x)
	if x-r >= 0.5 {
		r++
	}
	return r
}

func mathSign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return x
}

func mathClz32(x uint32) float64 {
	return float64(bits.LeadingZeros32(x))
}

// mathPow differs from math.Pow where the language defines a NaN result.
func mathPow(base, exp float64) float64 {
	if math.IsNaN(exp) {
		return math.NaN()
	}
	if exp == 0 {
		return 1
	}
	if (base == 1 || base == -1) && math.IsInf(exp, 0) {
		return math.NaN()
	}
	return math.Pow(base, exp)
}

func mathHypot(xs []float64) float64 {
	nan := false
	for _, x := range xs {
		if math.IsInf(x, 0) {
			return math.Inf(1)
		}
		if math.IsNaN(x) {
			nan = true
		}
	}
	if nan {
		return math.NaN()
	}
	var scale float64
	for _, x := range xs {
		scale = math.Max(scale, math.Abs(x))
	}
	if scale == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		r := x / scale
		sum += r * r
	}
	return scale * math.Sqrt(sum)
}

// mathExtreme implements Math.max (max true) and Math.min. NaN wins and
// +0 is larger than -0.
func mathExtreme(xs []float64, max bool) float64 {
	result := math.Inf(-1)
	if !max {
		result = math.Inf(1)
	}
	for _, x := range xs {
		switch {
		case math.IsNaN(x):
			return x
		case x == 0 && result == 0:
			if max == math.Signbit(result) {
				result = x
			}
		case max && x > result, !max && x < result:
			result = x
		}
	}
	return result
}
