package utils

import (
	"math"
	"math/rand"
)

// ********************************** SLICE MANIPULATION **********************************

// WeightsInit draws size values from a normal scaled by the layer fan-in.
func WeightsInit(size int, fan float64, rnd *rand.Rand) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = rnd.NormFloat64() / math.Sqrt(fan)
	}
	return w
}

// ToApply lifts an elementwise function into the signature mat.Dense.Apply expects.
func ToApply(f func(float64) float64) func(int, int, float64) float64 {
	return func(i, j int, v float64) float64 {
		return f(v)
	}
}

// Relu is the rectifier function: max(0,x)
func Relu(x float64) float64 {
	return math.Max(0, x)
}

// ReluD is the derivative of the Relu function
func ReluD(x float64) float64 {
	if x > 0 {
		return 1.0
	}
	return 0.0
}

// Sign returns -1, 0 or 1
func Sign(x float64) float64 {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}

// Mean of a slice
func Mean(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range a {
		sum += v
	}
	return sum / float64(len(a))
}

// Sub element-wise subtraction
func Sub(a []float64, b []float64) []float64 {
	l := len(a)
	if len(b) < l {
		l = len(b)
	}
	c := make([]float64, l)
	for i := 0; i < l; i++ {
		c[i] = a[i] - b[i]
	}
	return c
}
