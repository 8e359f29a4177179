package pid

import "brewbox-controlbox/internal/fixedpoint"

// Filter is the input low-pass filter chain from §4.11: a cascade of N
// identical single-pole IIR stages, where N and the per-stage time
// constant are selected by choice (0..5). A step larger than threshold
// bypasses the cascade and resets every stage to the new input, so a
// setpoint jump doesn't crawl through N stages' worth of lag.
//
// FpFilterChain.cpp/.h were not available in the retrieved original
// source; the per-choice smoothing table below is this rendition's own
// reasonable stand-in, documented as such rather than a literal port.
type Filter struct {
	stages    []fixedpoint.Temp
	primed    bool
	alphaQ12  int32 // smoothing factor in Q0.12: output += (input-output)*alpha
	threshold fixedpoint.Temp
	prevRead  fixedpoint.Temp
}

// stageCounts and alphaTable index by filterChoice 0..5: more stages and a
// smaller alpha (slower response, smoother output) at higher choices.
var stageCounts = [6]int{1, 1, 2, 2, 3, 4}
var alphaTable = [6]int32{4096, 2048, 1024, 512, 256, 128} // Q12, 1.0 == 4096

func NewFilter(choice uint8, threshold fixedpoint.Temp) *Filter {
	f := &Filter{}
	f.SetParams(choice, threshold)
	return f
}

func (f *Filter) SetParams(choice uint8, threshold fixedpoint.Temp) {
	if choice > 5 {
		choice = 5
	}
	f.stages = make([]fixedpoint.Temp, stageCounts[choice])
	f.alphaQ12 = alphaTable[choice]
	f.threshold = threshold
	f.primed = false
}

// Add steps a new raw reading through the cascade.
func (f *Filter) Add(input fixedpoint.Temp) {
	if !f.primed {
		for i := range f.stages {
			f.stages[i] = input
		}
		f.primed = true
		f.prevRead = input
		return
	}
	if f.threshold > 0 {
		step := input - f.Read()
		if step < 0 {
			step = -step
		}
		if step > f.threshold {
			for i := range f.stages {
				f.stages[i] = input
			}
			f.prevRead = input
			return
		}
	}
	f.prevRead = f.Read()
	prev := input
	for i := range f.stages {
		f.stages[i] = f.stages[i].Add((prev - f.stages[i]).MulQ12(f.alphaQ12))
		prev = f.stages[i]
	}
}

// Read returns the cascade's current output (the last stage).
func (f *Filter) Read() fixedpoint.Temp {
	if len(f.stages) == 0 {
		return 0
	}
	return f.stages[len(f.stages)-1]
}

// Derivative returns the rate of change of the filtered signal since the
// last Add, as Q1.23.
func (f *Filter) Derivative() fixedpoint.Deriv {
	return fixedpoint.DerivFromTemp(f.Read().Sub(f.prevRead))
}
