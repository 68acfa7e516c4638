// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"io"

	"github.com/mlnoga/deconv/internal/illcond"
	"github.com/mlnoga/deconv/internal/ops"
	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/psf"
	"github.com/mlnoga/deconv/internal/render"
	"github.com/mlnoga/deconv/internal/sparse"
	"github.com/mlnoga/deconv/internal/spectral"
	"github.com/mlnoga/deconv/internal/stats"
	"github.com/mlnoga/deconv/internal/synth"
)

type demoSettings struct {
	Width, Height, Stars int
	Seed                 uint64
	Sigma                float64 // PSF standard deviation
	Noise                float64 // noise for the sensitivity experiment
	Lambda               float64
	NIter                int
	Preview              string // PNG file name pattern for the stages, %d is replaced by the stage number
	Colormap             string
}

// Reconstruction errors of the demo stages, relative to the truth
type demoResult struct {
	RoundTripNMSE float64 // naive deconvolution of the noise free observation
	NoisyNMSE     float64 // naive deconvolution of the noisy observation
	FBNMSE        float64 // Forward-Backward on the noisy observation
	KernelCond    float64
	Cost          []float64
}

func cmdDemo(logWriter io.Writer) error {
	_, err := runDemo(logWriter, demoSettings{
		Width: *width, Height: *height, Stars: *stars, Seed: *seed, Sigma: *sigma,
		Noise: 1e-6, Lambda: *lambda, NIter: *nIter, Preview: *png, Colormap: *colormap,
	})
	return err
}

// Walks through deconvolution of a synthetic star field: exact recovery without noise,
// blow-up of tiny noise by spectral division, and sparsity regularized recovery
func runDemo(w io.Writer, s demoSettings) (*demoResult, error) {
	res := &demoResult{}
	truth, err := synth.StarField(s.Width, s.Height, s.Stars, uint32(s.Seed))
	if err != nil {
		return nil, err
	}
	kernel, err := psf.MakeGaussian(s.Width, s.Height, s.Sigma)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "Star field %dx%d with %d stars, gaussian PSF sigma %g (FWHM %.3g)\n",
		s.Width, s.Height, s.Stars, s.Sigma, psf.FWHM(s.Sigma))

	h := spectral.NewOperator(kernel)
	observed, err := h.Apply(truth)
	if err != nil {
		return nil, err
	}
	blurredNMSE, err := stats.NMSE(observed, truth)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "Blurred observation: NMSE %.4g\n", blurredNMSE)

	// 1. noise free round trip
	naive, err := h.Invert(observed)
	if err != nil {
		return nil, err
	}
	if res.RoundTripNMSE, err = stats.NMSE(naive, truth); err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "Naive deconvolution without noise: NMSE %.4g\n", res.RoundTripNMSE)

	// 2. noise sensitivity
	cond, minMag, maxMag := illcond.KernelConditioning(kernel)
	res.KernelCond = cond
	fmt.Fprintf(w, "PSF spectrum magnitudes in [%.3g, %.3g], condition %.3g\n", minMag, maxMag, cond)
	noisy := synth.AddGaussianNoise(observed, s.Noise, s.Seed)
	naiveNoisy, err := h.Invert(noisy)
	if err != nil {
		return nil, err
	}
	if res.NoisyNMSE, err = stats.NMSE(naiveNoisy, truth); err != nil {
		return nil, err
	}
	if naiveNoisy.HasNonFinite() {
		fmt.Fprintf(w, "Warning: naive deconvolution produced non-finite values\n")
	}
	fmt.Fprintf(w, "Naive deconvolution with noise sigma %g: NMSE %.4g\n", s.Noise, res.NoisyNMSE)

	a, b, db := illcond.NearlySingularExample()
	r, err := illcond.Conditioning(a, b, db)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w, "The same effect in a 2x2 system: %v\n", r)

	// 3. sparsity regularized recovery
	opts := sparse.Options{Lambda: s.Lambda, NIter: s.NIter, Gamma: 1 / sparse.LipschitzConstant(kernel), ReturnCost: true}
	fb, err := sparse.ForwardBackward(noisy, plane.New(s.Width, s.Height), kernel, sparse.NewConvolutionGradient(), opts)
	if err != nil {
		return nil, err
	}
	res.Cost = fb.Cost
	if res.FBNMSE, err = stats.NMSE(fb.Estimate, truth); err != nil {
		return nil, err
	}
	snr, _ := stats.SNR(fb.Estimate, truth)
	if len(fb.Cost) > 0 {
		fmt.Fprintf(w, "Forward-Backward cost from %.4g to %.4g\n", fb.Cost[0], fb.Cost[len(fb.Cost)-1])
	}
	fmt.Fprintf(w, "Forward-Backward with lambda %g, gamma %.4g, %d iterations: NMSE %.4g, SNR %.2f dB\n",
		opts.Lambda, opts.Gamma, opts.NIter, res.FBNMSE, snr)

	if s.Preview != "" {
		stages := []struct {
			title string
			p     *plane.Plane
		}{
			{"truth", truth}, {"observed", observed}, {"naive, noise free", naive},
			{"naive, noisy", naiveNoisy}, {"forward-backward", fb.Estimate},
		}
		for i, st := range stages {
			o := render.DefaultOptions()
			o.Title, o.Colormap = st.title, s.Colormap
			fileName := ops.ExpandPattern(s.Preview, i)
			if err := render.RenderToFile(fileName, st.p, o); err != nil {
				return nil, err
			}
			fmt.Fprintf(w, "Wrote %s to %s\n", st.title, fileName)
		}
	}
	return res, nil
}
