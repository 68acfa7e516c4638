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
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	nl "github.com/mlnoga/deconv/internal"
	"github.com/mlnoga/deconv/internal/fits"
	"github.com/mlnoga/deconv/internal/illcond"
	"github.com/mlnoga/deconv/internal/ops"
	"github.com/mlnoga/deconv/internal/ops/deconv"
	"github.com/mlnoga/deconv/internal/psf"
	"github.com/mlnoga/deconv/internal/render"
	"github.com/mlnoga/deconv/internal/rest"
	"github.com/mlnoga/deconv/internal/sparse"
)

const version = "0.1.0"

var totalMiBs = memory.TotalMemory() / 1024 / 1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "out.fits", "save output to `file`, %d is replaced by the image number. Suffix selects FITS, TIFF or NumPy")
var png = flag.String("png", "%auto", "save 8bit preview of output as PNG to `file`. `%auto` replaces suffix of output file with .png")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")
var colormap = flag.String("colormap", "gray", "colormap for previews, one of gray, viridis, magma, seismic")

var psfFile = flag.String("psf", "", "load point spread function from `file`, FITS, TIFF, .npy or archive.npz:member. Empty for a gaussian PSF")
var sigma = flag.Float64("sigma", 2, "standard deviation of the gaussian PSF in pixels")
var truth = flag.String("truth", "", "load ground truth from `file` to report the reconstruction error")

var width = flag.Int("width", 128, "width of generated PSFs and synthetic images")
var height = flag.Int("height", 128, "height of generated PSFs and synthetic images")
var stars = flag.Int("stars", 40, "number of point sources in synthetic star fields")
var seed = flag.Uint64("seed", 1, "random seed for synthetic star fields and noise")
var noise = flag.Float64("noise", 0, "standard deviation of additive gaussian noise for blurring")

var lambda = flag.Float64("lambda", 0.01, "Forward-Backward regularization weight, >=0")
var nIter = flag.Int("nIter", 300, "Forward-Backward iterations")
var gamma = flag.Float64("gamma", 1, "Forward-Backward step size, >0")
var autoGamma = flag.Bool("autoGamma", false, "use step size 1/L from the PSF spectrum instead of -gamma")
var firstGuess = flag.String("firstGuess", "zero", "Forward-Backward first guess, zero or observation")
var costPlot = flag.String("costPlot", "", "plot the Forward-Backward cost trace to `file`, %d is replaced by the image number")

var maxThreads = flag.Int("maxThreads", 1, "number of images to process concurrently")

var addr = flag.String("addr", ":8080", "listen address for the REST service")
var chroot = flag.String("chroot", "", "change filesystem root to `dir` before serving. Requires root")
var setuid = flag.Int("setuid", -1, "change user ID before serving, -1 to keep")

func main() {
	logWriter := nl.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stdout, `Deconv Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (psf|blur|naive|fb|fitpsf|demo|illcond|job|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  psf     Write a gaussian PSF of the given size and sigma
  blur    Convolve input images with the PSF and add noise
  naive   Deconvolve input images by spectral division
  fb      Deconvolve input images with sparsity regularization by Forward-Backward splitting
  fitpsf  Estimate the gaussian sigma of a PSF file
  demo    Walk through deconvolution of a synthetic star field
  illcond Show the ill-posedness of linear systems and blur kernels
  job     Run the JSON or YAML job file given as argument
  serve   Run the REST service
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	ops.RestrictPaths = false

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		*log = ""
		if *out != "" && producesOutput(args[0]) {
			*log = strings.TrimSuffix(strings.ReplaceAll(*out, "%d", ""), filepath.Ext(*out)) + ".log"
		}
	}
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	// Also auto-select PNG preview target
	if *png == "%auto" {
		*png = ""
		if *out != "" {
			*png = strings.TrimSuffix(*out, filepath.Ext(*out)) + ".png"
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	c := ops.NewContext(logWriter)
	c.MaxThreads = *maxThreads

	var err error
	switch args[0] {
	case "psf":
		err = cmdPSF(c)

	case "blur":
		err = runSequence(c, ops.NewOpSequence(
			ops.NewOpLoadMany(args[1:]),
			psfOperator(),
			deconv.NewOpBlur(*noise, *seed),
			ops.NewOpSave(*out),
			preview(),
		))

	case "naive":
		err = runSequence(c, ops.NewOpSequence(
			ops.NewOpLoadMany(args[1:]),
			psfOperator(),
			deconv.NewOpTruth(*truth),
			deconv.NewOpNaive(true),
			ops.NewOpSave(*out),
			preview(),
		))

	case "fb":
		opts := sparse.Options{Lambda: *lambda, NIter: *nIter, Gamma: *gamma}
		err = runSequence(c, ops.NewOpSequence(
			ops.NewOpLoadMany(args[1:]),
			psfOperator(),
			deconv.NewOpTruth(*truth),
			deconv.NewOpForwardBackward(opts, *autoGamma, *firstGuess, *costPlot),
			ops.NewOpSave(*out),
			preview(),
		))

	case "fitpsf":
		err = cmdFitPSF(args[1:], logWriter)

	case "demo":
		err = cmdDemo(logWriter)

	case "illcond":
		err = cmdIllCond(logWriter)

	case "job":
		err = cmdJob(args[1:], c)

	case "serve":
		if err = rest.MakeSandbox(*chroot, *setuid); err == nil {
			err = rest.Serve(*addr, rest.Options{MaxThreads: *maxThreads, MemoryMB: int(totalMiBs)})
		}

	case "legal":
		nl.LogPrint(legal)

	case "version":
		cmdVersion(logWriter)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	elapsed := time.Since(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	nl.LogSync()
}

func producesOutput(cmd string) bool {
	switch cmd {
	case "psf", "blur", "naive", "fb":
		return true
	}
	return false
}

// PSF from file if given, else gaussian with the sigma flag
func psfOperator() ops.Operator {
	if *psfFile != "" {
		return deconv.NewOpPSFLoad(*psfFile, true)
	}
	return deconv.NewOpPSFGaussian(*sigma)
}

func preview() ops.Operator {
	o := render.DefaultOptions()
	o.Colormap = *colormap
	return deconv.NewOpRender(*png, o)
}

// Prints the settings of a sequence and runs it
func runSequence(c *ops.Context, seq *ops.OpSequence) error {
	m, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "Running with these settings:\n%s\n", string(m))
	return ops.RunJob(seq, c)
}

// Writes a gaussian PSF to the output file
func cmdPSF(c *ops.Context) error {
	k, err := psf.MakeGaussian(*width, *height, *sigma)
	if err != nil {
		return err
	}
	f := fits.NewImageFromPlane(k)
	f.Header.AddHistory("psf gaussian sigma=%g", *sigma)
	fmt.Fprintf(c.Log, "Gaussian PSF %dx%d with sigma %g, FWHM %.4g pixels\n", *width, *height, *sigma, psf.FWHM(*sigma))
	_, err = ops.NewOpSave(*out).Apply(f, c)
	return err
}

// Fits a gaussian to each given PSF file
func cmdFitPSF(fileNames []string, logWriter io.Writer) error {
	if len(fileNames) == 0 {
		return errors.New("no PSF files given")
	}
	for i, fileName := range fileNames {
		k, err := ops.LoadPlane(fileName, i, logWriter)
		if err != nil {
			return err
		}
		s, err := psf.FitGaussianSigma(k)
		if err != nil {
			return fmt.Errorf("%d: %w", i, err)
		}
		fmt.Fprintf(logWriter, "%d: %s has sigma %.4g, FWHM %.4g pixels\n", i, fileName, s, psf.FWHM(s))
	}
	return nil
}

// Loads and runs job files
func cmdJob(fileNames []string, c *ops.Context) error {
	if len(fileNames) == 0 {
		return errors.New("no job file given")
	}
	for _, fileName := range fileNames {
		op, err := ops.LoadJobFile(fileName)
		if err != nil {
			return err
		}
		m, err := json.MarshalIndent(op, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Log, "Running job %s:\n%s\n", fileName, string(m))
		if err := ops.RunJob(op, c); err != nil {
			return fmt.Errorf("job %s: %w", fileName, err)
		}
	}
	return nil
}

// Shows how perturbations are amplified by ill-conditioned linear systems and blur kernels
func cmdIllCond(logWriter io.Writer) error {
	a, b, db := illcond.NearlySingularExample()
	r, err := illcond.Conditioning(a, b, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Nearly singular system: %v\n", r)

	a, b, db = illcond.SingularExample()
	r, err = illcond.Conditioning(a, b, db)
	if !errors.Is(err, illcond.ErrSingular) {
		return fmt.Errorf("singular system not detected: %v", err)
	}
	fmt.Fprintf(logWriter, "Singular system: cond %.4g rank %d, %s\n", r.Cond, r.Rank, err.Error())

	for _, s := range []float64{0.5, 1, 2, 3} {
		k, err := psf.MakeGaussian(*width, *height, s)
		if err != nil {
			return err
		}
		cond, minMag, maxMag := illcond.KernelConditioning(k)
		fmt.Fprintf(logWriter, "Gaussian PSF sigma %.1f: spectrum magnitudes in [%.3g, %.3g], condition %.3g\n", s, minMag, maxMag, cond)
	}
	return nil
}

func cmdVersion(logWriter io.Writer) {
	fmt.Fprintf(logWriter, "Version %s\n", version)
	fmt.Fprintf(logWriter, "CPU %s with %d physical and %d logical cores, %d MiB memory\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, totalMiBs)
	fmt.Fprintf(logWriter, "CPU features %s\n", strings.Join(cpuid.CPU.Features.Strings(), ","))
	fmt.Fprintf(logWriter, "AVX2 %v, cache line %d bytes\n", cpuid.CPU.AVX2(), cpuid.CPU.CacheLine)
}
