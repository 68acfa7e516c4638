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

package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pbnjay/memory"

	"github.com/mlnoga/deconv/internal/fits"
	"github.com/mlnoga/deconv/internal/npy"
	"github.com/mlnoga/deconv/internal/plane"
	"github.com/mlnoga/deconv/internal/psf"
	"github.com/mlnoga/deconv/internal/render"
)

// An execution context for operators
type Context struct {
	Log        io.Writer
	MemoryMB   int `json:"memoryMB"`   // memory.TotalMemory()/1024/1024
	MaxThreads int `json:"maxThreads"` // images materialized concurrently

	PSF      *plane.Plane // point spread function loaded from file, if any
	PSFSigma float64      // else sigma of a gaussian PSF generated to match each image
	Truth    *plane.Plane // ground truth for error metrics, if known

	OnSolve func(iterations int) // called after each solver run, e.g. for metrics

	mutex    sync.Mutex
	gaussian *plane.Plane // cached gaussian PSF of the most recent sigma
	gaussSig float64
}

func NewContext(log io.Writer) *Context {
	return &Context{
		Log:        log,
		MemoryMB:   int(memory.TotalMemory() / 1024 / 1024),
		MaxThreads: 1,
	}
}

// The point spread function selected at some step of an operator sequence
type PSFSource struct {
	PSF   *plane.Plane // PSF loaded from file, if any
	Sigma float64      // else sigma of a gaussian PSF generated to match each image
}

func (s PSFSource) String() string {
	if s.PSF != nil {
		return fmt.Sprintf("%dx%d PSF", s.PSF.Width, s.PSF.Height)
	}
	if s.Sigma > 0 {
		return fmt.Sprintf("gaussian PSF sigma %.4g", s.Sigma)
	}
	return "no PSF"
}

// Returns the PSF currently selected in the context. Operators reading the PSF take this
// when building their promises, as later PSF operators change the context before materialization
func (c *Context) PSFSource() PSFSource {
	return PSFSource{PSF: c.PSF, Sigma: c.PSFSigma}
}

// Returns the point spread function currently selected, for images of the given size
func (c *Context) Kernel(width, height int) (*plane.Plane, error) {
	return c.KernelFrom(c.PSFSource(), width, height)
}

// Returns the point spread function of the given source for images of the given size
func (c *Context) KernelFrom(src PSFSource, width, height int) (*plane.Plane, error) {
	if src.PSF != nil {
		if src.PSF.Width != width || src.PSF.Height != height {
			return nil, fmt.Errorf("PSF is %dx%d, image is %dx%d: %w", src.PSF.Width, src.PSF.Height, width, height, plane.ErrShapeMismatch)
		}
		return src.PSF, nil
	}
	if src.Sigma > 0 {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		if g := c.gaussian; g != nil && g.Width == width && g.Height == height && c.gaussSig == src.Sigma {
			return g, nil
		}
		k, err := psf.MakeGaussian(width, height, src.Sigma)
		if err != nil {
			return nil, err
		}
		c.gaussian, c.gaussSig = k, src.Sigma
		return k, nil
	}
	return nil, errors.New("no PSF given")
}

// Bytes per pixel held by a solver run: planes for observation, kernel, estimate, gradient,
// residuals, plus the complex spectra of the kernel, its adjoint and the transform buffers
const solverBytesPerPixel = 8*8 + 16*4

// Warns if solving an image of the given size may exceed physical memory
func (c *Context) CheckMemory(id, width, height int) {
	if c.MemoryMB <= 0 {
		return
	}
	neededMB := width * height * solverBytesPerPixel / 1024 / 1024
	if availMB := c.MemoryMB * 7 / 10; neededMB > availMB {
		fmt.Fprintf(c.Log, "%d: Warning: solver needs about %d MB, more than %d MB of %d MB physical memory\n",
			id, neededMB, availMB, c.MemoryMB)
	}
}

// A promise for a FITS image. Returns a materialized image, or an error
type Promise func() (f *fits.Image, err error)

// Materializes all promises with given concurrency limit
func MaterializeAll(ins []Promise, maxThreads int, forget bool) (outs []*fits.Image, err error) {
	if len(ins) == 0 {
		return nil, nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	if !forget {
		outs = make([]*fits.Image, len(ins))
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, len(ins))
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			f, err := theIn() // materialize the promise
			if err != nil {
				errs <- err
				return
			}
			if !forget {
				outs[i] = f
			}
			errs <- nil
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < len(ins); i++ { // collect errors
		if e := <-errs; e != nil {
			if err == nil {
				err = e
			} else {
				err = fmt.Errorf("%s; %s", err.Error(), e.Error())
			}
		}
	}
	return RemoveNils(outs), err
}

// Remove nils from an array of fits.Images, editing the underlying array in place
func RemoveNils(images []*fits.Image) []*fits.Image {
	o := 0
	for i := 0; i < len(images); i++ {
		if images[i] != nil {
			images[o] = images[i]
			o++
		}
	}
	for i := o; i < len(images); i++ {
		images[i] = nil
	}
	return images[:o]
}

// An general image processing operator: takes n promises as inputs,
// and produces m promises as output or an error
type Operator interface {
	GetType() string
	IsActive() bool
	MakePromises(ins []Promise, c *Context) (outs []Promise, err error)
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for subclasses of unary operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from unary operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of UnaryOperator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// A unary image processing operator: given n promises as inputs,
// applies itself to each of them individually and returns n output promises or an error
type OperatorUnary interface {
	Operator
	Apply(f *fits.Image, c *Context) (fOut *fits.Image, err error)
}

// Abstract base type for unary operators. Uses golang workaround for abstract classes
// from https://golangbyexample.com/go-abstract-class/
type OpUnaryBase struct {
	OpBase
	Apply func(f *fits.Image, c *Context) (fOut *fits.Image, err error) `json:"-"`
}

func (op *OpUnaryBase) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return nil, fmt.Errorf("%s operator with %d inputs", op.Type, len(ins))
	}
	outs = make([]Promise, len(ins))
	for i, in := range ins {
		outs[i] = op.MakePromise(in, c)
	}
	return outs, nil
}

func (op *OpUnaryBase) MakePromise(in Promise, c *Context) (out Promise) {
	return func() (f *fits.Image, err error) {
		if f, err = in(); err != nil {
			return nil, err
		} // materialize input promise
		if f, err = op.Apply(f, c); err != nil {
			return nil, err
		} // apply unary operator
		return f, nil // wrap output in promise
	}
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func isPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false
	} // relative paths only
	if strings.Contains(p, "..") {
		return false
	} // no going outside the tree
	return true
}

// Set to false to allow absolute paths and parent directories, e.g. for the command line
var RestrictPaths = true

// Checks a file name against the path restrictions
func CheckPath(p string) error {
	if RestrictPaths && !isPathAllowed(p) {
		return fmt.Errorf("file name %s outside current directory tree, aborting", p)
	}
	return nil
}

// True for NumPy file names, including archive:member selectors
func IsNumPy(fileName string) bool {
	l := strings.ToLower(fileName)
	return strings.HasSuffix(l, ".npy") || strings.HasSuffix(l, ".npz") || strings.Contains(l, ".npz:")
}

// Loads a two-dimensional array from FITS, TIFF, .npy or .npz
func LoadPlane(fileName string, id int, log io.Writer) (*plane.Plane, error) {
	if IsNumPy(fileName) {
		return npy.Lookup(fileName)
	}
	f, err := fits.NewImageFromFile(fileName, id, log)
	if err != nil {
		return nil, err
	}
	return f.ToPlane()
}

// Load a single image from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID       int    `json:"id"`
	FileName string `json:"fileName"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadDefault() }) } // register the operator for JSON decoding

func NewOpLoadDefault() *OpLoad { return NewOpLoad(0, "") }

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase:   OpBase{Type: "load", Active: true},
		ID:       id,
		FileName: fileName,
	}
}

// Load image from a file. Ignores any f argument provided
func (op *OpLoad) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	if err := CheckPath(op.FileName); err != nil {
		return nil, err
	}

	out := func() (f *fits.Image, err error) {
		// no inputs to materialize
		return op.Apply(nil, c)
	}
	return []Promise{out}, nil
}

func (op *OpLoad) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if IsNumPy(op.FileName) {
		p, err := npy.Lookup(op.FileName)
		if err != nil {
			return nil, fmt.Errorf("%d: %w", op.ID, err)
		}
		f = fits.NewImageFromPlane(p)
		f.ID, f.FileName = op.ID, op.FileName
	} else {
		f, err = fits.NewImageFromFile(op.FileName, op.ID, c.Log)
		if err != nil {
			return nil, err
		}
	}

	warning := ""
	if f.Stats.Max()-f.Stats.Min() < 1e-8 {
		warning = "; WARNING low dynamic range"
	}

	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s%s\n",
		f.ID, f.DimensionsToString(), f.Stats, f.FileName, warning)
	return f, nil
}

// Load many images from a slice of filename patterns with wildcards.
// Takes zero inputs, produces n outputs
type OpLoadMany struct {
	OpBase
	FilePatterns []string `json:"filePatterns"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpLoadManyDefault() }) } // register the operator for JSON decoding

func NewOpLoadManyDefault() *OpLoadMany { return NewOpLoadMany(nil) }

func NewOpLoadMany(filePatterns []string) *OpLoadMany {
	return &OpLoadMany{
		OpBase:       OpBase{Type: "loadMany", Active: true},
		FilePatterns: filePatterns,
	}
}

// Turn filename wildcards into list of file load operators
func (op *OpLoadMany) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) > 0 {
		return nil, fmt.Errorf("%s operator with non-zero input", op.Type)
	}
	for _, pattern := range op.FilePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			if CheckPath(match) != nil {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			opLoad := NewOpLoad(len(outs), match)
			promises, err := opLoad.MakePromises(nil, c)
			if err != nil {
				return nil, err
			}
			if len(promises) != 1 {
				return nil, fmt.Errorf("%s operator did not return exactly one promise", opLoad.Type)
			}
			outs = append(outs, promises[0])
		}
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s operator with no files to load from pattern %v", op.Type, op.FilePatterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(outs))
	return outs, nil
}

// Saves given promise under a given filename, with pattern expansion for %d based on the image id.
// Takes one input, produces one output (the materialized but unchanged input)
type OpSave struct {
	OpUnaryBase
	FilePattern string `json:"filePattern"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSaveDefault() }) } // register the operator for JSON decoding

func NewOpSaveDefault() *OpSave { return NewOpSave("") }

func NewOpSave(filenamePattern string) *OpSave {
	op := OpSave{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "save", Active: filenamePattern != ""}},
		FilePattern: filenamePattern,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpSave) UnmarshalJSON(data []byte) error {
	type defaults OpSave
	def := defaults(*NewOpSaveDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpSave(def)
	op.OpUnaryBase.Apply = op.Apply
	return nil
}

// Expands %d in the pattern with the image ID
func ExpandPattern(pattern string, id int) string {
	if strings.Contains(pattern, "%d") {
		return fmt.Sprintf(pattern, id)
	}
	return pattern
}

func (op *OpSave) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active || op.FilePattern == "" {
		return f, nil
	}
	fileName := ExpandPattern(op.FilePattern, f.ID)
	if err := CheckPath(fileName); err != nil {
		return nil, err
	}
	fnLower := strings.ToLower(fileName)

	switch ext := filepath.Ext(fnLower); ext {
	case ".fits", ".fit", ".fts", ".tif", ".tiff":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel %s to %s\n", f.ID, f.DimensionsToString(), strings.ToUpper(ext[1:]), fileName)
		err = f.WriteFile(fileName)
	case ".npy":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel NumPy array to %s\n", f.ID, f.DimensionsToString(), fileName)
		var p *plane.Plane
		if p, err = f.ToPlane(); err == nil {
			err = npy.WriteFile(fileName, p)
		}
	case ".png", ".jpg", ".jpeg":
		fmt.Fprintf(c.Log, "%d: Writing %s pixel image to %s\n", f.ID, f.DimensionsToString(), fileName)
		var p *plane.Plane
		if p, err = f.ToPlane(); err == nil {
			err = render.RenderToFile(fileName, p, render.DefaultOptions())
		}
	default:
		err = errors.New("unknown suffix")
	}
	if err != nil {
		return nil, fmt.Errorf("%d: Error writing to file %s: %w", f.ID, fileName, err)
	}
	return f, nil
}

// Applies a sequence of operators to a promise. Number of inputs, outputs as per the chained steps
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	def := alias(*NewOpSequenceDefault())
	def.Active = true
	if err := json.Unmarshal(b, &def); err != nil {
		return err
	}
	*op = OpSequence(def)

	for _, raw := range op.StepsRaw {
		step, err := UnmarshalOperator(raw)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, step)
	}
	op.StepsRaw = nil
	return nil
}

// Decodes a single polymorphic operator from JSON, based on its type field
func UnmarshalOperator(raw []byte) (Operator, error) {
	var base OpBase
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	factory := GetOperatorFactory(base.Type)
	if factory == nil {
		return nil, fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", base.Type, string(raw))
	}
	op := factory()
	if err := json.Unmarshal(raw, op); err != nil {
		return nil, err
	}
	return op, nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	inner, err = json.Marshal(op.Steps)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	return op.applyRecursive(op.Steps, ins, c)
}

func (op *OpSequence) applyRecursive(steps []Operator, ins []Promise, c *Context) (outs []Promise, err error) {
	if len(steps) == 0 {
		return ins, nil
	}
	if steps[0].IsActive() {
		ins, err = steps[0].MakePromises(ins, c)
		if err != nil {
			return nil, err
		}
	}
	return op.applyRecursive(steps[1:], ins, c)
}

// Applies a single operator to each input.Takes n inputs, produces n outputs
type OpForEach struct {
	OpBase
	Operation    Operator        `json:"-"`
	OperationRaw json.RawMessage `json:"operation"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpForEachDefault() }) } // register the operator for JSON decoding

func NewOpForEachDefault() *OpForEach { return NewOpForEach(nil) }

func NewOpForEach(operation Operator) *OpForEach {
	return &OpForEach{
		OpBase:    OpBase{Type: "forEach", Active: operation != nil},
		Operation: operation,
	}
}

// Unmarshals the polymorphic embedded operation from JSON
func (op *OpForEach) UnmarshalJSON(b []byte) error {
	type alias OpForEach
	def := alias(*NewOpForEachDefault())
	def.Active = true
	if err := json.Unmarshal(b, &def); err != nil {
		return err
	}
	*op = OpForEach(def)
	if len(op.OperationRaw) > 0 {
		operation, err := UnmarshalOperator(op.OperationRaw)
		if err != nil {
			return err
		}
		op.Operation, op.OperationRaw = operation, nil
	}
	return nil
}

func (op *OpForEach) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OpBase
		Operation Operator `json:"operation"`
	}{op.OpBase, op.Operation})
}

// Applies the embedded operation to every input individually
func (op *OpForEach) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if len(ins) == 0 {
		return ins, nil
	}
	if op.Operation == nil {
		return nil, fmt.Errorf("%s operator has no operation to apply", op.Type)
	}
	for _, in := range ins {
		out, err := op.Operation.MakePromises([]Promise{in}, c)
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s operator needs exactly one promise from embedded operation", op.Type)
		}
		outs = append(outs, out[0])
	}
	return outs, nil
}
