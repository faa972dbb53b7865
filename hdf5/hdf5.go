// Package hdf5 runs flock simulations headless and records them to HDF5 files.
package hdf5

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/PrincetonUniversity/flock"
	"github.com/google/uuid"
	"github.com/sbinet/go-hdf5"
	"gonum.org/v1/gonum/spatial/r2"
)

// A Dataset stipulates how to generate data and where to store them in the HDF5 file.
type Dataset struct {
	// Name the name of the dataset in the HDF5 file.
	Name string

	// Val is a value of the same concrete type as the underlying type of the data.
	Val interface{}

	// Dims are the dimensions of the data for a single step.
	Dims []int

	// Data is a function that produces the data
	// as a pointer to a slice of row-major concrete values.
	Data func(s *flock.Simulation) interface{}

	dset   *hdf5.Dataset
	fspace *hdf5.Dataspace
	mspace *hdf5.Dataspace
}

// Config holds the parameters of the HDF5 driver.
type Config struct {
	Output   string       // path of output file
	Steps    int          // total number of ticks
	Pointer  r2.Vec       // fixed pointer position, in world units
	Datasets []*Dataset   // list of datasets, Boids when empty
	Progress io.Writer    // receives a percentage while running, may be nil
	Log      *slog.Logger // may be nil
}

// A dataPoint is what is recorded in the HDF5 file for each boid at each step.
// This structure is mapped to a compound datatype in HDF5 so member names are important.
type dataPoint struct {
	Pos   r2.Vec // position
	Vel   r2.Vec // velocity
	Group int    // color group
}

// Boids returns the dataset of positions, velocities and groups of n boids.
func Boids(n int) *Dataset {
	buf := make([]dataPoint, n)
	return &Dataset{
		Name: "boids",
		Val:  dataPoint{},
		Dims: []int{n},
		Data: func(s *flock.Simulation) interface{} {
			for i, b := range s.Boids() {
				buf[i] = dataPoint{Pos: b.Pos, Vel: b.Vel, Group: b.Group}
			}
			return &buf
		},
	}
}

// Run ticks s conf.Steps times at a fixed frame interval and saves data to an HDF5 file.
// The flock size must not change during the run.
func Run(s *flock.Simulation, conf *Config) (err error) {
	if err := os.MkdirAll(filepath.Dir(conf.Output), 0755); err != nil {
		return err
	}
	log := conf.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	datasets := conf.Datasets
	if len(datasets) == 0 {
		datasets = []*Dataset{Boids(s.Len())}
	}

	file, err := hdf5.CreateFile(conf.Output, hdf5.F_ACC_TRUNC)
	if err != nil {
		return err
	}
	defer checkClose(&err, file)

	id := uuid.NewString()
	if err := saveConfig(file, s.Config(), id); err != nil {
		return fmt.Errorf("hdf5: saving config: %w", err)
	}

	for _, d := range datasets {
		if err := d.init(file, conf.Steps); err != nil {
			return fmt.Errorf("hdf5: creating dataset %s: %w", d.Name, err)
		}
		defer checkClose(&err, d)
	}

	log.Info("recording", "output", conf.Output, "steps", conf.Steps, "boids", s.Len(), "run", id)
	n := s.Len()
	for k := uint(0); k < uint(conf.Steps); k++ {
		if conf.Progress != nil {
			fmt.Fprintf(conf.Progress, "\r% 3d%%", 100*k/uint(conf.Steps))
		}

		for _, d := range datasets {
			start := make([]uint, len(d.Dims)+1)
			start[0] = k
			if err := d.fspace.SetOffset(start); err != nil {
				return err
			}
			if err := d.dset.WriteSubset(d.Data(s), d.mspace, d.fspace); err != nil {
				return err
			}
		}

		s.Tick(float64(k)*flock.FrameMs, conf.Pointer)
		if s.Len() != n {
			return fmt.Errorf("hdf5: flock size changed from %d to %d at step %d", n, s.Len(), k)
		}
	}
	if conf.Progress != nil {
		fmt.Fprintf(conf.Progress, "\r100%%\n")
	}
	log.Info("recorded", "output", conf.Output, "run", id)
	return nil
}

// saveConfig creates a "config" dataset with a null dataspace whose attributes
// reflect the whole configuration plus some other appropriate metadata.
func saveConfig(file *hdf5.File, conf flock.Config, id string) (err error) {
	null, err := hdf5.CreateDataspace(hdf5.S_NULL)
	if err != nil {
		return err
	}

	anytype, err := hdf5.NewDatatypeFromValue(0)
	if err != nil {
		return err
	}
	defer checkClose(&err, anytype)

	dset, err := file.CreateDataset("config", anytype, null)
	if err != nil {
		return err
	}
	defer checkClose(&err, dset)

	var text bytes.Buffer
	if err := toml.NewEncoder(&text).Encode(conf); err != nil {
		return err
	}
	meta := []struct {
		name string
		val  interface{}
	}{
		{"Time", time.Now().String()},
		{"RunID", id},
		{"TOML", text.String()},
	}
	for _, m := range meta {
		if err := writeAttr(dset, m.name, m.val); err != nil {
			return err
		}
	}
	return flatten(reflect.ValueOf(conf), "", func(name string, v interface{}) error {
		return writeAttr(dset, name, v)
	})
}

// flatten calls fn for every scalar field of the struct v,
// naming nested fields with dotted paths.
func flatten(v reflect.Value, prefix string, fn func(name string, v interface{}) error) error {
	for i := 0; i < v.NumField(); i++ {
		f, name := v.Field(i), prefix+v.Type().Field(i).Name
		var err error
		switch f.Kind() {
		case reflect.Struct:
			err = flatten(f, name+".", fn)
		case reflect.Bool:
			b := 0
			if f.Bool() {
				b = 1
			}
			err = fn(name, b)
		case reflect.Int, reflect.Int64:
			err = fn(name, f.Int())
		case reflect.Float64:
			err = fn(name, f.Float())
		case reflect.String:
			err = fn(name, f.String())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeAttr writes a scalar attribute named name on dset.
func writeAttr(dset *hdf5.Dataset, name string, val interface{}) (err error) {
	dtype, err := hdf5.NewDatatypeFromValue(val)
	if err != nil {
		return err
	}
	defer checkClose(&err, dtype)

	scalar, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		return err
	}
	defer checkClose(&err, scalar)

	attr, err := dset.CreateAttribute(name, dtype, scalar)
	if err != nil {
		return err
	}
	defer checkClose(&err, attr)

	// Write wants a pointer to the value
	ptr := reflect.New(reflect.TypeOf(val))
	ptr.Elem().Set(reflect.ValueOf(val))
	return attr.Write(ptr.Interface(), dtype)
}

// init creates the dataset and its dataspaces.
func (d *Dataset) init(file *hdf5.File, steps int) (err error) {
	dtype, err := hdf5.NewDatatypeFromValue(d.Val)
	if err != nil {
		return err
	}
	defer checkClose(&err, dtype)

	udims := make([]uint, len(d.Dims)+1)
	udims[0] = uint(steps)
	for i, n := range d.Dims {
		udims[i+1] = uint(n)
	}

	d.fspace, err = hdf5.CreateSimpleDataspace(udims, nil)
	if err != nil {
		return err
	}

	start := make([]uint, len(udims))
	count := make([]uint, len(udims))
	copy(count, udims)
	count[0] = 1

	if err := d.fspace.SelectHyperslab(start, nil, count, nil); err != nil {
		checkClose(&err, d.fspace)
		return err
	}

	if len(d.Dims) == 0 {
		d.mspace, err = hdf5.CreateDataspace(hdf5.S_SCALAR)
	} else {
		d.mspace, err = hdf5.CreateSimpleDataspace(udims[1:], nil)
	}
	if err != nil {
		checkClose(&err, d.fspace)
		return err
	}

	d.dset, err = file.CreateDataset(d.Name, dtype, d.fspace)
	if err != nil {
		checkClose(&err, d.fspace)
		checkClose(&err, d.mspace)
	}

	return err
}

// Close closes the HDF5 dataset and Dataspaces.
func (d *Dataset) Close() error {
	if err := d.dset.Close(); err != nil {
		return err
	}
	if err := d.mspace.Close(); err != nil {
		return err
	}
	return d.fspace.Close()
}

// checkClose checks for errors in deferred calls.
func checkClose(err *error, c io.Closer) {
	if cerr := c.Close(); *err == nil {
		*err = cerr
	}
}
