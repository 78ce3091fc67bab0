// Command obiamerge loads image objects from a shapefile, merges them and
// labels them according to a JSON ruleset, then writes the result out.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wgdzlh/obialib"
	"github.com/wgdzlh/obialib/log"
	"github.com/wgdzlh/obialib/mergelog"
	"github.com/wgdzlh/obialib/obia"
	"github.com/wgdzlh/obialib/ruleset"

	"go.uber.org/zap"
)

type options struct {
	in       string
	out      string
	config   string
	idField  string
	srid     int
	geoJSON  string
	mergeLog string
	simplify float64
	tmpDir   string
	logLevel string
}

func parseFlags(args []string) (opts options, err error) {
	fs := flag.NewFlagSet("obiamerge", flag.ContinueOnError)
	fs.StringVar(&opts.in, "in", "", "input shapefile of image objects")
	fs.StringVar(&opts.out, "out", "", "output shapefile")
	fs.StringVar(&opts.config, "config", "", "ruleset JSON file")
	fs.StringVar(&opts.idField, "id-field", "", "object id column (default: FID)")
	fs.IntVar(&opts.srid, "srid", 0, "reproject input to this EPSG code before processing")
	fs.StringVar(&opts.geoJSON, "geojson", "", "also write a GeoJSON feature collection")
	fs.StringVar(&opts.mergeLog, "mergelog", "", "SQLite file recording every merge")
	fs.Float64Var(&opts.simplify, "simplify", 0, "simplify output geometries with this tolerance")
	fs.StringVar(&opts.tmpDir, "tmp", "", "work directory for intermediate shapefiles")
	fs.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	if err = fs.Parse(args); err != nil {
		return
	}
	switch {
	case opts.in == "":
		err = fmt.Errorf("-in is required")
	case opts.out == "" && opts.geoJSON == "":
		err = fmt.Errorf("one of -out or -geojson is required")
	case opts.config == "":
		err = fmt.Errorf("-config is required")
	case opts.simplify < 0:
		err = fmt.Errorf("-simplify must not be negative")
	}
	return
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err = log.SetLevel(opts.logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "bad -log-level:", err)
		os.Exit(2)
	}
	err = run(opts)
	if err != nil {
		log.Error("obiamerge failed", zap.Error(err))
	}
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(opts options) (err error) {
	cfg, err := ruleset.Load(opts.config)
	if err != nil {
		return
	}
	var tmp []string
	if opts.tmpDir != "" {
		tmp = append(tmp, opts.tmpDir)
	}
	g := obialib.NewGdalToolbox(tmp...)

	ios, srid, err := g.LoadImageObjects(opts.in, obialib.LoadOptions{
		IDField:     opts.idField,
		ValueFields: cfg.ValueFields,
		Srid:        opts.srid,
	})
	if err != nil {
		return
	}
	defer ios.Destroy()

	if cfg.Merge != nil {
		if err = merge(ios, cfg, opts.mergeLog); err != nil {
			return
		}
	}
	ios.CalcCompactness()
	if _, err = cfg.Classify(ios); err != nil {
		return
	}
	g.SimplifyImageObjects(ios, opts.simplify)

	if opts.out != "" {
		if err = g.WriteImageObjects(opts.out, srid, ios); err != nil {
			return
		}
	}
	if opts.geoJSON != "" {
		err = ios.WriteGeoJSON(opts.geoJSON)
	}
	return
}

func merge(ios *obia.ImageObjects, cfg *ruleset.Config, logPath string) (err error) {
	mo := *cfg.Merge
	if len(cfg.SeedRules) > 0 {
		if _, err = ios.MergeSeeds(cfg.SeedRules); err != nil {
			return
		}
	}
	var ml *mergelog.Log
	if logPath != "" {
		if ml, err = mergelog.Open(logPath); err != nil {
			return
		}
		defer ml.Close()
		mo.Recorder = ml
	}
	sum, err := ios.PseudoMerge(mo)
	if err != nil {
		return
	}
	if ml != nil {
		if e := ml.Finish(sum); e != nil {
			log.Warn("merge summary not recorded", zap.String("run", ml.RunID()), zap.Error(e))
		}
	}
	return
}
