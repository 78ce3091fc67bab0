package obia

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wgdzlh/obialib/log"
	"github.com/wgdzlh/obialib/utils"

	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

const idSep = ','

// FormatNeighborValues renders cached neighbor values as "id:value,id:value".
func FormatNeighborValues(nv []NeighborValue) string {
	var sb strings.Builder
	for i, n := range nv {
		if i > 0 {
			sb.WriteByte(idSep)
		}
		sb.WriteString(strconv.FormatInt(n.ID, 10))
		sb.WriteByte(':')
		sb.WriteString(utils.FormatFloat(n.Value))
	}
	return sb.String()
}

// ParseNeighborValues is the inverse of FormatNeighborValues; malformed items are skipped.
func ParseNeighborValues(s string) (nv []NeighborValue) {
	if s == "" {
		return
	}
	for _, item := range strings.Split(s, string(idSep)) {
		id, v, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		i, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		nv = append(nv, NeighborValue{ID: i, Value: f})
	}
	return
}

// ExportRecord is the flat attribute view of one object used by writers.
type ExportRecord struct {
	ID         ObjectID
	Values     map[string]float64
	Texts      map[string]string
	Class      string
	Neighbors  string
	MergePath  string
	MergeCount int
	// neighbor values keyed by NeighborValueField(field)
	NeighborValues map[string]string
}

// Record flattens o for export. Unset neighbor lists render as "".
func (ios *ImageObjects) Record(o *Object) ExportRecord {
	rec := ExportRecord{
		ID:             o.ID,
		Values:         o.Values,
		Texts:          o.Texts,
		Class:          o.Class,
		MergeCount:     o.MergeCount,
		NeighborValues: make(map[string]string, len(ios.nvFields)),
	}
	if o.nebsKnown {
		rec.Neighbors = utils.Int64sToStr(o.nebs, idSep)
	}
	rec.MergePath = utils.Int64sToStr(o.MergePath, idSep)
	for _, f := range ios.nvFields {
		if nv, ok := o.neighborValues(f); ok {
			rec.NeighborValues[NeighborValueField(f)] = FormatNeighborValues(nv)
		}
	}
	return rec
}

// GeoJSON builds a feature collection of the live objects.
func (ios *ImageObjects) GeoJSON() (fc *geojson.FeatureCollection, err error) {
	fc = geojson.NewFeatureCollection()
	for _, o := range ios.order {
		if o.absorbed {
			continue
		}
		var raw []byte
		if raw, err = o.Geom.WKB(); err != nil {
			err = fmt.Errorf("object %d to wkb: %w", o.ID, err)
			return nil, err
		}
		g, e := wkb.Unmarshal(raw)
		if e != nil {
			err = fmt.Errorf("object %d from wkb: %w", o.ID, e)
			return nil, err
		}
		f := geojson.NewFeature(g)
		f.ID = o.ID
		rec := ios.Record(o)
		for k, v := range rec.Values {
			// NaN is not valid json
			if math.IsNaN(v) || math.IsInf(v, 0) {
				f.Properties[k] = nil
				continue
			}
			f.Properties[k] = v
		}
		for k, v := range rec.Texts {
			f.Properties[k] = v
		}
		if rec.Class != "" {
			f.Properties[ClassField] = rec.Class
		}
		if o.nebsKnown {
			f.Properties[NeighborsField] = rec.Neighbors
		}
		f.Properties[MergePathField] = rec.MergePath
		f.Properties[MergeCountFld] = rec.MergeCount
		for k, v := range rec.NeighborValues {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return
}

// WriteGeoJSON writes the live objects as a feature collection. A path
// without extension gets ".geojson".
func (ios *ImageObjects) WriteGeoJSON(path string) (err error) {
	if filepath.Ext(path) == "" {
		path += utils.FILE_EXT_JSON
	}
	fc, err := ios.GeoJSON()
	if err != nil {
		return
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return
	}
	if err = os.WriteFile(path, data, 0644); err != nil {
		log.Error(ios.logTag+"write geojson failed", zap.String("path", path), zap.Error(err))
		return
	}
	log.Info(ios.logTag+"geojson written", zap.String("path", path), zap.Int("features", len(fc.Features)))
	return
}
