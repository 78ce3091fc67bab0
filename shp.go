package obialib

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wgdzlh/obialib/log"
	"github.com/wgdzlh/obialib/obia"
	"github.com/wgdzlh/obialib/utils"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

type colKind uint8

const (
	colSkip colKind = iota
	colNumber
	colText
)

type shpColumn struct {
	idx  int
	name string
	kind colKind
}

// 非UTF-8文本按GBK解码，仍失败则剔除非法字节
func decodeShpStr(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	if d, e := utils.GbkStrToUtf8(s); e == nil && utf8.ValidString(d) {
		return d
	}
	return utils.PurifyForUtf8(s)
}

func readColumns(def gdal.FeatureDefinition) []shpColumn {
	n := def.FieldCount()
	cols := make([]shpColumn, 0, n)
	for i := 0; i < n; i++ {
		fd := def.FieldDefinition(i)
		c := shpColumn{idx: i, name: decodeShpStr(fd.Name())}
		switch fd.Type() {
		case gdal.FT_Integer, gdal.FT_Integer64, gdal.FT_Real:
			c.kind = colNumber
		case gdal.FT_String:
			c.kind = colText
		}
		cols = append(cols, c)
	}
	return cols
}

func columnIndex(cols []shpColumn, name string) int {
	for _, c := range cols {
		if strings.EqualFold(c.name, name) {
			return c.idx
		}
	}
	return -1
}

// 转换shp文件的文本编码为UTF-8，结果输出到outDir
func (g *GdalToolbox) EncodingShapefile(shp, cpg, outDir string) (out string, err error) {
	if cpg == SHAPE_ENCODING || cpg == UTF8_ENC {
		out = shp
		return
	}
	// cpg为空，或者不为UTF-8的，都当作GBK编码处理
	oo := OO_ENCODING
	if cpg != "" {
		oo = "ENCODING=" + cpg
	} else {
		cpg = ZH_ENC
	}
	sds, err := gdal.OpenEx(shp, gdal.OFVector, nil, []string{oo}, nil)
	if err != nil {
		log.Error(g.logTag+"open shp error", zap.Error(err))
		return
	}
	defer sds.Close()
	log.Info(g.logTag+"start encoding shp", zap.String("shp", shp), zap.String("cpg", cpg))
	out = filepath.Join(outDir, fmt.Sprintf("%s_%s%s", utils.GetFilenameWithoutExt(shp), cpg, utils.FILE_EXT_SHP))
	dds, err := gdal.VectorTranslate(out, []gdal.Dataset{sds}, []string{"-lco", ENCODING_OPTION})
	if err != nil {
		log.Error(g.logTag+"VectorTranslate failed", zap.Error(err))
		return
	}
	dds.Close() // 生成转换后的shp文件
	log.Info(g.logTag+"end encoding shp", zap.String("shp", out))
	return
}

// 转换整个shp文件的坐标系，结果输出到outDir；源文件保留
func (g *GdalToolbox) TransformShapefile(shp string, tSrid int, outDir string) (out string, err error) {
	srid, err := g.GetSridOfShapefile(shp)
	if err != nil || srid == tSrid {
		out = shp
		return
	}
	sds, err := gdal.OpenEx(shp, gdal.OFVector, nil, nil, nil)
	if err != nil {
		log.Error(g.logTag+"open shp error", zap.Error(err))
		return
	}
	defer sds.Close()
	log.Info(g.logTag+"start transform shp", zap.String("shp", shp), zap.Int("srid", srid), zap.Int("tSrid", tSrid))
	out = filepath.Join(outDir, fmt.Sprintf("%s_%d%s", utils.GetFilenameWithoutExt(shp), tSrid, utils.FILE_EXT_SHP))
	dds, err := gdal.VectorTranslate(out, []gdal.Dataset{sds}, []string{"-t_srs", fmt.Sprintf("epsg:%d", tSrid), "-lco", ENCODING_OPTION})
	if err != nil {
		log.Error(g.logTag+"VectorTranslate failed", zap.Error(err))
		return
	}
	dds.Close() // 生成转换后的shp文件
	log.Info(g.logTag+"end transform shp", zap.String("shp", out))
	return
}

// 从shp文件加载图像对象集合：数值字段读入Values，文本字段读入Texts，class字段读入类别；返回图层srid（未知时为0）
func (g *GdalToolbox) LoadImageObjects(shp string, opts LoadOptions) (ios *obia.ImageObjects, srid int, err error) {
	log.Info(g.logTag+"start load image objects", zap.String("shp", shp), zap.String("idField", opts.IDField))
	var (
		src       = shp
		needEnc   = !utils.IsUtf8Shp(shp)
		needTrans bool
	)
	if opts.Srid > 0 {
		s, e := g.GetSridOfShapefile(shp)
		if e != nil {
			log.Warn(g.logTag+"unknown srid, skip transform", zap.String("shp", shp), zap.Error(e))
		}
		needTrans = e == nil && s != opts.Srid
	}
	if needEnc || needTrans {
		var dir string
		if dir, err = g.workDir(); err != nil {
			return
		}
		defer os.RemoveAll(dir)
		if needEnc {
			if src, err = g.EncodingShapefile(src, "", dir); err != nil {
				return
			}
		}
		if needTrans {
			if src, err = g.TransformShapefile(src, opts.Srid, dir); err != nil {
				return
			}
		}
	}

	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Open(src, 0)
	if !ok {
		err = ErrGdalDriverOpen
		return
	}
	defer ds.Destroy()
	layer := ds.LayerByIndex(0)
	if srid, err = g.getSrid(layer.SpatialReference()); err != nil {
		log.Warn(g.logTag+"shp without srid", zap.String("shp", shp), zap.Error(err))
		srid, err = 0, nil
	}
	cols := readColumns(layer.Definition())
	idIdx := -1
	if opts.IDField != "" {
		if idIdx = columnIndex(cols, opts.IDField); idIdx < 0 {
			err = fmt.Errorf(ErrColumnMissingTemplate, opts.IDField)
			return
		}
	}
	var (
		objs    []*obia.Object
		feature *gdal.Feature
		geo     gdal.Geometry
		skipped int
		gc      []destroyable
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	defer func() {
		if err != nil {
			for _, o := range objs {
				o.Geom.Destroy()
			}
		}
	}()
	for feature = layer.NextFeature(); feature != nil; feature = layer.NextFeature() {
		gc = append(gc, *feature)
		geo = feature.Geometry()
		if geo == emptyGeometry || geo.IsEmpty() {
			skipped++
			continue
		}
		switch geo.Type() {
		case gdal.GT_Polygon, gdal.GT_MultiPolygon, gdal.GT_Polygon25D, gdal.GT_MultiPolygon25D:
		default:
			err = fmt.Errorf("%w: feature %d has type %d, want (multi)polygon", ErrGdalWrongGeoType, feature.FID(), geo.Type())
			return
		}
		id := feature.FID()
		if idIdx >= 0 {
			id = feature.FieldAsInteger64(idIdx)
		}
		o := obia.NewObject(id, NewOgrGeometry(geo.Clone()))
		for _, c := range cols {
			if c.idx == idIdx || c.kind == colSkip || !feature.IsFieldSet(c.idx) {
				continue
			}
			if c.kind == colNumber {
				switch c.name {
				case shpName(obia.MergeCountFld):
					o.MergeCount = feature.FieldAsInteger(c.idx)
				case SHP_FIELD_ID:
					// 写出时的对象id列，未用作id时不回读
				default:
					o.Values[c.name] = feature.FieldAsFloat64(c.idx)
				}
				continue
			}
			s := decodeShpStr(feature.FieldAsString(c.idx))
			switch {
			case c.name == shpName(obia.ClassField):
				o.Class = s
			case c.name == shpName(obia.NeighborsField):
				if opts.KeepNeighbors {
					o.SetNeighbors(utils.StrToInt64s(s, ","))
				}
			case c.name == shpName(obia.MergePathField), strings.HasSuffix(c.name, "_nv"):
				// 派生字段，不回读
			default:
				o.Texts[c.name] = s
			}
		}
		objs = append(objs, o)
	}
	if skipped > 0 {
		log.Warn(g.logTag+"features without geometry skipped", zap.String("shp", shp), zap.Int("cnt", skipped))
	}
	if len(objs) == 0 {
		err = ErrGdalEmptyShp
		return
	}
	if ios, err = obia.NewImageObjects(objs, opts.ValueFields); err != nil {
		return
	}
	log.Info(g.logTag+"image objects loaded", zap.String("shp", shp), zap.Int("cnt", ios.Len()), zap.Int("srid", srid))
	return
}

func (g *GdalToolbox) getShpDriver(shp string, srid int) (ds gdal.DataSource, ref gdal.SpatialReference, layer gdal.Layer, err error) {
	log.Info(g.logTag+"output shp files", zap.String("shp", shp), zap.Int("srid", srid))
	if ref, err = g.getSridRef(srid); err != nil {
		return
	}
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Create(shp, nil)
	if !ok {
		err = ErrGdalDriverCreate
		return
	}
	layer = ds.CreateLayer("", ref, gdal.GT_Unknown, []string{ENCODING_OPTION})
	return
}

// dbf字段名限长，截断后重名的追加序号
type shpFieldNames map[string]struct{}

func truncBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// dbf中字段的实际名称
func shpName(field string) string {
	return truncBytes(field, SHP_FIELD_NAMELEN)
}

func (names shpFieldNames) get(name string) string {
	short := shpName(name)
	for i := 1; ; i++ {
		if _, ok := names[strings.ToLower(short)]; !ok {
			break
		}
		suffix := strconv.Itoa(i)
		short = truncBytes(name, SHP_FIELD_NAMELEN-len(suffix)) + suffix
	}
	names[strings.ToLower(short)] = struct{}{}
	return short
}

func textFields(objs []*obia.Object) (fields []string) {
	seen := map[string]bool{}
	for _, o := range objs {
		for f := range o.Texts {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	sort.Strings(fields) // 保证输出字段次序稳定
	return
}

// 将图像对象集合写入shp：数值字段为实数，文本/类别/邻接/合并路径为字符串
func (g *GdalToolbox) WriteImageObjects(shp string, srid int, ios *obia.ImageObjects) (err error) {
	ds, _, layer, err := g.getShpDriver(shp, srid)
	if err != nil {
		return
	}
	defer ds.Destroy() // 生成shp文件 + 释放资源
	var (
		objs    = ios.Objects()
		numeric = ios.Fields()
		texts   = textFields(objs)
		nvs     = ios.NeighborValueFields()
		names   = shpFieldNames{}
		nFields int
		gc      []destroyable
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	addField := func(name string, ft gdal.FieldType, width, prec int) (idx int, e error) {
		short := names.get(name)
		if short != name {
			log.Warn(g.logTag+"field name shortened for shp", zap.String("field", name), zap.String("shp", short))
		}
		fd := gdal.CreateFieldDefinition(short, ft)
		gc = append(gc, fd)
		if width > 0 {
			fd.SetWidth(width)
		}
		if prec > 0 {
			fd.SetPrecision(prec)
		}
		if e = layer.CreateField(fd, false); e != nil {
			log.Error(g.logTag+"create field failed", zap.String("field", name), zap.Error(e))
			return
		}
		idx = nFields
		nFields++
		return
	}

	idIdx := -1
	if !ios.HasField(SHP_FIELD_ID) {
		if idIdx, err = addField(SHP_FIELD_ID, gdal.FT_Integer64, 0, 0); err != nil {
			return
		}
	}
	numIdx := make([]int, len(numeric))
	for i, f := range numeric {
		if numIdx[i], err = addField(f, gdal.FT_Real, SHP_REAL_WIDTH, SHP_REAL_PREC); err != nil {
			return
		}
	}
	textIdx := make([]int, len(texts))
	for i, f := range texts {
		if textIdx[i], err = addField(f, gdal.FT_String, utils.MaxShpStrWidth, 0); err != nil {
			return
		}
	}
	var classIdx, nebIdx, pathIdx, countIdx int
	if classIdx, err = addField(obia.ClassField, gdal.FT_String, 64, 0); err != nil {
		return
	}
	if nebIdx, err = addField(obia.NeighborsField, gdal.FT_String, utils.MaxShpStrWidth, 0); err != nil {
		return
	}
	if pathIdx, err = addField(obia.MergePathField, gdal.FT_String, utils.MaxShpStrWidth, 0); err != nil {
		return
	}
	if countIdx, err = addField(obia.MergeCountFld, gdal.FT_Integer, 0, 0); err != nil {
		return
	}
	nvIdx := make([]int, len(nvs))
	for i, f := range nvs {
		if nvIdx[i], err = addField(obia.NeighborValueField(f), gdal.FT_String, utils.MaxShpStrWidth, 0); err != nil {
			return
		}
	}

	var (
		def     = layer.Definition()
		feature gdal.Feature
		og      *OgrGeometry
		wkb     []byte
		cnt     int
		e       error
	)
	setStr := func(idx int, s, field string, id obia.ObjectID) {
		if s == "" {
			return
		}
		s, cut := utils.TruncateForShp(s)
		if cut {
			log.Warn(g.logTag+"value truncated for shp", zap.String("field", field), zap.Int64("id", id))
		}
		feature.SetFieldString(idx, s)
	}
	for i, o := range objs {
		feature = def.Create()
		gc = append(gc, feature)
		if e = feature.SetFID(int64(i)); e != nil {
			log.Error(g.logTag+"err in set feature fid", zap.Error(e))
			continue
		}
		if idIdx >= 0 {
			feature.SetFieldInteger64(idIdx, o.ID)
		}
		for j, f := range numeric {
			if v, ok := o.Values[f]; ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				feature.SetFieldFloat64(numIdx[j], v)
			}
		}
		rec := ios.Record(o)
		for j, f := range texts {
			setStr(textIdx[j], rec.Texts[f], f, o.ID)
		}
		setStr(classIdx, rec.Class, obia.ClassField, o.ID)
		setStr(nebIdx, rec.Neighbors, obia.NeighborsField, o.ID)
		setStr(pathIdx, rec.MergePath, obia.MergePathField, o.ID)
		feature.SetFieldInteger(countIdx, rec.MergeCount)
		for j, f := range nvs {
			nf := obia.NeighborValueField(f)
			setStr(nvIdx[j], rec.NeighborValues[nf], nf, o.ID)
		}

		if own, ok := o.Geom.(*OgrGeometry); ok {
			e = feature.SetGeometry(own.geom)
		} else if wkb, e = o.Geom.WKB(); e == nil {
			// 其他实现的几何经WKB重建
			if og, e = g.GeometryFromWKB(wkb, srid); e == nil {
				e = feature.SetGeometryDirectly(og.geom)
			}
		}
		if e != nil {
			log.Error(g.logTag+"err in set geom of feature", zap.Int64("id", o.ID), zap.Error(e))
			continue
		}
		if e = layer.Create(feature); e != nil {
			log.Error(g.logTag+"err in create feature of layer", zap.Error(e))
			continue
		}
		cnt++
	}
	log.Info(g.logTag+"image objects shp created", zap.String("shp", shp), zap.Int("total", len(objs)), zap.Int("valid", cnt))
	return
}
