package obialib

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/wgdzlh/obialib/log"
	"github.com/wgdzlh/obialib/utils"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

type GdalToolbox struct {
	refMap map[int]gdal.SpatialReference
	rLock  sync.Mutex
	tmpDir string
	logTag string
}

// 由GDAL库C语言创建的内存对象，需要手动调用Destroy回收
type destroyable interface {
	Destroy()
}

var (
	emptyGeometry = gdal.Geometry{}
	noRef         = gdal.SpatialReference{}
)

// 初始化GDAL工具箱，tmpDir为可选的临时目录路径（未提供的话为系统临时目录）
func NewGdalToolbox(tmpDir ...string) *GdalToolbox {
	g := &GdalToolbox{
		refMap: map[int]gdal.SpatialReference{},
		logTag: "GdalToolbox:",
	}
	if len(tmpDir) > 0 && tmpDir[0] != "" {
		g.tmpDir = tmpDir[0]
	}
	return g
}

// 获取srid对应的坐标系（可复用，故无需回收）；srid<=0时返回空坐标系
func (g *GdalToolbox) getSridRef(srid int) (ref gdal.SpatialReference, err error) {
	if srid <= 0 {
		ref = noRef
		return
	}
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[srid]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromEPSG(srid); err != nil { // 设定坐标系ID
		log.Error(g.logTag+"set ref srid failed", zap.Int("srid", srid), zap.Error(err))
		ref.Destroy()
		return
	}
	// 数据轴次序固定为(经度,纬度)，避免转换坐标系时次序倒置
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap[srid] = ref
	return
}

func (g *GdalToolbox) getSrid(sp gdal.SpatialReference) (srid int, err error) {
	if sp == noRef {
		err = ErrVoidSrid
		return
	}
	wkt, _ := sp.ToWKT()
	log.Debug(g.logTag+"spatial ref attrs", zap.String("attr", wkt))
	rawId, ok := sp.AttrValue("AUTHORITY", 1)
	if !ok && sp.AutoIdentifyEPSG() == nil { // ESRI格式的prj无AUTHORITY节点
		rawId, ok = sp.AttrValue("AUTHORITY", 1)
	}
	if !ok {
		if strings.Contains(wkt, "CGCS_2000") {
			rawId = strconv.Itoa(CGCS2000_SRID)
		} else {
			err = ErrVoidSrid
			return
		}
	}
	srid, err = strconv.Atoi(rawId)
	log.Info(g.logTag+"got srid from sp", zap.String("id", rawId))
	return
}

// 获取shp的srid
func (g *GdalToolbox) GetSridOfShapefile(shp string) (srid int, err error) {
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Open(shp, 0)
	if !ok {
		err = ErrGdalDriverOpen
		return
	}
	defer ds.Destroy()
	layer := ds.LayerByIndex(0)
	return g.getSrid(layer.SpatialReference())
}

// 临时工作目录，用完由调用方删除
func (g *GdalToolbox) workDir() (string, error) {
	parent := g.tmpDir
	if parent == "" {
		parent = os.TempDir()
	}
	return utils.GetUniqSubDir(parent)
}

func (g *GdalToolbox) parseWKB(wkb GdalGeo, ref gdal.SpatialReference) (ret gdal.Geometry, err error) {
	ret, err = gdal.CreateFromWKB(wkb, ref, len(wkb))
	if err != nil {
		log.Error(g.logTag+"parse wkb failed", zap.Error(err))
	}
	return
}

func (g *GdalToolbox) parseWKT(wkt string, ref gdal.SpatialReference) (ret gdal.Geometry, err error) {
	ret, err = gdal.CreateFromWKT(wkt, ref)
	if err != nil {
		log.Error(g.logTag+"parse wkt failed", zap.Error(err))
		err = ErrInvalidWKT
	}
	return
}

// 由WKT创建对象几何，调用方负责Destroy
func (g *GdalToolbox) GeometryFromWKT(wkt string, srid int) (og *OgrGeometry, err error) {
	ref, err := g.getSridRef(srid)
	if err != nil {
		return
	}
	geo, err := g.parseWKT(wkt, ref)
	if err != nil {
		return
	}
	og = NewOgrGeometry(geo)
	return
}

// 由WKB创建对象几何，调用方负责Destroy
func (g *GdalToolbox) GeometryFromWKB(wkb GdalGeo, srid int) (og *OgrGeometry, err error) {
	ref, err := g.getSridRef(srid)
	if err != nil {
		return
	}
	geo, err := g.parseWKB(wkb, ref)
	if err != nil {
		return
	}
	og = NewOgrGeometry(geo)
	return
}
