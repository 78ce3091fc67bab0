package obialib

import (
	"github.com/wgdzlh/obialib/obia"

	"github.com/lukeroth/gdal"
)

// OgrGeometry 以OGR几何实现obia.Geometry，拓扑判断由GEOS完成
type OgrGeometry struct {
	geom gdal.Geometry
}

// 接管geom的所有权
func NewOgrGeometry(geom gdal.Geometry) *OgrGeometry {
	return &OgrGeometry{geom: geom}
}

func (og *OgrGeometry) Gdal() gdal.Geometry {
	return og.geom
}

func (og *OgrGeometry) Area() float64 {
	return og.geom.Area()
}

func (og *OgrGeometry) Perimeter() float64 {
	b := og.geom.Boundary()
	defer b.Destroy()
	return b.Length()
}

func (og *OgrGeometry) Centroid() (obia.Geometry, error) {
	c := og.geom.Centroid()
	if c == emptyGeometry {
		return nil, ErrGdalEmptyGeo
	}
	if c.IsEmpty() {
		c.Destroy()
		return nil, ErrGdalEmptyGeo
	}
	return &OgrGeometry{geom: c}, nil
}

func peer(other obia.Geometry) (gdal.Geometry, bool) {
	o, ok := other.(*OgrGeometry)
	if !ok || o == nil || o.geom == emptyGeometry {
		return emptyGeometry, false
	}
	return o.geom, true
}

func (og *OgrGeometry) Touches(other obia.Geometry) bool {
	o, ok := peer(other)
	return ok && og.geom.Touches(o)
}

func (og *OgrGeometry) Contains(other obia.Geometry) bool {
	o, ok := peer(other)
	return ok && og.geom.Contains(o)
}

func (og *OgrGeometry) Within(other obia.Geometry) bool {
	o, ok := peer(other)
	return ok && og.geom.Within(o)
}

func (og *OgrGeometry) Intersects(other obia.Geometry) bool {
	o, ok := peer(other)
	return ok && og.geom.Intersects(o)
}

func (og *OgrGeometry) Overlaps(other obia.Geometry) bool {
	o, ok := peer(other)
	return ok && og.geom.Overlaps(o)
}

func (og *OgrGeometry) Disjoint(other obia.Geometry) bool {
	o, ok := peer(other)
	return ok && og.geom.Disjoint(o)
}

func (og *OgrGeometry) Union(other obia.Geometry) (obia.Geometry, error) {
	o, ok := peer(other)
	if !ok {
		return nil, obia.ErrForeignGeometry
	}
	u := og.geom.Union(o)
	if u == emptyGeometry {
		return nil, ErrGdalUnion
	}
	return &OgrGeometry{geom: u}, nil
}

func (og *OgrGeometry) WKB() ([]byte, error) {
	return og.geom.ToWKB()
}

func (og *OgrGeometry) Destroy() {
	if og.geom != emptyGeometry {
		og.geom.Destroy()
		og.geom = emptyGeometry
	}
}
