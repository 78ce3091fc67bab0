package obialib

import (
	"github.com/wgdzlh/obialib/log"
	"github.com/wgdzlh/obialib/obia"

	"go.uber.org/zap"
)

// 简化单个几何，失败时返回原几何
func (g *GdalToolbox) simpGeo(og *OgrGeometry, t float64) (ret *OgrGeometry, ok bool) {
	simp := og.geom.SimplifyPreservingTopology(t)
	if simp == emptyGeometry {
		return og, false
	}
	if simp.IsEmpty() || simp.Area() <= 0 {
		simp.Destroy()
		return og, false
	}
	return NewOgrGeometry(simp), true
}

// 导出前简化对象几何（各对象独立简化，公共边可能不再重合），t<=0时不处理；
// area等属性保持不变；返回被简化的对象数
func (g *GdalToolbox) SimplifyImageObjects(ios *obia.ImageObjects, t float64) (n int) {
	if t <= 0 {
		return
	}
	log.Info(g.logTag+"simplify object geoms", zap.Float64("tolerance", t))
	for _, o := range ios.Objects() {
		og, ok := o.Geom.(*OgrGeometry)
		if !ok {
			continue
		}
		if simp, ok := g.simpGeo(og, t); ok {
			og.Destroy()
			o.Geom = simp
			n++
		}
	}
	log.Info(g.logTag+"object geoms simplified", zap.Int("cnt", n), zap.Int("total", ios.Len()))
	return
}
