package obialib

import "github.com/wgdzlh/obialib/obia"

type GdalGeo = []byte

// shp加载选项
type LoadOptions struct {
	IDField       string            // 对象id字段，为空时使用FID
	ValueFields   []obia.ValueField // 合并时需重新聚合的数值字段
	Srid          int               // 目标坐标系，>0且与源不同时先转换
	KeepNeighbors bool              // 恢复导出时写入的neighbors字段
}
