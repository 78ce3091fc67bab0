package obialib

const (
	SHAPE_ENCODING  = "UTF-8"
	UTF8_ENC        = "UTF8"
	ZH_ENC          = "GBK"
	SHP_DRIVER_NAME = "ESRI Shapefile"
	ENCODING_OPTION = "ENCODING=" + SHAPE_ENCODING
	OO_ENCODING     = "ENCODING=" + ZH_ENC
	UNIVERSAL_SRID  = 4326
	CGCS2000_SRID   = 4490

	ErrColumnMissingTemplate = `shp文件中缺失【%s】字段`

	SHP_FIELD_ID      = "id"
	SHP_FIELD_NAMELEN = 10 // dbf字段名最大字节数
	SHP_REAL_WIDTH    = 24
	SHP_REAL_PREC     = 12
)
