package obialib

import "errors"

var (
	ErrGdalDriverCreate = errors.New("gdal driver create err")
	ErrGdalDriverOpen   = errors.New("gdal driver open err")
	ErrGdalEmptyShp     = errors.New("gdal shp is empty")
	ErrVoidSrid         = errors.New("gdal shp with void srid")
	ErrGdalWrongGeoType = errors.New("gdal wrong geo type")
	ErrGdalEmptyGeo     = errors.New("gdal empty geometry")
	ErrGdalUnion        = errors.New("gdal union failed")
	ErrInvalidWKT       = errors.New("invalid WKT")
)
