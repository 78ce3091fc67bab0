package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	FILE_EXT_SHP  = ".shp"
	FILE_EXT_CPG  = ".cpg"
	FILE_EXT_JSON = ".geojson"

	UTF8  = "UTF8"
	UTF_8 = "UTF-8"
)

func GetUniqSubDir(parentPath string) (path string, err error) {
	path = filepath.Join(parentPath, uuid.NewString())
	err = os.Mkdir(path, os.ModePerm)
	return
}

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

// 同目录下替换扩展名
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// 读取shp同名cpg文件判断是否为UTF-8编码；cpg缺失时返回false
func IsUtf8Shp(shp string) (utf8 bool) {
	enc, e := os.ReadFile(ReplaceExt(shp, FILE_EXT_CPG))
	if e == nil && len(enc) > 0 {
		encStr := strings.ToUpper(strings.TrimSpace(string(enc)))
		utf8 = encStr == UTF_8 || encStr == UTF8
	}
	return
}
