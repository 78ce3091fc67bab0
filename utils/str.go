package utils

import (
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

const MaxShpStrWidth = 254 // shp字符串字段最大宽度

func Int64sToStr(ids []int64, sep byte) string {
	var ret strings.Builder
	for i, id := range ids {
		if i > 0 {
			ret.WriteByte(sep)
		}
		ret.WriteString(strconv.FormatInt(id, 10))
	}
	return ret.String()
}

// 解析以sep分隔的整数列表，忽略无法解析的项
func StrToInt64s(s, sep string) []int64 {
	if s == "" {
		return nil
	}
	var (
		ids  = strings.Split(s, sep)
		rets = make([]int64, 0, len(ids))
		i    int64
		e    error
	)
	for _, id := range ids {
		i, e = strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if e == nil {
			rets = append(rets, i)
		}
	}
	return rets
}

// 浮点数的紧凑文本形式（shp字符串字段中使用）
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// 截断超出shp字段宽度的字符串，返回是否被截断
func TruncateForShp(s string) (string, bool) {
	if len(s) <= MaxShpStrWidth {
		return s, false
	}
	s = s[:MaxShpStrWidth]
	// 避免在多字节字符中间截断
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s, true
}

// GBK string 转 UTF-8
func GbkStrToUtf8(s string) (d string, e error) {
	reader := transform.NewReader(strings.NewReader(s), simplifiedchinese.GBK.NewDecoder())
	t, e := io.ReadAll(reader)
	if e != nil {
		return
	}
	d = string(t)
	return
}

func PurifyForUtf8(s string) string {
	return strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "")
}
