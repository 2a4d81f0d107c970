package command

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// rewriteKebabToSnake recursively rewrites every object key in raw from
// kebab-case to snake_case, including objects nested inside arrays, leaving
// scalar values untouched. It walks with gjson and rebuilds with
// sjson rather than round-tripping through map[string]any, so key order
// within an object is preserved.
func rewriteKebabToSnake(raw string) (string, error) {
	return rewriteValue(gjson.Parse(raw))
}

func rewriteValue(value gjson.Result) (string, error) {
	switch {
	case value.IsObject():
		out := "{}"
		var err error
		value.ForEach(func(key, val gjson.Result) bool {
			var childRaw string
			childRaw, err = rewriteValue(val)
			if err != nil {
				return false
			}
			snakeKey := strings.ReplaceAll(key.String(), "-", "_")
			out, err = sjson.SetRaw(out, snakeKey, childRaw)
			return err == nil
		})
		if err != nil {
			return "", err
		}
		return out, nil

	case value.IsArray():
		out := "[]"
		var err error
		idx := 0
		value.ForEach(func(_, val gjson.Result) bool {
			var childRaw string
			childRaw, err = rewriteValue(val)
			if err != nil {
				return false
			}
			out, err = sjson.SetRaw(out, strconv.Itoa(idx), childRaw)
			idx++
			return err == nil
		})
		if err != nil {
			return "", err
		}
		return out, nil

	default:
		if value.Raw == "" {
			return "null", nil
		}
		return value.Raw, nil
	}
}
