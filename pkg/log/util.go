package log

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// toFields turns alternating keys and values into zap fields.
// A zap.Field is passed through and a bare error becomes the "error" field.
// A dangling value and a value behind a non-string key are kept under a synthetic key.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)
	for i := 0; i < len(args); {
		switch v := args[i].(type) {
		case zap.Field:
			fields = append(fields, v)
			i++
			continue
		case error:
			fields = append(fields, zap.Error(v))
			i++
			continue
		}

		if i == len(args)-1 {
			fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), args[i]))
			break
		}

		key, val := args[i], args[i+1]
		if name, ok := key.(string); ok {
			fields = append(fields, toField(name, val))
		} else {
			fields = append(fields, zap.Any(fmt.Sprintf("key#%d", i), []any{key, val}))
		}
		i += 2
	}

	return fields
}

func toField(key string, val any) zap.Field {
	switch v := val.(type) {
	case error:
		return zap.NamedError(key, v)
	case time.Duration:
		return zap.Duration(key, v)
	case time.Time:
		return zap.Time(key, v)
	case fmt.Stringer:
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}
