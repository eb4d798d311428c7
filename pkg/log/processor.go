package log

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/mwantia/fabric/pkg/container"
)

// LoggerTagProcessor handles fabric:"logger" and fabric:"logger:<name>" tags.
// Pipeline components declare their logger as a tagged field and receive the
// base logger or a named child such as "logger:detector".
type LoggerTagProcessor struct{}

func NewLoggerTagProcessor() *LoggerTagProcessor {
	return &LoggerTagProcessor{}
}

// GetPriority runs this processor before the default inject processor (priority 0).
func (ltp *LoggerTagProcessor) GetPriority() int {
	return 50
}

// CanProcess matches "logger" and "logger:<name>", case-insensitively.
func (ltp *LoggerTagProcessor) CanProcess(value string) bool {
	return strings.EqualFold(value, "logger") || strings.HasPrefix(strings.ToLower(value), "logger:")
}

// Process resolves the registered LoggerService and, if the tag carries a
// name, returns Named(name) of it.
func (ltp *LoggerTagProcessor) Process(ctx context.Context, sc *container.ServiceContainer, field reflect.StructField, value string) (any, error) {
	ok, resolved := sc.ResolveByType(ctx, reflect.TypeOf((*LoggerService)(nil)).Elem())
	if !ok {
		return nil, fmt.Errorf("failed to resolve LoggerService for field '%s': no logger service registered", field.Name)
	}

	baseLogger, ok := resolved.(LoggerService)
	if !ok {
		return nil, fmt.Errorf("resolved logger is not a LoggerService for field '%s'", field.Name)
	}

	loggerName := ""
	if parts := strings.SplitN(value, ":", 2); len(parts) == 2 {
		loggerName = strings.TrimSpace(parts[1])
	}

	if loggerName != "" {
		return baseLogger.Named(loggerName), nil
	}
	return baseLogger, nil
}

// Inject walks the exported LoggerService fields of the struct pointed to by
// target and fills every field tagged fabric:"logger[:<name>]".
func (ltp *LoggerTagProcessor) Inject(ctx context.Context, sc *container.ServiceContainer, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("logger injection target must be a pointer to a struct, got %T", target)
	}

	elem := rv.Elem()
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Type().Field(i)
		tag, ok := field.Tag.Lookup("fabric")
		if !ok || !ltp.CanProcess(tag) || !field.IsExported() {
			continue
		}

		resolved, err := ltp.Process(ctx, sc, field, tag)
		if err != nil {
			return err
		}
		elem.Field(i).Set(reflect.ValueOf(resolved))
	}

	return nil
}
