package core

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// TraceLevel represents different levels of tracing.
type TraceLevel int

const (
	TraceLevelOff TraceLevel = iota
	TraceLevelError
	TraceLevelWarn
	TraceLevelInfo
	TraceLevelDebug
)

// String returns the string representation of TraceLevel.
func (tl TraceLevel) String() string {
	switch tl {
	case TraceLevelOff:
		return "OFF"
	case TraceLevelError:
		return "ERROR"
	case TraceLevelWarn:
		return "WARN"
	case TraceLevelInfo:
		return "INFO"
	case TraceLevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseTraceLevel maps a level name to a TraceLevel; unknown names are OFF.
func ParseTraceLevel(name string) TraceLevel {
	switch strings.ToUpper(name) {
	case "ERROR":
		return TraceLevelError
	case "WARN":
		return TraceLevelWarn
	case "INFO":
		return TraceLevelInfo
	case "DEBUG":
		return TraceLevelDebug
	default:
		return TraceLevelOff
	}
}

// TraceComponent represents engine components that can be traced
// independently.
type TraceComponent string

const (
	TraceComponentScheduler   TraceComponent = "SCHEDULER"
	TraceComponentCluster     TraceComponent = "CLUSTER"
	TraceComponentExchange    TraceComponent = "EXCHANGE"
	TraceComponentWorker      TraceComponent = "WORKER"
	TraceComponentCoordinator TraceComponent = "COORDINATOR"
	TraceComponentParser      TraceComponent = "PARSER"
	TraceComponentExecution   TraceComponent = "EXECUTION"
	TraceComponentCatalog     TraceComponent = "CATALOG"
)

var allTraceComponents = []TraceComponent{
	TraceComponentScheduler, TraceComponentCluster, TraceComponentExchange,
	TraceComponentWorker, TraceComponentCoordinator, TraceComponentParser,
	TraceComponentExecution, TraceComponentCatalog,
}

// Tracer provides level- and component-gated diagnostics for engine
// operations. It is configured from GRIDSQL_TRACE_LEVEL and
// GRIDSQL_TRACE_COMPONENTS (comma-separated, or ALL).
type Tracer struct {
	mutex             sync.RWMutex
	level             TraceLevel
	enabledComponents map[TraceComponent]bool
}

var globalTracer *Tracer
var tracerOnce sync.Once

// GetTracer returns the global tracer instance.
func GetTracer() *Tracer {
	tracerOnce.Do(func() {
		globalTracer = NewTracer()
	})
	return globalTracer
}

// NewTracer creates a tracer configured from environment variables.
func NewTracer() *Tracer {
	t := &Tracer{
		level:             TraceLevelOff,
		enabledComponents: make(map[TraceComponent]bool),
	}
	if levelStr := os.Getenv("GRIDSQL_TRACE_LEVEL"); levelStr != "" {
		t.level = ParseTraceLevel(levelStr)
	}
	if componentsStr := os.Getenv("GRIDSQL_TRACE_COMPONENTS"); componentsStr != "" {
		t.EnableComponents(componentsStr)
	}
	return t
}

// SetLevel sets the trace level.
func (t *Tracer) SetLevel(level TraceLevel) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.level = level
}

// EnableComponents enables tracing for a comma-separated component list;
// "ALL" enables every component.
func (t *Tracer) EnableComponents(componentsStr string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if strings.EqualFold(strings.TrimSpace(componentsStr), "ALL") {
		for _, comp := range allTraceComponents {
			t.enabledComponents[comp] = true
		}
		return
	}
	for _, comp := range strings.Split(componentsStr, ",") {
		t.enabledComponents[TraceComponent(strings.ToUpper(strings.TrimSpace(comp)))] = true
	}
}

// IsEnabled checks whether tracing fires for a given level and component.
func (t *Tracer) IsEnabled(level TraceLevel, component TraceComponent) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.level >= level && t.enabledComponents[component]
}

func (t *Tracer) trace(level TraceLevel, component TraceComponent, message string, context map[string]interface{}) {
	if !t.IsEnabled(level, component) {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] %s/%s: %s", timestamp, level, component, message)
	if len(context) > 0 {
		fmt.Printf(" |")
		for k, v := range context {
			fmt.Printf(" %s=%v", k, v)
		}
	}
	fmt.Println()
}

// Error logs an error-level trace.
func (t *Tracer) Error(component TraceComponent, message string, context ...map[string]interface{}) {
	t.trace(TraceLevelError, component, message, first(context))
}

// Warn logs a warning-level trace.
func (t *Tracer) Warn(component TraceComponent, message string, context ...map[string]interface{}) {
	t.trace(TraceLevelWarn, component, message, first(context))
}

// Info logs an info-level trace.
func (t *Tracer) Info(component TraceComponent, message string, context ...map[string]interface{}) {
	t.trace(TraceLevelInfo, component, message, first(context))
}

// Debug logs a debug-level trace.
func (t *Tracer) Debug(component TraceComponent, message string, context ...map[string]interface{}) {
	t.trace(TraceLevelDebug, component, message, first(context))
}

func first(context []map[string]interface{}) map[string]interface{} {
	if len(context) > 0 {
		return context[0]
	}
	return nil
}

// TraceContext creates a context map for tracing from key/value pairs.
func TraceContext(pairs ...interface{}) map[string]interface{} {
	context := make(map[string]interface{})
	for i := 0; i < len(pairs)-1; i += 2 {
		if key, ok := pairs[i].(string); ok {
			context[key] = pairs[i+1]
		}
	}
	return context
}
