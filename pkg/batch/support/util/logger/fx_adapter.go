package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes fx lifecycle events through this package.
// Successful wiring events are DEBUG; failures are ERROR.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter is passed to fx.WithLogger.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent implements fxevent.Logger.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		logHook("OnStart", e.FunctionName, e.Err)
	case *fxevent.OnStopExecuted:
		logHook("OnStop", e.FunctionName, e.Err)
	case *fxevent.Supplied:
		logWiring("Supplied", e.TypeName, e.Err)
	case *fxevent.Provided:
		for _, name := range e.OutputTypeNames {
			logWiring("Provided", name, e.Err)
		}
	case *fxevent.Invoked:
		logWiring("Invoked", trimFuncName(e.FunctionName), e.Err)
	case *fxevent.Stopping:
		Infof("Received signal %s, stopping application.", strings.ToUpper(e.Signal.String()))
	case *fxevent.RollingBack:
		Errorf("Start failed, rolling back: %v", e.StartErr)
	case *fxevent.Started:
		logWiring("Started", "application", e.Err)
	case *fxevent.LoggerInitialized:
		logWiring("Logger initialized", e.ConstructorName, e.Err)
	}
}

func logHook(phase, fn string, err error) {
	if err != nil {
		Errorf("%s hook %s failed: %v", phase, trimFuncName(fn), err)
		return
	}
	Debugf("%s hook %s executed.", phase, trimFuncName(fn))
}

func logWiring(event, subject string, err error) {
	if err != nil {
		Errorf("%s %s failed: %v", event, subject, err)
		return
	}
	Debugf("%s: %s", event, subject)
}

// trimFuncName drops closure suffixes such as ".func1" from fx function names.
func trimFuncName(name string) string {
	if idx := strings.LastIndex(name, ".func"); idx != -1 {
		return name[:idx]
	}
	return name
}
