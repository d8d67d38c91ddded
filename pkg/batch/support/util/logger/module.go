package logger

import "go.uber.org/fx"

// Module installs the fx event logger backed by this package.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
)
