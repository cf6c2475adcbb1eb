// pkg/logger/global.go
package logger

var globalLogger *Logger

func InitGlobal(logPath, logLevel string, debug bool) error {
	l, err := NewLogger(logPath, logLevel, debug)
	if err != nil {
		return err
	}
	globalLogger = l
	return nil
}

// GetLogger returns the process logger, or nil before InitGlobal.
func GetLogger() *Logger {
	return globalLogger
}

func Debug(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Debug(format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Info(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Warn(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if globalLogger != nil {
		globalLogger.Error(format, v...)
	}
}

func Signal(market, side string, digit int, confidence float64, maxRuns int) {
	if globalLogger != nil {
		globalLogger.Signal(market, side, digit, confidence, maxRuns)
	}
}

func Close() {
	if globalLogger != nil {
		globalLogger.Close()
	}
}
