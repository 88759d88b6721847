// Package walletlog provides the module-scoped structured logger used
// throughout the wallet engine, following the module-logger convention
// of github.com/klaytn/klaytn/log (NewModuleLogger keyed by subsystem)
// but backed by zap's sugared logger rather than a hand-rolled log15
// clone.
package walletlog

import (
	"go.uber.org/zap"
)

// Module identifies the subsystem emitting a log line, mirroring the
// teacher's log.Common / log.StorageDatabase module constants.
type Module string

const (
	ModuleWallet     Module = "wallet"
	ModuleWalletDB   Module = "walletdb"
	ModuleChainSync  Module = "chainsync"
	ModuleWorkerPool Module = "workerpool"
	ModuleEventLoop  Module = "eventloop"
)

var base *zap.SugaredLogger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base = l.Sugar()
}

// Logger is the per-module handle returned by NewModuleLogger. Its
// method set intentionally matches the key/value call convention used
// throughout the teacher repo: logger.Info("message", "key", value, ...).
type Logger struct {
	module Module
	l      *zap.SugaredLogger
}

func NewModuleLogger(m Module) *Logger {
	return &Logger{module: m, l: base.With("module", string(m))}
}

// With returns a derived logger carrying additional fixed context,
// e.g. logger.With("account", id).
func (lg *Logger) With(kv ...interface{}) *Logger {
	return &Logger{module: lg.module, l: lg.l.With(kv...)}
}

func (lg *Logger) Trace(msg string, kv ...interface{}) { lg.l.Debugw(msg, kv...) }
func (lg *Logger) Debug(msg string, kv ...interface{}) { lg.l.Debugw(msg, kv...) }
func (lg *Logger) Info(msg string, kv ...interface{})  { lg.l.Infow(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...interface{})  { lg.l.Warnw(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...interface{}) { lg.l.Errorw(msg, kv...) }

// SetGlobal swaps the process-wide base logger for loggers created
// after the call; loggers already returned by NewModuleLogger keep the
// base they were built from.
func SetGlobal(l *zap.Logger) {
	base = l.Sugar()
}
