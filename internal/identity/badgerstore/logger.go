package badgerstore

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// zapLogger routes Badger's internal logging through zap.
type zapLogger struct {
	log *zap.Logger
}

var _ badgerdb.Logger = (*zapLogger)(nil)

func (l *zapLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *zapLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

// Infof and Debugf are demoted: Badger is chatty at info level.
func (l *zapLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *zapLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
