package docrep

import "github.com/sirupsen/logrus"

// log is the package-level diagnostic logger. It is deliberately a package
// variable rather than something threaded through every call, matching the
// single-threaded, no-shared-mutable-state model of the codec (§5): there is
// nothing here for two readers/writers to race over, since logging never
// influences behavior. Callers that want the library silent, or want its
// output folded into their own structured logs, call SetLogger.
var log = newDefaultLogger()

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetLogger replaces the package-level diagnostic logger. Passing nil
// restores a fresh default logger at WarnLevel. Logging is purely
// diagnostic: reader/writer behavior never depends on whether a message was
// actually emitted.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		log = newDefaultLogger()
		return
	}
	log = l
}
