package kernel

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// newLogger returns a logrus entry tagged with a fresh boot id, so that
// table-driven tests booting several kernels in the same process can tell
// their log lines apart.
func newLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	return log.WithField("boot_id", uuid.NewString())
}
