// Package diagnostics runs the capacity preflight check `init`/`config`
// perform before committing to a volume's quota: comparing the requested
// size against free host disk space and warning (never failing) when the
// quota would overcommit. Grounded on the teacher's
// services/operations/hardware_service.go use of gopsutil for host
// introspection.
package diagnostics

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/sirupsen/logrus"
)

// overcommitThreshold is the fraction of free disk space a quota may
// consume before CheckCapacity logs a warning.
const overcommitThreshold = 0.90

// CheckCapacity compares quotaBytes against the free space on the
// filesystem backing dbDir, logging a Warn (not returning an error) when
// the quota exceeds overcommitThreshold of free space.
func CheckCapacity(dbDir string, quotaBytes int64, logger *logrus.Logger) error {
	usage, err := disk.Usage(dbDir)
	if err != nil {
		return fmt.Errorf("diagnostics: read disk usage for %s: %w", dbDir, err)
	}

	free := usage.Free
	requested := uint64(quotaBytes)
	logger.WithFields(logrus.Fields{
		"path":      dbDir,
		"free":      free,
		"requested": requested,
	}).Debug("diagnostics: capacity preflight")

	if free == 0 {
		logger.WithField("path", dbDir).Warn("diagnostics: unable to determine free disk space")
		return nil
	}
	if float64(requested) > float64(free)*overcommitThreshold {
		logger.WithFields(logrus.Fields{
			"path":      dbDir,
			"free":      free,
			"requested": requested,
		}).Warn("diagnostics: requested quota exceeds 90% of free disk space")
	}
	return nil
}
