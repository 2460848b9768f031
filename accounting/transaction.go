package accounting

import (
	"fmt"
	"time"

	"evcs/utility"
)

const transactionIdSuffixLength = 9

// NewTransactionId builds an id of the form TXN-<chargePointId>-<epochMillis>-<random>
func NewTransactionId(chargePointId string, now time.Time) string {
	return fmt.Sprintf("TXN-%s-%d-%s", chargePointId, now.UnixMilli(), utility.ShortId(transactionIdSuffixLength))
}

// EnergyConsumed returns end minus start, clamped at zero; the flag reports a negative raw difference
func EnergyConsumed(start, end float64) (float64, bool) {
	diff := end - start
	if diff < 0 {
		return 0, true
	}
	return diff, false
}
