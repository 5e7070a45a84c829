package astidrone

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// InterrogativeState holds the last values returned by query commands
type InterrogativeState struct {
	Battery      int    // The percentage of the current battery level
	SdkVersion   string // The SDK version
	SerialNumber string // The serial number
	Speed        int    // The speed in cm/s
	Time         int    // The flight time in s
	WifiSnr      string // The wifi signal-to-noise ratio
}

// parseSpeed accepts the drone's decimal form, e.g. "100.0"
func parseSpeed(msg string) (x int, err error) {
	var f float64
	if f, err = strconv.ParseFloat(strings.TrimSpace(msg), 64); err != nil {
		err = errors.Wrapf(err, "astidrone: parsing float %s failed", msg)
		return
	}
	x = int(f)
	return
}

func parseInt(msg string) (x int, err error) {
	if x, err = strconv.Atoi(strings.TrimSpace(msg)); err != nil {
		err = errors.Wrapf(err, "astidrone: parsing int %s failed", msg)
		return
	}
	return
}

// parseTime accepts an optional trailing unit, e.g. "12s"
func parseTime(msg string) (int, error) {
	return parseInt(strings.TrimSuffix(strings.TrimSpace(msg), "s"))
}
