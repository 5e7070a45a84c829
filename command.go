package astidrone

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Validation errors
var (
	ErrArgumentCount       = errors.New("astidrone: argument count mismatch")
	ErrArgumentType        = errors.New("astidrone: argument type mismatch")
	ErrArgumentRange       = errors.New("astidrone: argument out of range")
	ErrMinimumDisplacement = errors.New("astidrone: x, y and z can't be within [-20, 20] simultaneously")
	ErrUnknownCommand      = errors.New("astidrone: unknown command")
	ErrUnknownToken        = errors.New("astidrone: unknown token")
	ErrEmptyCommand        = errors.New("astidrone: empty command")
)

// Minimum magnitude below which a go/curve distance counts as "no displacement"
const minimumDisplacement = 20

// Speeds used to derive timeouts, deliberately low to leave a margin for error
const (
	assumedSpeed    = 10.0 // cm/s
	assumedArcSpeed = 15.0 // degrees/s
)

// ValidationError is returned when a command can't be built
type ValidationError struct {
	Code     CommandCode
	Index    int // -1 when the error is not about a specific argument
	Expected string
	Value    interface{}
	Cause    error
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s: expected %s", e.Code, e.Cause, e.Expected)
	}
	return fmt.Sprintf("%s: args[%d] %s: expected %s, got %#v", e.Code, e.Index, e.Cause, e.Expected, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// Command is a validated command instance. The zero value is not usable: use NewCommand or
// ParseCommand.
type Command struct {
	args []interface{}
	rule CommandRule
}

// NewCommand validates args against the rule of code and builds a command
func NewCommand(code CommandCode, args ...interface{}) (c Command, err error) {
	// Get rule
	r, ok := RuleByCode(code)
	if !ok {
		err = errors.Wrapf(ErrUnknownCommand, "astidrone: code %d", int(code))
		return
	}

	// Validate
	if err = validate(r, args); err != nil {
		return
	}

	// Create command
	c = Command{rule: r}
	if len(args) > 0 {
		c.args = append([]interface{}(nil), args...)
	}
	return
}

// MustNewCommand is like NewCommand but panics on validation errors
func MustNewCommand(code CommandCode, args ...interface{}) Command {
	c, err := NewCommand(code, args...)
	if err != nil {
		panic(err)
	}
	return c
}

func validate(r CommandRule, args []interface{}) error {
	// Check count
	if len(args) != len(r.Arguments) {
		return &ValidationError{
			Code:     r.Code,
			Index:    -1,
			Expected: fmt.Sprintf("%d argument(s)", len(r.Arguments)),
			Value:    len(args),
			Cause:    ErrArgumentCount,
		}
	}

	// Check each argument
	for i, a := range args {
		ar := r.Arguments[i]
		if a == nil || !ar.TypeAllowed(a) {
			return &ValidationError{Code: r.Code, Index: i, Expected: ar.Describe(), Value: a, Cause: ErrArgumentType}
		}
		if !ar.ValueAllowed(a) {
			return &ValidationError{Code: r.Code, Index: i, Expected: ar.Describe(), Value: a, Cause: ErrArgumentRange}
		}
	}

	// Check minimum displacement
	switch r.Code {
	case Go, Curve:
		var count int
		// The last argument is the speed
		for _, a := range args[:len(args)-1] {
			if v := a.(int); v >= -minimumDisplacement && v <= minimumDisplacement {
				count++
			}
		}
		if count > 1 {
			return &ValidationError{
				Code:     r.Code,
				Index:    -1,
				Expected: fmt.Sprintf("at most one distance within [-%d, %d]", minimumDisplacement, minimumDisplacement),
				Value:    count,
				Cause:    ErrMinimumDisplacement,
			}
		}
	}
	return nil
}

// ParseCommand parses a wire string such as "forward 50" into a command
func ParseCommand(s string) (c Command, err error) {
	// Tokenize
	ts := strings.Fields(s)
	if len(ts) == 0 {
		err = ErrEmptyCommand
		return
	}

	// Get rule
	r, ok := RuleByToken(ts[0])
	if !ok {
		err = errors.Wrapf(ErrUnknownToken, "astidrone: token %q", ts[0])
		return
	}

	// Check count before converting so that the error is the same as NewCommand's
	if len(ts)-1 != len(r.Arguments) {
		err = &ValidationError{
			Code:     r.Code,
			Index:    -1,
			Expected: fmt.Sprintf("%d argument(s)", len(r.Arguments)),
			Value:    len(ts) - 1,
			Cause:    ErrArgumentCount,
		}
		return
	}

	// Convert arguments
	var args []interface{}
	for i, ar := range r.Arguments {
		var a interface{}
		if a, err = ar.Parse(ts[i+1]); err != nil {
			err = &ValidationError{Code: r.Code, Index: i, Expected: ar.Describe(), Value: ts[i+1], Cause: ErrArgumentType}
			return
		}
		args = append(args, a)
	}
	return NewCommand(r.Code, args...)
}

// Code returns the command code
func (c Command) Code() CommandCode { return c.rule.Code }

// Rule returns a copy of the rule governing the command
func (c Command) Rule() CommandRule { return c.rule.clone() }

// Immediate indicates whether the command bypasses the queue
func (c Command) Immediate() bool { return c.rule.Immediate }

// Args returns a copy of the arguments
func (c Command) Args() []interface{} { return append([]interface{}(nil), c.args...) }

// Int returns the i-th argument as an int, or 0 when it's not one
func (c Command) Int(i int) int {
	if i < 0 || i >= len(c.args) {
		return 0
	}
	v, _ := c.args[i].(int)
	return v
}

// Equal checks whether both commands have the same code and arguments
func (c Command) Equal(o Command) bool {
	return c.rule.Code == o.rule.Code && c.rule.Token == o.rule.Token && reflect.DeepEqual(c.args, o.args)
}

// String returns the wire representation of the command
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.rule.Token)
	for _, a := range c.args {
		b.WriteByte(' ')
		switch v := a.(type) {
		case int:
			b.WriteString(strconv.Itoa(v))
		case rune:
			b.WriteRune(v)
		case string:
			b.WriteString(v)
		default:
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// Timeout returns how long the command may take before it's considered stale
func (c Command) Timeout() time.Duration {
	switch c.rule.Code {
	case EnterSdkMode, EmergencyStop, GetSpeed, GetBattery, GetTime, GetWifiSnr, GetSdkVersion, GetSerialNumber:
		return 30 * time.Second
	case Left, Right, Forward, Back:
		return seconds(float64(c.Int(0)) / assumedSpeed * 10)
	case Go:
		x, y, z := float64(c.Int(0)), float64(c.Int(1)), float64(c.Int(2))
		return seconds(math.Sqrt(x*x+y*y+z*z) / assumedSpeed * 10)
	case ClockwiseTurn, CounterClockwiseTurn:
		return seconds(float64(c.Int(0)) / assumedArcSpeed * 10)
	}
	return 60 * time.Second
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
