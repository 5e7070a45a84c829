package astidrone

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validArgs returns valid arguments for every command code
var validArgs = map[CommandCode][]interface{}{
	Up:                   {20},
	Down:                 {500},
	Left:                 {50},
	Right:                {50},
	Forward:              {100},
	Back:                 {100},
	ClockwiseTurn:        {1},
	CounterClockwiseTurn: {360},
	Go:                   {10, 100, 100, 50},
	Curve:                {30, 30, 100, 60, 40, 100, 30},
	SetSpeed:             {10},
	SetRemoteControl:     {-100, 0, 50, 100},
	Flip:                 {'l'},
	SetStationMode:       {"ssid", "password"},
	SetWifiPassword:      {"ssid", "password"},
}

func TestCommandRoundTrip(t *testing.T) {
	for _, r := range Rules() {
		c, err := NewCommand(r.Code, validArgs[r.Code]...)
		require.NoError(t, err, r.Code.String())
		p, err := ParseCommand(c.String())
		require.NoError(t, err, r.Code.String())
		assert.True(t, c.Equal(p), "%s != %s", c, p)
		assert.Equal(t, c.String(), p.String())
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "command", MustNewCommand(EnterSdkMode).String())
	assert.Equal(t, "forward 50", MustNewCommand(Forward, 50).String())
	assert.Equal(t, "go 10 100 -100 50", MustNewCommand(Go, 10, 100, -100, 50).String())
	assert.Equal(t, "flip b", MustNewCommand(Flip, DirectionBack.Flip()).String())
	assert.Equal(t, "wifi ssid password", MustNewCommand(SetWifiPassword, "ssid", "password").String())
}

func TestNewCommandValidation(t *testing.T) {
	for _, v := range []struct {
		args  []interface{}
		code  CommandCode
		err   error
		index int
	}{
		{code: Takeoff, args: []interface{}{1}, err: ErrArgumentCount, index: -1},
		{code: Forward, args: nil, err: ErrArgumentCount, index: -1},
		{code: Forward, args: []interface{}{"50"}, err: ErrArgumentType, index: 0},
		{code: Forward, args: []interface{}{50.0}, err: ErrArgumentType, index: 0},
		{code: Forward, args: []interface{}{nil}, err: ErrArgumentType, index: 0},
		{code: Forward, args: []interface{}{19}, err: ErrArgumentRange, index: 0},
		{code: Forward, args: []interface{}{501}, err: ErrArgumentRange, index: 0},
		{code: ClockwiseTurn, args: []interface{}{0}, err: ErrArgumentRange, index: 0},
		{code: Go, args: []interface{}{10, 100, 100, 101}, err: ErrArgumentRange, index: 3},
		{code: Flip, args: []interface{}{'x'}, err: ErrArgumentRange, index: 0},
		{code: Flip, args: []interface{}{"l"}, err: ErrArgumentType, index: 0},
		{code: SetStationMode, args: []interface{}{"my ssid", "password"}, err: ErrArgumentRange, index: 0},
		{code: SetStationMode, args: []interface{}{"ssid", ""}, err: ErrArgumentRange, index: 1},
		{code: Go, args: []interface{}{10, 20, 40, 50}, err: ErrMinimumDisplacement, index: -1},
		{code: Curve, args: []interface{}{0, 0, 100, 60, 40, 100, 30}, err: ErrMinimumDisplacement, index: -1},
	} {
		_, err := NewCommand(v.code, v.args...)
		require.Error(t, err, "%s %v", v.code, v.args)
		assert.ErrorIs(t, err, v.err, "%s %v", v.code, v.args)
		var e *ValidationError
		require.True(t, errors.As(err, &e))
		assert.Equal(t, v.code, e.Code)
		assert.Equal(t, v.index, e.Index)
	}

	// A single small distance is allowed
	_, err := NewCommand(Go, 10, 100, 100, 50)
	assert.NoError(t, err)
	_, err = NewCommand(Go, -20, 21, -21, 10)
	assert.NoError(t, err)

	// Unknown code
	_, err = NewCommand(CommandCode(1000))
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestNewCommandCopiesArgs(t *testing.T) {
	args := []interface{}{50}
	c := MustNewCommand(Forward, args...)
	args[0] = 1000
	assert.Equal(t, 50, c.Int(0))
	c.Args()[0] = 1000
	assert.Equal(t, 50, c.Int(0))
	assert.Panics(t, func() { MustNewCommand(Forward, 1000) })
}

func TestParseCommand(t *testing.T) {
	// Valid
	c, err := ParseCommand("  cw   90 ")
	require.NoError(t, err)
	assert.Equal(t, ClockwiseTurn, c.Code())
	assert.Equal(t, 90, c.Int(0))

	// Errors
	_, err = ParseCommand(" ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
	_, err = ParseCommand("jump 20")
	assert.ErrorIs(t, err, ErrUnknownToken)
	_, err = ParseCommand("forward")
	assert.ErrorIs(t, err, ErrArgumentCount)
	_, err = ParseCommand("forward fifty")
	assert.ErrorIs(t, err, ErrArgumentType)
	_, err = ParseCommand("forward 10")
	assert.ErrorIs(t, err, ErrArgumentRange)
	_, err = ParseCommand("flip lr")
	assert.ErrorIs(t, err, ErrArgumentType)
}

func TestCommandRules(t *testing.T) {
	// Immediate commands
	for _, code := range []CommandCode{EnterSdkMode, Stop, EmergencyStop, SetRemoteControl} {
		assert.True(t, MustNewCommand(code, validArgs[code]...).Immediate(), code.String())
	}
	assert.False(t, MustNewCommand(Takeoff).Immediate())

	// Rules are copies
	r, ok := RuleByToken("forward")
	require.True(t, ok)
	r.Arguments[0] = IntegerRule{Min: 0, Max: 10000}
	_, err := NewCommand(Forward, 1000)
	assert.ErrorIs(t, err, ErrArgumentRange)

	// Unknown
	_, ok = RuleByCode(CommandCode(-1))
	assert.False(t, ok)
	assert.Len(t, Rules(), 28)
}

func TestCommandTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, MustNewCommand(EnterSdkMode).Timeout())
	assert.Equal(t, 30*time.Second, MustNewCommand(GetBattery).Timeout())
	assert.Equal(t, 30*time.Second, MustNewCommand(EmergencyStop).Timeout())
	assert.Equal(t, 50*time.Second, MustNewCommand(Forward, 50).Timeout())
	assert.Equal(t, 60*time.Second, MustNewCommand(ClockwiseTurn, 90).Timeout())
	assert.Equal(t, 50*time.Second, MustNewCommand(Go, 30, 40, 0, 50).Timeout())
	assert.Equal(t, 60*time.Second, MustNewCommand(Takeoff).Timeout())
	assert.Equal(t, 60*time.Second, MustNewCommand(Up, 20).Timeout())
}
