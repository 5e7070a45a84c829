package astidrone

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// CommandCode identifies a command supported by the drone
type CommandCode int

// Command codes
const (
	EnterSdkMode CommandCode = iota
	Takeoff
	Land
	Stop
	EmergencyStop
	Up
	Down
	Left
	Right
	Forward
	Back
	ClockwiseTurn
	CounterClockwiseTurn
	Go
	Curve
	SetSpeed
	StartVideo
	StopVideo
	GetSpeed
	GetBattery
	GetTime
	GetWifiSnr
	GetSdkVersion
	GetSerialNumber
	SetRemoteControl
	Flip
	SetStationMode
	SetWifiPassword
)

var commandCodeNames = map[CommandCode]string{
	EnterSdkMode:         "EnterSdkMode",
	Takeoff:              "Takeoff",
	Land:                 "Land",
	Stop:                 "Stop",
	EmergencyStop:        "EmergencyStop",
	Up:                   "Up",
	Down:                 "Down",
	Left:                 "Left",
	Right:                "Right",
	Forward:              "Forward",
	Back:                 "Back",
	ClockwiseTurn:        "ClockwiseTurn",
	CounterClockwiseTurn: "CounterClockwiseTurn",
	Go:                   "Go",
	Curve:                "Curve",
	SetSpeed:             "SetSpeed",
	StartVideo:           "StartVideo",
	StopVideo:            "StopVideo",
	GetSpeed:             "GetSpeed",
	GetBattery:           "GetBattery",
	GetTime:              "GetTime",
	GetWifiSnr:           "GetWifiSnr",
	GetSdkVersion:        "GetSdkVersion",
	GetSerialNumber:      "GetSerialNumber",
	SetRemoteControl:     "SetRemoteControl",
	Flip:                 "Flip",
	SetStationMode:       "SetStationMode",
	SetWifiPassword:      "SetWifiPassword",
}

func (c CommandCode) String() string {
	if n, ok := commandCodeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("CommandCode(%d)", int(c))
}

// ResponseKind classifies how the response to a command must be interpreted
type ResponseKind int

// Response kinds
const (
	ResponseOk ResponseKind = iota
	ResponseSpeed
	ResponseBattery
	ResponseTime
	ResponseWifiSnr
	ResponseSdkVersion
	ResponseSerialNumber
	ResponseNone
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseOk:
		return "ok"
	case ResponseSpeed:
		return "speed"
	case ResponseBattery:
		return "battery"
	case ResponseTime:
		return "time"
	case ResponseWifiSnr:
		return "wifi.snr"
	case ResponseSdkVersion:
		return "sdk.version"
	case ResponseSerialNumber:
		return "serial.number"
	case ResponseNone:
		return "none"
	}
	return fmt.Sprintf("ResponseKind(%d)", int(k))
}

// Wire literals
const (
	OkToken    = "ok"
	ErrorToken = "error"
)

// ArgumentRule validates one positional argument of a command
type ArgumentRule interface {
	// TypeAllowed checks the runtime type of v
	TypeAllowed(v interface{}) bool
	// ValueAllowed checks the value of v, which must be type-allowed
	ValueAllowed(v interface{}) bool
	// Parse converts a wire token into a value of the rule's type
	Parse(token string) (interface{}, error)
	// Describe returns the constraint in a human readable form
	Describe() string
}

// IntegerRule accepts ints in the closed interval [Min, Max]
type IntegerRule struct {
	Min int
	Max int
}

func (r IntegerRule) TypeAllowed(v interface{}) bool {
	_, ok := v.(int)
	return ok
}

func (r IntegerRule) ValueAllowed(v interface{}) bool {
	i, ok := v.(int)
	return ok && i >= r.Min && i <= r.Max
}

func (r IntegerRule) Parse(token string) (v interface{}, err error) {
	var i int
	if i, err = strconv.Atoi(token); err != nil {
		err = errors.Wrapf(err, "astidrone: parsing integer %q failed", token)
		return
	}
	v = i
	return
}

func (r IntegerRule) Describe() string {
	return fmt.Sprintf("int in [%d, %d]", r.Min, r.Max)
}

// CharacterRule accepts runes belonging to Allowed
type CharacterRule struct {
	Allowed string
}

func (r CharacterRule) TypeAllowed(v interface{}) bool {
	_, ok := v.(rune)
	return ok
}

func (r CharacterRule) ValueAllowed(v interface{}) bool {
	c, ok := v.(rune)
	return ok && strings.ContainsRune(r.Allowed, c)
}

func (r CharacterRule) Parse(token string) (v interface{}, err error) {
	if utf8.RuneCountInString(token) != 1 {
		err = fmt.Errorf("astidrone: %q is not a single character", token)
		return
	}
	c, _ := utf8.DecodeRuneInString(token)
	v = c
	return
}

func (r CharacterRule) Describe() string {
	return fmt.Sprintf("one of %q", r.Allowed)
}

// StringRule accepts non-empty strings without whitespace
type StringRule struct{}

func (r StringRule) TypeAllowed(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func (r StringRule) ValueAllowed(v interface{}) bool {
	s, ok := v.(string)
	return ok && s != "" && strings.IndexFunc(s, unicode.IsSpace) == -1
}

func (r StringRule) Parse(token string) (interface{}, error) {
	return token, nil
}

func (r StringRule) Describe() string {
	return "non-empty string without whitespace"
}

// CommandRule governs the validation, encoding and response handling of a command
type CommandRule struct {
	Code           CommandCode
	Token          string
	Arguments      []ArgumentRule
	Response       ResponseKind
	MustBeInFlight bool
	Immediate      bool
}

func (r CommandRule) clone() CommandRule {
	r.Arguments = append([]ArgumentRule(nil), r.Arguments...)
	return r
}

var (
	rulesByCode  map[CommandCode]CommandRule
	rulesByToken map[string]CommandRule
	ruleCodes    []CommandCode
)

func init() {
	movement := []ArgumentRule{IntegerRule{Min: 20, Max: 500}}
	turn := []ArgumentRule{IntegerRule{Min: 1, Max: 360}}
	offset := IntegerRule{Min: -500, Max: 500}
	stick := IntegerRule{Min: -100, Max: 100}

	rs := []CommandRule{
		{Code: EnterSdkMode, Token: "command", Response: ResponseOk, Immediate: true},
		{Code: Takeoff, Token: "takeoff", Response: ResponseOk},
		{Code: Land, Token: "land", Response: ResponseOk, MustBeInFlight: true},
		{Code: Stop, Token: "stop", Response: ResponseOk, MustBeInFlight: true, Immediate: true},
		{Code: EmergencyStop, Token: "emergency", Response: ResponseOk, Immediate: true},
		{Code: Up, Token: "up", Arguments: movement, Response: ResponseOk, MustBeInFlight: true},
		{Code: Down, Token: "down", Arguments: movement, Response: ResponseOk, MustBeInFlight: true},
		{Code: Left, Token: "left", Arguments: movement, Response: ResponseOk, MustBeInFlight: true},
		{Code: Right, Token: "right", Arguments: movement, Response: ResponseOk, MustBeInFlight: true},
		{Code: Forward, Token: "forward", Arguments: movement, Response: ResponseOk, MustBeInFlight: true},
		{Code: Back, Token: "back", Arguments: movement, Response: ResponseOk, MustBeInFlight: true},
		{Code: ClockwiseTurn, Token: "cw", Arguments: turn, Response: ResponseOk, MustBeInFlight: true},
		{Code: CounterClockwiseTurn, Token: "ccw", Arguments: turn, Response: ResponseOk, MustBeInFlight: true},
		{
			Code:           Go,
			Token:          "go",
			Arguments:      []ArgumentRule{offset, offset, offset, IntegerRule{Min: 10, Max: 100}},
			Response:       ResponseOk,
			MustBeInFlight: true,
		},
		{
			Code:           Curve,
			Token:          "curve",
			Arguments:      []ArgumentRule{offset, offset, offset, offset, offset, offset, IntegerRule{Min: 10, Max: 60}},
			Response:       ResponseOk,
			MustBeInFlight: true,
		},
		{Code: SetSpeed, Token: "speed", Arguments: []ArgumentRule{IntegerRule{Min: 10, Max: 100}}, Response: ResponseOk},
		{Code: StartVideo, Token: "streamon", Response: ResponseOk},
		{Code: StopVideo, Token: "streamoff", Response: ResponseOk},
		{Code: GetSpeed, Token: "speed?", Response: ResponseSpeed},
		{Code: GetBattery, Token: "battery?", Response: ResponseBattery},
		{Code: GetTime, Token: "time?", Response: ResponseTime},
		{Code: GetWifiSnr, Token: "wifi?", Response: ResponseWifiSnr},
		{Code: GetSdkVersion, Token: "sdk?", Response: ResponseSdkVersion},
		{Code: GetSerialNumber, Token: "sn?", Response: ResponseSerialNumber},
		{
			Code:           SetRemoteControl,
			Token:          "rc",
			Arguments:      []ArgumentRule{stick, stick, stick, stick},
			Response:       ResponseNone,
			MustBeInFlight: true,
			Immediate:      true,
		},
		{Code: Flip, Token: "flip", Arguments: []ArgumentRule{CharacterRule{Allowed: "lrfb"}}, Response: ResponseOk, MustBeInFlight: true},
		{Code: SetStationMode, Token: "ap", Arguments: []ArgumentRule{StringRule{}, StringRule{}}, Response: ResponseOk},
		{Code: SetWifiPassword, Token: "wifi", Arguments: []ArgumentRule{StringRule{}, StringRule{}}, Response: ResponseOk},
	}

	rulesByCode = make(map[CommandCode]CommandRule, len(rs))
	rulesByToken = make(map[string]CommandRule, len(rs))
	for _, r := range rs {
		rulesByCode[r.Code] = r
		rulesByToken[r.Token] = r
		ruleCodes = append(ruleCodes, r.Code)
	}
}

// RuleByCode returns a copy of the rule governing code
func RuleByCode(code CommandCode) (r CommandRule, ok bool) {
	if r, ok = rulesByCode[code]; ok {
		r = r.clone()
	}
	return
}

// RuleByToken returns a copy of the rule whose wire token is token
func RuleByToken(token string) (r CommandRule, ok bool) {
	if r, ok = rulesByToken[token]; ok {
		r = r.clone()
	}
	return
}

// Rules returns a copy of the whole rule table, ordered by command code
func Rules() (rs []CommandRule) {
	for _, c := range ruleCodes {
		rs = append(rs, rulesByCode[c].clone())
	}
	return
}
