package mqttbridge

import (
	"github.com/asticode/go-astidrone"
)

type connectionStatePayload struct {
	State string `json:"state"`
}

type positionPayload struct {
	Heading int     `json:"heading"`
	Height  int     `json:"height"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

func newPositionPayload(p astidrone.Position) positionPayload {
	return positionPayload{
		Heading: p.Heading,
		Height:  p.Height,
		X:       p.X,
		Y:       p.Y,
	}
}

type protocolErrorPayload struct {
	Command   string `json:"command"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

func newProtocolErrorPayload(e *astidrone.ProtocolError) protocolErrorPayload {
	return protocolErrorPayload{
		Command:   e.Command.String(),
		Error:     e.Error(),
		Message:   e.Message,
		Timestamp: e.Timestamp.UnixMilli(),
	}
}

type responsePayload struct {
	Command string `json:"command"`
	Elapsed int64  `json:"elapsed_ms,omitempty"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Success bool   `json:"success"`
}

func newResponsePayload(r *astidrone.Response) (p responsePayload) {
	p = responsePayload{
		Elapsed: r.Elapsed.Milliseconds(),
		Message: r.Message,
		Success: r.Success,
	}
	if r.Err != nil {
		p.Error = r.Err.Error()
	}
	if r.Request != nil {
		p.Command = r.Request.Command.String()
		p.ID = r.Request.ID
	}
	return
}

type videoStreamingPayload struct {
	Streaming bool `json:"streaming"`
}
