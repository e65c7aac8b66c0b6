package protocol

import "encoding/json"

// RESULT (server -> client)
type ResultMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	ActID           string          `json:"act_id,omitempty"`
	Op              string          `json:"op"`
	OK              bool            `json:"ok"`
	Code            string          `json:"code,omitempty"`
	Message         string          `json:"message,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

func NewResult(tick uint64, act ActMsg, ok bool, code, message string, data any) ResultMsg {
	r := ResultMsg{
		Type:            TypeResult,
		ProtocolVersion: Version,
		Tick:            tick,
		ActID:           act.ActID,
		Op:              act.Op,
		OK:              ok,
		Code:            code,
		Message:         message,
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			r.Data = b
		} else {
			r.OK = false
			r.Code = ErrInternal
			r.Message = "encode result: " + err.Error()
		}
	}
	return r
}
