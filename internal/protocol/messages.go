package protocol

import "fmt"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// Viewers only receive frames; their commands are rejected.
	Viewer bool `json:"viewer,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	SessionID       string    `json:"session_id"`
	TickRateHz      int       `json:"tick_rate_hz"`
	Seed            int64     `json:"seed"`
	Theme           ThemeInfo `json:"theme"`
}

type ThemeInfo struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	Digest  string            `json:"digest"`
	Terms   map[string]string `json:"terms"`
	Canvas  [2]float64        `json:"canvas"`
	Helpers []string          `json:"helpers"`
}

// Command names accepted in CMD.
const (
	CmdRestock      = "restock"
	CmdRestockAll   = "restock_all"
	CmdCampaign     = "campaign"
	CmdExpand       = "expand"
	CmdHire         = "hire"
	CmdDismiss      = "dismiss"
	CmdAdjust       = "adjust"
	CmdAdvancePhase = "advance_phase"
	CmdSave         = "save"
	CmdReset        = "reset"
)

// CMD (client -> server)
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Cmd             string `json:"cmd"`

	// Resource is a resource id (restock, adjust).
	Resource string `json:"resource,omitempty"`
	// Helper is a helper kind for hire, a helper id (or kind) for dismiss.
	Helper string `json:"helper,omitempty"`
	// Delta is the price/appeal adjustment for adjust.
	Delta float64 `json:"delta,omitempty"`
}

// Result is the outcome of one command. Business failures are results, not errors.
type Result struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func OK(msg string) Result { return Result{OK: true, Message: msg} }

func Fail(code, format string, args ...any) Result {
	return Result{OK: false, Code: code, Message: fmt.Sprintf(format, args...)}
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Tick            uint64 `json:"tick"`
	Result
}
