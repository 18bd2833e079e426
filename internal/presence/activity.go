package presence

import "dstatus/internal/config"

// CommandSetActivity is the command name for presence updates.
const CommandSetActivity = "SET_ACTIVITY"

// ProtocolVersion is sent in the handshake.
const ProtocolVersion = 1

// Activity is the status payload pushed to Discord.
type Activity struct {
	State      string      `json:"state,omitempty"`
	Details    string      `json:"details,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
	Party      *Party      `json:"party,omitempty"`
	Secrets    *Secrets    `json:"secrets,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
	Instance   bool        `json:"instance"`
}

// Timestamps is reserved; updates never populate it.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// Assets names uploaded art assets and their hover text.
type Assets struct {
	LargeImage string `json:"large_image"`
	LargeText  string `json:"large_text"`
	SmallImage string `json:"small_image"`
	SmallText  string `json:"small_text"`
}

// Party is rendered as "(current of max)".
type Party struct {
	Size [2]int `json:"size"`
}

// Secrets is reserved; updates never populate it.
type Secrets struct {
	Join     string `json:"join,omitempty"`
	Spectate string `json:"spectate,omitempty"`
	Match    string `json:"match,omitempty"`
}

// Button is a labelled link under the presence.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Handshake is the opcode 0 hello.
type Handshake struct {
	Version  int    `json:"v"`
	ClientID string `json:"client_id"`
}

// Command is the opcode 1 envelope for SET_ACTIVITY.
type Command struct {
	Cmd   string      `json:"cmd"`
	Args  CommandArgs `json:"args"`
	Nonce string      `json:"nonce"`
}

// CommandArgs carries the sending process and its activity.
type CommandArgs struct {
	PID      uint32   `json:"pid"`
	Activity Activity `json:"activity"`
}

// NewHandshake builds the hello for clientID.
func NewHandshake(clientID string) Handshake {
	return Handshake{Version: ProtocolVersion, ClientID: clientID}
}

// BuildActivity converts a configuration snapshot into a wire Activity.
// Buttons are left nil unless at least one is configured, so the field is
// omitted from the JSON.
func BuildActivity(cfg config.Config) Activity {
	activity := Activity{
		State:   cfg.State,
		Details: cfg.Details,
		Assets: &Assets{
			LargeImage: cfg.LargeImage,
			LargeText:  cfg.LargeText,
			SmallImage: cfg.SmallImage,
			SmallText:  cfg.SmallText,
		},
		Party:    &Party{Size: [2]int{cfg.PartySize, cfg.MaxPartySize}},
		Instance: false,
	}
	if len(cfg.Buttons) > 0 {
		activity.Buttons = make([]Button, len(cfg.Buttons))
		for i, b := range cfg.Buttons {
			activity.Buttons[i] = Button{Label: b.Label, URL: b.URL}
		}
	}
	return activity
}

// NewSetActivity wraps activity in a SET_ACTIVITY command.
func NewSetActivity(pid uint32, nonce string, activity Activity) Command {
	return Command{
		Cmd:   CommandSetActivity,
		Args:  CommandArgs{PID: pid, Activity: activity},
		Nonce: nonce,
	}
}
