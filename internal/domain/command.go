package domain

import "strings"

type CommandKind string

const (
	CommandPlaySound    CommandKind = "PLAY_SOUND"
	CommandStopSound    CommandKind = "STOP_SOUND"
	CommandSyncSettings CommandKind = "SYNC_SETTINGS"
	CommandSetVolume    CommandKind = "SET_VOLUME"
	CommandUploadSound  CommandKind = "UPLOAD_SOUND"
	CommandSetSound     CommandKind = "SET_SOUND"
	CommandDeleteSound  CommandKind = "DELETE_SOUND"
	CommandMotorOn      CommandKind = "MOTOR_ON"
	CommandMotorOff     CommandKind = "MOTOR_OFF"
)

// Command is a remote command parsed from its wire token. Sound is only set
// for the UPLOAD_SOUND, SET_SOUND and DELETE_SOUND variants.
type Command struct {
	Kind  CommandKind
	Sound string
	Raw   string
}

var bareCommands = map[CommandKind]bool{
	CommandPlaySound:    true,
	CommandStopSound:    true,
	CommandSyncSettings: true,
	CommandSetVolume:    true,
	CommandMotorOn:      true,
	CommandMotorOff:     true,
}

var soundCommands = map[CommandKind]bool{
	CommandUploadSound: true,
	CommandSetSound:    true,
	CommandDeleteSound: true,
}

// ParseCommand turns a raw token such as "SET_SOUND:bell.wav" into a Command.
// It reports false for empty, unknown or payload-less tokens.
func ParseCommand(raw string) (Command, bool) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return Command{}, false
	}

	name, payload, hasPayload := strings.Cut(token, ":")
	kind := CommandKind(name)

	if !hasPayload {
		if !bareCommands[kind] {
			return Command{}, false
		}
		return Command{Kind: kind, Raw: token}, true
	}

	if !soundCommands[kind] {
		return Command{}, false
	}

	sound := strings.TrimSpace(payload)
	if sound == "" {
		return Command{}, false
	}

	return Command{Kind: kind, Sound: sound, Raw: token}, true
}
