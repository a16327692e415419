package packets

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dcrodman/pongserver/internal/core/bytes"
)

// Lobby message types.
const (
	LobbyAuthType  = AuthType
	PlayerListType = 0x01
	PlayerJoinType = 0x02
	UpdateType     = 0x03
	SetNameType    = 0x04
	NameErrorType  = 0x05
	LobbyPingType  = 0x06
	StartGameType  = 0x07
)

const invalidNameMessage = "Invalid name"

// PlayerInfo is one roster record.
type PlayerInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Ping  int64  `json:"ping"`
}

// marshalRecord encodes p as a single line of JSON without HTML escaping.
func marshalRecord(p PlayerInfo) string {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	// PlayerInfo always encodes.
	_ = enc.Encode(&p)
	return strings.TrimSuffix(sb.String(), "\n")
}

// PlayerList carries the full roster, either in response to an AuthRequest
// (PlayerListType) or periodically while in the lobby (UpdateType). Each
// record is followed by a newline.
type PlayerList struct {
	Type    uint16
	Players []PlayerInfo
}

func (l *PlayerList) Encode() []byte {
	var sb strings.Builder
	for _, p := range l.Players {
		sb.WriteString(marshalRecord(p))
		sb.WriteByte('\n')
	}
	text := bytes.ConvertToUtf16(sb.String())
	return append(header(l.Type, len(text)), text...)
}

func ParsePlayerList(payload []byte) (*PlayerList, error) {
	t, err := Type(payload)
	if err != nil {
		return nil, err
	}

	list := &PlayerList{Type: t}
	for _, line := range strings.Split(bytes.ConvertFromUtf16(body(payload)), "\n") {
		if line == "" {
			continue
		}
		var p PlayerInfo
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, fmt.Errorf("%w: bad roster record: %v", ErrMalformed, err)
		}
		list.Players = append(list.Players, p)
	}
	return list, nil
}

// PlayerJoin announces a newly joined player to everyone else in the lobby.
type PlayerJoin struct {
	Player PlayerInfo
}

func (j *PlayerJoin) Encode() []byte {
	text := bytes.ConvertToUtf16(marshalRecord(j.Player))
	return append(header(PlayerJoinType, len(text)), text...)
}

func ParsePlayerJoin(payload []byte) (*PlayerJoin, error) {
	var j PlayerJoin
	if err := json.Unmarshal([]byte(bytes.ConvertFromUtf16(body(payload))), &j.Player); err != nil {
		return nil, fmt.Errorf("%w: bad join record: %v", ErrMalformed, err)
	}
	return &j, nil
}

type SetName struct {
	Name string
}

func (s *SetName) Encode() []byte {
	text := bytes.ConvertToUtf16(s.Name)
	return append(header(SetNameType, len(text)), text...)
}

func ParseSetName(payload []byte) *SetName {
	return &SetName{Name: bytes.ConvertFromUtf16(body(payload))}
}

// NameError rejects a SetName.
type NameError struct{}

func (NameError) Encode() []byte {
	text := bytes.ConvertToUtf16(invalidNameMessage)
	return append(header(NameErrorType, len(text)), text...)
}

// LobbyPing carries the client's clock in unix milliseconds.
type LobbyPing struct {
	Timestamp int64
}

func (p *LobbyPing) Encode() []byte {
	text := bytes.ConvertToUtf16(strconv.FormatInt(p.Timestamp, 10))
	return append(header(LobbyPingType, len(text)), text...)
}

func ParseLobbyPing(payload []byte) (*LobbyPing, error) {
	ts, err := parseTimestamp(bytes.ConvertFromUtf16(body(payload)))
	if err != nil {
		return nil, err
	}
	return &LobbyPing{Timestamp: ts}, nil
}

// StartGame is sent by the admin to start the match.
type StartGame struct{}

func (StartGame) Encode() []byte {
	return header(StartGameType, 0)
}

// StartGameAck reports whether the match is starting.
type StartGameAck struct {
	OK bool
}

func (a *StartGameAck) Encode() []byte {
	var status uint16
	if a.OK {
		status = 1
	}
	return bytes.PutUint16LE(header(StartGameType, 2), status)
}

func ParseStartGameAck(payload []byte) (*StartGameAck, error) {
	status, ok := bytes.Uint16LE(body(payload))
	if !ok {
		return nil, fmt.Errorf("%w: missing start status", ErrMalformed)
	}
	return &StartGameAck{OK: status == 1}, nil
}
