package game

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pongserver/internal/frame"
	"github.com/dcrodman/pongserver/internal/packets"
	"github.com/dcrodman/pongserver/internal/server"
)

// session is the extra info stored with a connection once it authenticates.
type session struct {
	MatchKey      string
	PlayerKey     string
	Authenticated bool
}

// HandleEvent routes one connection event.
func (r *Registry) HandleEvent(e server.Event) {
	switch e.Type {
	case server.MessageEvent:
		r.handleMessage(e.Ref, e.Frame)
	case server.DisconnectEvent:
		for _, m := range r.matches {
			if m.DropSocket(e.Ref) {
				break
			}
		}
	case server.ErrorEvent:
		r.Logger.WithFields(logrus.Fields{"path": e.Ref.Path, "index": e.Ref.Index}).Debugf("connection error: %v", e.Err)
	}
}

func (r *Registry) session(ref server.Ref) session {
	info, _ := r.conns.ExtraInfo(ref)
	s, _ := info.(session)
	return s
}

func (r *Registry) handleMessage(ref server.Ref, f *frame.Frame) {
	// Every message on both paths is binary.
	if f.Opcode != frame.Binary {
		return
	}

	s := r.session(ref)
	msgType, err := packets.Type(f.Payload)
	if !s.Authenticated && (err != nil || msgType != packets.AuthType) {
		_ = r.conns.Disconnect(ref, "Not authenticated", true)
		return
	} else if err != nil {
		return
	}

	logger := r.Logger.WithFields(logrus.Fields{"path": ref.Path, "index": ref.Index, "type": msgType})

	switch ref.Path {
	case LobbyPath:
		r.handleLobby(ref, s, msgType, f.Payload, logger)
	case PlayPath:
		r.handlePlay(ref, s, msgType, f.Payload, logger)
	}
}

// authenticatedMatch returns the match of an authenticated connection, or
// disconnects the connection if the match is gone or not in the state
// required by the path.
func (r *Registry) authenticatedMatch(ref server.Ref, s session, want State) (*Match, bool) {
	m, ok := r.matches[s.MatchKey]
	if !ok || m.State != want {
		_ = r.conns.Disconnect(ref, "", true)
		return nil, false
	}
	return m, true
}

func (r *Registry) handleLobby(ref server.Ref, s session, msgType uint16, payload []byte, logger logrus.FieldLogger) {
	if msgType == packets.LobbyAuthType {
		if s.Authenticated {
			if _, ok := r.authenticatedMatch(ref, s, NotStarted); !ok {
				return
			}
		}
		r.lobbyAuth(ref, payload, logger)
		return
	}

	m, ok := r.authenticatedMatch(ref, s, NotStarted)
	if !ok {
		return
	}

	switch msgType {
	case packets.SetNameType:
		name := strings.TrimSpace(packets.ParseSetName(payload).Name)
		if err := m.SetName(s.PlayerKey, name); err != nil {
			r.send(ref, packets.NameError{}.Encode())
		}

	case packets.LobbyPingType:
		ping, err := packets.ParseLobbyPing(payload)
		if err != nil {
			return
		}
		if diff := r.now().UnixMilli() - ping.Timestamp; diff >= 0 {
			m.SetPing(s.PlayerKey, diff)
		}

	case packets.StartGameType:
		if err := m.Start(s.PlayerKey); err != nil {
			logger.Debugf("start rejected: %v", err)
			r.send(ref, (&packets.StartGameAck{OK: false}).Encode())
		}

	default:
		logger.Debug("unknown lobby message")
	}
}

func (r *Registry) lobbyAuth(ref server.Ref, payload []byte, logger logrus.FieldLogger) {
	m, req, ok := r.checkCredentials(ref, payload, NotStarted)
	if !ok {
		return
	}

	r.conns.SetExtraInfo(ref, session{MatchKey: req.MatchKey, PlayerKey: req.PlayerKey, Authenticated: true})
	if err := m.JoinPlayer(req.PlayerKey, ref); err != nil {
		// Reconnecting to the lobby.
		_ = m.UpdateSocket(req.PlayerKey, ref)
	}

	r.send(ref, (&packets.AuthResult{OK: true}).Encode())
	r.send(ref, m.PlayerList(packets.PlayerListType))
	logger.WithField("match", m.Key).Debug("lobby auth succeeded")
}

func (r *Registry) handlePlay(ref server.Ref, s session, msgType uint16, payload []byte, logger logrus.FieldLogger) {
	if msgType == packets.PlayAuthType {
		if s.Authenticated {
			if _, ok := r.authenticatedMatch(ref, s, Active); !ok {
				return
			}
		}
		r.playAuth(ref, payload, logger)
		return
	}

	m, ok := r.authenticatedMatch(ref, s, Active)
	if !ok {
		return
	}

	switch msgType {
	case packets.PlayerUpdateType:
		update, err := packets.ParsePlayerUpdate(payload)
		if err != nil {
			return
		}
		m.SetPosition(s.PlayerKey, float64(update.Position))

	case packets.PlayPingType:
		// Clients send these but nothing is measured on this path.

	default:
		logger.Debug("unknown play message")
	}
}

func (r *Registry) playAuth(ref server.Ref, payload []byte, logger logrus.FieldLogger) {
	m, req, ok := r.checkCredentials(ref, payload, Active)
	if !ok {
		return
	}

	r.conns.SetExtraInfo(ref, session{MatchKey: req.MatchKey, PlayerKey: req.PlayerKey, Authenticated: true})
	_ = m.UpdateSocket(req.PlayerKey, ref)

	r.send(ref, (&packets.AuthResult{OK: true}).Encode())
	logger.WithField("match", m.Key).Debug("play auth succeeded")
}

// checkCredentials looks up the match and player named in an AuthRequest and
// replies with the reason if they are unknown or the match isn't in the
// wanted state.
func (r *Registry) checkCredentials(ref server.Ref, payload []byte, want State) (*Match, *packets.AuthRequest, bool) {
	var m *Match
	req, err := packets.ParseAuthRequest(payload)
	if err == nil {
		m = r.matches[req.MatchKey]
	}

	var reason string
	switch {
	case m == nil:
		reason = packets.ReasonInvalidMatchKey
	case !m.HasPlayer(req.PlayerKey):
		reason = packets.ReasonInvalidPlayerKey
	case m.State != want:
		reason = packets.ReasonInvalidState
	default:
		return m, req, true
	}

	r.send(ref, (&packets.AuthResult{Reason: reason}).Encode())
	return nil, nil, false
}

func (r *Registry) send(ref server.Ref, payload []byte) {
	if err := r.conns.Send(ref, payload); err != nil {
		r.Logger.WithFields(logrus.Fields{"path": ref.Path, "index": ref.Index}).Debugf("send failed: %v", err)
	}
}
