package hubserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/agentchattr/agentchattr/internal/apperr"
	"github.com/agentchattr/agentchattr/internal/id"
	"github.com/agentchattr/agentchattr/internal/router"
	"github.com/agentchattr/agentchattr/internal/store"
)

// backlogLimit bounds how much history a freshly connected browser
// replays as individual "message" frames before it starts seeing live
// traffic.
const backlogLimit = 200

// handleWS upgrades a browser connection and serves it for the life of
// the socket (spec.md §4.5 "GET /ws").
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if tokenFromRequest(r) != s.token {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("ws accept failed", "error", err)
		return
	}

	c := newConn(id.Generate(), ws)
	s.bcast.register(c)
	defer s.bcast.unregister(c)

	ctx := r.Context()
	go c.writePump(ctx)

	s.sendSnapshot(c)
	s.readLoop(ctx, c)
}

// sendSnapshot pushes the current channel list, pins, decisions, presence,
// and recent message backlog to a newly connected browser.
func (s *Server) sendSnapshot(c *conn) {
	s.bcast.sendTo(c, ServerFrame{Type: FrameChannels, Channels: s.store.ListChannels()})
	s.bcast.sendTo(c, ServerFrame{Type: FrameTodos, Todos: s.store.ListPins()})
	s.bcast.sendTo(c, ServerFrame{Type: FrameDecisions, Decisions: s.store.ListDecisions()})
	s.bcast.sendTo(c, ServerFrame{Type: FrameAgents, Agents: s.agentViews()})

	for _, msg := range s.store.Recent("", backlogLimit) {
		m := msg
		s.bcast.sendTo(c, ServerFrame{Type: FrameMessage, Message: &m})
	}
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendValidationError(c, "", err)
			continue
		}
		s.handleClientFrame(c, frame)
	}
}

// handleClientFrame dispatches one decoded browser frame, translating any
// resulting apperr into a single system message sent back to the
// offending connection only (spec.md §7 "Validation").
func (s *Server) handleClientFrame(c *conn, f ClientFrame) {
	var err error
	switch f.Type {
	case FrameMessage:
		err = s.handleSend(f)
	case FrameUpdateSettings:
		err = s.store.SetSetting(f.Key, f.Value)
	case FrameTodoAdd:
		err = s.store.SetPin(f.MessageID, store.PinTodo)
	case FrameTodoToggle:
		err = s.toggleTodo(f.MessageID)
	case FrameTodoRemove:
		err = s.store.ClearPin(f.MessageID)
	case FrameDelete:
		err = s.store.Delete(f.IDs)
	case FrameDecisionPropose:
		owner := f.Owner
		if owner == "" {
			owner = router.HumanSender
		}
		_, err = s.store.AddDecision(owner, f.DecisionText, f.DecisionReason)
	case FrameDecisionApprove:
		_, err = s.store.ApproveDecision(f.DecisionID)
	case FrameDecisionUnapprove:
		_, err = s.store.UnapproveDecision(f.DecisionID)
	case FrameDecisionEdit:
		_, err = s.store.EditDecision(f.DecisionID, f.DecisionText, f.DecisionReason)
	case FrameDecisionDelete:
		err = s.store.DeleteDecision(f.DecisionID)
	case FrameChannelCreate:
		_, err = s.store.CreateChannel(f.Name)
	case FrameChannelRename:
		err = s.handleChannelRename(f.Name, f.NewName)
	case FrameChannelDelete:
		err = s.store.DeleteChannel(f.Name)
	case FrameTyping:
		s.bcast.broadcast(ServerFrame{Type: FrameTyping, Agent: f.Agent})
		return
	default:
		err = apperr.New(apperr.Validation, "unknown frame type")
	}

	if err != nil {
		s.sendValidationError(c, f.Channel, err)
	}
}

func (s *Server) handleSend(f ClientFrame) error {
	sender := f.Sender
	if sender == "" {
		sender = router.HumanSender
	}
	channel := f.Channel
	if channel == "" {
		channel = "general"
	}
	_, err := s.store.Append(store.Message{
		Sender:      sender,
		Channel:     channel,
		Text:        f.Text,
		ReplyTo:     f.ReplyTo,
		Attachments: f.Attachments,
	})
	return err
}

// toggleTodo cycles a pinned message through todo -> done -> absent
// (spec.md §8 scenario 6 "Pin lifecycle").
func (s *Server) toggleTodo(messageID int64) error {
	var current store.PinStatus
	var found bool
	for _, p := range s.store.ListPins() {
		if p.Message.ID == messageID {
			current = p.Status
			found = true
			break
		}
	}
	if !found {
		return s.store.SetPin(messageID, store.PinTodo)
	}
	if current == store.PinTodo {
		return s.store.SetPin(messageID, store.PinDone)
	}
	return s.store.ClearPin(messageID)
}

func (s *Server) handleChannelRename(oldName, newName string) error {
	if _, err := s.store.RenameChannel(oldName, newName); err != nil {
		return err
	}
	s.bcast.broadcast(ServerFrame{Type: FrameChannelRenamed, OldName: oldName, NewName: newName})
	return nil
}

func (s *Server) sendValidationError(c *conn, channel string, err error) {
	msg := store.Message{
		Channel: channel,
		Sender:  "system",
		Text:    err.Error(),
		Type:    store.TypeSystem,
	}
	s.bcast.sendTo(c, ServerFrame{Type: FrameMessage, Message: &msg})
}
