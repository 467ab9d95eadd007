package hubserver

import (
	"github.com/agentchattr/agentchattr/internal/presence"
	"github.com/agentchattr/agentchattr/internal/store"
)

// wireBroadcasts subscribes the broadcaster to every store and presence
// event kind, translating each into the matching server-to-client frame
// (spec.md §4.5 "Server-to-client" frame list).
func (s *Server) wireBroadcasts() {
	s.store.Observe(store.EventMessage, func(_ store.EventKind, payload interface{}) {
		msg := payload.(store.Message)
		s.bcast.broadcast(ServerFrame{Type: FrameMessage, Message: &msg})
	})

	s.store.Observe(store.EventDelete, func(_ store.EventKind, payload interface{}) {
		ids := payload.([]int64)
		s.bcast.broadcast(ServerFrame{Type: FrameDelete, IDs: ids})
	})

	s.store.Observe(store.EventChannel, func(_ store.EventKind, _ interface{}) {
		s.bcast.broadcast(ServerFrame{Type: FrameChannels, Channels: s.store.ListChannels()})
	})

	s.store.Observe(store.EventDecision, func(_ store.EventKind, payload interface{}) {
		d := payload.(store.Decision)
		s.bcast.broadcast(ServerFrame{Type: FrameDecision, Decision: &d})
	})

	s.store.Observe(store.EventPin, func(_ store.EventKind, _ interface{}) {
		s.bcast.broadcast(ServerFrame{Type: FrameTodos, Todos: s.store.ListPins()})
	})

	s.store.Observe(store.EventSettings, func(_ store.EventKind, payload interface{}) {
		upd := payload.(store.SettingsUpdate)
		s.bcast.broadcast(ServerFrame{Type: FrameSettings, Key: upd.Key, Value: upd.Value})
	})

	s.pres.OnChange(func(st presence.Status) {
		s.bcast.broadcast(ServerFrame{Type: FrameStatus, Agent: st.Agent, Online: st.Online, Busy: st.Busy})
		s.bcast.broadcast(ServerFrame{Type: FrameAgents, Agents: s.agentViews()})
	})
}

func (s *Server) agentViews() []AgentView {
	statuses := s.pres.List()
	out := make([]AgentView, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, AgentView{Agent: st.Agent, Online: st.Online, Busy: st.Busy})
	}
	return out
}
