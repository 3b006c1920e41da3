package main

import (
	"sync"

	"github.com/oakmoth/reactorium/game"
	"github.com/oakmoth/reactorium/reactor"
	"github.com/oakmoth/reactorium/wire"
)

// echoGame is the built-in demonstration GameController registered
// under the "echo" kind: every player's submitted payload is rebroadcast
// to every connected player, the sender included, and the match never concludes on its
// own (it only ends via an operator Kill). It exists purely to give
// the serve/echo subcommands something real to drive end to end.
type echoGame struct {
	mu      sync.Mutex
	turn    uint64
	players map[reactor.ID]struct{}
}

func newEchoGame() game.GameController {
	return &echoGame{players: make(map[reactor.ID]struct{})}
}

func (g *echoGame) Step(turn []wire.PlayerMessage) []wire.HostMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.turn++

	out := make([]wire.HostMessage, 0, len(turn))
	for _, pm := range turn {
		if pm.Payload == nil {
			continue
		}
		out = append(out, wire.HostMessage{Payload: pm.Payload})
	}
	return out
}

func (g *echoGame) State() (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]any{"turn": g.turn, "players": len(g.players)}, nil
}

func (g *echoGame) IsDone() (any, bool) { return nil, false }

func (g *echoGame) OnConnect(player reactor.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.players[player] = struct{}{}
}

func (g *echoGame) OnDisconnect(player reactor.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.players, player)
}
