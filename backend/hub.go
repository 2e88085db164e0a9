// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ttbt-io/triviaball/backend/game"
	"github.com/ttbt-io/triviaball/backend/questions"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("login required")
	errHubBusy         = errors.New("hub busy")
)

// HubRequest types
const (
	ReqTypeWSJoin     = "WS_JOIN"
	ReqTypeWSSend     = "WS_SEND"
	ReqTypeHTTPLoad   = "HTTP_LOAD"
	ReqTypeHTTPEvent  = "HTTP_EVENT"
	ReqTypeHTTPDelete = "HTTP_DELETE"
)

// HubRequest represents a request to the Hub
type HubRequest struct {
	Type   string
	Client  *wsClient  // For WS requests
	UserId  string     // Caller, for access checks
	Event   game.Event // For HTTP_EVENT
	Message Message    // For WS_SEND
	Reply   chan HubResponse
}

// HubResponse represents a response from the Hub
type HubResponse struct {
	Snapshot *Snapshot
	Error    error
}

// hubSignal is posted back to the hub by the question request and the
// answer countdown.
type hubSignal struct {
	token    uint64
	question *game.Question
	err      error
	timeout  bool
}

// Hub owns one game. Every change to the game happens on the hub
// goroutine, one event at a time.
type Hub struct {
	gameId string

	// Registered clients and the access they joined with. Clients that
	// have not joined yet have AccessNone and receive no snapshots.
	clients map[*wsClient]AccessLevel

	requests   chan HubRequest
	signals    chan hubSignal
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}

	rec        *GameRecord
	notice     string
	lastActive time.Time

	countdown      *game.Countdown
	cancelQuestion context.CancelFunc

	gs *GameStore
	hm *HubManager
}

func newHub(id string, gs *GameStore, hm *HubManager) *Hub {
	return &Hub{
		gameId:     id,
		clients:    make(map[*wsClient]AccessLevel),
		requests:   make(chan HubRequest, 64),
		signals:    make(chan hubSignal, 4),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		lastActive: hm.now(),
		gs:         gs,
		hm:         hm,
	}
}

func (h *Hub) run() {
	defer h.hm.wg.Done()
	defer close(h.done)
	defer h.stopAtBat()

	idleTimer := time.NewTicker(h.hm.IdleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case <-h.hm.ctx.Done():
			h.flush()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		case client := <-h.register:
			h.clients[client] = AccessNone
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case sig := <-h.signals:
			h.handleSignal(sig)
		case req := <-h.requests:
			h.lastActive = h.hm.now()
			h.handleRequest(req)
		case <-idleTimer.C:
			h.flush()
			if len(h.clients) == 0 && !h.busy() && h.hm.now().Sub(h.lastActive) >= h.hm.IdleTimeout && h.hm.removeIfIdle(h) {
				return
			}
		}
	}
}

// busy reports whether an at-bat is in progress. Such a hub owns a
// question request or a countdown and must stay alive.
func (h *Hub) busy() bool {
	return h.rec != nil && h.rec.Game.Pending != nil
}

func (h *Hub) flush() {
	if err := h.gs.Flush(h.gameId); err != nil {
		log.Printf("[HUB] Error flushing game %s: %v", h.gameId, err)
	}
}

func (h *Hub) ensureLoaded() error {
	if h.rec != nil {
		return nil
	}
	rec, err := h.gs.LoadGame(h.gameId)
	if err != nil {
		return err
	}
	h.rec = rec
	h.resume()
	return nil
}

// resume picks up an at-bat that was in progress when the game was last
// saved. A question that never arrived is dropped; a question on the
// clock gets the time it had left.
func (h *Hub) resume() {
	ab := h.rec.Game.Pending
	if ab == nil {
		return
	}
	if ab.Loading() {
		log.Printf("[HUB] Game %s: dropping interrupted at-bat %d", h.gameId, ab.Token)
		if _, err := h.apply(game.QuestionFailed{Token: ab.Token, Err: fmt.Errorf("%w: interrupted", questions.ErrUnavailable)}); err != nil {
			log.Printf("[HUB] Game %s: %v", h.gameId, err)
		}
		return
	}
	h.startCountdown(ab.Token, ab.Deadline)
}

func (h *Hub) reply(req HubRequest, snap *Snapshot, err error) {
	if req.Reply != nil {
		req.Reply <- HubResponse{Snapshot: snap, Error: err}
	}
}

// sendTo queues msg for c. The hub is the only writer and closer of
// c.send, so clients it has already dropped are skipped.
func (h *Hub) sendTo(c *wsClient, msg Message) {
	if c == nil {
		return
	}
	if _, ok := h.clients[c]; ok {
		c.sendJSON(msg)
	}
}

func (h *Hub) handleRequest(req HubRequest) {
	if req.Type == ReqTypeWSSend {
		h.sendTo(req.Client, req.Message)
		return
	}
	if err := h.ensureLoaded(); err != nil {
		h.sendTo(req.Client, Message{Type: MsgTypeError, GameId: h.gameId, Error: "Game not found"})
		h.reply(req, nil, err)
		return
	}
	access := GetGameAccess(req.UserId, h.rec)

	switch req.Type {
	case ReqTypeWSJoin:
		h.handleWSJoin(req.Client, access)
	case ReqTypeHTTPLoad:
		if access < AccessRead {
			h.reply(req, nil, ErrForbidden)
			return
		}
		h.reply(req, h.snapshot().forAccess(access), nil)
	case ReqTypeHTTPEvent:
		if access < AccessWrite {
			log.Printf("[HUB] Forbidden: User %s attempted to play game %s", maskEmail(req.UserId), h.gameId)
			if req.UserId == "" {
				h.reply(req, nil, ErrUnauthenticated)
			} else {
				h.reply(req, nil, ErrForbidden)
			}
			return
		}
		if _, err := h.apply(req.Event); err != nil {
			h.reply(req, nil, err)
			return
		}
		h.reply(req, h.snapshot(), nil)
	case ReqTypeHTTPDelete:
		if access < AccessAdmin {
			h.reply(req, nil, ErrForbidden)
			return
		}
		h.handleDelete(req)
	default:
		h.reply(req, nil, fmt.Errorf("unknown request type %q", req.Type))
	}
}

func (h *Hub) handleWSJoin(c *wsClient, access AccessLevel) {
	if c == nil {
		return
	}
	if _, ok := h.clients[c]; !ok {
		return
	}
	if access < AccessRead {
		log.Printf("[HUB] Forbidden: User %s attempted to join game %s without permissions", maskEmail(c.userId), h.gameId)
		h.sendTo(c, Message{Type: MsgTypeError, GameId: h.gameId, Error: "Forbidden: You do not have access to this game"})
		delete(h.clients, c)
		close(c.send)
		return
	}
	h.clients[c] = access
	h.sendTo(c, Message{Type: MsgTypeSnapshot, GameId: h.gameId, Snapshot: h.snapshot().forAccess(access)})
}

func (h *Hub) handleDelete(req HubRequest) {
	h.stopAtBat()
	if err := h.gs.DeleteGame(h.gameId); err != nil {
		log.Printf("[HUB] Error deleting game %s: %v", h.gameId, err)
		h.reply(req, nil, err)
		return
	}
	log.Printf("[HUB] Game %s deleted by %s", h.gameId, maskEmail(req.UserId))
	h.broadcast(Message{Type: MsgTypeDeleted, GameId: h.gameId})
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.rec = nil
	h.notice = ""
	h.reply(req, nil, nil)
}

// apply runs ev against a copy of the game and commits the copy once it
// has been saved.
func (h *Hub) apply(ev game.Event) (game.Outcome, error) {
	if a, ok := ev.(game.Answer); ok && a.Token == 0 && h.rec.Game.Pending != nil {
		a.Token = h.rec.Game.Pending.Token
		ev = a
	}
	g := h.rec.Game.Clone()
	out, err := g.Apply(ev)
	if err != nil {
		return out, err
	}

	rec := *h.rec
	rec.Game = g
	rec.UpdatedAt = h.hm.now().UnixMilli()
	// Resolved at-bats go straight to disk; the rest is flushed by the
	// idle timer and on shutdown.
	if err := h.gs.SaveGameInMemory(&rec, out.Result != nil); err != nil {
		log.Printf("[HUB] Error saving game %s: %v", h.gameId, err)
		if err := h.gs.SaveGameInMemory(&rec, false); err != nil {
			return game.Outcome{}, err
		}
	}
	h.rec = &rec
	h.hm.stats.ObserveOutcome(out)
	if h.hm.Debug {
		log.Printf("[HUB] Game %s: %T -> %v", h.gameId, ev, out.Trail)
	}
	h.react(out)
	h.broadcast(Message{Type: MsgTypeSnapshot, GameId: h.gameId, Snapshot: h.snapshot()})
	return out, nil
}

// react starts or stops the background work that belongs to the pending
// at-bat.
func (h *Hub) react(out game.Outcome) {
	ab := h.rec.Game.Pending
	switch {
	case ab == nil:
		h.stopAtBat()
		if out.Aborted != nil {
			h.notice = abortNotice(out.Aborted)
		}
	case out.AtBat != nil && ab.Loading():
		h.notice = ""
		h.requestQuestion(*ab)
	case out.AtBat != nil:
		h.startCountdown(ab.Token, ab.Deadline)
	}
}

func abortNotice(err error) string {
	switch {
	case errors.Is(err, questions.ErrInvalidCredential):
		return "La clave de la API no es válida. Configure una nueva clave."
	case errors.Is(err, questions.ErrRateLimited):
		return "Demasiadas solicitudes. Espere un momento e intente de nuevo."
	case errors.Is(err, game.ErrMalformedQuestion):
		return "La pregunta generada tiene un formato inválido. Intente de nuevo."
	}
	return "Error al generar la pregunta. Intente de nuevo."
}

func (h *Hub) requestQuestion(ab game.AtBat) {
	h.stopAtBat()
	ctx, cancel := context.WithTimeout(h.hm.ctx, h.hm.QuestionTimeout)
	h.cancelQuestion = cancel
	gen := h.hm.Generator()
	go func() {
		defer cancel()
		start := time.Now()
		q, err := gen.Generate(ctx, ab.Chapter, ab.Hit)
		h.hm.stats.ObserveQuestion(time.Since(start), err)
		if errors.Is(err, context.Canceled) {
			return
		}
		sig := hubSignal{token: ab.Token}
		if err != nil {
			log.Printf("[QUESTIONS] Error generating question for game %s: %v", h.gameId, err)
			sig.err = err
		} else {
			sig.question = &q
		}
		h.signal(sig)
	}()
}

func (h *Hub) startCountdown(token uint64, deadline time.Time) {
	if h.countdown != nil {
		h.countdown.Stop()
	}
	d := deadline.Sub(h.hm.now())
	if d < 0 {
		d = 0
	}
	h.countdown = game.StartCountdown(h.hm.ctx, d, func() {
		h.signal(hubSignal{token: token, timeout: true})
	})
}

// stopAtBat cancels the question request and the countdown, if any.
func (h *Hub) stopAtBat() {
	if h.cancelQuestion != nil {
		h.cancelQuestion()
		h.cancelQuestion = nil
	}
	if h.countdown != nil {
		h.countdown.Stop()
		h.countdown = nil
	}
}

func (h *Hub) signal(sig hubSignal) {
	select {
	case h.signals <- sig:
	case <-h.done:
	}
}

func (h *Hub) handleSignal(sig hubSignal) {
	if h.rec == nil {
		return
	}
	var ev game.Event
	switch {
	case sig.timeout:
		ev = game.Timeout{Token: sig.token}
	case sig.err != nil:
		ev = game.QuestionFailed{Token: sig.token, Err: sig.err}
	default:
		ev = game.QuestionReady{
			Token:    sig.token,
			Question: *sig.question,
			Deadline: h.hm.now().Add(h.hm.AnswerTimeout),
		}
	}
	if _, err := h.apply(ev); err != nil && h.hm.Debug {
		log.Printf("[HUB] Game %s: dropped %T: %v", h.gameId, ev, err)
	}
}

func (h *Hub) snapshot() *Snapshot {
	return newSnapshot(h.rec, h.notice, h.hm.now())
}

// broadcast sends msg to every joined client. Spectators get the
// snapshot without the owner.
func (h *Hub) broadcast(msg Message) {
	spectators := msg
	if msg.Snapshot != nil {
		spectators.Snapshot = msg.Snapshot.forAccess(AccessRead)
	}
	for client, access := range h.clients {
		if access == AccessNone {
			continue
		}
		m := msg
		if access < AccessWrite {
			m = spectators
		}
		select {
		case client.send <- m:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// HubManager manages the hubs of active games.
type HubManager struct {
	AnswerTimeout   time.Duration
	QuestionTimeout time.Duration
	IdleTimeout     time.Duration
	Debug           bool

	hubs map[string]*Hub
	mu   sync.Mutex
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	gs    *GameStore
	stats *Stats

	genMu sync.RWMutex
	gen   questions.Generator
}

func NewHubManager(gs *GameStore, gen questions.Generator, stats *Stats) *HubManager {
	if gen == nil {
		gen = questions.Unconfigured
	}
	if stats == nil {
		stats = NewStats()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HubManager{
		AnswerTimeout:   game.DefaultAnswerTime,
		QuestionTimeout: 90 * time.Second,
		IdleTimeout:     hubIdleTimeout,
		hubs:            make(map[string]*Hub),
		ctx:             ctx,
		cancel:          cancel,
		now:             time.Now,
		gs:              gs,
		stats:           stats,
		gen:             gen,
	}
}

// Generator returns the question source used for new at-bats.
func (hm *HubManager) Generator() questions.Generator {
	hm.genMu.RLock()
	defer hm.genMu.RUnlock()
	return hm.gen
}

// SetGenerator replaces the question source. At-bats already waiting for
// a question keep the old one.
func (hm *HubManager) SetGenerator(gen questions.Generator) {
	hm.genMu.Lock()
	defer hm.genMu.Unlock()
	hm.gen = gen
}

func (hm *HubManager) GetHub(id string) *Hub {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hub, ok := hm.hubs[id]; ok {
		return hub
	}
	hub := newHub(id, hm.gs, hm)
	hm.hubs[id] = hub
	hm.wg.Add(1)
	go hub.run()
	return hub
}

// removeIfIdle unregisters h unless a request is already queued for it.
func (hm *HubManager) removeIfIdle(h *Hub) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if len(h.requests) > 0 {
		return false
	}
	if hm.hubs[h.gameId] == h {
		delete(hm.hubs, h.gameId)
	}
	return true
}

// Do sends req to the game's hub and waits for the reply. It returns
// errHubBusy when the hub cannot take the request.
func (hm *HubManager) Do(ctx context.Context, gameId string, req HubRequest) (*Snapshot, error) {
	req.Reply = make(chan HubResponse, 1)
	for attempt := 0; ; attempt++ {
		hub := hm.GetHub(gameId)
		select {
		case hub.requests <- req:
		default:
			return nil, errHubBusy
		}
		select {
		case resp := <-req.Reply:
			return resp.Snapshot, resp.Error
		case <-hub.done:
			select {
			case resp := <-req.Reply:
				return resp.Snapshot, resp.Error
			default:
			}
			// The hub went idle between GetHub and the send. A new hub
			// takes the request, unless the manager is shutting down.
			if attempt > 0 || hm.ctx.Err() != nil {
				return nil, errHubBusy
			}
			if hm.Debug {
				log.Printf("[HUB] Game %s: hub exited before the request, retrying", gameId)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops every hub after flushing its game.
func (hm *HubManager) Close() {
	hm.cancel()
	hm.wg.Wait()
}
