// Router dispatches inbound frames to the Exchange (spec.md §4.2). It owns
// the per-session auth handshake and the closed type->handler dispatch
// table; every handler is invoked strictly in the order frames arrive on
// a session (spec.md §5 guarantee 1), since ServeSession reads and
// dispatches on a single goroutine per session.
package wire

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/cjy919100-del/synapse-proto/internal/core"
	"github.com/cjy919100-del/synapse-proto/internal/exchange"
)

// NonceCache abstracts the replay-protection cache (internal/noncecache).
type NonceCache interface {
	Redeem(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// Router wires one Hub to an Exchange.
type Router struct {
	hub         *Hub
	exchg       *exchange.Exchange
	nonces      NonceCache
	authTimeout time.Duration
	protoV      int
	logger      *log.Logger
}

// NewRouter builds a Router. authTimeout bounds how long an unauthenticated
// session is kept alive (spec.md §4.1/§5).
func NewRouter(hub *Hub, exchg *exchange.Exchange, nonces NonceCache, authTimeout time.Duration, protocolVersion int) *Router {
	return &Router{
		hub:         hub,
		exchg:       exchg,
		nonces:      nonces,
		authTimeout: authTimeout,
		protoV:      protocolVersion,
		logger:      log.New(log.Writer(), "[ROUTER] ", log.LstdFlags),
	}
}

// ServeSession runs a session's full lifecycle: issue the challenge, gate on
// auth, then dispatch every subsequent frame until the connection drops.
func (r *Router) ServeSession(sess *Session) {
	defer func() {
		r.hub.Unregister(sess)
		sess.Close()
		r.logger.Printf("🔌 session closed for agent %q", sess.AgentID())
	}()

	nonce, err := NewNonce()
	if err != nil {
		r.logger.Printf("⚠️ failed to generate challenge nonce: %v", err)
		return
	}
	sess.nonce = nonce
	sess.Send("challenge", ChallengeOut{Nonce: nonce, AtMs: time.Now().UnixMilli()})

	if !r.awaitAuth(sess) {
		return
	}
	r.logger.Printf("✅ agent %s authenticated", sess.AgentID())

	for {
		var env Envelope
		if err := sess.ReadJSON(&env); err != nil {
			return
		}
		r.dispatch(sess, env)
	}
}

func (r *Router) awaitAuth(sess *Session) bool {
	type result struct {
		env Envelope
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var env Envelope
		err := sess.ReadJSON(&env)
		ch <- result{env, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return false
		}
		return r.handleAuth(sess, res.env)
	case <-time.After(r.authTimeout):
		r.logger.Printf("⏱️ auth handshake timed out")
		return false
	}
}

func (r *Router) handleAuth(sess *Session, env Envelope) bool {
	if env.Type != "auth" {
		sess.Send("error", ErrorOut{Message: core.ErrNotAuthenticated.Error()})
		return false
	}

	var in AuthIn
	if err := json.Unmarshal(env.Raw, &in); err != nil {
		sess.Send("error", ErrorOut{Message: core.ErrInvalidMessage.Error()})
		return false
	}
	if in.AgentName == "" {
		sess.Send("error", ErrorOut{Message: core.ErrBadAgentName.Error()})
		return false
	}
	if in.Nonce != sess.nonce {
		sess.Send("error", ErrorOut{Message: core.ErrBadNonce.Error()})
		return false
	}

	if r.nonces != nil {
		ok, err := r.nonces.Redeem(context.Background(), in.Nonce, r.authTimeout*2)
		if err != nil || !ok {
			sess.Send("error", ErrorOut{Message: core.ErrBadNonce.Error()})
			return false
		}
	}

	agentID, err := VerifyAuth(in.AgentName, in.PublicKey, in.Nonce, in.Signature)
	if err != nil {
		sess.Send("error", ErrorOut{Message: core.ErrSignatureVerificationFailed.Error()})
		return false
	}

	acct, err := r.exchg.AuthenticateAgent(context.Background(), agentID, in.AgentName)
	if err != nil {
		sess.Send("error", ErrorOut{Message: core.ErrDBErrorAuth.Error()})
		return false
	}

	sess.BindIdentity(agentID, in.AgentName)
	r.hub.Register(agentID, sess)
	sess.Send("authed", AuthedOut{AgentID: agentID, Credits: acct.Credits})
	return true
}

func (r *Router) dispatch(sess *Session, env Envelope) {
	ctx := context.Background()
	agentID := sess.AgentID()

	var decodeErr error
	var err error
	switch env.Type {
	case "post_job":
		var in PostJobIn
		if decodeErr = json.Unmarshal(env.Raw, &in); decodeErr == nil {
			_, err = r.exchg.PostJob(ctx, agentID, in.Title, in.Description, in.Budget, in.Kind, in.Payload)
		}
	case "bid":
		var in BidIn
		if decodeErr = json.Unmarshal(env.Raw, &in); decodeErr == nil {
			_, err = r.exchg.Bid(ctx, agentID, in.JobID, in.Price, in.EtaSeconds, in.Pitch, in.Terms)
		}
	case "award":
		var in AwardIn
		if decodeErr = json.Unmarshal(env.Raw, &in); decodeErr == nil {
			err = r.exchg.Award(ctx, agentID, in.JobID, in.WorkerID)
		}
	case "counter_offer":
		var in CounterOfferIn
		if decodeErr = json.Unmarshal(env.Raw, &in); decodeErr == nil {
			err = r.exchg.CounterOffer(ctx, agentID, in.JobID, in.WorkerID, in.Price, in.Terms, in.Notes)
		}
	case "worker_counter":
		var in WorkerCounterIn
		if decodeErr = json.Unmarshal(env.Raw, &in); decodeErr == nil {
			err = r.exchg.WorkerCounter(ctx, agentID, in.JobID, in.Price, in.Terms, in.Notes)
		}
	case "offer_decision":
		var in OfferDecisionIn
		if decodeErr = json.Unmarshal(env.Raw, &in); decodeErr == nil {
			err = r.exchg.OfferDecision(ctx, agentID, in.JobID, in.Decision)
		}
	case "submit":
		var in SubmitIn
		if decodeErr = json.Unmarshal(env.Raw, &in); decodeErr == nil {
			err = r.exchg.Submit(ctx, agentID, in.JobID, in.Result)
		}
	case "review":
		var in ReviewIn
		if decodeErr = json.Unmarshal(env.Raw, &in); decodeErr == nil {
			err = r.exchg.Review(ctx, agentID, in.JobID, in.Decision, in.Notes)
		}
	default:
		err = core.ErrUnknownType
	}

	if decodeErr != nil {
		sess.Send("error", ErrorOut{Message: core.ErrInvalidMessage.Error()})
		return
	}
	if err != nil {
		sess.Send("error", ErrorOut{Message: err.Error()})
	}
}
