// Package githubingress is a thin inbound adapter from GitHub webhooks to
// the System Control API (SPEC_FULL.md Non-goals: the HTTP
// signature-verification handler is a sketch demonstrating the contract,
// not a complete GitHub App — issue templating, label parsing, and PR
// review policy are all left to whatever actually runs this in production).
//
// Grounded on internal/webhooks/dispatcher.go + registry.go, inverted: the
// teacher's Dispatcher pushes signed events OUT to subscriber URLs; this
// package verifies a signed event coming IN and turns it into one of a
// handful of internal/exchange System Control calls. SignPayload's
// HMAC-SHA256-over-raw-body scheme is the same one GitHub itself uses for
// X-Hub-Signature-256, so the verification side is almost a literal mirror
// of registry.go's signing side.
package githubingress

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// Exchange is the narrow System Control surface this adapter calls into.
type Exchange interface {
	SystemCreateJob(ctx context.Context, requesterID, title, description string, budget int64, kind string, payload map[string]interface{}) (core.Job, error)
	SystemLinkIssue(ctx context.Context, owner, repo string, issue int, jobID string) error
	SystemLinkPr(ctx context.Context, owner, repo string, pr int, jobID string) error
	SystemGetJobIdByGithubIssue(ctx context.Context, owner, repo string, issue int) (string, bool)
	SystemGetJobIdByGithubPr(ctx context.Context, owner, repo string, pr int) (string, bool)
	SystemCompleteJob(ctx context.Context, jobID, workerID string) error
	SystemFailJob(ctx context.Context, jobID, workerID, reason string) error
}

// defaultBudget is used when an issue carries no machine-readable budget
// hint (SPEC_FULL.md doesn't define an issue-template convention; this is a
// placeholder a real deployment would replace with label/front-matter
// parsing).
const defaultBudget = 100

// Handler verifies GitHub's HMAC-SHA256 webhook signature and dispatches
// issues/pull_request events into the exchange.
type Handler struct {
	exchg  Exchange
	secret string
	logger *log.Logger
}

// New builds a Handler. secret is GITHUB_WEBHOOK_SECRET; an empty secret
// disables signature verification (local/demo use only).
func New(exchg Exchange, secret string) *Handler {
	return &Handler{
		exchg:  exchg,
		secret: secret,
		logger: log.New(log.Writer(), "[GHINGRESS] ", log.LstdFlags),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	if h.secret != "" && !h.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		http.Error(w, "signature mismatch", http.StatusUnauthorized)
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	ctx := r.Context()

	var err2 error
	switch event {
	case "issues":
		err2 = h.handleIssues(ctx, body)
	case "pull_request":
		err2 = h.handlePullRequest(ctx, body)
	default:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err2 != nil {
		h.logger.Printf("⚠️ github event %q handling failed: %v", event, err2)
		http.Error(w, err2.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) verifySignature(body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header[len(prefix):]), []byte(want))
}

type issuesPayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"issue"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// handleIssues posts a job when an issue is opened and links it to that
// issue. The requester id is "github:<login>"; no ledger account is created
// for it here, so the post fails unless that id already holds one. The issue
// link is not consulted by handlePullRequest, which looks jobs up by PR
// number only.
func (h *Handler) handleIssues(ctx context.Context, body []byte) error {
	var p issuesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return err
	}
	if p.Action != "opened" {
		return nil
	}

	requesterID := "github:" + p.Issue.User.Login
	job, err := h.exchg.SystemCreateJob(ctx, requesterID, p.Issue.Title, p.Issue.Body, defaultBudget, "coding", nil)
	if err != nil {
		return err
	}
	return h.exchg.SystemLinkIssue(ctx, p.Repository.Owner.Login, p.Repository.Name, p.Issue.Number, job.ID)
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number int  `json:"number"`
		Merged bool `json:"merged"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"pull_request"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// handlePullRequest completes or fails the linked job when its PR closes.
func (h *Handler) handlePullRequest(ctx context.Context, body []byte) error {
	var p pullRequestPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return err
	}
	if p.Action != "closed" {
		return nil
	}

	jobID, ok := h.exchg.SystemGetJobIdByGithubPr(ctx, p.Repository.Owner.Login, p.Repository.Name, p.PullRequest.Number)
	if !ok {
		return nil
	}
	workerID := "github:" + p.PullRequest.User.Login

	if p.PullRequest.Merged {
		return h.exchg.SystemCompleteJob(ctx, jobID, workerID)
	}
	return h.exchg.SystemFailJob(ctx, jobID, workerID, "pull_request_closed_unmerged")
}
