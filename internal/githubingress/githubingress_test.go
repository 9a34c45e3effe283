package githubingress

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

type fakeExchange struct {
	createdTitle  string
	linkedIssue   int
	completedJob  string
	completedBy   string
	failedJob     string
	pendingPrJob  string
}

func (f *fakeExchange) SystemCreateJob(ctx context.Context, requesterID, title, description string, budget int64, kind string, payload map[string]interface{}) (core.Job, error) {
	f.createdTitle = title
	return core.Job{ID: "job_1"}, nil
}

func (f *fakeExchange) SystemLinkIssue(ctx context.Context, owner, repo string, issue int, jobID string) error {
	f.linkedIssue = issue
	return nil
}

func (f *fakeExchange) SystemLinkPr(ctx context.Context, owner, repo string, pr int, jobID string) error {
	return nil
}

func (f *fakeExchange) SystemGetJobIdByGithubIssue(ctx context.Context, owner, repo string, issue int) (string, bool) {
	return "", false
}

func (f *fakeExchange) SystemGetJobIdByGithubPr(ctx context.Context, owner, repo string, pr int) (string, bool) {
	if f.pendingPrJob == "" {
		return "", false
	}
	return f.pendingPrJob, true
}

func (f *fakeExchange) SystemCompleteJob(ctx context.Context, jobID, workerID string) error {
	f.completedJob = jobID
	f.completedBy = workerID
	return nil
}

func (f *fakeExchange) SystemFailJob(ctx context.Context, jobID, workerID, reason string) error {
	f.failedJob = jobID
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestRejectsBadSignature(t *testing.T) {
	f := &fakeExchange{}
	h := New(f, "s3cret")

	body := strings.NewReader(`{"action":"opened"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", body)
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.createdTitle)
}

func TestIssueOpenedCreatesAndLinksJob(t *testing.T) {
	f := &fakeExchange{}
	h := New(f, "s3cret")

	payload := []byte(`{"action":"opened","issue":{"number":7,"title":"fix bug","body":"details","user":{"login":"alice"}},"repository":{"name":"repo","owner":{"login":"acme"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(string(payload)))
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-Hub-Signature-256", sign("s3cret", payload))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fix bug", f.createdTitle)
	assert.Equal(t, 7, f.linkedIssue)
}

func TestPullRequestMergedCompletesJob(t *testing.T) {
	f := &fakeExchange{pendingPrJob: "job_9"}
	h := New(f, "")

	payload := []byte(`{"action":"closed","pull_request":{"number":3,"merged":true,"user":{"login":"bob"}},"repository":{"name":"repo","owner":{"login":"acme"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(string(payload)))
	req.Header.Set("X-GitHub-Event", "pull_request")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "job_9", f.completedJob)
	assert.Equal(t, "github:bob", f.completedBy)
}

func TestPullRequestClosedUnmergedFailsJob(t *testing.T) {
	f := &fakeExchange{pendingPrJob: "job_9"}
	h := New(f, "")

	payload := []byte(`{"action":"closed","pull_request":{"number":3,"merged":false,"user":{"login":"bob"}},"repository":{"name":"repo","owner":{"login":"acme"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(string(payload)))
	req.Header.Set("X-GitHub-Event", "pull_request")
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "job_9", f.failedJob)
}
