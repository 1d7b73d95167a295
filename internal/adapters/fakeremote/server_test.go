package fakeremote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

const question = `{"question":"Will it rain?","resolution_criteria":"Official weather report"}`

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	fake := New(zerolog.Nop(), opts)
	ts := httptest.NewServer(fake.Router())
	t.Cleanup(ts.Close)
	return fake, ts
}

func post(t *testing.T, url, clientID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, url, clientID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var env struct {
		Detail struct {
			Message   string `json:"message"`
			ErrorCode string `json:"error_code"`
		} `json:"detail"`
	}
	decodeBody(t, resp, &env)
	require.NotEmpty(t, env.Detail.Message)
	return env.Detail.ErrorCode
}

func submitJob(t *testing.T, ts *httptest.Server, path, clientID, body string) string {
	t.Helper()
	resp := post(t, ts.URL+path, clientID, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, resp, &accepted)
	require.NotEmpty(t, accepted.JobID)
	return accepted.JobID
}

func jobStatus(t *testing.T, ts *httptest.Server, id string) statusBody {
	t.Helper()
	r := get(t, ts.URL+"/work/status/"+id, "")
	require.Equal(t, http.StatusOK, r.StatusCode)
	var out statusBody
	decodeBody(t, r, &out)
	return out
}

func TestServer_SubmitAdvanceComplete(t *testing.T) {
	opts := DefaultOptions()
	opts.Steps = 2
	fake, ts := newTestServer(t, opts)

	id := submitJob(t, ts, "/work/council", "c1", question)

	require.Equal(t, domain.JobPending, jobStatus(t, ts, id).Status)
	fake.Advance()
	require.Equal(t, domain.JobRunning, jobStatus(t, ts, id).Status)
	fake.Advance()
	fake.Advance()

	final := jobStatus(t, ts, id)
	require.Equal(t, domain.JobCompleted, final.Status)
	require.NotNil(t, final.Result)
	require.Equal(t, domain.ResultSuccess, final.Result.Status)
	require.Len(t, final.Result.AgentPredictions, 3)
	require.Equal(t, []int{11, 22, 33}, []int{
		final.Result.AgentPredictions[0].MinerUID,
		final.Result.AgentPredictions[1].MinerUID,
		final.Result.AgentPredictions[2].MinerUID,
	})
	require.NotNil(t, final.Result.Prediction)
	require.InDelta(t, 0.5, *final.Result.Prediction, 1e-9)
	require.InDelta(t, 0.03, final.Result.TotalCost, 1e-9)
	require.Nil(t, final.Error)
	require.Equal(t, 0, fake.limit.InFlight())
}

func TestServer_SelectedModeUsesMinerUID(t *testing.T) {
	opts := DefaultOptions()
	opts.Steps = 1
	fake, ts := newTestServer(t, opts)

	id := submitJob(t, ts, "/work/selected/33", "", question)
	fake.Advance()
	fake.Advance()

	final := jobStatus(t, ts, id)
	require.Equal(t, domain.JobCompleted, final.Status)
	require.Len(t, final.Result.AgentPredictions, 1)
	require.Equal(t, 33, final.Result.AgentPredictions[0].MinerUID)
	require.Equal(t, 2, final.Result.AgentPredictions[0].Rank)
}

func TestServer_SelectedUnknownMinerCompletesWithErrorResult(t *testing.T) {
	opts := DefaultOptions()
	opts.Steps = 1
	fake, ts := newTestServer(t, opts)

	id := submitJob(t, ts, "/work/selected/999", "", question)
	fake.Advance()
	fake.Advance()

	final := jobStatus(t, ts, id)
	require.Equal(t, domain.JobCompleted, final.Status)
	require.Equal(t, domain.ResultError, final.Result.Status)
	require.Nil(t, final.Result.Prediction)
	require.Equal(t, "Miner with UID 999 not found in leaderboard", final.Result.Error)

	resp := post(t, ts.URL+"/work/selected/abc", "", question)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestServer_AgentErrorCompletesWithErrorResult(t *testing.T) {
	opts := DefaultOptions()
	opts.Steps = 1
	fake, ts := newTestServer(t, opts)

	id := submitJob(t, ts, "/work/council", "", `{"question":"q","resolution_criteria":"c","agent_error":"sandbox timeout"}`)
	fake.Advance()
	fake.Advance()

	final := jobStatus(t, ts, id)
	require.Equal(t, domain.JobCompleted, final.Status)
	require.Equal(t, domain.ResultError, final.Result.Status)
	require.Nil(t, final.Result.Prediction)
	require.Empty(t, final.Result.AgentPredictions)
	require.Len(t, final.Result.Failures, 3)
	require.Equal(t, "Not enough successful predictions (0/3, need at least 2)", final.Result.Error)
}

func TestServer_FailDirective(t *testing.T) {
	opts := DefaultOptions()
	opts.Steps = 1
	fake, ts := newTestServer(t, opts)

	id := submitJob(t, ts, "/work/champion", "", `{"question":"q","resolution_criteria":"c","fail":"model crashed"}`)
	fake.Advance()
	fake.Advance()

	out := jobStatus(t, ts, id)
	require.Equal(t, domain.JobFailed, out.Status)
	require.Nil(t, out.Result)
	require.NotNil(t, out.Error)
	require.Equal(t, "model crashed", *out.Error)
}

func TestServer_RequestInProgressPerClient(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions())

	submitJob(t, ts, "/work/champion", "c1", question)
	submitJob(t, ts, "/work/champion", "c1", question)

	resp := post(t, ts.URL+"/work/champion", "c1", question)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "request_in_progress", errorCode(t, resp))

	submitJob(t, ts, "/work/champion", "c2", question)
}

func TestServer_QueueFull(t *testing.T) {
	opts := DefaultOptions()
	opts.Capacity = 1
	fake, ts := newTestServer(t, opts)

	submitJob(t, ts, "/work/champion", "a", question)
	resp := post(t, ts.URL+"/work/champion", "b", question)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "queue_full", errorCode(t, resp))

	fake.SetCapacity(2)
	submitJob(t, ts, "/work/champion", "b", question)
}

func TestServer_RateLimitCountsUnits(t *testing.T) {
	opts := DefaultOptions()
	opts.RequestsPerDay = 4
	opts.Steps = 1
	fake, ts := newTestServer(t, opts)

	submitJob(t, ts, "/work/council", "c1", question)
	fake.Advance()
	fake.Advance()

	// 3 unités consommées: un council de plus dépasse, un champion passe.
	resp := post(t, ts.URL+"/work/council", "c1", question)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "rate_limit_exceeded", errorCode(t, resp))
	submitJob(t, ts, "/work/champion", "c1", question)

	var h healthBody
	decodeBody(t, get(t, ts.URL+"/health", "c1"), &h)
	require.Equal(t, healthBody{Status: "healthy", RequestsUsed: 4, RequestsLimit: 4, RequestsRemaining: 0}, h)

	var other healthBody
	decodeBody(t, get(t, ts.URL+"/health", "c2"), &other)
	require.Equal(t, 4, other.RequestsRemaining)
}

func TestServer_BudgetExceeded(t *testing.T) {
	opts := DefaultOptions()
	opts.Steps = 1
	fake, ts := newTestServer(t, opts)

	fake.SetLimits(20, 0.01)
	submitJob(t, ts, "/work/champion", "", question)
	fake.Advance()
	fake.Advance()

	resp := post(t, ts.URL+"/work/champion", "", question)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "budget_exceeded", errorCode(t, resp))
}

func TestServer_Agents(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions())

	var out struct {
		Agents []domain.Agent `json:"agents"`
	}
	decodeBody(t, get(t, ts.URL+"/agents", ""), &out)
	require.Len(t, out.Agents, 4)
	for i, a := range out.Agents {
		require.Equal(t, i, a.Rank)
	}
	require.Equal(t, 11, out.Agents[0].MinerUID)
}

func TestServer_RejectsInvalidRequests(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions())

	r := get(t, ts.URL+"/work/status/nope", "")
	require.Equal(t, http.StatusNotFound, r.StatusCode)
	var notFound struct {
		Detail string `json:"detail"`
	}
	decodeBody(t, r, &notFound)
	require.Equal(t, "Job not found", notFound.Detail)

	require.Equal(t, http.StatusNotFound, post(t, ts.URL+"/work/ensemble", "", question).StatusCode)
	require.Equal(t, http.StatusNotFound, post(t, ts.URL+"/work/selected", "", question).StatusCode)
	require.Equal(t, http.StatusNotFound, post(t, ts.URL+"/work/council/11", "", question).StatusCode)

	// Le corps est la requête de prédiction elle-même, pas une enveloppe.
	resp := post(t, ts.URL+"/work/champion", "", `{"payload":{"question":"q","resolution_criteria":"c"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, http.StatusUnprocessableEntity, post(t, ts.URL+"/work/champion", "", `not json`).StatusCode)
}
