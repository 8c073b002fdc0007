package api_test

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gather-app/gather/api"
	dbfs "github.com/gather-app/gather/db"
	"github.com/gather-app/gather/internal/config"
	"github.com/gather-app/gather/internal/db"
	"github.com/gather-app/gather/internal/notify"
	"github.com/gather-app/gather/internal/tokens"
	sqlite "github.com/gather-app/gather/internal/repository/sqlite"
	"github.com/gather-app/gather/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

type capturedJob struct {
	Type    string
	Payload any
}

// captureQueue records enqueued jobs instead of running them.
type captureQueue struct {
	mu   sync.Mutex
	jobs []capturedJob
}

func (q *captureQueue) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, capturedJob{Type: typ, Payload: payload})
	return int64(len(q.jobs)), nil
}

func (q *captureQueue) byType(typ string) []capturedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []capturedJob
	for _, j := range q.jobs {
		if j.Type == typ {
			out = append(out, j)
		}
	}
	return out
}

// newTestServer boots the full router against a migrated in-memory database.
// Each test passes a distinct name so the shared-cache databases stay apart.
func newTestServer(t *testing.T, name string) (*httptest.Server, *sqlite.SQLiteRepo, *captureQueue) {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations, embed.FS{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		JWTSecret:       "testsecret",
		TokenDuration:   time.Hour,
		PublicBaseURL:   "http://localhost:5173",
		AllowedOrigins:  []string{"*"},
		MaxRequestBytes: 1 << 20,
		BcryptCost:      bcrypt.MinCost,
		RateLimit:       config.RateLimitConfig{Max: 10000, Window: time.Minute},
		LoginRateLimit:  config.RateLimitConfig{Max: 100, Window: time.Minute},
	}

	queue := &captureQueue{}
	router := api.SetupRoutes(cfg, "test", "test", d, queue)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		d.Close()
	})
	return srv, sqlite.New(d, nil), queue
}

// seedEvent stores an event plus a fresh survey holding the given questions.
// The questions get their ids filled in.
func seedEvent(t *testing.T, repo *sqlite.SQLiteRepo, invToken string, accessCode string, questions []models.Question) (*models.Event, *models.Survey) {
	t.Helper()
	desc := "Quarterly team offsite"
	loc := "Rooftop, building B"
	ev := &models.Event{
		Title:           "Team Offsite",
		Description:     &desc,
		Date:            time.Now().UTC().Add(72 * time.Hour),
		Location:        &loc,
		InvitationToken: invToken,
		ShowRSVPList:    true,
		CreatedBy:       1,
	}
	if accessCode != "" {
		hash, err := tokens.Hash(accessCode, bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash access code: %v", err)
		}
		ev.AccessCodeHash = &hash
	}
	sv := &models.Survey{Title: "Team Offsite - RSVP Survey", SurveyToken: invToken + "-sv"}
	if _, err := repo.CreateEventWithSurvey(context.Background(), ev, sv, questions); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return ev, sv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return res
}

func TestGuestRSVPFlow(t *testing.T) {
	srv, repo, queue := newTestServer(t, "guest_rsvp_flow")

	questions := []models.Question{
		{Type: models.QuestionTypeMultipleChoice, Text: "Which session will you join?", Options: json.RawMessage(`["Morning","Afternoon"]`), Required: true, Order: 1},
		{Type: models.QuestionTypeText, Text: "Dietary restrictions?", Order: 2},
	}
	seedEvent(t, repo, "inv-guest-flow", "", questions)

	base := srv.URL + "/api/events/inv-guest-flow"

	// unknown invitation token
	resMissing, err := http.Get(srv.URL + "/api/events/nope")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if resMissing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got %d", resMissing.StatusCode)
	}

	// event page carries the survey with ordered questions
	resPage, err := http.Get(base)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	defer resPage.Body.Close()
	if resPage.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resPage.StatusCode)
	}
	var page struct {
		Title         string `json:"title"`
		HasAccessCode bool   `json:"has_access_code"`
		Survey        *struct {
			Questions []struct {
				ID   int64  `json:"id"`
				Text string `json:"question_text"`
			} `json:"questions"`
		} `json:"survey"`
	}
	if err := json.NewDecoder(resPage.Body).Decode(&page); err != nil {
		t.Fatalf("decode event page: %v", err)
	}
	if page.Title != "Team Offsite" || page.HasAccessCode {
		t.Fatalf("unexpected event page: %+v", page)
	}
	if page.Survey == nil || len(page.Survey.Questions) != 2 {
		t.Fatalf("expected survey with 2 questions, got %+v", page.Survey)
	}
	if page.Survey.Questions[0].Text != "Which session will you join?" {
		t.Fatalf("questions out of order: %+v", page.Survey.Questions)
	}

	answers := map[string]any{
		fmt.Sprint(questions[0].ID): "Morning",
		fmt.Sprint(questions[1].ID): "no nuts please",
	}

	// a yes without a head count is rejected
	resNoCount := postJSON(t, base+"/rsvp", map[string]any{
		"identity": "Ana", "response": "yes", "survey_responses": answers,
	})
	defer resNoCount.Body.Close()
	b, _ := io.ReadAll(resNoCount.Body)
	if resNoCount.StatusCode != http.StatusBadRequest || !strings.Contains(string(b), "number of attendees") {
		t.Fatalf("expected attendee rejection, got %d %s", resNoCount.StatusCode, string(b))
	}

	// the real thing
	resCreated := postJSON(t, base+"/rsvp", map[string]any{
		"identity":         "Ana",
		"response":         "yes",
		"num_attendees":    2,
		"email":            "ana@example.com",
		"survey_responses": answers,
	})
	defer resCreated.Body.Close()
	data, _ := io.ReadAll(resCreated.Body)
	if resCreated.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", resCreated.StatusCode, string(data))
	}
	var created struct {
		ID        int64  `json:"id"`
		Identity  string `json:"identity"`
		Response  string `json:"response"`
		EditToken string `json:"edit_token"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("decode rsvp: %v", err)
	}
	if created.Response != "yes" || created.EditToken == "" {
		t.Fatalf("unexpected rsvp response: %+v", created)
	}

	// confirmation job queued for the guest's email
	jobs := queue.byType(notify.JobTypeRSVPConfirmation)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 confirmation job, got %d", len(jobs))
	}

	// look it up again with the edit token
	resMine, err := http.Get(base + "/my-rsvp?edit_token=" + created.EditToken)
	if err != nil {
		t.Fatalf("get my-rsvp: %v", err)
	}
	defer resMine.Body.Close()
	if resMine.StatusCode != http.StatusOK {
		t.Fatalf("my-rsvp: expected 200, got %d", resMine.StatusCode)
	}
	var mine struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(resMine.Body).Decode(&mine); err != nil {
		t.Fatalf("decode my-rsvp: %v", err)
	}
	if mine.Identity != "Ana" {
		t.Fatalf("expected identity Ana, got %q", mine.Identity)
	}

	// wrong token finds nothing
	resWrong, _ := http.Get(base + "/my-rsvp?edit_token=definitely-wrong")
	if resWrong.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for wrong edit token, got %d", resWrong.StatusCode)
	}

	// flip the answer to no; stored survey answers stay untouched
	updBody, _ := json.Marshal(map[string]any{"identity": "Ana", "response": "no"})
	req, _ := http.NewRequest(http.MethodPut, base+"/rsvp?edit_token="+created.EditToken, bytes.NewReader(updBody))
	req.Header.Set("Content-Type", "application/json")
	resUpd, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put rsvp: %v", err)
	}
	defer resUpd.Body.Close()
	updData, _ := io.ReadAll(resUpd.Body)
	if resUpd.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d body=%s", resUpd.StatusCode, string(updData))
	}
	var updated struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(updData, &updated); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if updated.Response != "no" {
		t.Fatalf("expected response no after update, got %q", updated.Response)
	}

	// stats reflect the final answer
	resStats, err := http.Get(base + "/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resStats.Body.Close()
	var stats struct {
		TotalRSVPs int64 `json:"total_rsvps"`
		YesCount   int64 `json:"yes_count"`
		NoCount    int64 `json:"no_count"`
		HasSurvey  bool  `json:"has_survey"`
	}
	if err := json.NewDecoder(resStats.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalRSVPs != 1 || stats.NoCount != 1 || stats.YesCount != 0 || !stats.HasSurvey {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestEventAccessCode(t *testing.T) {
	srv, repo, _ := newTestServer(t, "event_access_code")
	seedEvent(t, repo, "inv-gated", "secret99", nil)

	base := srv.URL + "/api/events/inv-gated"

	res, _ := http.Get(base)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without code, got %d", res.StatusCode)
	}

	resOK, _ := http.Get(base + "?access_code=secret99")
	if resOK.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with code, got %d", resOK.StatusCode)
	}

	resBad := postJSON(t, base+"/rsvp", map[string]any{
		"identity": "Ana", "response": "no", "access_code": "nope",
	})
	defer resBad.Body.Close()
	b, _ := io.ReadAll(resBad.Body)
	if resBad.StatusCode != http.StatusForbidden || !strings.Contains(string(b), "Invalid or missing access code") {
		t.Fatalf("expected access code rejection, got %d %s", resBad.StatusCode, string(b))
	}

	resGood := postJSON(t, base+"/rsvp", map[string]any{
		"identity": "Ana", "response": "no", "access_code": "secret99",
	})
	defer resGood.Body.Close()
	if resGood.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with code, got %d", resGood.StatusCode)
	}
}

func TestRSVPValidation(t *testing.T) {
	srv, repo, _ := newTestServer(t, "rsvp_validation")
	seedEvent(t, repo, "inv-validate", "", nil)

	url := srv.URL + "/api/events/inv-validate/rsvp"

	tests := []struct {
		name     string
		body     map[string]any
		wantBody string
	}{
		{
			name:     "MissingIdentity",
			body:     map[string]any{"response": "yes", "num_attendees": 1},
			wantBody: "identity is required",
		},
		{
			name:     "UnknownResponse",
			body:     map[string]any{"identity": "A", "response": "perhaps"},
			wantBody: "rsvp_response must be yes, no or maybe",
		},
		{
			name:     "YesWithoutCount",
			body:     map[string]any{"identity": "A", "response": "yes"},
			wantBody: "number of attendees",
		},
		{
			name:     "MaybeZeroCount",
			body:     map[string]any{"identity": "A", "response": "maybe", "num_attendees": 0},
			wantBody: "at least 1",
		},
		{
			name:     "TooManyAttendees",
			body:     map[string]any{"identity": "A", "response": "yes", "num_attendees": 1001},
			wantBody: "num_attendees must be at most 1000",
		},
		{
			name:     "BadEmail",
			body:     map[string]any{"identity": "A", "response": "no", "email": "not-an-address"},
			wantBody: "invalid email address",
		},
		{
			name:     "UnknownQuestion",
			body:     map[string]any{"identity": "A", "response": "no", "survey_responses": map[string]any{"9999": "x"}},
			wantBody: "question does not belong to this survey",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := postJSON(t, url, tt.body)
			defer res.Body.Close()
			b, _ := io.ReadAll(res.Body)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", res.StatusCode, string(b))
			}
			if !strings.Contains(string(b), tt.wantBody) {
				t.Fatalf("expected body to contain %q, got %s", tt.wantBody, string(b))
			}
		})
	}
}

func TestRSVPRequiredQuestion(t *testing.T) {
	srv, repo, _ := newTestServer(t, "rsvp_required_q")
	questions := []models.Question{
		{Type: models.QuestionTypeYesNo, Text: "Staying for dinner?", Required: true, Order: 1},
	}
	seedEvent(t, repo, "inv-required", "", questions)

	url := srv.URL + "/api/events/inv-required/rsvp"

	resMissing := postJSON(t, url, map[string]any{"identity": "Bo", "response": "no"})
	defer resMissing.Body.Close()
	b, _ := io.ReadAll(resMissing.Body)
	if resMissing.StatusCode != http.StatusBadRequest || !strings.Contains(string(b), "required question was not answered") {
		t.Fatalf("expected required-question rejection, got %d %s", resMissing.StatusCode, string(b))
	}

	resBadValue := postJSON(t, url, map[string]any{
		"identity": "Bo", "response": "no",
		"survey_responses": map[string]any{fmt.Sprint(questions[0].ID): "dunno"},
	})
	defer resBadValue.Body.Close()
	b2, _ := io.ReadAll(resBadValue.Body)
	if resBadValue.StatusCode != http.StatusBadRequest || !strings.Contains(string(b2), "answer is not valid") {
		t.Fatalf("expected answer rejection, got %d %s", resBadValue.StatusCode, string(b2))
	}

	resOK := postJSON(t, url, map[string]any{
		"identity": "Bo", "response": "no",
		"survey_responses": map[string]any{fmt.Sprint(questions[0].ID): "yes"},
	})
	defer resOK.Body.Close()
	if resOK.StatusCode != http.StatusCreated {
		b3, _ := io.ReadAll(resOK.Body)
		t.Fatalf("expected 201, got %d body=%s", resOK.StatusCode, string(b3))
	}
}
