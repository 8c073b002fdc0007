package sqlite_test

import (
	"context"
	"embed"
	"encoding/json"
	"testing"

	dbfs "github.com/gather-app/gather/db"
	dbpkg "github.com/gather-app/gather/internal/db"
	sqlite "github.com/gather-app/gather/internal/repository/sqlite"
	"github.com/gather-app/gather/pkg/models"
)

func setupRepo(t *testing.T) (*sqlite.SQLiteRepo, func()) {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}

	// real migrations, no demo seed
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, embed.FS{}); err != nil {
		d.Close()
		t.Fatalf("failed to migrate: %v", err)
	}

	repo := sqlite.New(d, nil)
	return repo, func() { d.Close() }
}

func createAdmin(t *testing.T, repo *sqlite.SQLiteRepo, email string) int64 {
	t.Helper()
	id, err := repo.CreateAdmin(context.Background(), &models.Admin{Email: email, HashedPassword: "hash", IsActive: true})
	if err != nil {
		t.Fatalf("CreateAdmin error: %v", err)
	}
	return id
}

func TestAdminCRUD(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.CreateAdmin(ctx, nil); err == nil {
		t.Fatalf("expected error when creating nil admin")
	}

	got, err := repo.GetAdminByID(ctx, 9999)
	if err != nil {
		t.Fatalf("expected no error for non-existing id, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for non-existing id got: %#v", got)
	}

	id := createAdmin(t, repo, "alice@example.com")
	if id == 0 {
		t.Fatalf("expected non-zero id")
	}

	got, err = repo.GetAdminByID(ctx, id)
	if err != nil {
		t.Fatalf("GetAdminByID error: %v", err)
	}
	if got == nil || got.Email != "alice@example.com" || !got.IsActive {
		t.Fatalf("GetAdminByID wrong result: %#v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at set")
	}

	byEmail, err := repo.GetAdminByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetAdminByEmail error: %v", err)
	}
	if byEmail == nil || byEmail.ID != id {
		t.Fatalf("GetAdminByEmail wrong result: %#v", byEmail)
	}

	// duplicate email is rejected by the unique constraint
	if _, err := repo.CreateAdmin(ctx, &models.Admin{Email: "alice@example.com", HashedPassword: "x", IsActive: true}); err == nil {
		t.Fatalf("expected error for duplicate email")
	}

	createAdmin(t, repo, "bob@example.com")

	cnt, err := repo.CountAdmins(ctx)
	if err != nil {
		t.Fatalf("CountAdmins error: %v", err)
	}
	if cnt != 2 {
		t.Fatalf("expected 2 admins got %d", cnt)
	}

	list, err := repo.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 admins got %d", len(list))
	}

	if err := repo.DeleteAdminByEmail(ctx, "bob@example.com"); err != nil {
		t.Fatalf("DeleteAdminByEmail error: %v", err)
	}
	cnt, _ = repo.CountAdmins(ctx)
	if cnt != 1 {
		t.Fatalf("expected 1 admin after delete got %d", cnt)
	}
}

func TestSurveyAndQuestionCRUD(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.CreateSurvey(ctx, nil); err == nil {
		t.Fatalf("expected error when creating nil survey")
	}

	desc := "what to bring"
	s := &models.Survey{Title: "Potluck", Description: &desc, SurveyToken: "tok-potluck"}
	sid, err := repo.CreateSurvey(ctx, s)
	if err != nil {
		t.Fatalf("CreateSurvey error: %v", err)
	}
	if sid == 0 || s.ID != sid {
		t.Fatalf("expected survey id set, got %d / %d", sid, s.ID)
	}

	got, err := repo.GetSurveyByID(ctx, sid)
	if err != nil {
		t.Fatalf("GetSurveyByID error: %v", err)
	}
	if got == nil || got.Title != "Potluck" || got.Description == nil || *got.Description != desc {
		t.Fatalf("GetSurveyByID wrong result: %#v", got)
	}
	if got.EventID != nil {
		t.Fatalf("expected no event link yet, got %v", *got.EventID)
	}

	byTok, err := repo.GetBySurveyToken(ctx, "tok-potluck")
	if err != nil {
		t.Fatalf("GetBySurveyToken error: %v", err)
	}
	if byTok == nil || byTok.ID != sid {
		t.Fatalf("GetBySurveyToken wrong result: %#v", byTok)
	}

	missing, err := repo.GetBySurveyToken(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for unknown token got %#v, %v", missing, err)
	}

	// insert out of order, list must come back sorted
	q2 := &models.Question{SurveyID: sid, Type: models.QuestionTypeText, Text: "Anything else?", Order: 2}
	if _, err := repo.CreateQuestion(ctx, q2); err != nil {
		t.Fatalf("CreateQuestion error: %v", err)
	}
	q1 := &models.Question{
		SurveyID:   sid,
		Type:       models.QuestionTypeMultipleChoice,
		Text:       "Dish type?",
		Options:    json.RawMessage(`["main","dessert"]`),
		AllowOther: true,
		Required:   true,
		Order:      1,
	}
	if _, err := repo.CreateQuestion(ctx, q1); err != nil {
		t.Fatalf("CreateQuestion error: %v", err)
	}

	qs, err := repo.ListQuestionsBySurvey(ctx, sid)
	if err != nil {
		t.Fatalf("ListQuestionsBySurvey error: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions got %d", len(qs))
	}
	if qs[0].ID != q1.ID || qs[1].ID != q2.ID {
		t.Fatalf("expected sort_order ordering, got %d, %d", qs[0].ID, qs[1].ID)
	}
	if opts := qs[0].OptionStrings(); len(opts) != 2 || opts[0] != "main" {
		t.Fatalf("expected options round-trip, got %#v", opts)
	}
	if qs[1].Options != nil {
		t.Fatalf("expected nil options for text question, got %s", qs[1].Options)
	}

	qs[0].Text = "What dish type?"
	qs[0].Required = false
	if err := repo.UpdateQuestion(ctx, &qs[0]); err != nil {
		t.Fatalf("UpdateQuestion error: %v", err)
	}
	fetched, err := repo.GetQuestionByID(ctx, qs[0].ID)
	if err != nil || fetched == nil {
		t.Fatalf("GetQuestionByID error: %v", err)
	}
	if fetched.Text != "What dish type?" || fetched.Required {
		t.Fatalf("update not applied: %#v", fetched)
	}

	if err := repo.DeleteQuestion(ctx, q2.ID); err != nil {
		t.Fatalf("DeleteQuestion error: %v", err)
	}
	qs, _ = repo.ListQuestionsBySurvey(ctx, sid)
	if len(qs) != 1 {
		t.Fatalf("expected 1 question after delete got %d", len(qs))
	}

	s.Title = "Potluck 2026"
	if err := repo.UpdateSurvey(ctx, s); err != nil {
		t.Fatalf("UpdateSurvey error: %v", err)
	}
	list, err := repo.ListSurveys(ctx)
	if err != nil {
		t.Fatalf("ListSurveys error: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Potluck 2026" {
		t.Fatalf("unexpected survey list: %#v", list)
	}
}

func TestCreateEventWithNewSurvey(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	adminID := createAdmin(t, repo, "host@example.com")

	e := &models.Event{
		Title:           "Summer Party",
		InvitationToken: "invite-1",
		CreatedBy:       adminID,
		ShowRSVPList:    true,
	}
	survey := &models.Survey{Title: "Summer Party - RSVP Survey", SurveyToken: "survey-1"}
	questions := []models.Question{
		{Type: models.QuestionTypeYesNo, Text: "Staying overnight?", Order: 1},
		{Type: models.QuestionTypeText, Text: "Allergies?", Order: 2},
	}

	eventID, err := repo.CreateEventWithSurvey(ctx, e, survey, questions)
	if err != nil {
		t.Fatalf("CreateEventWithSurvey error: %v", err)
	}
	if eventID == 0 || e.ID != eventID {
		t.Fatalf("expected event id set")
	}
	if e.SurveyID != survey.ID || survey.ID == 0 {
		t.Fatalf("expected event linked to created survey")
	}

	// the survey's back-reference must point at the event
	gotSurvey, err := repo.GetSurveyByID(ctx, survey.ID)
	if err != nil || gotSurvey == nil {
		t.Fatalf("GetSurveyByID error: %v", err)
	}
	if gotSurvey.EventID == nil || *gotSurvey.EventID != eventID {
		t.Fatalf("expected survey.event_id = %d got %#v", eventID, gotSurvey.EventID)
	}

	qs, err := repo.ListQuestionsBySurvey(ctx, survey.ID)
	if err != nil {
		t.Fatalf("ListQuestionsBySurvey error: %v", err)
	}
	if len(qs) != 2 || qs[0].Text != "Staying overnight?" {
		t.Fatalf("expected questions created in order, got %#v", qs)
	}

	byTok, err := repo.GetByInvitationToken(ctx, "invite-1")
	if err != nil {
		t.Fatalf("GetByInvitationToken error: %v", err)
	}
	if byTok == nil || byTok.ID != eventID || !byTok.ShowRSVPList {
		t.Fatalf("GetByInvitationToken wrong result: %#v", byTok)
	}

	// duplicate invitation tokens are rejected
	dup := &models.Event{Title: "Dup", InvitationToken: "invite-1", SurveyID: survey.ID, CreatedBy: adminID}
	if _, err := repo.CreateEventWithSurvey(ctx, dup, nil, nil); err == nil {
		t.Fatalf("expected error for duplicate invitation token")
	}
}

func TestCreateEventLinkExistingSurvey(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	adminID := createAdmin(t, repo, "host@example.com")

	s := &models.Survey{Title: "Standalone", SurveyToken: "survey-solo"}
	if _, err := repo.CreateSurvey(ctx, s); err != nil {
		t.Fatalf("CreateSurvey error: %v", err)
	}

	e := &models.Event{
		Title:           "Linked Event",
		InvitationToken: "invite-linked",
		SurveyID:        s.ID,
		CreatedBy:       adminID,
	}
	eventID, err := repo.CreateEventWithSurvey(ctx, e, nil, nil)
	if err != nil {
		t.Fatalf("CreateEventWithSurvey error: %v", err)
	}

	got, err := repo.GetSurveyByID(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("GetSurveyByID error: %v", err)
	}
	if got.EventID == nil || *got.EventID != eventID {
		t.Fatalf("expected existing survey linked to event, got %#v", got.EventID)
	}
}

func TestEventUpdateAndDelete(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	adminID := createAdmin(t, repo, "host@example.com")

	e := &models.Event{Title: "Old Title", InvitationToken: "invite-upd", CreatedBy: adminID}
	survey := &models.Survey{Title: "S", SurveyToken: "survey-upd"}
	eventID, err := repo.CreateEventWithSurvey(ctx, e, survey, nil)
	if err != nil {
		t.Fatalf("CreateEventWithSurvey error: %v", err)
	}

	// a submission that must survive event deletion
	sub := &models.Submission{SurveyID: survey.ID}
	if _, err := repo.CreateWithAnswers(ctx, sub, nil); err != nil {
		t.Fatalf("CreateWithAnswers error: %v", err)
	}

	code := "hashed-code"
	loc := "Park pavilion"
	e.Title = "New Title"
	e.Location = &loc
	e.AccessCodeHash = &code
	e.ShowRSVPList = true
	if err := repo.UpdateEvent(ctx, e); err != nil {
		t.Fatalf("UpdateEvent error: %v", err)
	}

	got, err := repo.GetEventByID(ctx, eventID)
	if err != nil || got == nil {
		t.Fatalf("GetEventByID error: %v", err)
	}
	if got.Title != "New Title" || got.Location == nil || *got.Location != loc {
		t.Fatalf("update not applied: %#v", got)
	}
	if got.AccessCodeHash == nil || *got.AccessCodeHash != code {
		t.Fatalf("expected access code stored")
	}

	// clearing the access code stores NULL
	e.AccessCodeHash = nil
	if err := repo.UpdateEvent(ctx, e); err != nil {
		t.Fatalf("UpdateEvent error: %v", err)
	}
	got, _ = repo.GetEventByID(ctx, eventID)
	if got.AccessCodeHash != nil {
		t.Fatalf("expected access code cleared, got %v", *got.AccessCodeHash)
	}

	if err := repo.DeleteEvent(ctx, eventID); err != nil {
		t.Fatalf("DeleteEvent error: %v", err)
	}

	gone, err := repo.GetEventByID(ctx, eventID)
	if err != nil || gone != nil {
		t.Fatalf("expected event gone, got %#v, %v", gone, err)
	}

	// survey and its submissions survive, unlinked
	keptSurvey, err := repo.GetSurveyByID(ctx, survey.ID)
	if err != nil || keptSurvey == nil {
		t.Fatalf("expected survey to survive event deletion")
	}
	if keptSurvey.EventID != nil {
		t.Fatalf("expected survey unlinked, got event_id %d", *keptSurvey.EventID)
	}
	subs, err := repo.ListSubmissionsBySurvey(ctx, survey.ID)
	if err != nil || len(subs) != 1 {
		t.Fatalf("expected submission to survive event deletion, got %d, %v", len(subs), err)
	}
}

func TestSubmissionLifecycle(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	s := &models.Survey{Title: "S", SurveyToken: "survey-sub"}
	if _, err := repo.CreateSurvey(ctx, s); err != nil {
		t.Fatalf("CreateSurvey error: %v", err)
	}
	q := &models.Question{SurveyID: s.ID, Type: models.QuestionTypeText, Text: "Notes?", Order: 1}
	if _, err := repo.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("CreateQuestion error: %v", err)
	}

	if _, err := repo.CreateWithAnswers(ctx, nil, nil); err == nil {
		t.Fatalf("expected error when creating nil submission")
	}

	identity := "Dana"
	rsvp := models.RSVPYes
	attendees := int64(3)
	hash := "edit-hash"
	sub := &models.Submission{
		SurveyID:      s.ID,
		Identity:      &identity,
		RSVP:          &rsvp,
		NumAttendees:  &attendees,
		EditTokenHash: &hash,
	}
	answers := []models.Answer{{QuestionID: q.ID, Value: json.RawMessage(`"bringing salad"`)}}

	subID, err := repo.CreateWithAnswers(ctx, sub, answers)
	if err != nil {
		t.Fatalf("CreateWithAnswers error: %v", err)
	}
	if subID == 0 || answers[0].SubmissionID != subID || answers[0].ID == 0 {
		t.Fatalf("expected ids set on answers: %#v", answers[0])
	}

	got, err := repo.GetSubmissionByID(ctx, subID)
	if err != nil || got == nil {
		t.Fatalf("GetSubmissionByID error: %v", err)
	}
	if got.Identity == nil || *got.Identity != identity || got.RSVP == nil || *got.RSVP != models.RSVPYes {
		t.Fatalf("wrong submission: %#v", got)
	}
	if got.NumAttendees == nil || *got.NumAttendees != 3 {
		t.Fatalf("expected num_attendees stored")
	}
	if got.SubmittedAt.IsZero() {
		t.Fatalf("expected submitted_at set")
	}

	// a plain survey submission has no edit token and is not editable
	plain := &models.Submission{SurveyID: s.ID}
	if _, err := repo.CreateWithAnswers(ctx, plain, nil); err != nil {
		t.Fatalf("CreateWithAnswers error: %v", err)
	}

	editable, err := repo.ListEditableBySurvey(ctx, s.ID)
	if err != nil {
		t.Fatalf("ListEditableBySurvey error: %v", err)
	}
	if len(editable) != 1 || editable[0].ID != subID {
		t.Fatalf("expected only the RSVP submission editable, got %#v", editable)
	}

	all, err := repo.ListSubmissionsBySurvey(ctx, s.ID)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 submissions got %d, %v", len(all), err)
	}

	// update fields only, answers untouched
	newResp := models.RSVPMaybe
	got.RSVP = &newResp
	got.NumAttendees = nil
	if err := repo.UpdateWithAnswers(ctx, got, nil, false); err != nil {
		t.Fatalf("UpdateWithAnswers error: %v", err)
	}
	kept, _ := repo.ListBySubmission(ctx, subID)
	if len(kept) != 1 || string(kept[0].Value) != `"bringing salad"` {
		t.Fatalf("expected answers untouched, got %#v", kept)
	}
	refetched, _ := repo.GetSubmissionByID(ctx, subID)
	if refetched.RSVP == nil || *refetched.RSVP != models.RSVPMaybe || refetched.NumAttendees != nil {
		t.Fatalf("expected fields updated: %#v", refetched)
	}
	if refetched.EditTokenHash == nil || *refetched.EditTokenHash != hash {
		t.Fatalf("expected edit token hash preserved")
	}

	// replace answers wholesale
	replacement := []models.Answer{{QuestionID: q.ID, Value: json.RawMessage(`"bringing bread"`)}}
	if err := repo.UpdateWithAnswers(ctx, refetched, replacement, true); err != nil {
		t.Fatalf("UpdateWithAnswers replace error: %v", err)
	}
	after, _ := repo.ListBySubmission(ctx, subID)
	if len(after) != 1 || string(after[0].Value) != `"bringing bread"` {
		t.Fatalf("expected answers replaced, got %#v", after)
	}

	// replacing with an empty set clears them
	if err := repo.UpdateWithAnswers(ctx, refetched, nil, true); err != nil {
		t.Fatalf("UpdateWithAnswers clear error: %v", err)
	}
	cleared, _ := repo.ListBySubmission(ctx, subID)
	if len(cleared) != 0 {
		t.Fatalf("expected no answers left, got %d", len(cleared))
	}

	if err := repo.DeleteSubmission(ctx, subID); err != nil {
		t.Fatalf("DeleteSubmission error: %v", err)
	}
	gone, err := repo.GetSubmissionByID(ctx, subID)
	if err != nil || gone != nil {
		t.Fatalf("expected submission gone, got %#v", gone)
	}
}

func TestCreateWithAnswersRollsBackOnFailure(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	s := &models.Survey{Title: "S", SurveyToken: "survey-rb"}
	if _, err := repo.CreateSurvey(ctx, s); err != nil {
		t.Fatalf("CreateSurvey error: %v", err)
	}

	// answer referencing a question that does not exist violates the FK and
	// must take the submission row down with it
	sub := &models.Submission{SurveyID: s.ID}
	bad := []models.Answer{{QuestionID: 424242, Value: json.RawMessage(`"x"`)}}
	if _, err := repo.CreateWithAnswers(ctx, sub, bad); err == nil {
		t.Fatalf("expected error for answer with unknown question")
	}

	subs, err := repo.ListSubmissionsBySurvey(ctx, s.ID)
	if err != nil {
		t.Fatalf("ListSubmissionsBySurvey error: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected no submissions after rollback, got %d", len(subs))
	}
}

func TestDuplicateAnswerForQuestionRejected(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	s := &models.Survey{Title: "S", SurveyToken: "survey-uq"}
	if _, err := repo.CreateSurvey(ctx, s); err != nil {
		t.Fatalf("CreateSurvey error: %v", err)
	}
	q := &models.Question{SurveyID: s.ID, Type: models.QuestionTypeText, Text: "Notes?", Order: 1}
	if _, err := repo.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("CreateQuestion error: %v", err)
	}

	sub := &models.Submission{SurveyID: s.ID}
	dup := []models.Answer{
		{QuestionID: q.ID, Value: json.RawMessage(`"a"`)},
		{QuestionID: q.ID, Value: json.RawMessage(`"b"`)},
	}
	if _, err := repo.CreateWithAnswers(ctx, sub, dup); err == nil {
		t.Fatalf("expected unique constraint error for duplicate question answers")
	}

	subs, _ := repo.ListSubmissionsBySurvey(ctx, s.ID)
	if len(subs) != 0 {
		t.Fatalf("expected rollback, got %d submissions", len(subs))
	}
}

func TestSurveyDeleteCascades(t *testing.T) {
	repo, cleanup := setupRepo(t)
	defer cleanup()
	ctx := context.Background()

	s := &models.Survey{Title: "S", SurveyToken: "survey-cascade"}
	if _, err := repo.CreateSurvey(ctx, s); err != nil {
		t.Fatalf("CreateSurvey error: %v", err)
	}
	q := &models.Question{SurveyID: s.ID, Type: models.QuestionTypeText, Text: "Notes?", Order: 1}
	if _, err := repo.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("CreateQuestion error: %v", err)
	}
	sub := &models.Submission{SurveyID: s.ID}
	if _, err := repo.CreateWithAnswers(ctx, sub, []models.Answer{{QuestionID: q.ID, Value: json.RawMessage(`"x"`)}}); err != nil {
		t.Fatalf("CreateWithAnswers error: %v", err)
	}

	if err := repo.DeleteSurvey(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSurvey error: %v", err)
	}

	if got, _ := repo.GetSurveyByID(ctx, s.ID); got != nil {
		t.Fatalf("expected survey gone")
	}
	if qs, _ := repo.ListQuestionsBySurvey(ctx, s.ID); len(qs) != 0 {
		t.Fatalf("expected questions cascaded, got %d", len(qs))
	}
	if subs, _ := repo.ListSubmissionsBySurvey(ctx, s.ID); len(subs) != 0 {
		t.Fatalf("expected submissions cascaded, got %d", len(subs))
	}
	if answers, _ := repo.ListBySubmission(ctx, sub.ID); len(answers) != 0 {
		t.Fatalf("expected answers cascaded, got %d", len(answers))
	}
}
