// Seeds a demo event with a survey, questions and a couple of RSVPs through
// the repositories, so the data passes the same validation as API traffic.
// Unlike db_init's SQL seed, tokens are freshly minted on every run.
package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	dbfs "github.com/gather-app/gather/db"
	"github.com/gather-app/gather/internal/config"
	"github.com/gather-app/gather/internal/db"
	"github.com/gather-app/gather/internal/repository/sqlite"
	"github.com/gather-app/gather/internal/survey"
	"github.com/gather-app/gather/internal/tokens"
	"github.com/gather-app/gather/pkg/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg, err := config.LoadConfig("")
	if err != nil {
		return err
	}

	database, err := db.New(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, dbfs.Migrations, embed.FS{}); err != nil {
		return err
	}

	repo := sqlite.New(database, nil)

	owner, err := repo.GetAdminByEmail(ctx, "demo-owner@gather.local")
	if err != nil {
		return err
	}
	if owner == nil {
		// placeholder owner that cannot log in: '!' is not a bcrypt hash
		owner = &models.Admin{Email: "demo-owner@gather.local", HashedPassword: "!", IsActive: false}
		if _, err := repo.CreateAdmin(ctx, owner); err != nil {
			return err
		}
	}

	invToken, err := tokens.NewUnique(ctx, func(ctx context.Context, tok string) (bool, error) {
		ev, err := repo.GetByInvitationToken(ctx, tok)
		return ev != nil, err
	})
	if err != nil {
		return err
	}
	svToken, err := tokens.NewUnique(ctx, func(ctx context.Context, tok string) (bool, error) {
		sv, err := repo.GetBySurveyToken(ctx, tok)
		return sv != nil, err
	})
	if err != nil {
		return err
	}

	desc := "Bring a dish and a friend."
	loc := "Riverside Park Pavilion"
	event := &models.Event{
		Title:           "Summer Potluck",
		Description:     &desc,
		Date:            time.Now().UTC().AddDate(0, 1, 0),
		Location:        &loc,
		InvitationToken: invToken,
		ShowRSVPList:    true,
		CreatedBy:       owner.ID,
	}
	sv := &models.Survey{Title: "Summer Potluck - RSVP Survey", SurveyToken: svToken}
	questions := []models.Question{
		{Type: models.QuestionTypeMultipleChoice, Text: "What will you bring?", Options: []byte(`["Main dish","Side dish","Dessert","Drinks"]`), AllowOther: true, Required: true, Order: 1},
		{Type: models.QuestionTypeCheckbox, Text: "Any dietary restrictions at your table?", Options: []byte(`["Vegetarian","Vegan","Gluten-free","Nut allergy"]`), AllowOther: true, Order: 2},
		{Type: models.QuestionTypeYesNo, Text: "Can you help set up?", Order: 3},
		{Type: models.QuestionTypeText, Text: "Anything else we should know?", Order: 4},
	}
	if _, err := repo.CreateEventWithSurvey(ctx, event, sv, questions); err != nil {
		return err
	}

	svc := survey.NewService(repo, repo, bcrypt.MinCost)
	three := int64(3)
	if _, err := svc.CreateSubmission(ctx, sv.ID, map[int64]any{
		questions[0].ID: "Main dish",
		questions[2].ID: "yes",
	}, &survey.RSVPFields{Identity: "Jordan", Response: models.RSVPYes, NumAttendees: &three}); err != nil {
		return err
	}
	if _, err := svc.CreateSubmission(ctx, sv.ID, map[int64]any{
		questions[0].ID: "Dessert",
	}, &survey.RSVPFields{Identity: "Sam", Response: models.RSVPMaybe}); err != nil {
		return err
	}

	fmt.Printf("Demo event seeded.\n")
	fmt.Printf("  invitation: %s/rsvp/%s\n", cfg.PublicBaseURL, invToken)
	fmt.Printf("  survey:     %s/survey/%s\n", cfg.PublicBaseURL, svToken)
	return nil
}
