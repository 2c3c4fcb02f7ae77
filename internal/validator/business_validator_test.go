package validator

import (
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/brightclass/assessment-engine/internal/models"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func hasErrorOn(errs ValidationErrors, fieldSubstring string) bool {
	for _, e := range errs {
		if strings.Contains(e.Field, fieldSubstring) {
			return true
		}
	}
	return false
}

func validCreateRequest() *TestCreateRequest {
	return &TestCreateRequest{
		Title:    "Weekly physics quiz",
		Type:     models.TestMixed,
		Duration: 30,
		Questions: []QuestionRequest{
			{
				Number:        1,
				Type:          models.MultipleChoice,
				Text:          "Unit of force?",
				Options:       []string{"Newton", "Joule", "Watt"},
				CorrectAnswer: strPtr("Newton"),
				Marks:         2,
			},
			{
				Number:        2,
				Type:          models.TrueFalse,
				Text:          "Light is faster than sound.",
				Options:       []string{"True", "False"},
				CorrectAnswer: strPtr("True"),
				Marks:         1,
			},
		},
	}
}

func TestValidateTestCreate(t *testing.T) {
	bv := NewBusinessValidator()

	t.Run("valid request passes", func(t *testing.T) {
		if errs := bv.ValidateTestCreate(validCreateRequest()); len(errs) > 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
	})

	t.Run("duplicate question numbers rejected", func(t *testing.T) {
		req := validCreateRequest()
		req.Questions[1].Number = 1

		errs := bv.ValidateTestCreate(req)
		if !hasErrorOn(errs, "questions") {
			t.Errorf("expected a questions error, got %v", errs)
		}
	})

	t.Run("total marks must equal the question sum", func(t *testing.T) {
		req := validCreateRequest()
		req.TotalMarks = floatPtr(10) // questions sum to 3

		errs := bv.ValidateTestCreate(req)
		if !hasErrorOn(errs, "total_marks") {
			t.Errorf("expected a total_marks error, got %v", errs)
		}
	})

	t.Run("answer key must be among the options", func(t *testing.T) {
		req := validCreateRequest()
		req.Questions[0].CorrectAnswer = strPtr("Pascal")

		errs := bv.ValidateTestCreate(req)
		if len(errs) == 0 {
			t.Error("expected an error for a key outside the options")
		}
	})

	t.Run("true false needs exactly two options", func(t *testing.T) {
		req := validCreateRequest()
		req.Questions[1].Options = []string{"True", "False", "Maybe"}
		req.Questions[1].CorrectAnswer = strPtr("True")

		errs := bv.ValidateTestCreate(req)
		if len(errs) == 0 {
			t.Error("expected an error for a three-option true/false question")
		}
	})

	t.Run("essay questions cannot carry negative marking", func(t *testing.T) {
		req := validCreateRequest()
		req.Questions = append(req.Questions, QuestionRequest{
			Number:          3,
			Type:            models.Essay,
			Text:            "Explain Newton's second law.",
			Marks:           5,
			NegativeMarking: 1,
		})

		errs := bv.ValidateTestCreate(req)
		if len(errs) == 0 {
			t.Error("expected an error for negative marking on an essay")
		}
	})

	t.Run("multiple choice test type rejects essay questions", func(t *testing.T) {
		req := validCreateRequest()
		req.Type = models.TestMultipleChoice
		req.Questions = append(req.Questions, QuestionRequest{
			Number: 3,
			Type:   models.Essay,
			Text:   "Essay question",
			Marks:  5,
		})

		errs := bv.ValidateTestCreate(req)
		if len(errs) == 0 {
			t.Error("expected an error for an essay inside a multiple_choice test")
		}
	})

	t.Run("pdf based test requires file and explicit total", func(t *testing.T) {
		req := &TestCreateRequest{
			Title:    "Scanned midterm",
			Type:     models.TestPDFBased,
			Duration: 60,
		}

		errs := bv.ValidateTestCreate(req)
		if !hasErrorOn(errs, "pdf_url") {
			t.Errorf("expected a pdf_url error, got %v", errs)
		}
		if !hasErrorOn(errs, "total_marks") {
			t.Errorf("expected a total_marks error, got %v", errs)
		}
	})

	t.Run("passing marks cannot exceed total", func(t *testing.T) {
		req := validCreateRequest()
		req.PassingMarks = floatPtr(100)

		errs := bv.ValidateTestCreate(req)
		if !hasErrorOn(errs, "passing_marks") {
			t.Errorf("expected a passing_marks error, got %v", errs)
		}
	})

	t.Run("window end must follow start", func(t *testing.T) {
		req := validCreateRequest()
		start := time.Now().Add(2 * time.Hour)
		end := time.Now().Add(time.Hour)
		req.StartTime = &start
		req.EndTime = &end

		errs := bv.ValidateTestCreate(req)
		if len(errs) == 0 {
			t.Error("expected an error for an inverted window")
		}
	})

	t.Run("batch audience needs batch ids", func(t *testing.T) {
		req := validCreateRequest()
		req.Audience = models.AudienceBatches

		errs := bv.ValidateTestCreate(req)
		if len(errs) == 0 {
			t.Error("expected an error for a batch audience without batches")
		}
	})
}

func TestValidatePublish(t *testing.T) {
	bv := NewBusinessValidator()

	t.Run("test without content cannot publish", func(t *testing.T) {
		test := &models.TestDefinition{Title: "Empty", Type: models.TestMixed, Duration: 30}

		if errs := bv.ValidatePublish(test); len(errs) == 0 {
			t.Error("expected an error for a test without questions or PDF")
		}
	})

	t.Run("timed test needs a positive duration", func(t *testing.T) {
		test := &models.TestDefinition{
			Title:  "No clock",
			Type:   models.TestPDFBased,
			PDFURL: strPtr("https://files.example.com/midterm.pdf"),
		}

		if errs := bv.ValidatePublish(test); len(errs) == 0 {
			t.Error("expected an error for a timed test with zero duration")
		}
	})

	t.Run("untimed test publishes without duration", func(t *testing.T) {
		test := &models.TestDefinition{
			Title:   "Take home",
			Type:    models.TestPDFBased,
			Untimed: true,
			PDFURL:  strPtr("https://files.example.com/takehome.pdf"),
		}

		if errs := bv.ValidatePublish(test); len(errs) > 0 {
			t.Errorf("unexpected errors: %v", errs)
		}
	})
}

func TestValidateStatusTransition(t *testing.T) {
	bv := NewBusinessValidator()

	tests := []struct {
		name        string
		from        models.TestStatus
		to          models.TestStatus
		hasAttempts bool
		wantErr     bool
	}{
		{name: "scheduled to active", from: models.StatusScheduled, to: models.StatusActive},
		{name: "active to closed", from: models.StatusActive, to: models.StatusClosed},
		{name: "closed to archived", from: models.StatusClosed, to: models.StatusArchived},
		{name: "scheduled back to draft", from: models.StatusScheduled, to: models.StatusDraft},
		{name: "unpublish blocked once attempted", from: models.StatusScheduled, to: models.StatusDraft, hasAttempts: true, wantErr: true},
		{name: "archived is terminal", from: models.StatusArchived, to: models.StatusDraft, wantErr: true},
		{name: "closed cannot reopen", from: models.StatusClosed, to: models.StatusActive, wantErr: true},
		{name: "draft cannot close", from: models.StatusDraft, to: models.StatusClosed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			test := &models.TestDefinition{
				Title:   "Lifecycle test",
				Type:    models.TestPDFBased,
				Status:  tt.from,
				Untimed: true,
				PDFURL:  strPtr("https://files.example.com/paper.pdf"),
			}

			errs := bv.ValidateStatusTransition(test, tt.to, tt.hasAttempts)
			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("errors = %v, wantErr = %v", errs, tt.wantErr)
			}
		})
	}
}

func TestValidateTestUpdate(t *testing.T) {
	bv := NewBusinessValidator()

	existing := &models.TestDefinition{
		Title: "Weekly physics quiz",
		Type:  models.TestMixed,
		Questions: datatypes.NewJSONType([]models.Question{
			{Number: 1, Type: models.MultipleChoice, Text: "Unit of force?", Options: []string{"Newton", "Joule"}, CorrectAnswer: strPtr("Newton"), Marks: 6},
			{Number: 2, Type: models.TrueFalse, Text: "Light is faster than sound.", Options: []string{"True", "False"}, CorrectAnswer: strPtr("True"), Marks: 4},
		}),
		TotalMarks: 10,
		Duration:   30,
		Status:     models.StatusDraft,
	}

	t.Run("total_marks patch must match stored questions", func(t *testing.T) {
		errs := bv.ValidateTestUpdate(&TestUpdateRequest{TotalMarks: floatPtr(50)}, existing)
		if !hasErrorOn(errs, "total_marks") {
			t.Errorf("total_marks=50 accepted against questions summing 10: %v", errs)
		}
	})

	t.Run("matching total_marks patch passes", func(t *testing.T) {
		errs := bv.ValidateTestUpdate(&TestUpdateRequest{TotalMarks: floatPtr(10)}, existing)
		if len(errs) > 0 {
			t.Errorf("unexpected errors: %v", errs)
		}
	})

	t.Run("questions patch is checked against its own marks", func(t *testing.T) {
		req := &TestUpdateRequest{
			Questions: []QuestionRequest{
				{Number: 1, Type: models.MultipleChoice, Text: "Unit of power?", Options: []string{"Watt", "Joule"}, CorrectAnswer: strPtr("Watt"), Marks: 3},
			},
			TotalMarks: floatPtr(9),
		}
		errs := bv.ValidateTestUpdate(req, existing)
		if !hasErrorOn(errs, "total_marks") {
			t.Errorf("total_marks=9 accepted against patched questions summing 3: %v", errs)
		}
	})

	t.Run("keyless test accepts any total", func(t *testing.T) {
		pdf := &models.TestDefinition{Type: models.TestPDFBased, TotalMarks: 100, Untimed: true, Status: models.StatusDraft}
		errs := bv.ValidateTestUpdate(&TestUpdateRequest{TotalMarks: floatPtr(80)}, pdf)
		if len(errs) > 0 {
			t.Errorf("unexpected errors: %v", errs)
		}
	})
}
