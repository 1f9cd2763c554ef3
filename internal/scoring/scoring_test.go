package scoring

import (
	"testing"

	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
)

func objectiveQuestion(points float64) (model.Question, uuid.UUID, uuid.UUID) {
	correct := uuid.New()
	wrong := uuid.New()
	q := model.Question{
		ID:     uuid.New(),
		Type:   model.QuestionTypeObjective,
		Points: points,
		Options: []model.Option{
			{ID: correct, IsCorrect: true},
			{ID: wrong},
		},
	}
	return q, correct, wrong
}

func openQuestion(points float64) model.Question {
	return model.Question{
		ID:     uuid.New(),
		Type:   model.QuestionTypeOpenEnded,
		Points: points,
	}
}

func TestGradeObjectiveOnly(t *testing.T) {
	q1, correct1, _ := objectiveQuestion(5)
	q2, _, wrong2 := objectiveQuestion(5)

	res := Grade([]model.Question{q1, q2}, []Answer{
		{QuestionID: q1.ID, SelectedOptionID: correct1},
		{QuestionID: q2.ID, SelectedOptionID: wrong2},
	})

	if !res.FullyGraded {
		t.Fatal("objective-only submission should be fully graded")
	}
	if res.EarnedPoints != 5 {
		t.Errorf("earned = %v, want 5", res.EarnedPoints)
	}
	if res.TotalPoints != 10 {
		t.Errorf("total = %v, want 10", res.TotalPoints)
	}
	if res.Percentage != 50 {
		t.Errorf("percentage = %v, want 50", res.Percentage)
	}
}

func TestGradeHybridHoldsOpenEnded(t *testing.T) {
	q1, correct1, _ := objectiveQuestion(10)
	q2 := openQuestion(10)

	res := Grade([]model.Question{q1, q2}, []Answer{
		{QuestionID: q1.ID, SelectedOptionID: correct1},
		{QuestionID: q2.ID, TextAnswer: "a long essay"},
	})

	if res.FullyGraded {
		t.Fatal("open-ended answer should clear FullyGraded")
	}
	if res.Percentage != 50 {
		t.Errorf("provisional percentage = %v, want 50", res.Percentage)
	}

	var open *Mark
	for i := range res.Marks {
		if res.Marks[i].QuestionID == q2.ID {
			open = &res.Marks[i]
		}
	}
	if open == nil {
		t.Fatal("open-ended answer not marked")
	}
	if !open.PendingManual {
		t.Error("open-ended mark should be pending manual review")
	}
	if open.Awarded != 0 {
		t.Errorf("provisional award = %v, want 0", open.Awarded)
	}
}

func TestGradeDenominatorCoversUnanswered(t *testing.T) {
	q1, correct1, _ := objectiveQuestion(5)
	q2, _, _ := objectiveQuestion(5)
	q3, _, _ := objectiveQuestion(10)
	_ = q2
	_ = q3

	res := Grade([]model.Question{q1, q2, q3}, []Answer{
		{QuestionID: q1.ID, SelectedOptionID: correct1},
	})

	if res.TotalPoints != 20 {
		t.Errorf("total = %v, want 20", res.TotalPoints)
	}
	if res.Percentage != 25 {
		t.Errorf("percentage = %v, want 25", res.Percentage)
	}
	if !res.FullyGraded {
		t.Error("unanswered objective questions still auto-grade to 0")
	}
}

func TestGradeZeroQuestions(t *testing.T) {
	res := Grade(nil, []Answer{{QuestionID: uuid.New()}})

	if res.Percentage != 0 {
		t.Errorf("percentage = %v, want 0", res.Percentage)
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}
	if !res.FullyGraded {
		t.Error("empty exam should be fully graded")
	}
}

func TestGradeSkipsUnknownQuestions(t *testing.T) {
	q1, correct1, _ := objectiveQuestion(5)

	res := Grade([]model.Question{q1}, []Answer{
		{QuestionID: uuid.New(), SelectedOptionID: uuid.New()},
		{QuestionID: q1.ID, SelectedOptionID: correct1},
	})

	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}
	if res.Percentage != 100 {
		t.Errorf("percentage = %v, want 100 despite the malformed entry", res.Percentage)
	}
}

func TestGradeForeignOptionScoresZero(t *testing.T) {
	q1, _, _ := objectiveQuestion(5)
	q2, correct2, _ := objectiveQuestion(5)

	// Answer q1 with q2's correct option.
	res := Grade([]model.Question{q1, q2}, []Answer{
		{QuestionID: q1.ID, SelectedOptionID: correct2},
	})

	if res.EarnedPoints != 0 {
		t.Errorf("earned = %v, want 0 for an option from another question", res.EarnedPoints)
	}
	if len(res.Marks) != 1 {
		t.Fatalf("marks = %d, want 1", len(res.Marks))
	}
	if res.Marks[0].SelectedOptionID != nil {
		t.Error("foreign option reference should not be recorded as a selection")
	}
}

func TestGradeDuplicateAnswerFirstWins(t *testing.T) {
	q1, correct1, wrong1 := objectiveQuestion(5)

	res := Grade([]model.Question{q1}, []Answer{
		{QuestionID: q1.ID, SelectedOptionID: wrong1},
		{QuestionID: q1.ID, SelectedOptionID: correct1},
	})

	if res.EarnedPoints != 0 {
		t.Errorf("earned = %v, want 0: the first answer stands", res.EarnedPoints)
	}
	if len(res.Marks) != 1 {
		t.Errorf("marks = %d, want 1", len(res.Marks))
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		name   string
		earned float64
		total  float64
		want   float64
	}{
		{"half", 5, 10, 50},
		{"full", 10, 10, 100},
		{"zero total", 3, 0, 0},
		{"negative total", 3, -1, 0},
		{"regraded hybrid", 18, 20, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percentage(tt.earned, tt.total); got != tt.want {
				t.Errorf("Percentage(%v, %v) = %v, want %v", tt.earned, tt.total, got, tt.want)
			}
		})
	}
}

func TestPassed(t *testing.T) {
	tests := []struct {
		name       string
		percentage float64
		passMark   float64
		want       bool
	}{
		{"above", 75, 50, true},
		{"exact threshold", 50, 50, true},
		{"below", 49.99, 50, false},
		{"zero mark always passes", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Passed(tt.percentage, tt.passMark); got != tt.want {
				t.Errorf("Passed(%v, %v) = %v, want %v", tt.percentage, tt.passMark, got, tt.want)
			}
		})
	}
}
