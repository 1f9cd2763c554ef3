// Package scoring implements the hybrid auto/manual grading algorithm.
//
// Grading is a pure computation over an exam's question set and a submitted
// answer list; persistence and locking live in the service layer. The
// percentage denominator always covers every question belonging to the exam,
// so unanswered questions earn 0 but still count toward the total.
package scoring

import (
	"github.com/ciltra/ciltra-backend/internal/model"
	"github.com/google/uuid"
)

// Answer is one submitted (question, response) pair, already parsed.
// SelectedOptionID is uuid.Nil when the candidate sent no or an unparsable
// option reference.
type Answer struct {
	QuestionID       uuid.UUID
	SelectedOptionID uuid.UUID
	TextAnswer       string
}

// Mark is the grading outcome for a single accepted answer.
type Mark struct {
	QuestionID       uuid.UUID
	SelectedOptionID *uuid.UUID
	TextAnswer       string
	Awarded          float64
	// PendingManual is true for open-ended answers whose provisional 0 mark
	// awaits examiner review.
	PendingManual bool
}

// Result is the outcome of one grading pass over a submission.
type Result struct {
	Marks        []Mark
	EarnedPoints float64
	TotalPoints  float64
	Percentage   float64
	// FullyGraded is false when at least one submitted answer needs manual
	// marks before pass/fail can be determined.
	FullyGraded bool
	// Skipped counts answers dropped for referencing unknown questions.
	// Malformed entries never abort the submission.
	Skipped int
}

// Grade auto-grades a submission against the exam's question set.
//
// Objective answers earn the question's full points when the referenced
// option belongs to the question and is flagged correct; anything else,
// including a missing or foreign option reference, earns 0. Open-ended
// answers earn a provisional 0 and clear FullyGraded. Answers referencing
// unknown questions are skipped. A duplicate answer for the same question
// is ignored — first one wins.
func Grade(questions []model.Question, answers []Answer) Result {
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	total := 0.0
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
		total += questions[i].Points
	}

	res := Result{
		TotalPoints: total,
		FullyGraded: true,
	}

	seen := make(map[uuid.UUID]bool, len(answers))
	for _, ans := range answers {
		q, ok := byID[ans.QuestionID]
		if !ok {
			res.Skipped++
			continue
		}
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true

		mark := Mark{QuestionID: q.ID, TextAnswer: ans.TextAnswer}

		switch q.Type {
		case model.QuestionTypeObjective:
			if ans.SelectedOptionID != uuid.Nil {
				if opt := findOption(q, ans.SelectedOptionID); opt != nil {
					sel := opt.ID
					mark.SelectedOptionID = &sel
					if opt.IsCorrect {
						mark.Awarded = q.Points
						res.EarnedPoints += q.Points
					}
				}
			}
		case model.QuestionTypeOpenEnded:
			mark.PendingManual = true
			res.FullyGraded = false
		default:
			// Unknown question type behaves like open-ended: hold for review.
			mark.PendingManual = true
			res.FullyGraded = false
		}

		res.Marks = append(res.Marks, mark)
	}

	res.Percentage = Percentage(res.EarnedPoints, res.TotalPoints)
	return res
}

// Percentage computes earned/total*100, defined as 0 for a zero denominator.
func Percentage(earned, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return earned / total * 100
}

// Passed applies the exam's pass-mark threshold to a final percentage.
func Passed(percentage, passMark float64) bool {
	return percentage >= passMark
}

// findOption resolves an option reference within its own question only, so a
// correct option smuggled in from another question never scores.
func findOption(q *model.Question, optionID uuid.UUID) *model.Option {
	for i := range q.Options {
		if q.Options[i].ID == optionID {
			return &q.Options[i]
		}
	}
	return nil
}
