package domain

import "time"

// Exam types supported by the question bank.
const (
	ExamTypeMTP = "MTP"
	ExamTypeRTP = "RTP"
)

// Subjects returns the allowed subject names in their canonical form.
func Subjects() []string {
	return []string{
		"Advanced Accounting",
		"Corporate Laws",
		"Taxation",
		"Cost & Management",
		"Auditing",
		"Financial Management",
	}
}

// Groups returns the allowed exam groups.
func Groups() []string {
	return []string{"Group I", "Group II"}
}

// Papers returns the allowed paper names.
func Papers() []string {
	return []string{"Paper 01", "Paper 02", "Paper 03", "Paper 04", "Paper 05", "Paper 06"}
}

// SubOption is a single answer choice attached to a sub-question.
type SubOption struct {
	OptionText string `json:"optionText"`
	IsCorrect  bool   `json:"isCorrect"`
}

// SubQuestion nests beneath a question and optionally carries its own options.
type SubQuestion struct {
	SubQuestionNumber string      `json:"subQuestionNumber,omitempty"`
	SubQuestionText   string      `json:"subQuestionText"`
	SubOptions        []SubOption `json:"subOptions,omitempty"`
}

// Question is a single entry in the exam question bank.
type Question struct {
	ID             string
	Subject        string
	ExamType       string
	Year           string
	Month          string
	Group          string
	PaperName      string
	QuestionNumber int
	QuestionText   string
	AnswerText     string
	PageNumber     string
	SubQuestions   []SubQuestion
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// QuestionFilter narrows question listings.
type QuestionFilter struct {
	Subject        string
	Year           string
	QuestionNumber *int
}
